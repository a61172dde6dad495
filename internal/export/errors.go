package export

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive rejects a join while another export is running.
	ErrSessionActive = errors.New("export session already active")
	// ErrNoSession is returned when a response arrives with no active session.
	ErrNoSession = errors.New("no active export session")
	// ErrStructureTimeout means the structure response never arrived.
	ErrStructureTimeout = errors.New("structure_timeout")
	// ErrStructureFailed means the plugin answered the structure request with an error.
	ErrStructureFailed = errors.New("structure request failed")
	// ErrEmptyStructure means the structure response held no nodes.
	ErrEmptyStructure = errors.New("structure response contained no nodes")
	// ErrMalformedEnvelope is a frame that could not be decoded.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrAborted ends a session that was cancelled before finalizing.
	ErrAborted = errors.New("export aborted")
)

// FatalError ends a session. Stage is where the failure happened.
type FatalError struct {
	Stage Stage
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("export failed in %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
