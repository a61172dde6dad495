package export

import (
	"context"
	"time"

	"github.com/agentic-research/figport/api"
)

// Sender delivers an outbound command frame to the plugin. Implementations
// must not call back into the Controller synchronously.
type Sender interface {
	Send(ctx context.Context, env api.Envelope) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, env api.Envelope) error

func (f SenderFunc) Send(ctx context.Context, env api.Envelope) error { return f(ctx, env) }

// Result is the outcome of a finished session.
type Result struct {
	Stats api.SessionStats
	// Err is nil on success, a *FatalError, or wraps ErrAborted.
	Err error
	// PostProcessErr is advisory. The export itself still succeeded.
	PostProcessErr error
}

type pendingCommand struct {
	id      CorrelationID
	command api.Command
	// batch is the dispatcher sequence for get_nodes_info commands.
	batch int
	// node is the target of an image export.
	node  string
	timer *time.Timer
}

func (p *pendingCommand) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Session is the state of one export run: the stage tracker, the batch
// dispatcher and every command still waiting for an answer. All fields are
// guarded by the owning Controller's mutex.
type Session struct {
	ID      string
	Channel string

	sender     Sender
	ctx        context.Context
	cancel     context.CancelFunc
	tracker    *Tracker
	dispatcher *BatchDispatcher
	pending    map[string]*pendingCommand

	commands map[api.Command]int
	empty    map[api.Command]int

	rootID       string
	rootFrames   []string
	images       []string
	rescanRounds int
	startedAt    time.Time

	finished bool
	done     chan struct{}
	result   Result
}

func newSession(id, channel string, sender Sender, batchSize int, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:         id,
		Channel:    channel,
		sender:     sender,
		ctx:        ctx,
		cancel:     cancel,
		dispatcher: NewBatchDispatcher(batchSize),
		pending:    make(map[string]*pendingCommand),
		commands:   make(map[api.Command]int),
		empty:      make(map[api.Command]int),
		startedAt:  now,
		done:       make(chan struct{}),
	}
}

// Done is closed when the session finishes, fails or is aborted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result is valid once Done is closed.
func (s *Session) Result() Result {
	<-s.done
	return s.result
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// reset stops every timer and forgets in-flight work. Responses that arrive
// afterwards no longer match a pending command and are dropped.
func (s *Session) reset() {
	for id, p := range s.pending {
		p.stop()
		delete(s.pending, id)
	}
	s.dispatcher.Drop()
	s.images = nil
	if s.tracker != nil {
		s.tracker.Reset()
	}
}

func (s *Session) stats(now time.Time) api.SessionStats {
	d := now.Sub(s.startedAt)
	st := api.SessionStats{
		SessionID:      s.ID,
		ProcessedNodes: s.dispatcher.Processed().Len(),
		Batches:        s.dispatcher.Dispatched(),
		RescanRounds:   s.rescanRounds,
		Duration:       d.Round(time.Millisecond).String(),
		DurationMillis: d.Milliseconds(),
		CommandsUsed:   make(map[string]int, len(s.commands)),
		StartedAt:      s.startedAt.UTC().Format(time.RFC3339),
		FinishedAt:     now.UTC().Format(time.RFC3339),
	}
	for c, n := range s.commands {
		st.CommandsUsed[string(c)] = n
	}
	if len(s.empty) > 0 {
		st.EmptyResults = make(map[string]int, len(s.empty))
		for c, n := range s.empty {
			st.EmptyResults[string(c)] = n
		}
	}
	return st
}
