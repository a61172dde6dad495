package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Sub-command tags used inside correlation ids.
const (
	subStructure   = "structure"
	subStyles      = "styles"
	subComponents  = "components"
	subDocument    = "document"
	subAnnotations = "annotations"
	subNodes       = "nodes"
	subText        = "text"
	subTypes       = "types"
	subReactions   = "reactions"
	subOverrides   = "overrides"
	subConnections = "connections"
	subSelection   = "selection"
	subImage       = "image"
)

// CorrelationID is the parsed form of "stage<N>-<sub>-<uuid>".
type CorrelationID struct {
	Stage Stage
	Sub   string
	Token string
}

func (c CorrelationID) String() string {
	return fmt.Sprintf("stage%d-%s-%s", int(c.Stage), c.Sub, c.Token)
}

// NewCorrelationID builds a fresh id for a command issued in stage.
func NewCorrelationID(stage Stage, sub string) CorrelationID {
	return CorrelationID{Stage: stage, Sub: sub, Token: uuid.NewString()}
}

// ParseCorrelationID splits an id into its stage, sub-command and token.
func ParseCorrelationID(s string) (CorrelationID, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "stage") || parts[1] == "" || parts[2] == "" {
		return CorrelationID{}, fmt.Errorf("malformed correlation id %q", s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(parts[0], "stage"))
	if err != nil || n <= int(StageIdle) || n > int(StageFinalizing) {
		return CorrelationID{}, fmt.Errorf("malformed correlation id %q: bad stage", s)
	}
	return CorrelationID{Stage: Stage(n), Sub: parts[1], Token: parts[2]}, nil
}
