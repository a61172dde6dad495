package export

import "fmt"

// EnterFunc runs when a stage becomes active. It issues the stage's
// commands and returns how many responses the stage expects. Zero means
// the stage is skipped forward immediately.
type EnterFunc func(Stage) (int, error)

// NextFunc picks the successor of a completed stage.
type NextFunc func(Stage) Stage

// Tracker advances through stages on completion counts only. It never
// looks at the clock.
type Tracker struct {
	current  Stage
	expected int
	received int
	enter    EnterFunc
	next     NextFunc
	visited  []Stage
}

// NewTracker returns an idle tracker. A nil next uses DefaultNext.
func NewTracker(enter EnterFunc, next NextFunc) *Tracker {
	if next == nil {
		next = DefaultNext
	}
	if enter == nil {
		enter = func(Stage) (int, error) { return 0, nil }
	}
	return &Tracker{current: StageIdle, enter: enter, next: next}
}

// Current returns the active stage.
func (t *Tracker) Current() Stage { return t.current }

// Expected returns the response count the active stage waits for.
func (t *Tracker) Expected() int { return t.expected }

// Received returns the responses counted for the active stage.
func (t *Tracker) Received() int { return t.received }

// Remaining returns how many responses the active stage still waits for.
func (t *Tracker) Remaining() int {
	if r := t.expected - t.received; r > 0 {
		return r
	}
	return 0
}

// Visited lists every stage entered since Start, in order.
func (t *Tracker) Visited() []Stage { return append([]Stage(nil), t.visited...) }

// Start leaves Idle and advances until a stage waits for responses or the
// pipeline returns to Idle.
func (t *Tracker) Start() error {
	if t.current != StageIdle {
		return fmt.Errorf("tracker already running in stage %s", t.current)
	}
	t.visited = nil
	return t.advance()
}

// Record counts one response for stage s. Responses for any stage other
// than the active one are ignored. It reports whether the active stage
// completed and the tracker moved on.
func (t *Tracker) Record(s Stage) (bool, error) {
	if s != t.current || t.current == StageIdle {
		return false, nil
	}
	t.received++
	if t.received < t.expected {
		return false, nil
	}
	return true, t.advance()
}

// Reset drops straight to Idle without running any stage.
func (t *Tracker) Reset() {
	t.current = StageIdle
	t.expected = 0
	t.received = 0
}

func (t *Tracker) advance() error {
	for {
		t.current = t.next(t.current)
		t.received = 0
		t.expected = 0
		if t.current == StageIdle {
			// Enter still runs so the owner can close out the session.
			_, err := t.enter(StageIdle)
			return err
		}
		t.visited = append(t.visited, t.current)
		n, err := t.enter(t.current)
		if err != nil {
			return fmt.Errorf("enter %s: %w", t.current, err)
		}
		if n > 0 {
			t.expected = n
			return nil
		}
	}
}
