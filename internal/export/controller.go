// Package export drives a staged export session against a connected design
// plugin and persists every response under the artifact taxonomy.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
	"github.com/agentic-research/figport/internal/config"
	"github.com/agentic-research/figport/internal/ingest"
	"github.com/agentic-research/figport/internal/logging"
)

// Options are the session knobs taken from config.
type Options struct {
	BatchSize        int
	StructureTimeout time.Duration
	CommandTimeout   time.Duration
	MaxRescanRounds  int
	MaxImages        int
	ImageFormat      string
	ImageScale       float64
}

// OptionsFromConfig copies the export settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BatchSize:        cfg.BatchSize,
		StructureTimeout: cfg.StructureTimeout,
		CommandTimeout:   cfg.CommandTimeout,
		MaxRescanRounds:  cfg.MaxRescanRounds,
		MaxImages:        cfg.MaxImages,
		ImageFormat:      cfg.ImageFormat,
		ImageScale:       cfg.ImageScale,
	}
}

// PostProcessFunc runs synchronously in the finalizing stage after session
// stats are written. Its error is reported but does not fail the export.
type PostProcessFunc func(ctx context.Context, store *artifact.Store) error

// Option configures a Controller.
type Option func(*Controller)

// WithPostProcess installs the finalize tail step.
func WithPostProcess(fn PostProcessFunc) Option {
	return func(c *Controller) { c.postProcess = fn }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithSessionHook is called with every session that starts. It runs under
// the controller lock and must not block or call back into the controller.
func WithSessionHook(fn func(*Session)) Option {
	return func(c *Controller) { c.onStart = fn }
}

// WithClock overrides time.Now, for stats in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns at most one active Session. Every entry point takes the
// same mutex, so responses, timeouts and aborts are applied one at a time.
type Controller struct {
	mu          sync.Mutex
	store       *artifact.Store
	opts        Options
	log         *slog.Logger
	walker      *ingest.JsonWalker
	postProcess PostProcessFunc
	onStart     func(*Session)
	now         func() time.Time
	session     *Session
}

// NewController returns an idle controller writing into store.
func NewController(store *artifact.Store, opts Options, options ...Option) *Controller {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	c := &Controller{
		store:  store,
		opts:   opts,
		log:    logging.New("export"),
		walker: ingest.NewJsonWalker(),
		now:    time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *Controller) activeLocked() bool {
	return c.session != nil && !c.session.finished
}

// Stage returns the stage of the current session, or Idle.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked() {
		return StageIdle
	}
	return c.session.tracker.Current()
}

// OnJoin starts a new session for a plugin that joined channel. Prior
// artifacts are cleared before the first command goes out.
func (c *Controller) OnJoin(channel string, sender Sender) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return nil, ErrSessionActive
	}
	if err := c.store.Reset(); err != nil {
		return nil, &FatalError{Stage: StageInit, Err: err}
	}

	s := newSession(uuid.NewString(), channel, sender, c.opts.BatchSize, c.now())
	s.tracker = NewTracker(
		func(st Stage) (int, error) { return c.enter(s, st) },
		func(st Stage) Stage { return c.next(s, st) },
	)
	c.session = s
	c.log.Info("export session started", "session", s.ID, "channel", channel)
	if c.onStart != nil {
		c.onStart(s)
	}

	if err := s.tracker.Start(); err != nil {
		ferr := c.fail(s, err)
		return s, ferr
	}
	return s, nil
}

// OnEnvelope applies one inbound frame from the plugin that owns s.
// Frames without a result or error (echoes, progress updates) are ignored.
func (c *Controller) OnEnvelope(s *Session, env api.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s == nil || c.session != s || s.finished {
		return ErrNoSession
	}
	var msg api.Message
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return c.fail(s, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err))
	}
	if !msg.IsResponse() {
		return nil
	}
	return c.deliver(s, msg)
}

// OnResponse applies a decoded response to the current session.
func (c *Controller) OnResponse(correlationID string, result json.RawMessage, errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return ErrNoSession
	}
	return c.deliver(c.session, api.Message{ID: correlationID, Result: result, Error: errMsg})
}

// Fail ends s with a fatal error, for transport-level decode failures.
func (c *Controller) Fail(s *Session, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil || c.session != s || s.finished {
		return ErrNoSession
	}
	return c.fail(s, err)
}

// Abort cancels s if it is still running. In-flight work is discarded;
// artifacts already written stay on disk.
func (c *Controller) Abort(s *Session, reason error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil || c.session != s || s.finished {
		return false
	}
	stage := s.tracker.Current()
	s.reset()
	err := ErrAborted
	if reason != nil {
		err = fmt.Errorf("%w: %v", ErrAborted, reason)
	}
	c.log.Warn("export session aborted", "session", s.ID, "stage", stage, "reason", reason)
	c.finish(s, err)
	return true
}

func (c *Controller) deliver(s *Session, msg api.Message) error {
	p, ok := s.pending[msg.ID]
	if !ok {
		// Late answers to timed-out commands land here too.
		if cid, err := ParseCorrelationID(msg.ID); err == nil {
			c.log.Debug("dropping response with no pending command", "id", msg.ID, "stage", cid.Stage)
		} else {
			c.log.Warn("dropping response with unknown id", "id", msg.ID)
		}
		return nil
	}
	p.stop()
	delete(s.pending, msg.ID)
	if err := c.handle(s, p, msg.Result, msg.Error, false); err != nil {
		return c.fail(s, err)
	}
	return nil
}

// expire fires from a command timer.
func (c *Controller) expire(s *Session, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || s.finished {
		return
	}
	p, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	c.log.Warn("command timed out", "session", s.ID, "command", p.command, "id", id)
	if err := c.handle(s, p, nil, "", true); err != nil {
		_ = c.fail(s, err)
	}
}

// send issues one command and arms its timer.
func (c *Controller) send(s *Session, id CorrelationID, cmd api.Command, params map[string]any, timeout time.Duration) (*pendingCommand, error) {
	msg := api.Message{ID: id.String(), Command: cmd, Params: params}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd, err)
	}
	p := &pendingCommand{id: id, command: cmd}
	s.pending[msg.ID] = p
	s.commands[cmd]++
	if timeout > 0 {
		key := msg.ID
		p.timer = time.AfterFunc(timeout, func() { c.expire(s, key) })
	}
	env := api.Envelope{ID: msg.ID, Type: api.TypeMessage, Channel: s.Channel, Message: raw}
	if err := s.sender.Send(s.ctx, env); err != nil {
		p.stop()
		delete(s.pending, msg.ID)
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}
	c.log.Debug("command sent", "command", cmd, "id", msg.ID)
	return p, nil
}

func (c *Controller) fail(s *Session, err error) error {
	var fe *FatalError
	if !errors.As(err, &fe) {
		fe = &FatalError{Stage: s.tracker.Current(), Err: err}
	}
	c.log.Error("export session failed", "session", s.ID, "stage", fe.Stage, "error", fe.Err)
	s.reset()
	c.finish(s, fe)
	return fe
}

func (c *Controller) finish(s *Session, err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.result.Err = err
	if s.result.Stats.SessionID == "" {
		s.result.Stats = s.stats(c.now())
	}
	s.cancel()
	close(s.done)
}
