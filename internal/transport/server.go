// Package transport accepts the design plugin over a websocket and feeds
// its frames to the export controller.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/export"
	"github.com/agentic-research/figport/internal/logging"
)

// ErrConnectionClosed is the abort reason when the plugin disconnects.
var ErrConnectionClosed = errors.New("plugin connection closed")

// Server is the websocket endpoint the plugin joins.
type Server struct {
	addr         string
	channel      string
	ctrl         *export.Controller
	log          *slog.Logger
	writeTimeout time.Duration
	readLimit    int64

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option customizes server construction.
type Option func(*Server)

// WithChannel only accepts joins for the named channel.
func WithChannel(name string) Option {
	return func(s *Server) { s.channel = name }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWriteTimeout bounds each outbound frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// NewServer prepares a server listening on addr.
func NewServer(addr string, ctrl *export.Controller, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		ctrl:         ctrl,
		log:          logging.New("transport"),
		writeTimeout: 10 * time.Second,
		// structure payloads of large documents run to tens of megabytes
		readLimit: 256 << 20,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Handler returns the HTTP routes: "/" upgrades to the plugin websocket,
// "/health" reports the controller state.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleSocket)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("transport: server already started")
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.addr, err)
	}
	s.listener = l
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", "error", err)
		}
	}()
	s.log.Info("listening", "addr", l.Addr().String(), "channel", s.channel)
	return nil
}

// Shutdown stops accepting connections and waits for handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"active": s.ctrl.Active(),
		"stage":  s.ctrl.Stage().String(),
	})
}

// conn is the per-connection Sender. Writes are serialized because the
// controller and the join handshake both write.
type conn struct {
	ws      *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *conn) Send(ctx context.Context, env api.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return wsjson.Write(ctx, c.ws, env)
}

func (c *conn) reply(ctx context.Context, typ, channel, text string) error {
	msg, err := json.Marshal(text)
	if err != nil {
		return err
	}
	return c.Send(ctx, api.Envelope{Type: typ, Channel: channel, Message: msg})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// the plugin runs inside the design tool with its own origin
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(s.readLimit)

	ctx := r.Context()
	c := &conn{ws: ws, timeout: s.writeTimeout}
	log := s.log.With("remote", r.RemoteAddr)
	log.Info("plugin connected")

	var sess *export.Session
	defer func() {
		if sess != nil && s.ctrl.Abort(sess, ErrConnectionClosed) {
			log.Warn("connection closed mid-export")
		}
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Info("plugin disconnected")
			} else {
				log.Debug("read ended", "error", err)
			}
			return
		}

		var env api.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn("undecodable frame", "error", err)
			if sess != nil {
				_ = s.ctrl.Fail(sess, fmt.Errorf("%w: %v", export.ErrMalformedEnvelope, err))
			}
			continue
		}

		switch env.Type {
		case api.TypeJoin:
			sess = s.join(ctx, c, env, sess, log)
		case api.TypeMessage, api.TypeBroadcast:
			if sess == nil {
				log.Debug("message before join", "id", env.ID)
				continue
			}
			if err := s.ctrl.OnEnvelope(sess, env); err != nil {
				if errors.Is(err, export.ErrNoSession) {
					log.Debug("message for finished session", "id", env.ID)
				} else {
					log.Warn("envelope rejected", "error", err)
				}
			}
		default:
			log.Debug("ignoring frame", "type", env.Type)
		}
	}
}

// join starts a session for the connection. It returns the session now
// bound to the connection, which is the previous one when the join fails.
func (s *Server) join(ctx context.Context, c *conn, env api.Envelope, prev *export.Session, log *slog.Logger) *export.Session {
	if s.channel != "" && env.Channel != s.channel {
		log.Warn("join for unknown channel", "channel", env.Channel)
		_ = c.reply(ctx, api.TypeError, env.Channel, fmt.Sprintf("unknown channel: %s", env.Channel))
		return prev
	}
	if s.ctrl.Active() {
		_ = c.reply(ctx, api.TypeError, env.Channel, export.ErrSessionActive.Error())
		return prev
	}
	if err := c.reply(ctx, api.TypeSystem, env.Channel, "Joined channel: "+env.Channel); err != nil {
		log.Warn("join reply failed", "error", err)
		return prev
	}
	sess, err := s.ctrl.OnJoin(env.Channel, c)
	switch {
	case errors.Is(err, export.ErrSessionActive):
		_ = c.reply(ctx, api.TypeError, env.Channel, err.Error())
		return prev
	case err != nil:
		log.Error("export failed to start", "error", err)
		_ = c.reply(ctx, api.TypeError, env.Channel, err.Error())
		return prev
	}
	log.Info("export started", "channel", env.Channel, "session", sess.ID)
	return sess
}
