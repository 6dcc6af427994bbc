// Package server bridges WebSocket clients to agent CLI runners. Each
// connection gets its own session record and its own runner; frames
// from the client are decoded and dispatched, and runner events are
// encoded back onto the wire.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traceline/traceline/internal/id"
	"github.com/traceline/traceline/internal/logging"
	"github.com/traceline/traceline/internal/metrics"
	"github.com/traceline/traceline/internal/protocol"
	"github.com/traceline/traceline/internal/server/agent"
	"github.com/traceline/traceline/internal/server/store"
)

// Subprotocol must match the client's dial option.
const Subprotocol = "traceline.chat.v1"

// Options configures the server.
type Options struct {
	Mode         string // "stream" or "print"
	AgentCommand string
	CommandsDir  string
	WorkingDir   string
}

// Server accepts WebSocket sessions and runs one agent per connection.
type Server struct {
	opts  Options
	store *store.Store

	// newRunner is replaced in tests.
	newRunner func(ctx context.Context, cfg agent.Config) (agent.Runner, error)

	shutdownCh chan struct{}
	shutdown   sync.Once
}

// New builds a server backed by the given session store.
func New(opts Options, st *store.Store) *Server {
	s := &Server{
		opts:       opts,
		store:      st,
		shutdownCh: make(chan struct{}),
	}
	s.newRunner = s.startRunner
	return s
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	s.shutdown.Do(func() { close(s.shutdownCh) })
}

// Handler returns the HTTP mux: /ws for sessions, /metrics for
// Prometheus, /healthz for probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return logging.HTTPMiddleware(metrics.HTTPMiddleware(mux))
}

func (s *Server) startRunner(ctx context.Context, cfg agent.Config) (agent.Runner, error) {
	if s.opts.Mode == "print" {
		return agent.NewPrintRunner(cfg), nil
	}
	return agent.StartStream(ctx, cfg)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdownCh:
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		slog.Debug("ws: accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := r.Context()
	sessionID := id.Generate()
	log := slog.With("session_id", sessionID)

	if _, err := s.store.CreateSession(ctx, sessionID, s.opts.Mode); err != nil {
		log.Error("create session record", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	runner, err := s.newRunner(ctx, agent.Config{
		Command:     s.opts.AgentCommand,
		WorkingDir:  s.opts.WorkingDir,
		CommandsDir: s.opts.CommandsDir,
	})
	if err != nil {
		log.Error("start agent", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "agent start failed")
		return
	}
	defer runner.Close()

	metrics.ActiveAgents.Inc()
	defer metrics.ActiveAgents.Dec()
	log.Info("client connected", "mode", s.opts.Mode)
	defer log.Info("client disconnected")

	sess := &wsSession{
		conn:      conn,
		runner:    runner,
		store:     s.store,
		sessionID: sessionID,
		log:       log,
	}

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		sess.forwardEvents(ctx)
	}()

	sess.readLoop(ctx)

	// Closing the runner ends its events channel, which stops the
	// forwarder.
	runner.Close()
	<-forwardDone
}

// wsSession is the per-connection state shared between the read loop
// and the event forwarder.
type wsSession struct {
	conn      *websocket.Conn
	runner    agent.Runner
	store     *store.Store
	sessionID string
	log       *slog.Logger

	writeMu   sync.Mutex
	turnMu    sync.Mutex
	turnStart time.Time
}

// readLoop handles client frames until the connection drops.
func (s *wsSession) readLoop(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.log.Debug("ws: read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			_ = s.conn.Close(websocket.StatusUnsupportedData, "expected text frames")
			return
		}

		msg, err := protocol.DecodeOutbound(data)
		if err != nil {
			s.log.Warn("ws: bad frame", "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		switch m := msg.(type) {
		case protocol.Ping:
			s.writeEvent(ctx, protocol.Pong{})

		case protocol.Command:
			s.beginTurn()
			if err := s.store.Touch(ctx, s.sessionID); err != nil {
				s.log.Warn("touch session", "error", err)
			}
			if err := s.runner.Submit(ctx, m.Content); err != nil {
				s.log.Error("submit command", "error", err)
				s.writeEvent(ctx, protocol.AIResponse{Content: "Error: " + err.Error()})
				s.writeEvent(ctx, protocol.TypingEnd{})
			}

		case protocol.PermissionResponse:
			if err := s.runner.RespondPermission(m.Choice); err != nil {
				// Stale or duplicate decision.
				s.log.Debug("permission response dropped", "error", err)
			}
		}
	}
}

// forwardEvents pushes runner output to the client until the runner's
// events channel closes.
func (s *wsSession) forwardEvents(ctx context.Context) {
	for ev := range s.runner.Events() {
		switch ev.(type) {
		case protocol.ResponseComplete, protocol.TypingEnd:
			s.endTurn(ctx)
		}
		s.writeEvent(ctx, ev)
	}
}

func (s *wsSession) writeEvent(ctx context.Context, ev protocol.Event) {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		s.log.Error("encode event", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Debug("ws: write failed", "error", err)
	}
}

func (s *wsSession) beginTurn() {
	s.turnMu.Lock()
	s.turnStart = time.Now()
	s.turnMu.Unlock()
}

// endTurn records turn metrics and persists the CLI session id for
// --resume continuity.
func (s *wsSession) endTurn(ctx context.Context) {
	s.turnMu.Lock()
	start := s.turnStart
	s.turnStart = time.Time{}
	s.turnMu.Unlock()

	metrics.AgentTurnsTotal.Inc()
	if !start.IsZero() {
		metrics.AgentTurnDuration.Observe(time.Since(start).Seconds())
	}

	if agentID := s.runner.AgentSessionID(); agentID != "" {
		if err := s.store.SetAgentSessionID(ctx, s.sessionID, agentID); err != nil {
			s.log.Warn("persist agent session id", "error", err)
		}
	}
}
