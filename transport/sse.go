package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/petal-labs/petalmcp/bus"
	"github.com/petal-labs/petalmcp/engine"
	"github.com/petal-labs/petalmcp/mcp"
)

// HeartbeatInterval is the default interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

const (
	defaultSSEPath          = "/sse"
	defaultMessagePath      = "/messages/"
	defaultInboxSize        = 32
	defaultHandshakeTimeout = 5 * time.Minute
	defaultReapSchedule     = "@every 30s"
)

// SSEConfig configures the HTTP bridge.
type SSEConfig struct {
	// Addr is the listen address used by ListenAndServe.
	Addr        string
	SSEPath     string
	MessagePath string
	CORSOrigin  string
	MaxBody     int64

	HeartbeatInterval time.Duration
	// HandshakeTimeout closes streams whose session has not completed
	// initialize in time. Negative disables the sweep.
	HandshakeTimeout time.Duration
	// ReapSchedule is the cron spec for the handshake sweep.
	ReapSchedule string
	InboxSize    int

	Logger *slog.Logger
}

func (c SSEConfig) withDefaults() SSEConfig {
	if strings.TrimSpace(c.SSEPath) == "" {
		c.SSEPath = defaultSSEPath
	}
	if strings.TrimSpace(c.MessagePath) == "" {
		c.MessagePath = defaultMessagePath
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = HeartbeatInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if strings.TrimSpace(c.ReapSchedule) == "" {
		c.ReapSchedule = defaultReapSchedule
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SSEServer serves MCP sessions over Server-Sent Events. Each GET on the
// stream path opens a session; the peer posts its messages to the message
// path and receives replies on the stream.
type SSEServer struct {
	cfg    SSEConfig
	engine *engine.Engine
	bus    *bus.MemBus
	logger *slog.Logger
	router *chi.Mux
	reaper *cron.Cron

	mu         sync.RWMutex
	sessions   map[string]*sseSession
	closed     bool
	httpServer *http.Server
}

type sseSession struct {
	session *engine.Session
	inbox   chan mcp.Message
	cancel  context.CancelFunc
	created time.Time
	done    chan struct{}
}

// NewSSEServer builds the router and, unless disabled, schedules the
// handshake sweep.
func NewSSEServer(eng *engine.Engine, cfg SSEConfig) (*SSEServer, error) {
	if eng == nil {
		return nil, errors.New("transport: sse engine is nil")
	}
	cfg = cfg.withDefaults()
	s := &SSEServer{
		cfg:      cfg,
		engine:   eng,
		bus:      bus.NewMemBus(bus.MemBusConfig{SubscriberBufferSize: cfg.InboxSize}),
		logger:   cfg.Logger.With("transport", NameSSE),
		router:   chi.NewRouter(),
		sessions: make(map[string]*sseSession),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler { return withCORS(next, cfg.CORSOrigin) })
	s.router.Use(func(next http.Handler) http.Handler { return maxBodyMiddleware(next, cfg.MaxBody) })

	s.router.Get("/health", s.handleHealth)
	s.router.Get(cfg.SSEPath, s.handleStream)
	s.router.Post(cfg.MessagePath, s.handleMessage)
	if trimmed := strings.TrimSuffix(cfg.MessagePath, "/"); trimmed != "" && trimmed != cfg.MessagePath {
		s.router.Post(trimmed, s.handleMessage)
	}

	if cfg.HandshakeTimeout > 0 {
		s.reaper = cron.New()
		if _, err := s.reaper.AddFunc(cfg.ReapSchedule, func() { s.ReapStale(time.Now()) }); err != nil {
			return nil, fmt.Errorf("transport: invalid reap schedule %q: %w", cfg.ReapSchedule, err)
		}
		s.reaper.Start()
	}
	return s, nil
}

// Handler exposes the root HTTP handler.
func (s *SSEServer) Handler() http.Handler { return s.router }

// Sessions returns the number of open sessions.
func (s *SSEServer) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *SSEServer) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sse server listening", "addr", s.cfg.Addr, "sse_path", s.cfg.SSEPath, "message_path", s.cfg.MessagePath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		_ = s.Shutdown(context.Background())
		return fmt.Errorf("transport: sse listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes every session, stops the sweep and the HTTP server.
func (s *SSEServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]*sseSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	if s.reaper != nil {
		<-s.reaper.Stop().Done()
	}
	for _, sess := range open {
		sess.cancel()
	}
	_ = s.bus.Close()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("transport: sse shutdown: %w", err)
		}
	}
	s.logger.Info("sse server stopped", "closed_sessions", len(open))
	return nil
}

// ReapStale ends streams whose session is still uninitialized after the
// handshake timeout. It returns the number of sessions ended.
func (s *SSEServer) ReapStale(now time.Time) int {
	if s.cfg.HandshakeTimeout <= 0 {
		return 0
	}
	s.mu.RLock()
	var stale []*sseSession
	for _, sess := range s.sessions {
		if sess.session.State() == engine.StateUninitialized && now.Sub(sess.created) > s.cfg.HandshakeTimeout {
			stale = append(stale, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range stale {
		s.logger.Info("closing session without handshake", "session", sess.session.ID())
		sess.cancel()
	}
	return len(stale)
}

func (s *SSEServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": s.Sessions()})
}

func (s *SSEServer) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	id := newSessionID()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before the worker exists so no reply can be published to an
	// empty session.
	sub := s.bus.Subscribe(id)
	defer sub.Close()

	sess := &sseSession{
		session: s.engine.NewSession(id, NameSSE),
		inbox:   make(chan mcp.Message, s.cfg.InboxSize),
		cancel:  cancel,
		created: time.Now(),
		done:    make(chan struct{}),
	}
	if !s.register(sess) {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unregister(sess)

	logger := s.logger.With("session", id, "request_id", middleware.GetReqID(r.Context()))
	logger.Info("sse session opened", "remote", r.RemoteAddr)
	go s.work(ctx, sess, logger)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := s.cfg.MessagePath + "?session_id=" + id
	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint); err != nil {
		return
	}
	flusher.Flush()

	s.stream(ctx, w, flusher, sub, sess)
	logger.Info("sse session closed")
}

func (s *SSEServer) stream(ctx context.Context, w io.Writer, flusher http.Flusher, sub bus.Subscription, sess *sseSession) {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sub.Done():
			return

		case env := <-sub.Messages():
			if err := writeMessageEvent(w, env.Message); err != nil {
				return
			}
			flusher.Flush()

		case <-sess.done:
			// The worker ended; flush what it published before stopping.
			for {
				select {
				case env := <-sub.Messages():
					if err := writeMessageEvent(w, env.Message); err != nil {
						return
					}
				default:
					flusher.Flush()
					return
				}
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// work drives one session: it handles queued messages in order and publishes
// replies to the session's stream.
func (s *SSEServer) work(ctx context.Context, sess *sseSession, logger *slog.Logger) {
	defer close(sess.done)
	for {
		var msg mcp.Message
		select {
		case <-ctx.Done():
			return
		case msg = <-sess.inbox:
		}

		resp, err := sess.session.Handle(ctx, msg)
		if resp != nil {
			env := bus.Envelope{SessionID: sess.session.ID(), Message: *resp}
			if perr := s.bus.Publish(ctx, env); perr != nil {
				logger.Debug("dropping reply for closed stream", "error", perr)
				return
			}
		}
		if err != nil {
			logger.Warn("session terminated", "error", err)
			return
		}
	}
}

func (s *SSEServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if !validSessionID(id) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	sess, ok := s.lookup(id)
	if !ok {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	msg, reply := decodeMessage(body)
	if reply != nil {
		http.Error(w, "Could not parse message", http.StatusBadRequest)
		return
	}

	select {
	case sess.inbox <- msg:
	case <-sess.done:
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	case <-r.Context().Done():
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

func (s *SSEServer) register(sess *sseSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.session.ID()] = sess
	return true
}

func (s *SSEServer) unregister(sess *sseSession) {
	sess.cancel()
	sess.session.Close()
	s.mu.Lock()
	delete(s.sessions, sess.session.ID())
	s.mu.Unlock()
}

func (s *SSEServer) lookup(id string) (*sseSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func writeMessageEvent(w io.Writer, msg mcp.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	return err
}

func newSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
