// Package api exposes the simulation's read surface and lifecycle commands
// over HTTP, with a WebSocket stream of per-tick snapshots.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
	"github.com/signalsfoundry/border-queue-sim/internal/observability"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/driver"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
	"github.com/signalsfoundry/border-queue-sim/kb"
)

// ErrBadRequest marks a request the server could not parse.
var ErrBadRequest = errors.New("bad request")

const (
	maxConfigBody = 64 << 10
	clientBuffer  = 16
	writeTimeout  = 5 * time.Second
)

// Server serves the HTTP surface for one Driver.
type Server struct {
	driver  *driver.Driver
	events  *kb.KnowledgeBase
	metrics *observability.QueueCollector
	log     logging.Logger
	runCtx  context.Context

	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[*wsClient]struct{}
	unsubscribe func()
	closed      bool
}

// Option customises a Server.
type Option func(*Server)

// WithKnowledgeBase serves /api/events from k.
func WithKnowledgeBase(k *kb.KnowledgeBase) Option {
	return func(s *Server) { s.events = k }
}

// WithCollector instruments routes and serves /metrics from c.
func WithCollector(c *observability.QueueCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the server's logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRunContext sets the context runs started through POST /api/start are
// bound to. It defaults to context.Background.
func WithRunContext(ctx context.Context) Option {
	return func(s *Server) {
		if ctx != nil {
			s.runCtx = ctx
		}
	}
}

// NewServer subscribes to d so that snapshots can be streamed to WebSocket
// clients. Call Close to release the subscription.
func NewServer(d *driver.Driver, opts ...Option) *Server {
	s := &Server{
		driver:  d,
		log:     logging.Noop(),
		runCtx:  context.Background(),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.unsubscribe = d.Subscribe(s.broadcast)
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/snapshot", "/api/snapshot", s.handleSnapshot)
	s.route(mux, "GET /api/stats", "/api/stats", s.handleStats)
	s.route(mux, "GET /api/events", "/api/events", s.handleEvents)
	s.route(mux, "DELETE /api/events", "/api/events", s.handleClearEvents)
	s.route(mux, "GET /api/crossings", "/api/crossings", s.handleCrossings)
	s.route(mux, "POST /api/start", "/api/start", s.handleStart)
	s.route(mux, "POST /api/stop", "/api/stop", s.handleStop)
	s.route(mux, "POST /api/reset", "/api/reset", s.handleReset)
	s.route(mux, "GET /api/config", "/api/config", s.handleGetConfig)
	s.route(mux, "PUT /api/config", "/api/config", s.handlePutConfig)
	s.route(mux, "GET /ws", "/ws", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, label string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.InstrumentHandler(label, h))
}

// Close drops the driver subscription and disconnects WebSocket clients.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	for c := range s.clients {
		s.dropLocked(c)
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotDTO(s.driver.Snapshot()))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	out := statsResponseDTO{statsDTO: toStatsDTO(s.driver.Stats())}
	if s.events != nil {
		total := s.events.CrossingCount()
		out.TotalCrossings = &total
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: since %q: %v", ErrBadRequest, raw, err))
			return
		}
		since = v
	}

	out := []eventDTO{}
	if s.events != nil {
		for _, e := range s.events.ListEvents(since) {
			out = append(out, toEventDTO(e))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCrossings lists the retained crossings of every run, oldest first.
func (s *Server) handleCrossings(w http.ResponseWriter, _ *http.Request) {
	out := []eventDTO{}
	if s.events != nil {
		for _, e := range s.events.ListCrossings() {
			out = append(out, toEventDTO(e))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	if s.events != nil {
		s.events.Clear()
		s.log.Info(r.Context(), "event log cleared")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.Start(s.runCtx); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(s.driver.Snapshot()))
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.driver.Stop()
	writeJSON(w, http.StatusOK, toSnapshotDTO(s.driver.Snapshot()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(s.driver.Snapshot()))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Config())
}

// handlePutConfig layers the body over the active configuration, so a
// partial document only changes the fields it names.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := core.LoadConfig(http.MaxBytesReader(w, r.Body, maxConfigBody), s.driver.Config())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.driver.ApplyConfig(r.Context(), cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(s.driver.Snapshot()))
}

// statusFor maps simulation errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrInvalidConfiguration),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidOperation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.Err(err),
		)
	} else {
		s.log.Debug(r.Context(), "request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", code),
			logging.Err(err),
		)
	}
	writeJSON(w, code, errorDTO{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ---- WebSocket stream ----

// wsClient's send channel is closed only by dropLocked, under Server.mu.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}

	// Registering and queueing the current snapshot under one lock means
	// every later broadcast lands behind it, so a client never starts blank
	// and never misses a tick published while it connected.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	if first, err := json.Marshal(toSnapshotDTO(s.driver.Snapshot())); err == nil {
		c.send <- first
	} else {
		s.log.Warn(r.Context(), "failed to encode snapshot", logging.Err(err))
	}
	total := len(s.clients)
	s.mu.Unlock()

	s.log.Debug(r.Context(), "websocket client connected", logging.Int("clients", total))

	go s.writeLoop(c)
	go s.readLoop(c)
}

// readLoop discards inbound frames and unregisters the client once the
// connection drops.
func (s *Server) readLoop(c *wsClient) {
	defer s.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug(context.Background(), "websocket read failed", logging.Err(err))
			}
			return
		}
	}
}

func (s *Server) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Debug(context.Background(), "websocket write failed", logging.Err(err))
			s.drop(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) drop(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

func (s *Server) dropLocked(c *wsClient) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

// broadcast runs on the driver's publishing goroutine. A client whose
// buffer is full is disconnected rather than allowed to stall the ticks.
func (s *Server) broadcast(snap state.Snapshot) {
	s.mu.Lock()
	idle := len(s.clients) == 0
	s.mu.Unlock()
	if idle {
		return
	}

	msg, err := json.Marshal(toSnapshotDTO(snap))
	if err != nil {
		s.log.Warn(context.Background(), "failed to encode snapshot", logging.Err(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.log.Warn(context.Background(), "dropping slow websocket client")
			s.dropLocked(c)
		}
	}
}
