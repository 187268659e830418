package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Config configures the devtools server.
type Config struct {
	// Addr is the listen address used by Run (default: "localhost:7070").
	Addr string

	// Recorder supplies /snapshot and /events. Required.
	Recorder *Recorder

	// Gatherer supplies /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	// Logger receives server logs (default: slog.Default()).
	Logger *slog.Logger

	// WriteTimeout bounds each websocket write (default: 10s).
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown (default: 5s).
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds request header reads (default: 5s).
	ReadHeaderTimeout time.Duration

	// CheckOrigin validates websocket origins. If nil, only same-origin
	// requests are accepted.
	CheckOrigin func(r *http.Request) bool
}

// Server serves runtime inspection endpoints:
//
//   - GET /healthz: liveness probe
//   - GET /metrics: Prometheus metrics
//   - GET /snapshot: buffered events as JSON (?limit=N keeps the newest N)
//   - GET /events: websocket stream of msgpack frames
//
// Requests are served over HTTP/1.1 or cleartext HTTP/2 (h2c).
type Server struct {
	config   Config
	recorder *Recorder
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

// NewServer creates a devtools server.
func NewServer(config Config) *Server {
	if config.Addr == "" {
		config.Addr = "localhost:7070"
	}
	if config.Recorder == nil {
		config.Recorder = NewRecorder()
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = 5 * time.Second
	}

	s := &Server{
		config:   config,
		recorder: config.Recorder,
		logger:   config.Logger.With("component", "devtools"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/events", s.handleEvents)
	s.router = r

	return s
}

// Handler returns the HTTP handler, with h2c support.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.router, &http2.Server{})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devtools listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
		s.logger.Info("devtools shutdown complete")
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SnapshotResponse is the body of /snapshot.
type SnapshotResponse struct {
	Stats  RecorderStats `json:"stats"`
	Events []Event       `json:"events"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	events := s.recorder.Snapshot()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if limit < len(events) {
			events = events[len(events)-limit:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(SnapshotResponse{
		Stats:  s.recorder.Stats(),
		Events: events,
	}); err != nil {
		s.logger.Error("snapshot encode failed", "error", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.recorder.Subscribe()
	defer sub.Close()
	logger := s.logger.With("client", sub.ID)
	logger.Debug("devtools client connected")

	hello := &Frame{Type: FrameHello, ClientID: sub.ID, Seq: s.recorder.Stats().Total}
	if err := s.writeFrame(conn, hello); err != nil {
		logger.Debug("hello write failed", "error", err)
		return
	}

	// Clients only listen; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := s.writeFrame(conn, &Frame{Type: FrameEvent, Event: &ev}); err != nil {
				logger.Debug("event write failed", "error", err)
				return
			}
		case <-closed:
			logger.Debug("devtools client disconnected")
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(s.config.WriteTimeout))
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f *Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
