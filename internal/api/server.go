package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
	"github.com/nerrad567/valuecore/internal/realtime"
	"github.com/nerrad567/valuecore/internal/value"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Database is the subset of *database.DB the monitoring summary reads.
type Database interface {
	Stats() sql.DBStats
	HealthCheck(ctx context.Context) error
}

// Telemetry receives request and broadcast measurements.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteRequestMetric(method, route string, status int, duration time.Duration)
	WriteBroadcastMetric(event, origin string, recipients int)
}

// BackplaneDialer opens the fan-out backplane. realtime.DialBackplane is the default.
type BackplaneDialer func(ctx context.Context, cfg config.RealtimeConfig, nodeID string, logger *logging.Logger) (realtime.Backplane, error)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config *config.Config
	Logger *logging.Logger
	Values value.Repository

	// DB is optional; when set the monitoring summary reports pool stats.
	DB Database
	// Telemetry is optional.
	Telemetry Telemetry
	// Registry is optional; a private registry with Go and process
	// collectors is created when nil.
	Registry *prometheus.Registry
	// DialBackplane is optional.
	DialBackplane BackplaneDialer

	Version string
}

// Server is the HTTP API server for valuecore.
//
// It owns the HTTP listener, the route table, the middleware pipeline and
// the socket server. The server is created with New() and started with Start().
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	values    value.Repository
	db        Database
	telemetry Telemetry
	dial      BackplaneDialer
	version   string
	startTime time.Time

	gatherer  prometheus.Gatherer
	metrics   *httpMetrics
	rtMetrics *realtime.Metrics

	sessions *sessionCodec
	sockets  *realtime.Server
	router   chi.Router

	mu       sync.Mutex
	started  bool
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Values == nil {
		return nil, fmt.Errorf("value repository is required")
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	dial := deps.DialBackplane
	if dial == nil {
		dial = realtime.DialBackplane
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		values:    deps.Values,
		db:        deps.DB,
		telemetry: deps.Telemetry,
		dial:      dial,
		version:   deps.Version,
		startTime: time.Now(),
		gatherer:  reg,
		metrics:   newHTTPMetrics(reg),
		rtMetrics: realtime.NewMetrics(reg),
		sessions:  newSessionCodec(deps.Config.Session),
	}

	s.sockets = realtime.NewServer(
		realtime.OptionsFromConfig(deps.Config.Realtime, deps.Config.CORS.ClientURL),
		deps.Logger,
		s.rtMetrics,
	)
	if deps.Telemetry != nil {
		s.sockets.SetRecorder(deps.Telemetry)
	}
	s.registerSocketEvents()

	return s, nil
}

// bootstrapStep is one stage of Start. Steps run in order and the first
// failure aborts startup.
type bootstrapStep struct {
	name string
	run  func(ctx context.Context) error
}

func (s *Server) bootstrapSteps() []bootstrapStep {
	return []bootstrapStep{
		{"pipeline", s.setupPipeline},
		{"routes", s.setupRoutes},
		{"monitoring", s.setupMonitoring},
		{"error boundary", s.setupErrorBoundary},
		{"listener", s.startListener},
	}
}

// Start wires the server in a fixed order: middleware pipeline, routes,
// monitoring, error boundary, then the listener. The listener step
// connects the realtime broker (see connectRealtime) before the TCP port
// is bound, so no socket can connect before broadcasts are wired.
//
// Serving continues in a background goroutine until Close.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	for _, step := range s.bootstrapSteps() {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("bootstrap %s: %w", step.name, err)
		}
		s.logger.Debug("bootstrap step complete", "step", step.name)
	}
	return nil
}

// startListener binds the realtime adapter and opens the TCP listener.
func (s *Server) startListener(ctx context.Context) error {
	adapter, err := s.connectRealtime(ctx)
	if err != nil {
		return err
	}
	s.sockets.SetAdapter(adapter)

	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("server listening",
		"address", ln.Addr().String(),
		"environment", s.cfg.Environment,
		"fanout", adapter.Mode(),
		"node_id", s.sockets.NodeID(),
	)
	return nil
}

// ServeHTTP routes the socket path to the socket server and everything
// else through the middleware pipeline.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == s.cfg.Realtime.Path {
		s.sockets.ServeHTTP(w, r)
		return
	}
	s.router.ServeHTTP(w, r)
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sockets returns the socket server.
func (s *Server) Sockets() *realtime.Server {
	return s.sockets
}

// Close shuts down in reverse start order: HTTP listener, sockets, then
// the fan-out adapter.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down API server: %w", err))
		}
	}

	if err := s.sockets.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing socket server: %w", err))
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	running := s.server != nil
	s.mu.Unlock()
	if !running {
		return ErrNotStarted
	}
	return nil
}
