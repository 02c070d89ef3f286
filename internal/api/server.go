package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/swncrew-core/internal/device"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/config"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/logging"
	"github.com/nerrad567/swncrew-core/internal/mission"
	"github.com/nerrad567/swncrew-core/internal/scheduler"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Controller   *scheduler.Controller
	Registry     *device.Registry
	History      mission.HistoryRepository // optional
	HistoryLimit int

	// Recorder receives readings posted over HTTP. Optional.
	Recorder device.Recorder

	// Valves drives manual valve commands. Optional; without it the
	// valve state endpoint answers 503.
	Valves scheduler.ValvePort

	// Checks are reported by /health; a failing check makes it 503.
	Checks map[string]HealthChecker

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the HTTP API server for SWNCREW Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	controller   *scheduler.Controller
	registry     *device.Registry
	history      mission.HistoryRepository
	historyLimit int
	recorder     device.Recorder
	valves       scheduler.ValvePort
	checks       map[string]HealthChecker
	gatherer     prometheus.Gatherer
	schemas      *schemas
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Server dependencies; Logger, Controller and Registry are
//     required, the rest are optional
//
// Returns:
//   - *Server: Configured server ready to Start
//   - error: If a required dependency is missing or the embedded
//     request schemas fail to compile
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("mission controller is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		controller:   deps.Controller,
		registry:     deps.Registry,
		history:      deps.History,
		historyLimit: deps.HistoryLimit,
		recorder:     deps.Recorder,
		valves:       deps.Valves,
		checks:       deps.Checks,
		gatherer:     gatherer,
		schemas:      compiled,
		version:      deps.Version,
		startTime:    time.Now(),
		hub:          NewHub(deps.Logger),
	}, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It closes WebSocket streams, then waits up to 10 seconds for in-flight
// requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
