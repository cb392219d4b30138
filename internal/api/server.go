package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/jimi-tracker/internal/dashboard"
	"github.com/nerrad567/jimi-tracker/internal/forward"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/database"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/logging"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/mqtt"
	"github.com/nerrad567/jimi-tracker/internal/ingest"
	"github.com/nerrad567/jimi-tracker/internal/store"
	"github.com/nerrad567/jimi-tracker/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultSyncSink is the sink whose deliveries set erp_synced.
const defaultSyncSink = "erpnext"

// ForwardStats reports forwarding counters for /api/v1/metrics.
type ForwardStats interface {
	Stats() forward.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Dashboard config.DashboardConfig
	Logger    *logging.Logger
	Store     *store.Store
	Pipeline  *ingest.Pipeline

	// Optional.
	Tracker   *forward.SyncTracker
	SyncSink  string // sink name behind erp_synced; defaults to "erpnext"
	Forwarder ForwardStats
	MQTT      *mqtt.Client
	DB        *database.DB
	Now       func() time.Time
	Version   string
}

// Server is the tracker's HTTP server: device pushes, read endpoints, the
// dashboard and its live feed.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	dashCfg   config.DashboardConfig
	logger    *logging.Logger
	store     *store.Store
	pipeline  *ingest.Pipeline
	tracker   *forward.SyncTracker
	syncSink  string
	forwarder ForwardStats
	mqtt      *mqtt.Client
	db        *database.DB
	now       func() time.Time
	version   string
	startTime time.Time

	hub    *Hub
	router http.Handler
	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies and registers
// the websocket broadcast as a pipeline observer.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Store and Pipeline are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("ingest pipeline is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SyncSink == "" {
		deps.SyncSink = defaultSyncSink
	}
	if deps.Dashboard.TrailLength <= 0 {
		deps.Dashboard.TrailLength = 5
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		dashCfg:   deps.Dashboard,
		logger:    deps.Logger,
		store:     deps.Store,
		pipeline:  deps.Pipeline,
		tracker:   deps.Tracker,
		syncSink:  deps.SyncSink,
		forwarder: deps.Forwarder,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		now:       deps.Now,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}
	s.router = s.buildRouter(dashboard.Handler(deps.Dashboard.Dir))

	s.pipeline.OnStored(s.broadcastPoint)

	return s, nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections and runs the websocket hub.
//
// Parameters:
//   - ctx: Parent context; cancelling it stops the hub
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// broadcastPoint relays a stored point to websocket clients.
func (s *Server) broadcastPoint(p telemetry.Point) {
	s.hub.Broadcast(EventPoint, p)
}
