package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/launcher/internal/api/http"
	"github.com/GriffinCanCode/launcher/internal/api/middleware"
	"github.com/GriffinCanCode/launcher/internal/api/ws"
	"github.com/GriffinCanCode/launcher/internal/domain/events"
	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/domain/manifest"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
	"github.com/GriffinCanCode/launcher/internal/domain/session"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/config"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/logging"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/store"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/surface/jsvm"
	"github.com/GriffinCanCode/launcher/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/launcher/internal/shared/paths"
	"github.com/GriffinCanCode/launcher/internal/shared/types"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the HTTP server and the lifecycle stack behind it
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	router     *gin.Engine
	httpServer *http.Server
	controller *lifecycle.Controller
	host       *jsvm.Host
	store      store.Store
	manifests  *manifest.Loader
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
}

// NewServer builds the lifecycle stack and its routes
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing launcher server",
		zap.String("addr", cfg.Server.Host+":"+cfg.Server.Port),
		zap.String("plugin_root", cfg.Plugins.Root),
		zap.String("store", cfg.Store.Driver),
	)

	metrics := monitoring.NewMetrics()
	layout := paths.Layout{Root: paths.DefaultRoot()}

	st, err := openStore(cfg.Store, layout)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewProvisioner(session.Options{
		Layout:         layout,
		Proxy:          cfg.Session.Proxy,
		RequestTimeout: cfg.Session.RequestTimeout,
		Retries:        cfg.Session.Retries,
		Breaker: resilience.Settings{
			Failures: cfg.Session.BreakerFailures,
			Cooldown: cfg.Session.BreakerTimeout,
		},
		InternalNames: cfg.Plugins.InternalNames,
		UserAgent:     "launcher",
	}, logger.Component("session"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create session provisioner: %w", err)
	}

	manifests := manifest.NewLoader(logger.Component("manifest"))
	bus := events.NewBus(logger.Component("events"))
	host := jsvm.NewHost(jsvm.Config{ScriptTimeout: cfg.Plugins.ScriptTimeout}, logger.Component("jsvm"))

	controller, err := lifecycle.New(lifecycle.Config{
		SearchBarHeight:   cfg.Plugins.SearchBarHeight,
		DefaultHeight:     cfg.Plugins.DefaultHeight,
		ModeTimeout:       cfg.Plugins.ModeTimeout,
		MethodTimeout:     cfg.Plugins.MethodTimeout,
		KillGrace:         cfg.Plugins.KillGrace,
		DetachedWidth:     cfg.Plugins.DetachedWidth,
		TitlebarHeight:    cfg.Plugins.TitlebarHeight,
		MinDetachedWidth:  cfg.Plugins.MinDetachedWidth,
		MinDetachedHeight: cfg.Plugins.MinDetachedHeight,
	}, lifecycle.Deps{
		Manifests: manifests,
		Sessions:  sessions,
		Host:      host,
		Store:     st,
		Bridge:    rpc.NewBridge(logger.Component("rpc"), metrics),
		Events:    bus,
		Metrics:   metrics,
		Log:       logger.Component("lifecycle"),
	})
	if err != nil {
		host.Close()
		st.Close()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	tracer := tracing.New(logger.Component("tracing"))

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(controller, apihttp.Options{
		Host:       host,
		Manifests:  manifests,
		PluginRoot: cfg.Plugins.Root,
		Tracer:     tracer,
	}, logger.Component("api"))
	handlers.Register(router)

	router.GET("/events", ws.NewHandler(bus, metrics, logger.Component("ws")).HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s := &Server{
		config:     cfg,
		logger:     logger,
		router:     router,
		controller: controller,
		host:       host,
		store:      st,
		manifests:  manifests,
		metrics:    metrics,
		tracer:     tracer,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.seedPlugins(context.Background())

	logger.Info("Server initialized successfully")
	return s, nil
}

func openStore(cfg config.StoreConfig, layout paths.Layout) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemory(), nil
	}

	path := cfg.Path
	if path == "" {
		path = layout.Database()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// seedPlugins registers every bundle under the plugin root that the store
// does not know yet
func (s *Server) seedPlugins(ctx context.Context) {
	root := s.config.Plugins.Root
	if root == "" {
		return
	}

	found, err := s.manifests.Scan(root)
	if err != nil {
		s.logger.Warn("Failed to scan plugin root", zap.String("root", root), zap.Error(err))
		return
	}
	entries := make([]types.RegisteredPlugin, 0, len(found))
	for _, m := range found {
		entries = append(entries, types.RegisteredPlugin{Path: m.Dir, Name: m.Name})
	}

	added, err := store.RegisterPlugins(ctx, s.store, entries)
	if err != nil {
		s.logger.Warn("Failed to register plugins", zap.Error(err))
		return
	}
	s.logger.Info("Plugins discovered",
		zap.Int("found", len(found)),
		zap.Int("registered", added),
	)
}

// Handler returns the root handler. Responses other than the event stream
// are gzip compressed when the client accepts it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/events", s.router)
	mux.Handle("/", gzhttp.GzipHandler(s.router))
	return mux
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server and destroys every plugin
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		errs = append(errs, err)
	}

	s.controller.Close()
	s.host.Close()
	s.tracer.Close()
	s.logger.Info("Closed plugin instances")

	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	s.logger.Sync()
	return errors.Join(errs...)
}
