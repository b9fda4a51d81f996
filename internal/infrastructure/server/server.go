package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/applibrary/internal/api/http"
	"github.com/GriffinCanCode/applibrary/internal/api/middleware"
	"github.com/GriffinCanCode/applibrary/internal/api/ws"
	"github.com/GriffinCanCode/applibrary/internal/domain/acquisition"
	"github.com/GriffinCanCode/applibrary/internal/domain/catalog"
	"github.com/GriffinCanCode/applibrary/internal/domain/extraction"
	"github.com/GriffinCanCode/applibrary/internal/domain/pipeline"
	"github.com/GriffinCanCode/applibrary/internal/domain/registration"
	"github.com/GriffinCanCode/applibrary/internal/domain/transfer"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/config"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/logging"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/transferserver"
	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	importer    *pipeline.Importer
	acquisition *acquisition.Manager
	extractor   *extraction.Extractor
	catalog     *catalog.Manager
	transfers   *transfer.Orchestrator
	transferSrv *transferserver.Server
	hub         *ws.Hub
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Sampling:    cfg.Logging.Sampling,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewServerWithLogger(cfg, logger)
}

// NewServerWithLogger creates a server that logs through logger
func NewServerWithLogger(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing App Library",
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Library.StoragePath),
		zap.Int("queue_depth", cfg.Acquisition.QueueDepth),
	)

	layout := paths.New(cfg.Library.StoragePath)
	if err := layout.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare storage: %w", err)
	}

	metrics := monitoring.NewMetrics()

	fetchOpts := httpclient.DefaultOptions()
	fetchOpts.Timeout = cfg.Acquisition.Timeout.Duration
	fetchOpts.Retries = cfg.Acquisition.Retries
	fetchOpts.RateLimit = cfg.Acquisition.RateLimit
	if cfg.Acquisition.UserAgent != "" {
		fetchOpts.UserAgent = cfg.Acquisition.UserAgent
	}
	fetchOpts.Logger = logger.Component("httpclient")
	client := httpclient.NewClient(fetchOpts)

	acq := acquisition.NewManager(client, layout.DownloadsDir(), acquisition.Options{
		QueueDepth: cfg.Acquisition.QueueDepth,
		Timeout:    cfg.Acquisition.Timeout.Duration,
		Logger:     logger.Component("acquisition"),
		Metrics:    metrics,
	})

	extractor := extraction.NewExtractor(layout.ScratchDir(), logger.Component("extraction"))
	catalogMgr := catalog.NewManager(layout.CatalogDir(), logger.Component("catalog")).WithMetrics(metrics)
	registrar := registration.NewRegistrar(catalogMgr, layout.AppsDir(), logger.Component("registration"))
	hub := ws.NewHub(logger.Component("ws"), metrics)

	cleanup := pipeline.CleanupOnFailure
	if cfg.Library.KeepFailed {
		cleanup = pipeline.KeepOnFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	importer := pipeline.NewImporter(ctx, acq, extractor, registrar, pipeline.Options{
		InboxDir:  layout.InboxDir(),
		Cleanup:   cleanup,
		Presenter: hub,
		Logger:    logger.Component("pipeline"),
		Metrics:   metrics,
	})

	transferSrv := transferserver.New(transferserver.Options{
		Host:          cfg.Transfer.Host,
		AdvertiseHost: cfg.TransferAdvertiseHost(),
		Logger:        logger.Component("transferserver"),
	})
	keepActive := transfer.NewKeepActive(transfer.ActivityFunc(func(on bool) {
		logger.Info("Keep-active changed", zap.Bool("active", on))
	}))
	orch := transfer.NewOrchestrator(transferSrv, keepActive, logger.Component("transfer")).
		WithPresenter(hub).
		WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.CORS)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Importer:       importer,
		Catalog:        catalogMgr,
		Registrar:      registrar,
		Transfers:      orch,
		Acquisition:    acq,
		Metrics:        metrics,
		Logger:         logger.Component("api"),
		InboxDir:       layout.InboxDir(),
		MaxUploadBytes: cfg.Library.MaxUploadBytes,
	})
	handlers.Register(router)
	router.GET("/ws", hub.HandleConnection)
	router.GET("/metrics", monitoring.Handler(metrics))
	router.GET("/debug/log-level", gin.WrapH(logger.LevelHandler()))
	router.PUT("/debug/log-level", gin.WrapH(logger.LevelHandler()))

	metrics.SetCatalogEntries(catalogMgr.Stats().TotalEntries)

	s := &Server{
		router:      router,
		importer:    importer,
		acquisition: acq,
		extractor:   extractor,
		catalog:     catalogMgr,
		transfers:   orch,
		transferSrv: transferSrv,
		hub:         hub,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
		ctx:         ctx,
		cancel:      cancel,
		httpServer: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if ttl := cfg.Library.ScratchTTL.Duration; ttl > 0 {
		s.wg.Add(1)
		go s.sweepLoop(ttl)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sweepLoop removes scratch directories left behind by failed imports
func (s *Server) sweepLoop(ttl time.Duration) {
	defer s.wg.Done()

	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.extractor.Sweep(ttl)
			if err != nil {
				s.logger.Warn("Scratch sweep failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("Swept scratch directories", zap.Strings("import_ids", removed))
			}
		}
	}
}

// Shutdown stops accepting requests, tears down transfer sessions and
// waits for running imports.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.once.Do(func() {
		s.logger.Info("Shutting down server...")

		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}

		if err := s.transfers.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transfer sessions: %w", err))
		}
		if err := s.transferSrv.Close(ctx); err != nil {
			errs = append(errs, err)
		}

		s.cancel()
		s.importer.Close()
		s.acquisition.Close()
		s.wg.Wait()
		s.hub.Close()

		s.logger.Info("Server stopped")
		_ = s.logger.Sync()
	})
	return errors.Join(errs...)
}
