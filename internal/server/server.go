// Package server wires the intake pipeline together and serves it over HTTP.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/txsentinel/internal/config"
	"github.com/mbd888/txsentinel/internal/events"
	"github.com/mbd888/txsentinel/internal/features"
	"github.com/mbd888/txsentinel/internal/health"
	"github.com/mbd888/txsentinel/internal/idgen"
	"github.com/mbd888/txsentinel/internal/inference"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/prediction"
	"github.com/mbd888/txsentinel/internal/ratelimit"
	"github.com/mbd888/txsentinel/internal/realtime"
	"github.com/mbd888/txsentinel/internal/security"
	"github.com/mbd888/txsentinel/internal/traces"
	"github.com/mbd888/txsentinel/internal/transactions"
	"github.com/mbd888/txsentinel/internal/validation"
	"github.com/mbd888/txsentinel/migrations"
)

// memoryNotificationCapacity bounds the in-memory notification log.
const memoryNotificationCapacity = 1000

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     *config.Config
	version string
	db      *sql.DB
	logger  *slog.Logger
	router  *gin.Engine
	httpSrv *http.Server

	transactions  *transactions.Service
	features      *features.Service
	engine        *inference.Engine
	predictions   *prediction.Service
	notifications events.NotificationStore
	dispatcher    *events.Dispatcher
	realtimeHub   *realtime.Hub
	health        *health.Registry
	rateLimiter   *ratelimit.Limiter

	shutdownTracing func(context.Context) error
	cancelRunCtx    context.CancelFunc
	background      sync.WaitGroup
	drainDelay      time.Duration

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the build version reported by /health and traces.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithDrainDelay sets how long Shutdown waits for load balancers to stop
// routing before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		version:    "dev",
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
		health:     health.NewRegistry(5 * time.Second),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	var (
		txStore      transactions.Store
		featureStore features.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.db = db
		txStore = transactions.NewPostgresStore(db)
		featureStore = features.NewPostgresStore(db)
		s.notifications = events.NewPostgresNotificationStore(db)
		s.health.Register("database", health.Database(db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		txStore = transactions.NewMemoryStore()
		featureStore = features.NewMemoryStore()
		s.notifications = events.NewMemoryNotificationStore(memoryNotificationCapacity)
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Classifier
	engine, err := inference.Load(cfg.ModelPath)
	if err != nil {
		if cfg.ModelRequired {
			s.closeDB()
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		s.logger.Warn("model not loaded, predictions will be rejected", "path", cfg.ModelPath, "error", err)
	}
	s.engine = engine
	if info, err := engine.Info(); err == nil {
		s.logger.Info("model loaded", "version", info.Version, "trees", info.Trees)
	} else if cfg.ModelPath == "" {
		s.logger.Warn("MODEL_PATH not set, predictions will be rejected")
	}
	s.health.Register("model", health.Model(engine.Available))

	// Event fan-out
	s.realtimeHub = realtime.NewHub(s.logger)
	s.dispatcher = events.NewDispatcher(cfg.EventQueueSize, s.logger,
		s.realtimeHub,
		events.NewStoreSink(s.notifications),
	)
	s.setupTransports()
	s.health.RegisterInformational("sinks", health.Sinks(s.sinkStates))

	// Services
	s.features = features.NewService(txStore, featureStore).WithConcurrency(cfg.BackfillConcurrency)
	s.transactions = transactions.NewService(txStore).WithRecordHook(s.recomputeSender)
	s.predictions = prediction.NewService(txStore, s.features, engine, s.dispatcher)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	return db, nil
}

// setupTransports adds the optional broker sinks. A broker that cannot be
// reached at startup is skipped: notifications are best-effort.
func (s *Server) setupTransports() {
	if len(s.cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(s.cfg.KafkaBrokers, s.cfg.KafkaTopic, nil)
		if err != nil {
			s.logger.Error("kafka sink disabled", "brokers", s.cfg.KafkaBrokers, "error", err)
		} else {
			s.dispatcher.AddSink(sink)
			s.logger.Info("kafka sink enabled", "topic", s.cfg.KafkaTopic)
		}
	}

	if s.cfg.WebhookURL != "" {
		if err := security.ValidateWebhookURL(context.Background(), s.cfg.WebhookURL, s.cfg.WebhookAllowPrivate); err != nil {
			s.logger.Error("webhook sink disabled", "error", err)
		} else {
			s.dispatcher.AddSink(events.NewWebhookSink(s.cfg.WebhookURL, s.cfg.WebhookSecret))
			s.logger.Info("webhook sink enabled", "signed", s.cfg.WebhookSecret != "")
		}
	}

	if s.cfg.AMQPURL != "" {
		sink, err := events.NewAMQPSink(s.cfg.AMQPURL, s.cfg.AMQPExchange)
		if err != nil {
			s.logger.Error("amqp sink disabled", "url", maskDSN(s.cfg.AMQPURL), "error", err)
		} else {
			s.dispatcher.AddSink(sink)
			s.logger.Info("amqp sink enabled", "exchange", s.cfg.AMQPExchange)
		}
	}
}

// recomputeSender keeps the feature cache in step with imported history.
func (s *Server) recomputeSender(ctx context.Context, senderID string) {
	if _, err := s.features.Recompute(ctx, senderID); err != nil && !errors.Is(err, features.ErrNoHistory) {
		logging.L(ctx).Warn("feature recompute after import failed", "sender_id", senderID, "error", err)
	}
}

func (s *Server) sinkStates() []health.SinkState {
	snap := s.dispatcher.SinkStatus()
	out := make([]health.SinkState, len(snap))
	for i, st := range snap {
		out[i] = health.SinkState{Sink: st.Sink, State: st.State}
	}
	return out
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware(s.cfg.IsProduction()))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Probes and scrapes are exempt from rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.FromRPM(s.cfg.RateLimitRPM))
	s.router.Use(s.rateLimiter.Middleware("/health", "/health/live", "/health/ready", "/metrics"))

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an upstream ID (load balancer, loadgen) when it is well formed
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || !validation.IsValidID(requestID) {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Debug("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket prediction stream
	s.realtimeHub.RegisterRoutes(s.router)

	v1 := s.router.Group("/v1")
	prediction.NewHandler(s.predictions).RegisterRoutes(v1)
	transactions.NewHandler(s.transactions).RegisterRoutes(v1)
	features.NewHandler(s.features).RegisterRoutes(v1)
	inference.NewHandler(s.engine).RegisterRoutes(v1)
	events.NewHandler(s.notifications).RegisterRoutes(v1)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessHandler gates traffic on startup and on the critical checks, so a
// replica without a model or database is taken out of rotation.
func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	if ok, checks := s.health.CheckAll(c.Request.Context()); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Background workers outlive ctx until Shutdown has drained HTTP traffic,
	// so in-flight predictions can still emit.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRunCtx = cancel

	shutdownTracing, err := traces.Init(ctx, s.cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		s.logger.Error("tracing disabled", "error", err)
	} else {
		s.shutdownTracing = shutdownTracing
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"version", s.version,
			"model_loaded", s.engine.Available(),
			"sinks", s.dispatcher.Sinks(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.startBackground(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

func (s *Server) startBackground(ctx context.Context) {
	s.background.Add(2)
	go func() {
		defer s.background.Done()
		s.realtimeHub.Run(ctx)
	}()
	go func() {
		defer s.background.Done()
		s.dispatcher.Run(ctx)
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(ctx, s.db, 15*time.Second)
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	// No more requests can emit; flush queued notifications and close sinks
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	s.background.Wait()
	s.logger.Info("event dispatcher drained")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	s.closeDB()

	s.logger.Info("server stopped")
	return shutdownErr
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	} else {
		s.logger.Info("database connection closed")
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
