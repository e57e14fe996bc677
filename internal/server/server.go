// Package server is the SpaceFlow dashboard server: public pages, the guarded
// dashboard pages and, when embedded, the auth service endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spaceflow-dev/spaceflow/internal/analytics"
	"github.com/spaceflow-dev/spaceflow/internal/auth"
	"github.com/spaceflow-dev/spaceflow/internal/authclient"
	"github.com/spaceflow-dev/spaceflow/internal/authservice"
	"github.com/spaceflow-dev/spaceflow/internal/config"
	"github.com/spaceflow-dev/spaceflow/internal/guard"
	"github.com/spaceflow-dev/spaceflow/internal/models"
	"github.com/spaceflow-dev/spaceflow/internal/session"
	"github.com/spaceflow-dev/spaceflow/internal/storage"
)

// Server represents the HTTP server
type Server struct {
	router       *gin.Engine
	db           *gorm.DB
	config       *config.Config
	logger       zerolog.Logger
	validator    *validator.Validate
	authService  *authservice.Service
	authHandler  *authservice.Handler
	loginLimiter *authservice.LoginLimiter // form sign-ins, per browser address and email
	pages        *PageRegistry
	guard        *guard.Guard
	analytics    *analytics.Client
	aiEngine     *analytics.AIEngine
	cron         *cron.Cron
	version      string
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	validate := validator.New()

	server := &Server{
		config:       cfg,
		logger:       zlog,
		validator:    validate,
		loginLimiter: authservice.NewLoginLimiter(authservice.LoginLimit),
		analytics:    analytics.New(cfg.Services.AnalyticsBaseURL),
		aiEngine:     analytics.NewAIEngine(cfg.Services.AIEngineBaseURL),
		version:      version,
	}

	if cfg.Auth.Embedded {
		if err := server.initAuthService(); err != nil {
			return nil, err
		}
	}

	factory, err := storeFactory(cfg, zlog)
	if err != nil {
		server.closeDB()
		return nil, err
	}
	server.pages = NewPageRegistry(factory, cfg.HTTP.PageIdleTimeout, cfg.HTTP.MaxPageSessions, cfg.Auth.CookieSecure, zlog)

	server.guard = guard.New(guard.ForMode(cfg.Auth.DemoMode), server.pages.Resolve, guard.Options{
		LoginPath:      "/login",
		OptimisticWait: cfg.HTTP.OptimisticWait,
		Logger:         zlog,
	})

	if err := server.setupRouter(); err != nil {
		server.closeDB()
		return nil, err
	}

	if cfg.Auth.DemoMode {
		zlog.Warn().Msg("Demo mode is ON: authentication is bypassed and every visitor is signed in as the demo admin. Set SPACEFLOW_DEMO_AUTH=false for real deployments")
	}

	return server, nil
}

// initAuthService opens the database and wires the embedded auth endpoints
func (s *Server) initAuthService() error {
	db, err := initDatabase(s.config, s.logger)
	if err != nil {
		return err
	}
	s.db = db

	if err := models.AutoMigrate(db); err != nil {
		s.closeDB()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(s.config.Auth.JWTSecret)
	if err != nil {
		s.closeDB()
		return err
	}

	s.authService = authservice.NewService(db, tokens, s.config.Auth.SessionTTL, s.logger)

	seed := []authservice.SeedUser{authservice.DefaultAdmin()}
	if path := s.config.Auth.SeedUsersPath; path != "" {
		users, err := authservice.LoadSeedFile(path, s.validator)
		if err != nil {
			s.closeDB()
			return err
		}
		seed = append(seed, users...)
	}
	if err := s.authService.Seed(context.Background(), seed); err != nil {
		s.closeDB()
		return err
	}

	s.authHandler = authservice.NewHandler(s.authService, authservice.CookieConfig{
		Name:   s.config.Auth.CookieName,
		Secure: s.config.Auth.CookieSecure,
	}, authservice.LoginLimit, s.logger).TrustLoopback()
	return nil
}

// storeFactory picks how page sessions authenticate. The choice is made once
// at startup.
func storeFactory(cfg *config.Config, zlog zerolog.Logger) (StoreFactory, error) {
	if cfg.Auth.DemoMode {
		return func(pageID string) (*session.Store, error) {
			return session.New(session.Options{
				Demo:   true,
				Logger: zlog.With().Str("page_id", pageID).Logger(),
			})
		}, nil
	}

	switch cfg.Auth.Mode {
	case config.AuthModeLocal:
		// Each browser gets its own storage, as localStorage would be
		return func(pageID string) (*session.Store, error) {
			pageLog := zlog.With().Str("page_id", pageID).Logger()
			tab := storage.NewMemory().Tab()
			return session.New(session.Options{
				Backend:    session.NewLocalBackend(tab, cfg.Auth.StorageKey, pageLog),
				Feed:       tab,
				StorageKey: cfg.Auth.StorageKey,
				Logger:     pageLog,
			})
		}, nil

	default:
		if cfg.Services.AuthBaseURL == "" {
			return nil, errors.New("SPACEFLOW_AUTH_API_BASE_URL is required when the auth service is not embedded")
		}
		return func(pageID string) (*session.Store, error) {
			client, err := authclient.New(cfg.Services.AuthBaseURL, cfg.Auth.CookieName)
			if err != nil {
				return nil, err
			}
			return session.New(session.Options{
				Backend: client,
				Logger:  zlog.With().Str("page_id", pageID).Logger(),
			})
		}, nil
	}
}

// initDatabase initializes the database connection with production settings
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns    = 8
		maxIdleConns    = 4
		connMaxLifetime = 300  // 5 minutes
		busyTimeout     = 5000 // 5 seconds
		cacheSize       = 2000 // 2MB
	)

	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode must be set first
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSize),
		"PRAGMA foreign_keys=1",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	var walMode string
	db.Raw("PRAGMA journal_mode").Scan(&walMode)
	zlog.Debug().Str("journal_mode", walMode).Str("path", cfg.Database.URL).Msg("Database opened")

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() error {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	// Only listed proxies may set X-Forwarded-For; login throttling keys on ClientIP
	if err := s.router.SetTrustedProxies(s.config.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	tmpl, err := loadTemplates()
	if err != nil {
		return err
	}
	s.router.SetHTMLTemplate(tmpl)

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// The SPA dev server calls /auth/* with credentials
	if len(s.config.HTTP.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.HTTP.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s.router.GET("/health", s.healthCheck)

	if s.authHandler != nil {
		s.authHandler.Register(s.router.Group("/auth"))
		s.authHandler.Register(s.router.Group("/api/v1/auth"))
	}

	// Public pages
	s.router.GET("/", s.homePage)
	s.router.GET("/login", s.loginPage)
	s.router.POST("/login", s.submitLogin)
	s.router.POST("/logout", s.submitLogout)
	s.router.GET("/api/session", s.getSession)

	// Guarded dashboard pages
	s.router.GET("/app", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/app/dashboard")
	})
	app := s.router.Group("/app")
	app.Use(noStore(), s.guard.Middleware())
	{
		app.GET("/dashboard", s.dashboardPage)
		app.GET("/utilization", s.utilizationPage)
		app.GET("/booking-usage", s.bookingUsagePage)
		app.GET("/recommendations", s.recommendationsPage)
		app.GET("/recommendations/:id", s.explanationPage)
		app.GET("/patterns", s.placeholderPage("Patterns", "/app/patterns", patternsMessage))
		app.GET("/segments", s.placeholderPage("Segments", "/app/segments", segmentsMessage))
		app.GET("/snapshots", s.placeholderPage("Snapshots", "/app/snapshots", snapshotsMessage))
	}

	// Legacy paths from before the /app prefix
	for _, name := range legacyPages {
		target := "/app/" + name
		s.router.GET("/"+name, func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, target)
		})
	}

	return nil
}

var legacyPages = []string{
	"dashboard",
	"utilization",
	"booking-usage",
	"recommendations",
	"patterns",
	"segments",
	"snapshots",
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "online",
		"timestamp":     time.Now().UTC(),
		"service":       "spaceflow",
		"version":       s.version,
		"demo":          s.config.Auth.DemoMode,
		"auth_mode":     s.config.Auth.Mode,
		"page_sessions": s.pages.Len(),
	})
}

// startCron schedules the periodic sweeps
func (s *Server) startCron() error {
	s.cron = cron.New()

	if s.authService != nil {
		if _, err := s.cron.AddFunc("@every 15m", s.sweepAuthSessions); err != nil {
			return fmt.Errorf("failed to schedule session sweep: %w", err)
		}
	}
	if _, err := s.cron.AddFunc("@every 1m", s.sweepPages); err != nil {
		return fmt.Errorf("failed to schedule page sweep: %w", err)
	}

	s.cron.Start()
	return nil
}

func (s *Server) sweepAuthSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.authService.SweepExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sweep expired sessions")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("Swept expired auth sessions")
	}
}

func (s *Server) sweepPages() {
	if closed := s.pages.Sweep(); closed > 0 {
		s.logger.Debug().Int("closed", closed).Msg("Closed idle page sessions")
	}
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	addr := s.config.HTTP.Addr

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := s.startCron(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case serveErr = <-errChan:
		s.logger.Error().Err(serveErr).Msg("HTTP server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		serveErr = errors.Join(serveErr, err)
	}

	s.Close()
	s.logger.Info().Msg("Server shutdown complete")
	return serveErr
}

// Close stops the sweeps, closes every page session and the database
func (s *Server) Close() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.pages.Close()
	s.closeDB()
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}
	s.db = nil
}
