package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/api/handlers"
	"github.com/helmsman-ai/helmsman/config"
	"github.com/helmsman-ai/helmsman/internal/database"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/server"
	"github.com/helmsman-ai/helmsman/sandbox"
	"github.com/helmsman-ai/helmsman/session"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/tool/builtin"
	"github.com/helmsman-ai/helmsman/trace"
)

// Server wires the control plane together: database, tool registry,
// session manager, HTTP and metrics listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *gorm.DB
	rdb      *redis.Client
	sessions *session.Manager

	httpManager    *server.Manager
	metricsManager *server.Manager

	collector *metrics.Collector

	rateLimiterCancel context.CancelFunc
}

// NewServer builds a server from configuration. Construction fails on any
// configuration defect: an unreachable database, an unregistered tool in a
// seeded template, or a missing secret.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrateAll(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := agent.Seed(db, logger); err != nil {
		return nil, fmt.Errorf("seed default agents: %w", err)
	}

	var rdb *redis.Client
	if agent.SummaryStoreType(cfg.Summary.Type) == agent.SummaryStoreRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
	}

	summaries, err := agent.NewSummaryStore(cfg.Summary.SummaryStoreConfig(), db, rdb)
	if err != nil {
		return nil, fmt.Errorf("summary store: %w", err)
	}

	collector := metrics.NewCollector("helmsman", logger)
	sandboxes := sandbox.NewManager(sandbox.NewDockerProvider(cfg.Sandbox.DockerConfig(), logger), logger)
	responder := agent.NewHTTPResponder(cfg.ResponderConfig(), logger)

	registry := tool.NewRegistry(logger)
	builtin.RegisterAll(registry, builtin.Deps{
		DB:        db,
		Sandboxes: sandboxes,
		Wolfram:   builtin.WolframConfig{AppID: cfg.Secrets.WolframAppID, Logger: logger},
		Tavily:    builtin.TavilyConfig{APIKey: cfg.Secrets.TavilyAPIKey},
		Image: builtin.ImageConfig{
			Generator: builtin.NewHTTPImageGenerator(
				cfg.Model.BaseURL, cfg.Secrets.ModelAPIKey, cfg.Model.ImageModel, cfg.Model.Timeout),
		},
	})

	sessions := session.NewManager(session.ManagerOptions{
		DB:                 db,
		Templates:          agent.NewTemplateStore(db),
		Registry:           registry,
		Responder:          responder,
		TraceStore:         trace.NewGormStore(db),
		Summaries:          summaries,
		Sandboxes:          sandboxes,
		Metrics:            collector,
		SummaryTokenBudget: cfg.Summary.TokenBudget,
		Logger:             logger,
	})

	return &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		collector: collector,
	}, nil
}

// Start brings up the HTTP and metrics listeners.
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return err
	}
	if err := s.startMetricsServer(); err != nil {
		return err
	}
	return nil
}

func (s *Server) startHTTPServer() error {
	sessionHandler := handlers.NewSessionHandler(s.sessions, s.logger)
	templateHandler := handlers.NewTemplateHandler(agent.NewTemplateStore(s.db), s.logger)
	streamHandler := handlers.NewStreamHandler(s.sessions, s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)

	healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "database",
		Fn: func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
	if s.rdb != nil {
		healthHandler.RegisterCheck(handlers.HealthCheckFunc{
			CheckName: "redis",
			Fn: func(ctx context.Context) error {
				return s.rdb.Ping(ctx).Err()
			},
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.HandleFunc("GET /readyz", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/sessions", sessionHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", sessionHandler.HandleList)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessionHandler.HandleDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", sessionHandler.HandleSendMessage)
	mux.HandleFunc("GET /api/v1/sessions/{id}/state", sessionHandler.HandleState)
	mux.HandleFunc("GET /api/v1/sessions/{id}/traces", sessionHandler.HandleTraces)
	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", streamHandler.HandleStream)

	mux.HandleFunc("GET /api/v1/templates", templateHandler.HandleList)
	mux.HandleFunc("POST /api/v1/templates", templateHandler.HandleCreate)
	mux.HandleFunc("PUT /api/v1/templates/{id}", templateHandler.HandleModify)
	mux.HandleFunc("DELETE /api/v1/templates/{id}", templateHandler.HandleDelete)
	mux.HandleFunc("GET /api/v1/tools", templateHandler.HandleListTools)

	skipAuthPaths := []string{"/healthz", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Secrets.JWTSigningKey, skipAuthPaths, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until termination, then tears everything down:
// listeners first, then live sessions, then connections.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	if s.metricsManager != nil {
		_ = s.metricsManager.Shutdown(context.Background())
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	s.sessions.CloseAll()

	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
