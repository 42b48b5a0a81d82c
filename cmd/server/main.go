package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperdesk/be-doc-approvals/internal/client"
	"github.com/paperdesk/be-doc-approvals/internal/convert"
	"github.com/paperdesk/be-doc-approvals/internal/handler"
	"github.com/paperdesk/be-doc-approvals/internal/metrics"
	"github.com/paperdesk/be-doc-approvals/internal/platform/config"
	"github.com/paperdesk/be-doc-approvals/internal/platform/database"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
	natsclient "github.com/paperdesk/be-doc-approvals/internal/platform/nats"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/service"
	"github.com/paperdesk/be-doc-approvals/internal/sign"
	"github.com/paperdesk/be-doc-approvals/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Document Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Metrics registry
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Conversion worker pool: probe the renderer at startup so a broken
	// installation fails fast instead of surfacing on the first approval.
	engines := make([]convert.Engine, 0, cfg.Renderer.Instances)
	for i := 0; i < cfg.Renderer.Instances; i++ {
		engine, err := convert.NewSofficeEngine(cfg.Renderer.Binary, cfg.Renderer.WorkDir, i)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize renderer engine")
		}
		engines = append(engines, engine)
	}
	pool := convert.NewPool(engines, cfg.Renderer.JobTimeout, cfg.Renderer.ProbeTimeout, m, log)
	if err := pool.Start(ctx); err != nil {
		log.Fatal().Err(err).Str("binary", cfg.Renderer.Binary).Msg("Document renderer unavailable")
	}
	log.Info().
		Str("binary", cfg.Renderer.Binary).
		Int("instances", cfg.Renderer.Instances).
		Msg("Renderer pool started")

	// Artifact store
	store := storage.New(cfg.Storage.BaseURL)

	// Optional NATS notification publisher
	var nc *natsclient.Client
	if cfg.NATS.Enabled {
		nc, err = natsclient.Connect(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}
	notifier := client.NewNotificationPublisher(nc, log.Logger)

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(db)
	levelsRepo := repository.NewApprovalLevelsRepository(db)
	sigRepo := repository.NewSignatureRepository(db)
	rulesRepo := repository.NewRoutingRulesRepository(db)
	rolesRepo := repository.NewRoleAssignmentsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	resolver := service.NewChainResolver(rulesRepo, rolesRepo, log)
	embedder := sign.NewEmbedder()
	approvalService := service.NewApprovalService(
		docRepo, levelsRepo, sigRepo, store, pool, embedder, auditRepo, notifier, m, log)
	documentService := service.NewDocumentService(
		docRepo, resolver, store, pool, auditRepo, notifier, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(documentService, approvalService, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(handler.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(90 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpHandler.Register(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
