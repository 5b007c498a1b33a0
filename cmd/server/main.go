package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	"healthpass/internal/audit"
	"healthpass/internal/emergency/handler"
	"healthpass/internal/emergency/metrics"
	"healthpass/internal/emergency/service"
	emergencystore "healthpass/internal/emergency/store"
	"healthpass/internal/emergency/tracer"
	"healthpass/internal/platform/config"
	"healthpass/internal/platform/database"
	"healthpass/internal/platform/health"
	"healthpass/internal/platform/logger"
	"healthpass/internal/session"
	httptransport "healthpass/internal/transport/http"
	"healthpass/migrations"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing healthpass",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	healthHandler := health.New(cfg.Environment)

	var (
		credentials service.Store
		events      audit.Store
	)
	if cfg.DatabaseURL != "" {
		poolCfg := database.DefaultConfig()
		poolCfg.URL = cfg.DatabaseURL
		pool, err := database.New(poolCfg)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close() //nolint:errcheck // best-effort cleanup

		goose.SetBaseFS(migrations.Migrations)
		if err := goose.UpContext(context.Background(), pool.DB(), "."); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}

		credentials = emergencystore.NewPostgres(pool.DB())
		events = audit.NewPostgresStore(pool.DB())
		healthHandler.RegisterCheck("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return pool.Health(ctx)
		})
		log.Info("using postgres storage")
	} else {
		credentials = emergencystore.New()
		events = audit.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	var publisherOpts []audit.PublisherOption
	if cfg.AuditBuffer > 0 {
		publisherOpts = append(publisherOpts,
			audit.WithAsyncBuffer(cfg.AuditBuffer),
			audit.WithPublisherLogger(log),
		)
	}
	auditor := audit.NewPublisher(events, publisherOpts...)
	defer auditor.Close()

	sessions := session.NewIssuer(cfg.SessionSigningKey, cfg.SessionIssuer,
		session.WithTTL(cfg.SessionTTL))

	emergencySvc := service.NewService(
		credentials,
		auditor,
		log,
		service.WithMetrics(metrics.New()),
		service.WithTracer(tracer.NewOTel()),
		service.WithSessionIssuer(sessions),
	)

	emergencyHandler := handler.New(emergencySvc, log)
	router := httptransport.NewRouter(emergencyHandler, healthHandler, log)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
