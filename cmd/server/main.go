package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/events"
	httpapi "github.com/example/ride-booking/internal/http"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/matching"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	store := storage.NewMemoryStore()

	svc := &booking.Service{Store: store, Logger: logger}
	match := &matching.Service{
		Store:              store,
		DefaultMaxDistance: cfg.MatchMaxDistanceMeters,
	}

	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		svc.Archive = pg
	}

	if cfg.RedisAddr != "" {
		idx := matching.NewRedisRideIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RideGeoKey)
		defer idx.Close()
		svc.Index = idx
		match.Index = idx
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer pub.Close()
		svc.Events = pub
	}

	if os.Getenv("STRIPE_API_KEY") != "" {
		svc.Payments = payments.NewStripeClient(cfg.StripeCurrency)
	}

	wsreg := dispatch.NewWSRegistry(logger)
	svc.Dispatch = wsreg

	api := httpapi.NewServer(svc, match, wsreg, logger)
	api.MatchLimit = cfg.MatchDefaultLimit

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-booking listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_tables.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
