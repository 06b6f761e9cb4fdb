package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ewastePickup/internal/aggregate"
	"ewastePickup/internal/auth"
	"ewastePickup/internal/config"
	"ewastePickup/internal/db"
	grpcserver "ewastePickup/internal/grpc"
	"ewastePickup/internal/httpapi"
	"ewastePickup/internal/identity"
	"ewastePickup/internal/lifecycle"
	"ewastePickup/internal/logging"
	"ewastePickup/internal/report"
	"ewastePickup/repository"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the last applied migration and exit")
	flag.Parse()

	// Load configuration. Production requires JWT_SECRET.
	loadConfig := config.LoadWithDefaults
	if os.Getenv("APP_ENV") == "production" {
		loadConfig = config.Load
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger.Infof("configuration loaded: %v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger, *rollback)
	stop()
	if err != nil {
		logger.Fatal(err)
	}
}

// run serves until ctx is cancelled. Every resource it opens is released before it returns.
func run(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, rollback bool) error {
	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Errorf("close db: %v", err)
		}
	}()

	if rollback {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.RollbackLast(rctx, d); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		logger.Info("rolled back last migration")
		return nil
	}

	users := repository.NewUserRepository(d)
	requests := repository.NewRequestRepository(d)
	ratings := repository.NewRatingRepository(d)

	basis, err := aggregate.ParseBasis(cfg.Report.Basis)
	if err != nil {
		return fmt.Errorf("report basis: %w", err)
	}

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	ids := identity.NewService(users, tokens,
		identity.WithBcryptCost(cfg.Auth.BcryptCost),
		identity.WithLogger(logger.WithField("component", "identity")))
	engine := lifecycle.NewEngine(requests, ratings, users,
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")))
	aggregates := aggregate.NewService(requests, basis)

	if err := bootstrapAdmin(ids, cfg.Bootstrap, logger); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// Start gRPC
	stopGRPC, err := grpcserver.StartGRPC(cfg, grpcserver.Services{
		Identity:   ids,
		Engine:     engine,
		Aggregates: aggregates,
	}, logger.WithField("component", "grpc"))
	if err != nil {
		return fmt.Errorf("start grpc: %w", err)
	}
	logger.Infof("gRPC server listening on %s", cfg.GRPC.Address)

	// Start HTTP
	stopHTTP, err := httpapi.StartHTTP(cfg, httpapi.Deps{
		Identity:   ids,
		Engine:     engine,
		Aggregates: aggregates,
		Reports:    report.NewEmitter(users),
		Log:        logger.WithField("component", "http"),
	})
	if err != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stopGRPC(sctx)
		return fmt.Errorf("start http: %w", err)
	}
	if cfg.HTTP.Address == "" {
		logger.Info("HTTP server disabled")
	} else {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Address)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stopHTTP(sctx); err != nil {
		logger.Errorf("http shutdown error: %v", err)
	}
	if err := stopGRPC(sctx); err != nil {
		logger.Errorf("grpc shutdown error: %v", err)
	}
	return nil
}

func bootstrapAdmin(ids *identity.Service, b config.BootstrapConfig, logger logrus.FieldLogger) error {
	if b.AdminEmail == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u, err := ids.EnsureAdmin(ctx, b.AdminEmail, b.AdminPassword)
	if err != nil {
		return err
	}
	logger.WithField("user_id", u.ID).Info("admin account ready")
	return nil
}
