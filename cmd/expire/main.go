package main

import (
	"context"
	"log"

	"care-connect-be/internal/bootstrap"
	"care-connect-be/internal/config"
	"care-connect-be/internal/pkg/logger"
	"care-connect-be/internal/service"
	"care-connect-be/pkg/database"

	pktNats "care-connect-be/pkg/nats"
)

// One-shot expiry sweep for cron. Expiry events go straight to NATS when it
// is reachable since there is no in-process relay here.
func main() {
	cfg := config.Load()
	if cfg.Database.Driver != "postgres" || cfg.Database.Connection == "" {
		log.Fatal("Error: expire needs DB_DRIVER=postgres and DB_CONNECTION_STRING")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Verbose:         cfg.Database.Verbose,
	})
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	var publisher service.IEventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] NATS unavailable, expiry events will not be sent: %v", err)
	} else {
		defer natsPub.Close()
		publisher = natsPub
	}

	svc := service.NewConnectionService(
		bootstrap.NewRepositoryFactory(cfg, db),
		publisher,
		nil,
		nil,
		sysLogger,
		cfg.Engine,
	)

	n, err := svc.ExpireStale(context.Background())
	if err != nil {
		log.Fatalf("Error: expiry sweep failed after %d connections: %v", n, err)
	}
	log.Printf("Expired %d stale pending connections", n)
}
