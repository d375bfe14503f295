package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kvelez/orderflow/internal/config"
	"github.com/kvelez/orderflow/internal/data/db"
	"github.com/kvelez/orderflow/internal/data/repos"
	"github.com/kvelez/orderflow/internal/platform/logger"
	"github.com/kvelez/orderflow/internal/temporalx"
	"github.com/kvelez/orderflow/internal/temporalx/ordersworker"
)

// cmd/worker-orders hosts OrderWorkflow and the orders-side activities on
// the orders task queue (C4 + C2 + C6).
func main() {
	log, err := logger.New(config.GetEnv("LOG_MODE", "development", nil))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("failed to connect to postgres", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("failed to auto-migrate schema", "error", err)
	}

	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Fatal("failed to initialize temporal client", "error", err)
	}
	defer tc.Close()

	orders := repos.NewOrderRepo(pg.DB(), log)

	runner, err := ordersworker.NewRunner(log, tc, pg.DB(), orders)
	if err != nil {
		log.Fatal("failed to initialize orders worker", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runner.Start(ctx); err != nil {
		log.Fatal("orders worker failed to start", "error", err)
	}

	<-ctx.Done()
	log.Info("orders worker shutting down")
}
