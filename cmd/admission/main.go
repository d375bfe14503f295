package main

import (
	"fmt"
	"os"

	"github.com/kvelez/orderflow/internal/config"
	"github.com/kvelez/orderflow/internal/data/db"
	"github.com/kvelez/orderflow/internal/httpapi"
	"github.com/kvelez/orderflow/internal/httpapi/handlers"
	"github.com/kvelez/orderflow/internal/platform/logger"
	"github.com/kvelez/orderflow/internal/temporalx"
)

// cmd/admission is the C5 admission interface: an HTTP server that starts
// OrderWorkflow executions and forwards signals/queries to them. Its only
// use of Postgres is the schema auto-migration at startup; the handlers
// never touch persistence or the Temporal workers directly.
func main() {
	log, err := logger.New(config.GetEnv("LOG_MODE", "development", nil))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	srvCfg := config.LoadServer(log)

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

	server := httpapi.NewServer(httpapi.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(),
		OrderHandler:  handlers.NewOrderHandler(log, tc),
		Log:           log,
	})

	log.Info("admission server listening", "port", srvCfg.Port)
	if err := server.Run(":" + srvCfg.Port); err != nil {
		log.Fatal("admission server failed", "error", err)
	}
}
