package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/config"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/internal/store"
)

var dryRun = flag.Bool("dry-run", false, "Print the schema instead of applying it")

// Applies the idempotent schema to the configured database.
func main() {
	flag.Parse()

	if *dryRun {
		fmt.Println(store.Schema)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	postgresSvc, err := database.NewPostgresService(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgresSvc.Close()

	if _, err := postgresSvc.GetDB().ExecContext(ctx, store.Schema); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	logger.Info("Schema applied", zap.String("database", cfg.Postgres.Database))
}
