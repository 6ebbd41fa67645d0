package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"tradelane/trade-portal/trade-portal-backend/internal/config"
	"tradelane/trade-portal/trade-portal-backend/internal/trades"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := trades.NewEscrowExpiryWorker(trades.NewPostgresRepository(db), cfg.Workers.EscrowSweepSchedule, logger)

	if *once {
		worker.RunOnce(ctx)
		return
	}

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Failed to start escrow expiry worker", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	worker.Stop()
	logger.Info("Escrow sweeper exiting")
}
