package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradelane/trade-portal/trade-portal-backend/internal/auth"
	"tradelane/trade-portal/trade-portal-backend/internal/config"
	"tradelane/trade-portal/trade-portal-backend/internal/notifications"
	"tradelane/trade-portal/trade-portal-backend/internal/trades"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
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

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Connect to database
	logger.Info("Connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("db_name", cfg.Database.DBName))
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	// gorm shares the pool for the audit trail and profiles
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatal("Failed to open gorm session", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier notifications.Notifier = notifications.NewLogNotifier(logger)
	if cfg.Notifications.SNSTopicARN != "" {
		sns, err := notifications.NewSNSNotifier(ctx, cfg.Notifications.Region, cfg.Notifications.SNSTopicARN, logger)
		if err != nil {
			logger.Fatal("Failed to create SNS notifier", zap.Error(err))
		}
		notifier = sns
	}

	var sinks []trades.EventSink
	if len(cfg.Search.ElasticsearchURLs) > 0 {
		mirror, err := trades.NewElasticEventMirror(cfg.Search.ElasticsearchURLs, cfg.Search.Index)
		if err != nil {
			logger.Fatal("Failed to create audit mirror", zap.Error(err))
		}
		sinks = append(sinks, mirror)
	}

	// Initialize trade kernel
	repo := trades.NewPostgresRepository(db)
	audit := trades.NewAuditLogger(trades.NewGormEventStore(gormDB), logger, sinks...)
	service := trades.NewService(repo, audit, notifier, trades.ServiceConfig{
		EscrowTTL:            cfg.Kernel.EscrowTTL(),
		AllowBuyerSettlement: cfg.Kernel.AllowBuyerSettlement,
	}, logger)
	handler := trades.NewHandler(service, logger)

	authenticate := auth.Middleware(
		auth.NewJWTVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer),
		auth.NewGormProfileStore(gormDB),
		logger,
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(handler, authenticate)

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("buyer_settlement", cfg.Kernel.AllowBuyerSettlement))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
