package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/adapter/handler"
	"github.com/pharmalink/stockcore/internal/adapter/procurement"
	"github.com/pharmalink/stockcore/internal/adapter/storage"
	"github.com/pharmalink/stockcore/internal/config"
	"github.com/pharmalink/stockcore/internal/core/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL: the unit ledger, source of truth
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis: the derived roll-up cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	ledger := storage.NewMySQLAdapter(db)
	collaborators := storage.NewCollaboratorAdapter(db)
	cache := storage.NewRedisAdapter(rdb)
	notifier := procurement.NewHTTPNotifier(cfg.ProcurementURL)

	fefo := service.NewFEFOService(ledger)
	availability := service.NewAvailabilityService(ledger, collaborators,
		cfg.TransitFixedDays, cfg.TransitFallbackDays, cfg.FreightEstimate, logger)
	reservations := service.NewReservationService(ledger, availability, collaborators,
		notifier, cfg.FreightEstimate, cfg.TaxRate, logger)
	aggregation := service.NewAggregationService(ledger, cache, collaborators, logger)
	receipts := service.NewReceiptService(ledger, collaborators, logger)
	recon := service.NewReconciliationService(ledger, collaborators, collaborators,
		aggregation, cache, cfg.ReconcileBatchSize, logger)

	httpHandler := handler.NewHTTPHandler(fefo, availability, reservations, aggregation, receipts, recon)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
