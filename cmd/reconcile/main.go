package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/adapter/storage"
	"github.com/pharmalink/stockcore/internal/config"
	"github.com/pharmalink/stockcore/internal/core/service"
)

// Reconciliation runner for cron or manual invocation. Every scan is
// idempotent, so re-running after an interruption is always safe.
func main() {
	job := flag.String("job", "all", "scan to run: orphaned|mismatches|counters|all")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}

	ledger := storage.NewMySQLAdapter(db)
	collaborators := storage.NewCollaboratorAdapter(db)
	cache := storage.NewRedisAdapter(rdb)

	aggregation := service.NewAggregationService(ledger, cache, collaborators, logger)
	recon := service.NewReconciliationService(ledger, collaborators, collaborators,
		aggregation, cache, cfg.ReconcileBatchSize, logger)

	var reports []*service.ReconcileReport
	run := func(name string, fn func(context.Context) (*service.ReconcileReport, error)) {
		report, err := fn(ctx)
		if err != nil {
			logger.Fatal("scan failed", zap.String("job", name), zap.Error(err))
		}
		reports = append(reports, report)
	}

	switch *job {
	case "orphaned":
		run(*job, recon.OrphanedReservations)
	case "mismatches":
		run(*job, recon.StateMismatches)
	case "counters":
		run(*job, recon.StockCounters)
	case "all":
		run("orphaned", recon.OrphanedReservations)
		run("mismatches", recon.StateMismatches)
		run("counters", recon.StockCounters)
	default:
		logger.Fatal("unknown job", zap.String("job", *job))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		logger.Fatal("failed to encode reports", zap.Error(err))
	}
}
