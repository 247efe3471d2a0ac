package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func sampleRollup() domain.StockRollup {
	return domain.StockRollup{
		ProductID:   "test-product",
		WarehouseID: "test-warehouse",
		CountsByState: map[domain.UnitState]int{
			domain.StateAvailableDestination: 3,
			domain.StateReserved:             1,
		},
		TotalUnits:  4,
		FreeUnits:   3,
		Valuation:   decimal.NewFromFloat(41.20),
		AvgUnitCost: decimal.NewFromFloat(10.30),
		Expiring30:  1,
		Expiring90:  2,
		RebuiltAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestRollup_PutGetRoundtrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	rollup := sampleRollup()

	client.Del(ctx, rollupKey(rollup.ProductID, rollup.WarehouseID))
	if err := adapter.PutRollup(ctx, rollup); err != nil {
		t.Fatalf("put rollup: %v", err)
	}

	got, err := adapter.GetRollup(ctx, rollup.ProductID, rollup.WarehouseID)
	if err != nil {
		t.Fatalf("get rollup: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached rollup")
	}
	if got.TotalUnits != 4 || got.FreeUnits != 3 {
		t.Errorf("unexpected counters: %+v", got)
	}
	if got.CountsByState[domain.StateAvailableDestination] != 3 {
		t.Errorf("unexpected state counts: %+v", got.CountsByState)
	}
	if !got.Valuation.Equal(rollup.Valuation) {
		t.Errorf("expected valuation %s, got %s", rollup.Valuation, got.Valuation)
	}
}

func TestRollup_GetMissingReturnsNil(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client)
	got, err := adapter.GetRollup(context.Background(), "no-such", "nowhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for uncached rollup, got %+v", got)
	}
}

func TestRollup_SyncWritesOnlyDriftedFields(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	rollup := sampleRollup()

	client.Del(ctx, rollupKey(rollup.ProductID, rollup.WarehouseID))
	if err := adapter.PutRollup(ctx, rollup); err != nil {
		t.Fatalf("put rollup: %v", err)
	}

	// no drift: nothing to write
	changed, err := adapter.SyncRollup(ctx, rollup)
	if err != nil {
		t.Fatalf("sync rollup: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("expected no changed fields, got %v", changed)
	}

	// drift two fields
	rollup.FreeUnits = 2
	rollup.CountsByState[domain.StateReserved] = 2
	changed, err = adapter.SyncRollup(ctx, rollup)
	if err != nil {
		t.Fatalf("sync rollup: %v", err)
	}
	if len(changed) != 2 {
		t.Errorf("expected 2 changed fields, got %v", changed)
	}

	got, err := adapter.GetRollup(ctx, rollup.ProductID, rollup.WarehouseID)
	if err != nil {
		t.Fatalf("get rollup: %v", err)
	}
	if got.FreeUnits != 2 || got.CountsByState[domain.StateReserved] != 2 {
		t.Errorf("drifted fields must be repaired, got %+v", got)
	}
}
