package port

import (
	"context"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

type RollupCache interface {
	// GetRollup reads the cached roll-up; (nil, nil) when not cached
	GetRollup(ctx context.Context, productID, warehouseID string) (*domain.StockRollup, error)

	// PutRollup overwrites the cached roll-up unconditionally
	PutRollup(ctx context.Context, r domain.StockRollup) error

	// SyncRollup overwrites only the fields that differ from the cached
	// value and returns their names; used by counter resync to keep write
	// volume down
	SyncRollup(ctx context.Context, r domain.StockRollup) ([]string, error)
}
