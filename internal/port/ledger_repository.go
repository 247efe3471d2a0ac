package port

import (
	"context"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

// UnitFilter narrows a ledger scan. Zero values mean "any".
type UnitFilter struct {
	ProductID   string
	WarehouseID string
	States      []domain.UnitState
}

type LedgerRepository interface {
	// GetUnit retrieves a unit by id; (nil, nil) when it does not exist
	GetUnit(ctx context.Context, id string) (*domain.Unit, error)

	// ListUnits returns units matching the filter in ledger insertion order
	ListUnits(ctx context.Context, f UnitFilter) ([]domain.Unit, error)

	// InsertUnits persists a batch of freshly received units
	InsertUnits(ctx context.Context, units []domain.Unit) error

	// UpdateUnit writes the full unit record with a version check; returns
	// domain.ErrVersionConflict when the stored version moved on
	UpdateUnit(ctx context.Context, u domain.Unit) error

	// UpdateUnits applies all updates in one transaction; any version
	// conflict rolls back the whole batch with domain.ErrVersionConflict
	UpdateUnits(ctx context.Context, units []domain.Unit) error
}
