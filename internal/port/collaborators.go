package port

import (
	"context"
	"time"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

// External collaborators. The engine only consumes these boundaries; their
// implementations live with the embedding application.

type ProductCatalog interface {
	// GetProduct reads catalog metadata; (nil, nil) when the product does
	// not exist
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type DocumentRegistry interface {
	// DocumentExists reports whether the commercial document (quote or
	// sale) is still live
	DocumentExists(ctx context.Context, docID string) (bool, error)
}

type ProcurementNotifier interface {
	// RaiseRequirement hands a shortfall to the procurement workflow and
	// returns the requirement id it assigned
	RaiseRequirement(ctx context.Context, s domain.Shortfall) (string, error)
}

type TransferTracker interface {
	// InActiveTransfer reports whether the unit is part of an in-progress
	// transfer; such units are exempt from state-mismatch correction
	InActiveTransfer(ctx context.Context, unitID string) (bool, error)

	// NextDeparture returns the next scheduled departure from the
	// warehouse toward the destination country, or nil when none is
	// scheduled
	NextDeparture(ctx context.Context, warehouseID string) (*time.Time, error)
}
