package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

// RankedUnit is a unit tagged with its FEFO selection rank (1 = expires
// soonest).
type RankedUnit struct {
	Unit domain.Unit `json:"unit"`
	Rank int         `json:"rank"`
}

// FEFOService selects units for a requested quantity earliest-expiry-first.
// It never mutates state.
type FEFOService struct {
	ledger port.LedgerRepository
}

func NewFEFOService(ledger port.LedgerRepository) *FEFOService {
	return &FEFOService{ledger: ledger}
}

// Select returns at most quantity units of the product, restricted to
// warehouseID when non-empty, ordered by ascending expiry date. Returning
// fewer than quantity is not an error; callers must check the count.
func (s *FEFOService) Select(ctx context.Context, productID string, quantity int, warehouseID string) ([]RankedUnit, error) {
	units, err := s.ledger.ListUnits(ctx, port.UnitFilter{
		ProductID:   productID,
		WarehouseID: warehouseID,
	})
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	available := make([]domain.Unit, 0, len(units))
	for _, u := range units {
		if u.Available() {
			available = append(available, u)
		}
	}
	sortFEFO(available)

	if quantity > 0 && len(available) > quantity {
		available = available[:quantity]
	}

	ranked := make([]RankedUnit, len(available))
	for i, u := range available {
		ranked[i] = RankedUnit{Unit: u, Rank: i + 1}
	}
	return ranked, nil
}

// sortFEFO orders units by ascending expiry date. The sort is stable so that
// ties keep ledger insertion order.
func sortFEFO(units []domain.Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].ExpiryDate.Before(units[j].ExpiryDate)
	})
}
