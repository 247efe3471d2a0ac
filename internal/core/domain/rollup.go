package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRollup is the cached per-(product, warehouse) aggregate. It is always
// re-derivable from the unit ledger and is never the source of truth; callers
// that mutate the ledger must trigger a rebuild.
type StockRollup struct {
	ProductID     string            `json:"product_id"`
	WarehouseID   string            `json:"warehouse_id"`
	CountsByState map[UnitState]int `json:"counts_by_state"`
	TotalUnits    int               `json:"total_units"`
	FreeUnits     int               `json:"free_units"`
	Valuation     decimal.Decimal   `json:"valuation"`
	AvgUnitCost   decimal.Decimal   `json:"avg_unit_cost"`
	Expiring30    int               `json:"expiring_30"`
	Expiring90    int               `json:"expiring_90"`
	CriticalStock bool              `json:"critical_stock"`
	RebuiltAt     time.Time         `json:"rebuilt_at"`
}

// OnHandEquivalent reports whether units in this state count toward on-hand
// valuation.
func OnHandEquivalent(s UnitState) bool {
	switch s {
	case StateReceivedOrigin, StateInTransitOrigin, StateInTransitDestination,
		StateAvailableDestination, StateReserved:
		return true
	}
	return false
}

// Product is catalog metadata read from the external product catalog.
type Product struct {
	ID       string
	SKU      string
	Brand    string
	Name     string
	MinStock int
	MaxStock int
}
