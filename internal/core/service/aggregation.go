package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

// AggregationService recomputes per-(product, warehouse) roll-ups purely from
// the unit ledger and writes them through to the cache. Rebuild never reads
// prior roll-up values, so it is idempotent and doubles as the repair action
// after reconciliation.
type AggregationService struct {
	ledger  port.LedgerRepository
	cache   port.RollupCache
	catalog port.ProductCatalog
	logger  *zap.Logger
}

func NewAggregationService(ledger port.LedgerRepository, cache port.RollupCache,
	catalog port.ProductCatalog, logger *zap.Logger) *AggregationService {
	return &AggregationService{ledger: ledger, cache: cache, catalog: catalog, logger: logger}
}

// Rebuild recomputes roll-ups, optionally narrowed to one product and/or one
// warehouse, writes them to the cache and returns them.
func (s *AggregationService) Rebuild(ctx context.Context, productID, warehouseID string) ([]domain.StockRollup, error) {
	rollups, err := s.Compute(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	for _, r := range rollups {
		if err := s.cache.PutRollup(ctx, r); err != nil {
			return nil, fmt.Errorf("cache rollup %s/%s: %w", r.ProductID, r.WarehouseID, err)
		}
	}
	s.logger.Info("rebuilt stock rollups",
		zap.String("product_id", productID),
		zap.String("warehouse_id", warehouseID),
		zap.Int("rollups", len(rollups)))
	return rollups, nil
}

// Compute derives the roll-ups without touching the cache. Counter resync
// uses this directly so it can diff against the cached values itself.
func (s *AggregationService) Compute(ctx context.Context, productID, warehouseID string) ([]domain.StockRollup, error) {
	units, err := s.ledger.ListUnits(ctx, port.UnitFilter{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	type key struct{ product, warehouse string }
	grouped := map[key][]domain.Unit{}
	for _, u := range units {
		k := key{u.ProductID, u.WarehouseID}
		grouped[k] = append(grouped[k], u)
	}

	now := time.Now().UTC()
	minStock := map[string]int{}
	var rollups []domain.StockRollup
	for k, group := range grouped {
		if _, ok := minStock[k.product]; !ok {
			p, err := s.catalog.GetProduct(ctx, k.product)
			if err != nil {
				return nil, fmt.Errorf("catalog lookup %s: %w", k.product, err)
			}
			if p != nil {
				minStock[k.product] = p.MinStock
			}
		}
		rollups = append(rollups, buildRollup(k.product, k.warehouse, group, minStock[k.product], now))
	}

	sort.Slice(rollups, func(i, j int) bool {
		if rollups[i].ProductID != rollups[j].ProductID {
			return rollups[i].ProductID < rollups[j].ProductID
		}
		return rollups[i].WarehouseID < rollups[j].WarehouseID
	})
	return rollups, nil
}

func buildRollup(productID, warehouseID string, units []domain.Unit, minStock int, now time.Time) domain.StockRollup {
	r := domain.StockRollup{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		CountsByState: map[domain.UnitState]int{},
		Valuation:     decimal.Zero,
		AvgUnitCost:   decimal.Zero,
		RebuiltAt:     now,
	}

	onHand := 0
	for _, u := range units {
		r.CountsByState[u.State]++
		r.TotalUnits++
		if u.Available() {
			r.FreeUnits++
		}
		if !domain.OnHandEquivalent(u.State) {
			continue
		}
		onHand++
		cost := u.UnitCost
		if u.FreightCost != nil {
			cost = cost.Add(*u.FreightCost)
		}
		r.Valuation = r.Valuation.Add(cost)

		days := u.ExpiryDate.Sub(now).Hours() / 24
		if days <= 30 {
			r.Expiring30++
		}
		if days <= 90 {
			r.Expiring90++
		}
	}
	if onHand > 0 {
		r.AvgUnitCost = r.Valuation.DivRound(decimal.NewFromInt(int64(onHand)), 4)
	}
	r.CriticalStock = r.FreeUnits < minStock
	return r
}
