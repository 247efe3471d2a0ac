package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

// In-memory ledger with the same contract as the MySQL adapter: version
// checks on update, batch updates all-or-nothing.
type memLedger struct {
	mu    sync.Mutex
	units map[string]domain.Unit
	order []string

	// conflictNext forces the next n single/batch updates to fail with a
	// version conflict, to exercise the retry paths.
	conflictNext int
}

func newMemLedger() *memLedger {
	return &memLedger{units: map[string]domain.Unit{}}
}

func (m *memLedger) GetUnit(ctx context.Context, id string) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return nil, nil
	}
	cp := u
	return &cp, nil
}

func (m *memLedger) ListUnits(ctx context.Context, f port.UnitFilter) ([]domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Unit
	for _, id := range m.order {
		u := m.units[id]
		if f.ProductID != "" && u.ProductID != f.ProductID {
			continue
		}
		if f.WarehouseID != "" && u.WarehouseID != f.WarehouseID {
			continue
		}
		if len(f.States) > 0 && !stateIn(u.State, f.States) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func stateIn(s domain.UnitState, states []domain.UnitState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func (m *memLedger) InsertUnits(ctx context.Context, units []domain.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range units {
		if _, exists := m.units[u.ID]; exists {
			return fmt.Errorf("duplicate unit %s", u.ID)
		}
		m.units[u.ID] = u
		m.order = append(m.order, u.ID)
	}
	return nil
}

func (m *memLedger) UpdateUnit(ctx context.Context, u domain.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(u)
}

func (m *memLedger) UpdateUnits(ctx context.Context, units []domain.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictNext > 0 {
		m.conflictNext--
		return domain.ErrVersionConflict
	}
	// Sequential version-checked updates against a staged view, committed
	// all-or-nothing. The same unit appearing twice at the same version
	// conflicts, exactly as the sequential conditional UPDATEs in one SQL
	// transaction would.
	staged := map[string]domain.Unit{}
	for _, u := range units {
		stored, ok := staged[u.ID]
		if !ok {
			stored, ok = m.units[u.ID]
		}
		if !ok || stored.Version != u.Version {
			return domain.ErrVersionConflict
		}
		u.Version++
		staged[u.ID] = u
	}
	for id, u := range staged {
		m.units[id] = u
	}
	return nil
}

func (m *memLedger) updateLocked(u domain.Unit) error {
	if m.conflictNext > 0 {
		m.conflictNext--
		return domain.ErrVersionConflict
	}
	stored, ok := m.units[u.ID]
	if !ok || stored.Version != u.Version {
		return domain.ErrVersionConflict
	}
	u.Version++
	m.units[u.ID] = u
	return nil
}

func (m *memLedger) state(id string) domain.UnitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[id].State
}

func (m *memLedger) countByState(productID string, s domain.UnitState) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.units {
		if u.ProductID == productID && u.State == s {
			n++
		}
	}
	return n
}

// testUnit builds an available unit with sensible defaults; mutate the
// returned value for scenario-specific fields.
func testUnit(id, productID, warehouseID string, country domain.Country, expiryDays int) domain.Unit {
	now := time.Now().UTC()
	return domain.Unit{
		ID:            id,
		ProductID:     productID,
		ProductSKU:    "SKU-" + productID,
		ProductName:   "Product " + productID,
		BatchCode:     "LOT-1",
		ExpiryDate:    now.AddDate(0, 0, expiryDays),
		WarehouseID:   warehouseID,
		WarehouseName: "Warehouse " + warehouseID,
		Country:       country,
		State:         domain.AvailableState(country),
		UnitCost:      decimal.NewFromInt(10),
		ReceivedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
}

type memCache struct {
	mu      sync.Mutex
	rollups map[string]domain.StockRollup
	syncs   int
}

func newMemCache() *memCache {
	return &memCache{rollups: map[string]domain.StockRollup{}}
}

func cacheKey(productID, warehouseID string) string {
	return productID + "/" + warehouseID
}

func (m *memCache) GetRollup(ctx context.Context, productID, warehouseID string) (*domain.StockRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rollups[cacheKey(productID, warehouseID)]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (m *memCache) PutRollup(ctx context.Context, r domain.StockRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups[cacheKey(r.ProductID, r.WarehouseID)] = r
	return nil
}

func (m *memCache) SyncRollup(ctx context.Context, r domain.StockRollup) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++

	var changed []string
	old, ok := m.rollups[cacheKey(r.ProductID, r.WarehouseID)]
	if !ok {
		changed = append(changed, "all")
	} else {
		if old.TotalUnits != r.TotalUnits {
			changed = append(changed, "total_units")
		}
		if old.FreeUnits != r.FreeUnits {
			changed = append(changed, "free_units")
		}
		if !old.Valuation.Equal(r.Valuation) {
			changed = append(changed, "valuation")
		}
		for st, n := range r.CountsByState {
			if old.CountsByState[st] != n {
				changed = append(changed, "count:"+string(st))
			}
		}
		for st, n := range old.CountsByState {
			if _, ok := r.CountsByState[st]; !ok && n != 0 {
				changed = append(changed, "count:"+string(st))
			}
		}
	}
	if len(changed) > 0 {
		m.rollups[cacheKey(r.ProductID, r.WarehouseID)] = r
	}
	return changed, nil
}

type memCatalog struct {
	products map[string]domain.Product
}

func (m *memCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type memDocs struct {
	mu   sync.Mutex
	live map[string]bool
}

func (m *memDocs) DocumentExists(ctx context.Context, docID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[docID], nil
}

func (m *memDocs) remove(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, docID)
}

type memTransfers struct {
	active     map[string]bool
	departures map[string]time.Time
}

func (m *memTransfers) InActiveTransfer(ctx context.Context, unitID string) (bool, error) {
	return m.active[unitID], nil
}

func (m *memTransfers) NextDeparture(ctx context.Context, warehouseID string) (*time.Time, error) {
	dep, ok := m.departures[warehouseID]
	if !ok {
		return nil, nil
	}
	return &dep, nil
}

type memProcurement struct {
	mu     sync.Mutex
	raised []domain.Shortfall
}

func (m *memProcurement) RaiseRequirement(ctx context.Context, s domain.Shortfall) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raised = append(m.raised, s)
	return fmt.Sprintf("REQ-%03d", len(m.raised)), nil
}
