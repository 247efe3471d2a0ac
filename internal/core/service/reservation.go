package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

var (
	// ErrReservationConflict means concurrent writers kept winning the
	// optimistic updates for the whole retry budget.
	ErrReservationConflict = errors.New("reservation conflict after retries")

	ErrNoAllocations = errors.New("no allocations requested")
)

// maxReserveAttempts bounds the fresh-read retry loop on version conflicts.
const maxReserveAttempts = 3

type ProductAllocation struct {
	ProductID                string `json:"product_id"`
	Quantity                 int    `json:"quantity"`
	PreferDestinationCountry bool   `json:"prefer_destination_country"`
}

// DocumentRef identifies the commercial document (quote or sale) a
// reservation is held against.
type DocumentRef struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Actor  string `json:"actor"`
}

type ReservedUnitGroup struct {
	WarehouseID   string   `json:"warehouse_id"`
	WarehouseName string   `json:"warehouse_name"`
	UnitIDs       []string `json:"unit_ids"`
}

type ReservationResult struct {
	ProductID     string              `json:"product_id"`
	Reserved      []ReservedUnitGroup `json:"reserved"`
	Shortfall     *domain.Shortfall   `json:"shortfall,omitempty"`
	RequirementID string              `json:"requirement_id,omitempty"`
}

type ReleaseReport struct {
	Released         []string          `json:"released"`
	AlreadyAvailable []string          `json:"already_available"`
	Failed           map[string]string `json:"failed"`
}

// ReservationService commits sourcing decisions by marking specific units
// reserved against a commercial document. The commit for one Reserve call is
// a single atomic multi-record update; two concurrent reservations over the
// same unit cannot both succeed, the loser re-selects against a fresh read.
type ReservationService struct {
	ledger      port.LedgerRepository
	resolver    *AvailabilityService
	catalog     port.ProductCatalog
	procurement port.ProcurementNotifier
	logger      *zap.Logger

	freightEstimate decimal.Decimal
	taxRate         decimal.Decimal
}

func NewReservationService(ledger port.LedgerRepository, resolver *AvailabilityService,
	catalog port.ProductCatalog, procurement port.ProcurementNotifier,
	freightEstimate, taxRate decimal.Decimal, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		ledger:          ledger,
		resolver:        resolver,
		catalog:         catalog,
		procurement:     procurement,
		logger:          logger,
		freightEstimate: freightEstimate,
		taxRate:         taxRate,
	}
}

// Reserve selects units for every allocation from the resolver's
// recommendation and commits all of them in one atomic batch. If the commit
// reports success the exact committed quantity is now reserved; if it fails,
// no unit changed state. Allocations naming the same product are merged into
// one selection, so a unit can never be picked twice within one call.
// Shortfalls are reported as virtual stock and handed to procurement, never
// materialized as units.
func (s *ReservationService) Reserve(ctx context.Context, allocations []ProductAllocation, validityHours int, doc DocumentRef) ([]ReservationResult, error) {
	if len(allocations) == 0 {
		return nil, ErrNoAllocations
	}
	allocations = mergeAllocations(allocations)

	var results []ReservationResult
	var snapshots []domain.AvailabilitySnapshot

	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		var err error
		results, snapshots, err = s.selectAndCommit(ctx, allocations, validityHours, doc)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Warn("reservation commit lost optimistic race, re-selecting",
				zap.String("document_id", doc.ID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		s.reportShortfalls(ctx, results, snapshots)
		return results, nil
	}
	return nil, fmt.Errorf("%w (document %s)", ErrReservationConflict, doc.ID)
}

// mergeAllocations collapses repeated product ids into one allocation.
// Selections resolve against the same uncommitted ledger read, so two
// allocations for one product would otherwise pick the same units.
func mergeAllocations(allocations []ProductAllocation) []ProductAllocation {
	merged := make([]ProductAllocation, 0, len(allocations))
	index := map[string]int{}
	for _, a := range allocations {
		if i, ok := index[a.ProductID]; ok {
			merged[i].Quantity += a.Quantity
			merged[i].PreferDestinationCountry = merged[i].PreferDestinationCountry || a.PreferDestinationCountry
			continue
		}
		index[a.ProductID] = len(merged)
		merged = append(merged, a)
	}
	return merged
}

func (s *ReservationService) selectAndCommit(ctx context.Context, allocations []ProductAllocation, validityHours int, doc DocumentRef) ([]ReservationResult, []domain.AvailabilitySnapshot, error) {
	now := time.Now().UTC()
	expiry := now.Add(time.Duration(validityHours) * time.Hour)

	var batch []domain.Unit
	var results []ReservationResult
	var snapshots []domain.AvailabilitySnapshot

	for _, alloc := range allocations {
		res, err := s.resolver.Resolve(ctx,
			[]AvailabilityRequest{{ProductID: alloc.ProductID, Quantity: alloc.Quantity}},
			ResolveOptions{IncludeRecommendation: true, PreferDestinationCountry: alloc.PreferDestinationCountry})
		if err != nil {
			return nil, nil, err
		}
		snap := res.Products[0]
		snapshots = append(snapshots, snap)

		result := ReservationResult{ProductID: alloc.ProductID}
		for _, src := range snap.Recommendation.Sources {
			group := ReservedUnitGroup{WarehouseID: src.WarehouseID, WarehouseName: src.WarehouseName}
			for _, unitID := range src.UnitIDs {
				u, err := s.ledger.GetUnit(ctx, unitID)
				if err != nil {
					return nil, nil, fmt.Errorf("load unit %s: %w", unitID, err)
				}
				if u == nil || !u.Available() {
					// selection is stale; force a fresh pass
					return nil, nil, domain.ErrVersionConflict
				}
				if err := u.Transition(domain.StateReserved, domain.Movement{
					ID:            uuid.New().String(),
					Type:          domain.MovementReservation,
					At:            now,
					FromWarehouse: u.WarehouseID,
					Actor:         doc.Actor,
					Note:          fmt.Sprintf("reserved for document %s, valid %dh", doc.Number, validityHours),
					RelatedDocID:  doc.ID,
				}); err != nil {
					return nil, nil, err
				}
				u.ReservedByDocID = doc.ID
				u.ReservedAt = &now
				u.ReservationExpiry = &expiry
				batch = append(batch, *u)
				group.UnitIDs = append(group.UnitIDs, u.ID)
			}
			result.Reserved = append(result.Reserved, group)
		}
		results = append(results, result)
	}

	if len(batch) > 0 {
		if err := s.ledger.UpdateUnits(ctx, batch); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, nil, domain.ErrVersionConflict
			}
			return nil, nil, fmt.Errorf("commit reservation: %w", err)
		}
	}
	return results, snapshots, nil
}

// reportShortfalls raises a purchase requirement for every allocation the
// ledger could not fully cover. A notifier failure is logged, not fatal: the
// committed reservation stands either way.
func (s *ReservationService) reportShortfalls(ctx context.Context, results []ReservationResult, snapshots []domain.AvailabilitySnapshot) {
	for i := range results {
		rec := snapshots[i].Recommendation
		if rec == nil || rec.Shortfall == 0 {
			continue
		}
		unitCost := s.estimateUnitCost(snapshots[i])
		shortfall := domain.Shortfall{
			ProductID:        results[i].ProductID,
			ProductSKU:       snapshots[i].ProductSKU,
			Quantity:         rec.Shortfall,
			EstimatedCost:    unitCost,
			EstimatedFreight: s.freightEstimate,
			EstimatedTax:     unitCost.Mul(s.taxRate).Round(4),
		}
		results[i].Shortfall = &shortfall

		reqID, err := s.procurement.RaiseRequirement(ctx, shortfall)
		if err != nil {
			s.logger.Error("failed to raise purchase requirement",
				zap.String("product_id", shortfall.ProductID),
				zap.Int("quantity", shortfall.Quantity),
				zap.Error(err))
			continue
		}
		results[i].RequirementID = reqID
	}
}

// estimateUnitCost takes the cheapest observed warehouse average, falling
// back to zero when the product has no units at all.
func (s *ReservationService) estimateUnitCost(snap domain.AvailabilitySnapshot) decimal.Decimal {
	best := decimal.Zero
	for _, wa := range snap.Warehouses {
		if wa.AvgUnitCost.IsZero() {
			continue
		}
		if best.IsZero() || wa.AvgUnitCost.LessThan(best) {
			best = wa.AvgUnitCost
		}
	}
	return best
}

// Release reverts reserved units to the country-appropriate available state.
// It is deliberately per-unit: already-available units are no-op successes,
// units in any other state fail individually, and the batch never fails as a
// whole.
func (s *ReservationService) Release(ctx context.Context, unitIDs []string, reason string) (*ReleaseReport, error) {
	report := &ReleaseReport{Failed: map[string]string{}}

	for _, id := range unitIDs {
		status, err := s.releaseOne(ctx, id, reason)
		if err != nil {
			report.Failed[id] = err.Error()
			continue
		}
		switch status {
		case releaseDone:
			report.Released = append(report.Released, id)
		case releaseNoop:
			report.AlreadyAvailable = append(report.AlreadyAvailable, id)
		}
	}
	return report, nil
}

type releaseStatus int

const (
	releaseDone releaseStatus = iota
	releaseNoop
)

func (s *ReservationService) releaseOne(ctx context.Context, unitID, reason string) (releaseStatus, error) {
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		u, err := s.ledger.GetUnit(ctx, unitID)
		if err != nil {
			return 0, err
		}
		if u == nil {
			return 0, domain.ErrUnitNotFound
		}
		if u.Available() {
			return releaseNoop, nil
		}
		if u.State != domain.StateReserved {
			return 0, fmt.Errorf("%w: cannot release unit in state %s", domain.ErrInvalidTransition, u.State)
		}

		now := time.Now().UTC()
		if err := u.Transition(domain.AvailableState(u.Country), domain.Movement{
			ID:           uuid.New().String(),
			Type:         domain.MovementRelease,
			At:           now,
			ToWarehouse:  u.WarehouseID,
			Note:         reason,
			RelatedDocID: u.ReservedByDocID,
		}); err != nil {
			return 0, err
		}
		u.ClearReservation()

		err = s.ledger.UpdateUnit(ctx, *u)
		if err == nil {
			return releaseDone, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return 0, err
		}
	}
	return 0, domain.ErrVersionConflict
}
