package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

type AvailabilityRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ResolveOptions struct {
	IncludeRecommendation    bool `json:"include_recommendation"`
	PreferDestinationCountry bool `json:"prefer_destination_country"`
}

// AvailabilityService aggregates ledger state per product into a
// disponibility snapshot and produces a sourcing recommendation. Resolution
// is read-only and safe to run concurrently.
type AvailabilityService struct {
	ledger    port.LedgerRepository
	transfers port.TransferTracker
	logger    *zap.Logger

	transitFixedDays    int
	transitFallbackDays int
	freightEstimate     decimal.Decimal
}

func NewAvailabilityService(ledger port.LedgerRepository, transfers port.TransferTracker,
	transitFixedDays, transitFallbackDays int, freightEstimate decimal.Decimal,
	logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		ledger:              ledger,
		transfers:           transfers,
		logger:              logger,
		transitFixedDays:    transitFixedDays,
		transitFallbackDays: transitFallbackDays,
		freightEstimate:     freightEstimate,
	}
}

func (s *AvailabilityService) Resolve(ctx context.Context, requests []AvailabilityRequest, opts ResolveOptions) (*domain.ResolveResult, error) {
	result := &domain.ResolveResult{
		Summary: domain.ResolveSummary{AllAvailable: true, TotalLandedCost: decimal.Zero},
	}

	for _, req := range requests {
		snap, err := s.resolveProduct(ctx, req, opts)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", req.ProductID, err)
		}
		result.Products = append(result.Products, *snap)

		switch snap.Disponibility {
		case domain.DisponibilityPartial:
			result.Summary.AllAvailable = false
			result.Summary.AnyPartial = true
		case domain.DisponibilityNoStock:
			result.Summary.AllAvailable = false
			result.Summary.AnyNoStock = true
		}
		if rec := snap.Recommendation; rec != nil {
			for _, src := range rec.Sources {
				if src.TransitDays > result.Summary.MaxTransitDays {
					result.Summary.MaxTransitDays = src.TransitDays
				}
				cost := src.LandedCost.Mul(decimal.NewFromInt(int64(src.Quantity)))
				result.Summary.TotalLandedCost = result.Summary.TotalLandedCost.Add(cost)
			}
			if rec.GeneratesRequirement {
				result.Summary.RequiresPurchase = true
			}
		}
	}
	return result, nil
}

func (s *AvailabilityService) resolveProduct(ctx context.Context, req AvailabilityRequest, opts ResolveOptions) (*domain.AvailabilitySnapshot, error) {
	units, err := s.ledger.ListUnits(ctx, port.UnitFilter{ProductID: req.ProductID})
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	snap := &domain.AvailabilitySnapshot{
		ProductID:     req.ProductID,
		Requested:     req.Quantity,
		FreeByCountry: map[domain.Country]int{},
	}

	byWarehouse := map[string][]domain.Unit{}
	var order []string
	for _, u := range units {
		if snap.ProductSKU == "" {
			snap.ProductSKU = u.ProductSKU
		}
		if _, seen := byWarehouse[u.WarehouseID]; !seen {
			order = append(order, u.WarehouseID)
		}
		byWarehouse[u.WarehouseID] = append(byWarehouse[u.WarehouseID], u)
	}

	for _, wid := range order {
		wa, err := s.warehouseAvailability(ctx, wid, byWarehouse[wid])
		if err != nil {
			return nil, err
		}
		snap.OnHand += wa.OnHand
		snap.Reserved += wa.Reserved
		snap.Free += wa.Free
		snap.FreeByCountry[wa.Country] += wa.Free
		snap.Warehouses = append(snap.Warehouses, *wa)
	}

	switch {
	case snap.Free >= req.Quantity && req.Quantity > 0:
		snap.Disponibility = domain.DisponibilityAvailable
	case snap.Free > 0:
		snap.Disponibility = domain.DisponibilityPartial
	default:
		snap.Disponibility = domain.DisponibilityNoStock
	}

	if opts.IncludeRecommendation {
		snap.Recommendation = s.recommend(snap, req.Quantity, opts.PreferDestinationCountry)
	}
	return snap, nil
}

func (s *AvailabilityService) warehouseAvailability(ctx context.Context, warehouseID string, units []domain.Unit) (*domain.WarehouseAvailability, error) {
	wa := &domain.WarehouseAvailability{WarehouseID: warehouseID}

	var free []domain.Unit
	costSum := decimal.Zero
	landedSum := decimal.Zero
	for _, u := range units {
		wa.WarehouseName = u.WarehouseName
		wa.Country = u.Country
		switch {
		case u.Available():
			wa.OnHand++
			free = append(free, u)
			costSum = costSum.Add(u.UnitCost)
			landedSum = landedSum.Add(u.LandedCost(s.freightEstimate))
		case u.State == domain.StateReserved:
			wa.OnHand++
			wa.Reserved++
		}
	}

	wa.Free = wa.OnHand - wa.Reserved
	if wa.Free < 0 {
		wa.Free = 0
	}

	sortFEFO(free)
	for _, u := range free {
		wa.EligibleUnits = append(wa.EligibleUnits, u.ID)
	}
	if n := int64(len(free)); n > 0 {
		wa.AvgUnitCost = costSum.DivRound(decimal.NewFromInt(n), 4)
		wa.LandedCost = landedSum.DivRound(decimal.NewFromInt(n), 4)
	}

	days, err := s.transitDays(ctx, wa)
	if err != nil {
		return nil, err
	}
	wa.TransitDays = days
	return wa, nil
}

// transitDays estimates days to the destination market: zero for stock
// already there, the next scheduled departure plus the fixed leg for origin
// stock, or the flat fallback when nothing is scheduled.
func (s *AvailabilityService) transitDays(ctx context.Context, wa *domain.WarehouseAvailability) (int, error) {
	if wa.Country == domain.CountryDestination {
		return 0, nil
	}
	dep, err := s.transfers.NextDeparture(ctx, wa.WarehouseID)
	if err != nil {
		return 0, fmt.Errorf("next departure for %s: %w", wa.WarehouseID, err)
	}
	if dep == nil {
		return s.transitFallbackDays, nil
	}
	until := int(math.Ceil(time.Until(*dep).Hours() / 24))
	if until < 0 {
		until = 0
	}
	return until + s.transitFixedDays, nil
}

// recommend ranks warehouses and greedily draws the requested quantity from
// them. The first warehouse drawn from names the primary source.
func (s *AvailabilityService) recommend(snap *domain.AvailabilitySnapshot, quantity int, preferDestination bool) *domain.Recommendation {
	ranked := make([]domain.WarehouseAvailability, 0, len(snap.Warehouses))
	for _, wa := range snap.Warehouses {
		if wa.Free > 0 {
			ranked = append(ranked, wa)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if preferDestination && a.Country != b.Country {
			return a.Country == domain.CountryDestination
		}
		if a.TransitDays != b.TransitDays {
			return a.TransitDays < b.TransitDays
		}
		return a.LandedCost.LessThan(b.LandedCost)
	})

	rec := &domain.Recommendation{}
	remaining := quantity
	for _, wa := range ranked {
		if remaining <= 0 {
			break
		}
		take := wa.Free
		if take > remaining {
			take = remaining
		}
		rec.Sources = append(rec.Sources, domain.RecommendedSource{
			WarehouseID:   wa.WarehouseID,
			WarehouseName: wa.WarehouseName,
			Country:       wa.Country,
			Quantity:      take,
			UnitIDs:       append([]string(nil), wa.EligibleUnits[:take]...),
			LandedCost:    wa.LandedCost,
			TransitDays:   wa.TransitDays,
		})
		remaining -= take
	}

	if len(rec.Sources) > 0 {
		first := rec.Sources[0]
		rec.PrimarySource = first.WarehouseName
		if rec.PrimarySource == "" {
			rec.PrimarySource = first.WarehouseID
		}
		rec.Rationale = fmt.Sprintf("%d of %d units from %s (%s country, %d day transit)",
			first.Quantity, quantity, rec.PrimarySource, first.Country, first.TransitDays)
	}
	if remaining > 0 {
		rec.Shortfall = remaining
		rec.GeneratesRequirement = true
		s.logger.Info("availability shortfall",
			zap.String("product_id", snap.ProductID),
			zap.Int("requested", quantity),
			zap.Int("shortfall", remaining))
	}
	return rec
}
