package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

func newTestResolver(ledger *memLedger, transfers *memTransfers) *AvailabilityService {
	if transfers == nil {
		transfers = &memTransfers{}
	}
	return NewAvailabilityService(ledger, transfers, 10, 30,
		decimal.NewFromFloat(2.50), zap.NewNop())
}

func TestResolve_FullyAvailable(t *testing.T) {
	ledger := newMemLedger()
	ledger.InsertUnits(context.Background(), []domain.Unit{
		testUnit("u1", "p1", "w1", domain.CountryDestination, 10),
		testUnit("u2", "p1", "w1", domain.CountryDestination, 20),
	})
	svc := newTestResolver(ledger, nil)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "p1", Quantity: 2}}, ResolveOptions{})
	require.NoError(t, err)

	snap := result.Products[0]
	assert.Equal(t, domain.DisponibilityAvailable, snap.Disponibility)
	assert.Equal(t, 2, snap.Free)
	assert.Equal(t, 2, snap.FreeByCountry[domain.CountryDestination])
	assert.True(t, result.Summary.AllAvailable)
	assert.False(t, result.Summary.RequiresPurchase)
}

func TestResolve_PartialWithShortfallRaisesRequirementFlag(t *testing.T) {
	// product Q: 5 free in origin, 0 in destination, request 8
	ledger := newMemLedger()
	for _, id := range []string{"q1", "q2", "q3", "q4", "q5"} {
		ledger.InsertUnits(context.Background(), []domain.Unit{
			testUnit(id, "q", "origin-w", domain.CountryOrigin, 60),
		})
	}
	svc := newTestResolver(ledger, nil)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "q", Quantity: 8}},
		ResolveOptions{IncludeRecommendation: true, PreferDestinationCountry: true})
	require.NoError(t, err)

	snap := result.Products[0]
	assert.Equal(t, domain.DisponibilityPartial, snap.Disponibility)
	require.NotNil(t, snap.Recommendation)
	require.Len(t, snap.Recommendation.Sources, 1)
	assert.Equal(t, 5, snap.Recommendation.Sources[0].Quantity)
	assert.Len(t, snap.Recommendation.Sources[0].UnitIDs, 5)
	assert.Equal(t, 3, snap.Recommendation.Shortfall)
	assert.True(t, snap.Recommendation.GeneratesRequirement)
	assert.True(t, result.Summary.RequiresPurchase)
	assert.False(t, result.Summary.AllAvailable)
}

func TestResolve_NoStock(t *testing.T) {
	svc := newTestResolver(newMemLedger(), nil)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "ghost", Quantity: 1}}, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.DisponibilityNoStock, result.Products[0].Disponibility)
	assert.True(t, result.Summary.AnyNoStock)
}

func TestResolve_FreeClampsReservedUnits(t *testing.T) {
	reserved := testUnit("r1", "p1", "w1", domain.CountryDestination, 10)
	reserved.State = domain.StateReserved

	ledger := newMemLedger()
	ledger.InsertUnits(context.Background(), []domain.Unit{
		reserved,
		testUnit("a1", "p1", "w1", domain.CountryDestination, 10),
	})
	svc := newTestResolver(ledger, nil)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "p1", Quantity: 1}}, ResolveOptions{})
	require.NoError(t, err)

	snap := result.Products[0]
	assert.Equal(t, 2, snap.OnHand)
	assert.Equal(t, 1, snap.Reserved)
	assert.Equal(t, 1, snap.Free)
}

func TestResolve_PreferDestinationRanksDestinationFirst(t *testing.T) {
	ledger := newMemLedger()
	ledger.InsertUnits(context.Background(), []domain.Unit{
		testUnit("o1", "p1", "origin-w", domain.CountryOrigin, 5),
		testUnit("o2", "p1", "origin-w", domain.CountryOrigin, 6),
		testUnit("d1", "p1", "dest-w", domain.CountryDestination, 30),
	})
	svc := newTestResolver(ledger, nil)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "p1", Quantity: 3}},
		ResolveOptions{IncludeRecommendation: true, PreferDestinationCountry: true})
	require.NoError(t, err)

	rec := result.Products[0].Recommendation
	require.NotNil(t, rec)
	require.Len(t, rec.Sources, 2)
	assert.Equal(t, "dest-w", rec.Sources[0].WarehouseID)
	assert.Equal(t, 1, rec.Sources[0].Quantity)
	assert.Equal(t, "origin-w", rec.Sources[1].WarehouseID)
	assert.Equal(t, 2, rec.Sources[1].Quantity)
	assert.Equal(t, "Warehouse dest-w", rec.PrimarySource)
	assert.Zero(t, rec.Shortfall)
}

func TestResolve_TransitUsesScheduleThenFallback(t *testing.T) {
	ledger := newMemLedger()
	ledger.InsertUnits(context.Background(), []domain.Unit{
		testUnit("s1", "p1", "scheduled-w", domain.CountryOrigin, 30),
		testUnit("f1", "p1", "fallback-w", domain.CountryOrigin, 30),
	})
	departure := time.Now().UTC().Add(48 * time.Hour)
	transfers := &memTransfers{departures: map[string]time.Time{"scheduled-w": departure}}
	svc := newTestResolver(ledger, transfers)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "p1", Quantity: 2}},
		ResolveOptions{IncludeRecommendation: true})
	require.NoError(t, err)

	byWarehouse := map[string]int{}
	for _, wa := range result.Products[0].Warehouses {
		byWarehouse[wa.WarehouseID] = wa.TransitDays
	}
	// 2 days to departure + 10 fixed transit days
	assert.Equal(t, 12, byWarehouse["scheduled-w"])
	assert.Equal(t, 30, byWarehouse["fallback-w"])

	// the scheduled warehouse is faster, so it is drawn from first
	rec := result.Products[0].Recommendation
	require.NotNil(t, rec)
	assert.Equal(t, "scheduled-w", rec.Sources[0].WarehouseID)
	assert.Equal(t, 30, result.Summary.MaxTransitDays)
}

func TestResolve_CheaperLandedCostWinsTieBreak(t *testing.T) {
	cheap := testUnit("c1", "p1", "cheap-w", domain.CountryDestination, 30)
	cheap.UnitCost = decimal.NewFromInt(5)
	pricey := testUnit("e1", "p1", "pricey-w", domain.CountryDestination, 30)
	pricey.UnitCost = decimal.NewFromInt(50)

	ledger := newMemLedger()
	ledger.InsertUnits(context.Background(), []domain.Unit{pricey, cheap})
	svc := newTestResolver(ledger, nil)

	result, err := svc.Resolve(context.Background(),
		[]AvailabilityRequest{{ProductID: "p1", Quantity: 1}},
		ResolveOptions{IncludeRecommendation: true})
	require.NoError(t, err)

	rec := result.Products[0].Recommendation
	require.NotNil(t, rec)
	assert.Equal(t, "cheap-w", rec.Sources[0].WarehouseID)
}
