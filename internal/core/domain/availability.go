package domain

import "github.com/shopspring/decimal"

type Disponibility string

const (
	DisponibilityAvailable Disponibility = "available"
	DisponibilityPartial   Disponibility = "partial"
	DisponibilityNoStock   Disponibility = "no_stock"
)

// WarehouseAvailability is the free-stock view of one warehouse for one
// product.
type WarehouseAvailability struct {
	WarehouseID   string          `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	Country       Country         `json:"country"`
	OnHand        int             `json:"on_hand"`
	Reserved      int             `json:"reserved"`
	Free          int             `json:"free"`
	EligibleUnits []string        `json:"eligible_units"`
	AvgUnitCost   decimal.Decimal `json:"avg_unit_cost"`
	LandedCost    decimal.Decimal `json:"landed_cost"`
	TransitDays   int             `json:"transit_days"`
}

// RecommendedSource is one warehouse drawn from by the sourcing
// recommendation, with the quantity to take from it.
type RecommendedSource struct {
	WarehouseID   string          `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	Country       Country         `json:"country"`
	Quantity      int             `json:"quantity"`
	UnitIDs       []string        `json:"unit_ids"`
	LandedCost    decimal.Decimal `json:"landed_cost"`
	TransitDays   int             `json:"transit_days"`
}

type Recommendation struct {
	Sources              []RecommendedSource `json:"sources"`
	PrimarySource        string              `json:"primary_source"`
	Rationale            string              `json:"rationale"`
	Shortfall            int                 `json:"shortfall"`
	GeneratesRequirement bool                `json:"generates_requirement"`
}

// AvailabilitySnapshot is the derived, non-persisted disponibility view of
// one product across all warehouses.
type AvailabilitySnapshot struct {
	ProductID      string                  `json:"product_id"`
	ProductSKU     string                  `json:"product_sku"`
	Requested      int                     `json:"requested"`
	OnHand         int                     `json:"on_hand"`
	Reserved       int                     `json:"reserved"`
	Free           int                     `json:"free"`
	FreeByCountry  map[Country]int         `json:"free_by_country"`
	Disponibility  Disponibility           `json:"disponibility"`
	Warehouses     []WarehouseAvailability `json:"warehouses"`
	Recommendation *Recommendation         `json:"recommendation,omitempty"`
}

type ResolveSummary struct {
	AllAvailable     bool            `json:"all_available"`
	AnyPartial       bool            `json:"any_partial"`
	AnyNoStock       bool            `json:"any_no_stock"`
	MaxTransitDays   int             `json:"max_transit_days"`
	TotalLandedCost  decimal.Decimal `json:"total_landed_cost"`
	RequiresPurchase bool            `json:"requires_purchase"`
}

type ResolveResult struct {
	Products []AvailabilitySnapshot `json:"products"`
	Summary  ResolveSummary         `json:"summary"`
}

// Shortfall is requested quantity no existing unit can cover; it is handed to
// procurement as a number, never materialized as unit records.
type Shortfall struct {
	ProductID        string          `json:"product_id"`
	ProductSKU       string          `json:"product_sku"`
	Quantity         int             `json:"quantity"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
	EstimatedFreight decimal.Decimal `json:"estimated_freight"`
	EstimatedTax     decimal.Decimal `json:"estimated_tax"`
}
