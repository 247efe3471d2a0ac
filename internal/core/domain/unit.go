package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type UnitState string

const (
	StateReceivedOrigin       UnitState = "received_origin"
	StateInTransitOrigin      UnitState = "in_transit_origin"
	StateInTransitDestination UnitState = "in_transit_destination"
	StateAvailableDestination UnitState = "available_destination"
	StateReserved             UnitState = "reserved"
	StateSold                 UnitState = "sold"
	StateExpired              UnitState = "expired"
	StateDamaged              UnitState = "damaged"
)

type Country string

const (
	CountryOrigin      Country = "origin"
	CountryDestination Country = "destination"
)

type MovementType string

const (
	MovementReceipt           MovementType = "receipt"
	MovementTransferDeparture MovementType = "transfer_departure"
	MovementTransferArrival   MovementType = "transfer_arrival"
	MovementReservation       MovementType = "reservation"
	MovementRelease           MovementType = "release"
	MovementSale              MovementType = "sale"
	MovementStateCorrection   MovementType = "state_correction"
	MovementExpiry            MovementType = "expiry"
	MovementDamage            MovementType = "damage"
)

// Movement is one entry in a unit's append-only history. Entries are never
// rewritten; every state transition appends exactly one.
type Movement struct {
	ID            string       `json:"id"`
	Type          MovementType `json:"type"`
	At            time.Time    `json:"at"`
	FromWarehouse string       `json:"from_warehouse,omitempty"`
	ToWarehouse   string       `json:"to_warehouse,omitempty"`
	Actor         string       `json:"actor,omitempty"`
	Note          string       `json:"note,omitempty"`
	RelatedDocID  string       `json:"related_doc_id,omitempty"`
}

// Unit is one physical, individually trackable inventory item. The unit
// ledger is the source of truth; everything else is derived from it.
type Unit struct {
	ID string

	ProductID   string
	ProductSKU  string // denormalized for filtering; may go stale on catalog rename
	ProductName string

	BatchCode  string
	ExpiryDate time.Time

	WarehouseID   string
	WarehouseName string
	Country       Country

	State UnitState

	UnitCost    decimal.Decimal
	FreightCost *decimal.Decimal
	// Exchange rate at purchase time and at payment time are both retained
	// for audit and must never be collapsed into one field.
	FxRatePurchase *decimal.Decimal
	FxRatePayment  *decimal.Decimal

	PurchaseOrderID     string
	PurchaseOrderNumber string
	ReceivedAt          time.Time

	SaleDocumentID     string
	SaleDocumentNumber string
	SoldAt             *time.Time
	SalePrice          *decimal.Decimal

	ReservedByDocID   string
	ReservedAt        *time.Time
	ReservationExpiry *time.Time

	Movements []Movement

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time

	Version int // optimistic locking
}

var legalTransitions = map[UnitState][]UnitState{
	StateReceivedOrigin:       {StateInTransitOrigin, StateInTransitDestination, StateReserved, StateExpired, StateDamaged},
	StateInTransitOrigin:      {StateReceivedOrigin, StateExpired, StateDamaged},
	StateInTransitDestination: {StateAvailableDestination, StateExpired, StateDamaged},
	StateAvailableDestination: {StateReserved, StateExpired, StateDamaged},
	StateReserved:             {StateSold, StateReceivedOrigin, StateAvailableDestination, StateExpired, StateDamaged},
	StateSold:                 {},
	StateExpired:              {},
	StateDamaged:              {},
}

func (s UnitState) Terminal() bool {
	return s == StateSold || s == StateExpired || s == StateDamaged
}

// AvailableState returns the state in which a unit in the given country is
// free to be reserved.
func AvailableState(c Country) UnitState {
	if c == CountryDestination {
		return StateAvailableDestination
	}
	return StateReceivedOrigin
}

// CanTransition reports whether from → to is a legal edge of the lifecycle.
func CanTransition(from, to UnitState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Available reports whether the unit is in the free-to-reserve state for its
// country.
func (u *Unit) Available() bool {
	return u.State == AvailableState(u.Country)
}

// ReservationExpired reports whether the unit carries a reservation whose
// validity window has passed. Expiry is enforced lazily by readers and by
// reconciliation, not by a timer.
func (u *Unit) ReservationExpired(now time.Time) bool {
	return u.State == StateReserved && u.ReservationExpiry != nil && u.ReservationExpiry.Before(now)
}

// LandedCost is the unit purchase cost plus freight. When the unit has no
// recorded freight yet, the caller's estimate is applied.
func (u *Unit) LandedCost(freightEstimate decimal.Decimal) decimal.Decimal {
	if u.FreightCost != nil {
		return u.UnitCost.Add(*u.FreightCost)
	}
	return u.UnitCost.Add(freightEstimate)
}

// Transition moves the unit to next, appending the movement to its history.
// It returns an error if the edge is illegal; the unit is unchanged in that
// case. Linkage fields (reservation, sale) are the caller's responsibility.
func (u *Unit) Transition(next UnitState, m Movement) error {
	if !CanTransition(u.State, next) {
		return fmt.Errorf("%w: %s -> %s (unit %s)", ErrInvalidTransition, u.State, next, u.ID)
	}
	u.State = next
	u.Movements = append(u.Movements, m)
	u.UpdatedAt = m.At
	if m.Actor != "" {
		u.UpdatedBy = m.Actor
	}
	return nil
}

// CorrectState force-sets the state outside the legal-transition table. Only
// reconciliation repair may use it; the movement still lands in the history
// so the correction leaves an audit trail.
func (u *Unit) CorrectState(next UnitState, m Movement) {
	u.State = next
	u.Movements = append(u.Movements, m)
	u.UpdatedAt = m.At
	if m.Actor != "" {
		u.UpdatedBy = m.Actor
	}
}

// ClearReservation drops reservation linkage after a release. State is not
// touched here.
func (u *Unit) ClearReservation() {
	u.ReservedByDocID = ""
	u.ReservedAt = nil
	u.ReservationExpiry = nil
}
