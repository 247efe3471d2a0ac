package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

type ReconcileDetail struct {
	Key    string `json:"key"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Error  string `json:"error,omitempty"`
}

type ReconcileReport struct {
	Job        string            `json:"job"`
	Examined   int               `json:"examined"`
	Corrected  int               `json:"corrected"`
	Failed     int               `json:"failed"`
	Details    []ReconcileDetail `json:"details"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ReconciliationService runs the idempotent drift-repair scans. Every scan is
// safe to re-run: a second pass over an unchanged ledger corrects nothing.
// Scans never abort on a record failure; failures are collected into the
// report and the scan proceeds.
type ReconciliationService struct {
	ledger    port.LedgerRepository
	docs      port.DocumentRegistry
	transfers port.TransferTracker
	agg       *AggregationService
	cache     port.RollupCache
	logger    *zap.Logger

	batchSize int
}

func NewReconciliationService(ledger port.LedgerRepository, docs port.DocumentRegistry,
	transfers port.TransferTracker, agg *AggregationService, cache port.RollupCache,
	batchSize int, logger *zap.Logger) *ReconciliationService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ReconciliationService{
		ledger:    ledger,
		docs:      docs,
		transfers: transfers,
		agg:       agg,
		cache:     cache,
		logger:    logger,
		batchSize: batchSize,
	}
}

// OrphanedReservations releases every reserved unit whose referencing
// document is gone, was never recorded, or whose validity window has lapsed.
func (s *ReconciliationService) OrphanedReservations(ctx context.Context) (*ReconcileReport, error) {
	report := newReport("orphaned_reservations")
	defer finishReport(report, s.logger)

	units, err := s.ledger.ListUnits(ctx, port.UnitFilter{States: []domain.UnitState{domain.StateReserved}})
	if err != nil {
		return nil, fmt.Errorf("list reserved units: %w", err)
	}

	now := time.Now().UTC()
	var pending []domain.Unit
	var pendingDetails []ReconcileDetail
	for _, u := range units {
		report.Examined++

		reason, orphaned, err := s.orphanReason(ctx, u, now)
		if err != nil {
			report.fail(u.ID, err)
			continue
		}
		if !orphaned {
			continue
		}

		before := fmt.Sprintf("state=%s doc=%s", u.State, u.ReservedByDocID)
		u.CorrectState(domain.AvailableState(u.Country), domain.Movement{
			ID:           uuid.New().String(),
			Type:         domain.MovementRelease,
			At:           now,
			ToWarehouse:  u.WarehouseID,
			Actor:        "reconciliation",
			Note:         reason,
			RelatedDocID: u.ReservedByDocID,
		})
		u.ClearReservation()

		pending = append(pending, u)
		pendingDetails = append(pendingDetails, ReconcileDetail{
			Key:    u.ID,
			Before: before,
			After:  fmt.Sprintf("state=%s", u.State),
		})
		if len(pending) >= s.batchSize {
			s.flushUnits(ctx, pending, pendingDetails, report)
			pending = pending[:0]
			pendingDetails = pendingDetails[:0]
		}
	}
	s.flushUnits(ctx, pending, pendingDetails, report)
	return report, nil
}

func (s *ReconciliationService) orphanReason(ctx context.Context, u domain.Unit, now time.Time) (string, bool, error) {
	if u.ReservedByDocID == "" {
		return "reservation without document reference", true, nil
	}
	exists, err := s.docs.DocumentExists(ctx, u.ReservedByDocID)
	if err != nil {
		return "", false, fmt.Errorf("document lookup %s: %w", u.ReservedByDocID, err)
	}
	if !exists {
		return "referenced document missing", true, nil
	}
	if u.ReservationExpired(now) {
		return "reservation validity expired", true, nil
	}
	return "", false, nil
}

// StateMismatches corrects units whose country and state combination is
// illegal, skipping units that are part of an active transfer.
func (s *ReconciliationService) StateMismatches(ctx context.Context) (*ReconcileReport, error) {
	report := newReport("state_mismatches")
	defer finishReport(report, s.logger)

	units, err := s.ledger.ListUnits(ctx, port.UnitFilter{})
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	now := time.Now().UTC()
	var pending []domain.Unit
	var pendingDetails []ReconcileDetail
	for _, u := range units {
		if u.State.Terminal() {
			continue
		}
		report.Examined++
		if stateLegalForCountry(u.Country, u.State) {
			continue
		}

		active, err := s.transfers.InActiveTransfer(ctx, u.ID)
		if err != nil {
			report.fail(u.ID, fmt.Errorf("transfer lookup: %w", err))
			continue
		}
		if active {
			continue
		}

		before := fmt.Sprintf("country=%s state=%s", u.Country, u.State)
		u.CorrectState(domain.AvailableState(u.Country), domain.Movement{
			ID:    uuid.New().String(),
			Type:  domain.MovementStateCorrection,
			At:    now,
			Actor: "reconciliation",
			Note:  fmt.Sprintf("state %s illegal for %s country", u.State, u.Country),
		})

		pending = append(pending, u)
		pendingDetails = append(pendingDetails, ReconcileDetail{
			Key:    u.ID,
			Before: before,
			After:  fmt.Sprintf("country=%s state=%s", u.Country, u.State),
		})
		if len(pending) >= s.batchSize {
			s.flushUnits(ctx, pending, pendingDetails, report)
			pending = pending[:0]
			pendingDetails = pendingDetails[:0]
		}
	}
	s.flushUnits(ctx, pending, pendingDetails, report)
	return report, nil
}

// stateLegalForCountry mirrors the lifecycle's country constraint: origin
// states never apply to destination-country units and vice versa. Reserved
// units and in-transit-to-destination units are legal in either country.
func stateLegalForCountry(c domain.Country, st domain.UnitState) bool {
	switch st {
	case domain.StateReserved, domain.StateInTransitDestination:
		return true
	case domain.StateReceivedOrigin, domain.StateInTransitOrigin:
		return c == domain.CountryOrigin
	case domain.StateAvailableDestination:
		return c == domain.CountryDestination
	}
	return true
}

// StockCounters recomputes every cached roll-up from the ledger and
// overwrites only the fields that drifted.
func (s *ReconciliationService) StockCounters(ctx context.Context) (*ReconcileReport, error) {
	report := newReport("stock_counters")
	defer finishReport(report, s.logger)

	rollups, err := s.agg.Compute(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("compute rollups: %w", err)
	}

	for _, r := range rollups {
		report.Examined++
		changed, err := s.cache.SyncRollup(ctx, r)
		if err != nil {
			report.fail(r.ProductID+"/"+r.WarehouseID, err)
			continue
		}
		if len(changed) == 0 {
			continue
		}
		report.Corrected++
		report.Details = append(report.Details, ReconcileDetail{
			Key:   r.ProductID + "/" + r.WarehouseID,
			After: fmt.Sprintf("resynced fields: %v", changed),
		})
	}
	return report, nil
}

// flushUnits writes a batch of corrected units. The batch path is tried
// first; on any failure it degrades to per-unit writes so one bad record
// cannot sink the rest. A unit's corrected detail row is recorded only once
// its write actually lands; failed writes get an error row instead.
func (s *ReconciliationService) flushUnits(ctx context.Context, units []domain.Unit, details []ReconcileDetail, report *ReconcileReport) {
	if len(units) == 0 {
		return
	}
	if err := s.ledger.UpdateUnits(ctx, units); err == nil {
		report.Corrected += len(units)
		report.Details = append(report.Details, details...)
		return
	}
	for i, u := range units {
		if err := s.ledger.UpdateUnit(ctx, u); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				// someone else moved the unit since our scan read; the next
				// run will pick it up if it still drifts
				s.logger.Debug("skipping unit changed mid-scan", zap.String("unit_id", u.ID))
			}
			report.fail(u.ID, err)
			continue
		}
		report.Corrected++
		report.Details = append(report.Details, details[i])
	}
}

func newReport(job string) *ReconcileReport {
	return &ReconcileReport{Job: job, StartedAt: time.Now().UTC()}
}

func finishReport(r *ReconcileReport, logger *zap.Logger) {
	r.FinishedAt = time.Now().UTC()
	logger.Info("reconciliation scan finished",
		zap.String("job", r.Job),
		zap.Int("examined", r.Examined),
		zap.Int("corrected", r.Corrected),
		zap.Int("failed", r.Failed))
}

func (r *ReconcileReport) fail(key string, err error) {
	r.Failed++
	r.Details = append(r.Details, ReconcileDetail{Key: key, Error: err.Error()})
}
