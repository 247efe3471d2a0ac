package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/core/service"
)

type HTTPHandler struct {
	fefo         *service.FEFOService
	availability *service.AvailabilityService
	reservations *service.ReservationService
	aggregation  *service.AggregationService
	receipts     *service.ReceiptService
	recon        *service.ReconciliationService
}

func NewHTTPHandler(fefo *service.FEFOService, availability *service.AvailabilityService,
	reservations *service.ReservationService, aggregation *service.AggregationService,
	receipts *service.ReceiptService, recon *service.ReconciliationService) *HTTPHandler {
	return &HTTPHandler{
		fefo:         fefo,
		availability: availability,
		reservations: reservations,
		aggregation:  aggregation,
		receipts:     receipts,
		recon:        recon,
	}
}

// Register mounts every engine operation on the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/availability/resolve", h.ResolveAvailability)
	mux.HandleFunc("/api/fefo", h.SelectFEFO)
	mux.HandleFunc("/api/reservations", h.ReserveUnits)
	mux.HandleFunc("/api/reservations/release", h.ReleaseUnits)
	mux.HandleFunc("/api/receipts", h.ReceiveUnits)
	mux.HandleFunc("/api/rollups/rebuild", h.RebuildAggregates)
	mux.HandleFunc("/api/reconcile/orphaned-reservations", h.ReconcileOrphanedReservations)
	mux.HandleFunc("/api/reconcile/state-mismatches", h.ReconcileStateMismatches)
	mux.HandleFunc("/api/reconcile/stock-counters", h.ReconcileStockCounters)
}

type ResolveRequest struct {
	Requests []service.AvailabilityRequest `json:"requests"`
	Options  service.ResolveOptions        `json:"options"`
}

func (h *HTTPHandler) ResolveAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "at least one product request is required")
		return
	}
	for _, pr := range req.Requests {
		if pr.ProductID == "" || pr.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "product_id and positive quantity are required")
			return
		}
	}

	result, err := h.availability.Resolve(r.Context(), req.Requests, req.Options)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) SelectFEFO(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	productID := r.URL.Query().Get("product_id")
	quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	warehouseID := r.URL.Query().Get("warehouse_id")
	if productID == "" || quantity <= 0 {
		writeError(w, http.StatusBadRequest, "product_id and positive quantity are required")
		return
	}

	units, err := h.fefo.Select(r.Context(), productID, quantity, warehouseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"units":     units,
		"requested": quantity,
		"selected":  len(units),
	})
}

type ReserveRequest struct {
	Allocations   []service.ProductAllocation `json:"allocations"`
	ValidityHours int                         `json:"validity_hours"`
	Document      service.DocumentRef         `json:"document"`
}

func (h *HTTPHandler) ReserveUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Allocations) == 0 || req.ValidityHours <= 0 || req.Document.ID == "" {
		writeError(w, http.StatusBadRequest, "allocations, validity_hours and document are required")
		return
	}

	results, err := h.reservations.Reserve(r.Context(), req.Allocations, req.ValidityHours, req.Document)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReservationConflict):
			writeError(w, http.StatusConflict, "concurrent reservation conflict, retry")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type ReleaseRequest struct {
	UnitIDs []string `json:"unit_ids"`
	Reason  string   `json:"reason"`
}

func (h *HTTPHandler) ReleaseUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.UnitIDs) == 0 || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "unit_ids and reason are required")
		return
	}

	report, err := h.reservations.Release(r.Context(), req.UnitIDs, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) ReceiveUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	units, err := h.receipts.Receive(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReceipt):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrProductNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": len(units), "unit_ids": ids})
}

func (h *HTTPHandler) RebuildAggregates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	productID := r.URL.Query().Get("product_id")
	warehouseID := r.URL.Query().Get("warehouse_id")

	rollups, err := h.aggregation.Rebuild(r.Context(), productID, warehouseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rollups": rollups})
}

func (h *HTTPHandler) ReconcileOrphanedReservations(w http.ResponseWriter, r *http.Request) {
	h.runReconciliation(w, r, h.recon.OrphanedReservations)
}

func (h *HTTPHandler) ReconcileStateMismatches(w http.ResponseWriter, r *http.Request) {
	h.runReconciliation(w, r, h.recon.StateMismatches)
}

func (h *HTTPHandler) ReconcileStockCounters(w http.ResponseWriter, r *http.Request) {
	h.runReconciliation(w, r, h.recon.StockCounters)
}

func (h *HTTPHandler) runReconciliation(w http.ResponseWriter, r *http.Request,
	job func(ctx context.Context) (*service.ReconcileReport, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := job(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
