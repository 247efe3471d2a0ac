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

var ErrInvalidReceipt = errors.New("invalid receipt")

// ReceiptRequest describes one received purchase-order line: a batch of
// physical items sharing lot, cost and expiry.
type ReceiptRequest struct {
	ProductID           string           `json:"product_id"`
	Quantity            int              `json:"quantity"`
	BatchCode           string           `json:"batch_code"`
	ExpiryDate          time.Time        `json:"expiry_date"`
	WarehouseID         string           `json:"warehouse_id"`
	WarehouseName       string           `json:"warehouse_name"`
	Country             domain.Country   `json:"country"`
	UnitCost            decimal.Decimal  `json:"unit_cost"`
	FxRatePurchase      *decimal.Decimal `json:"fx_rate_purchase,omitempty"`
	PurchaseOrderID     string           `json:"purchase_order_id"`
	PurchaseOrderNumber string           `json:"purchase_order_number"`
	Actor               string           `json:"actor"`
}

// ReceiptService creates ledger units in bulk when a purchase order is
// received: one record per physical item.
type ReceiptService struct {
	ledger  port.LedgerRepository
	catalog port.ProductCatalog
	logger  *zap.Logger
}

func NewReceiptService(ledger port.LedgerRepository, catalog port.ProductCatalog, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{ledger: ledger, catalog: catalog, logger: logger}
}

func (s *ReceiptService) Receive(ctx context.Context, req ReceiptRequest) ([]domain.Unit, error) {
	if req.ProductID == "" || req.Quantity <= 0 || req.ExpiryDate.IsZero() || req.WarehouseID == "" {
		return nil, fmt.Errorf("%w: product, positive quantity, expiry and warehouse are required", ErrInvalidReceipt)
	}
	if req.Country == "" {
		req.Country = domain.CountryOrigin
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	now := time.Now().UTC()
	units := make([]domain.Unit, req.Quantity)
	for i := range units {
		units[i] = domain.Unit{
			ID:                  uuid.New().String(),
			ProductID:           product.ID,
			ProductSKU:          product.SKU,
			ProductName:         product.Name,
			BatchCode:           req.BatchCode,
			ExpiryDate:          req.ExpiryDate,
			WarehouseID:         req.WarehouseID,
			WarehouseName:       req.WarehouseName,
			Country:             req.Country,
			State:               domain.AvailableState(req.Country),
			UnitCost:            req.UnitCost,
			FxRatePurchase:      req.FxRatePurchase,
			PurchaseOrderID:     req.PurchaseOrderID,
			PurchaseOrderNumber: req.PurchaseOrderNumber,
			ReceivedAt:          now,
			Movements: []domain.Movement{{
				ID:           uuid.New().String(),
				Type:         domain.MovementReceipt,
				At:           now,
				ToWarehouse:  req.WarehouseID,
				Actor:        req.Actor,
				Note:         fmt.Sprintf("received from purchase order %s", req.PurchaseOrderNumber),
				RelatedDocID: req.PurchaseOrderID,
			}},
			CreatedBy: req.Actor,
			CreatedAt: now,
			UpdatedBy: req.Actor,
			UpdatedAt: now,
			Version:   1,
		}
	}

	if err := s.ledger.InsertUnits(ctx, units); err != nil {
		return nil, fmt.Errorf("insert units: %w", err)
	}
	s.logger.Info("received units",
		zap.String("product_id", product.ID),
		zap.String("batch_code", req.BatchCode),
		zap.Int("quantity", req.Quantity))
	return units, nil
}
