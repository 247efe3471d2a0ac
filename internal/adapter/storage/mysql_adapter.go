package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pharmalink/stockcore/internal/core/domain"
	"github.com/pharmalink/stockcore/internal/port"
)

// MySQLAdapter is the unit ledger store. Concurrency control is a version
// column checked in every UPDATE: zero rows affected means another writer won
// and the caller gets domain.ErrVersionConflict.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

const unitColumns = `id, product_id, product_sku, product_name, batch_code, expiry_date,
	warehouse_id, warehouse_name, country, state,
	unit_cost, freight_cost, fx_rate_purchase, fx_rate_payment,
	purchase_order_id, purchase_order_number, received_at,
	sale_document_id, sale_document_number, sold_at, sale_price,
	reserved_by_doc_id, reserved_at, reservation_expiry,
	movements, created_by, created_at, updated_by, updated_at, version`

func (m *MySQLAdapter) GetUnit(ctx context.Context, id string) (*domain.Unit, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = ?`, id)

	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query unit: %w", err)
	}
	return u, nil
}

func (m *MySQLAdapter) ListUnits(ctx context.Context, f port.UnitFilter) ([]domain.Unit, error) {
	var conds []string
	var args []any
	if f.ProductID != "" {
		conds = append(conds, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.WarehouseID != "" {
		conds = append(conds, "warehouse_id = ?")
		args = append(args, f.WarehouseID)
	}
	if len(f.States) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.States)), ",")
		conds = append(conds, "state IN ("+placeholders+")")
		for _, st := range f.States {
			args = append(args, string(st))
		}
	}

	query := `SELECT ` + unitColumns + ` FROM units`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func (m *MySQLAdapter) InsertUnits(ctx context.Context, units []domain.Unit) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range units {
		movements, err := json.Marshal(u.Movements)
		if err != nil {
			return fmt.Errorf("marshal movements: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO units (`+unitColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.ProductID, u.ProductSKU, u.ProductName, u.BatchCode, u.ExpiryDate,
			u.WarehouseID, u.WarehouseName, string(u.Country), string(u.State),
			u.UnitCost, nullDecimal(u.FreightCost), nullDecimal(u.FxRatePurchase), nullDecimal(u.FxRatePayment),
			u.PurchaseOrderID, u.PurchaseOrderNumber, u.ReceivedAt,
			u.SaleDocumentID, u.SaleDocumentNumber, u.SoldAt, nullDecimal(u.SalePrice),
			u.ReservedByDocID, u.ReservedAt, u.ReservationExpiry,
			movements, u.CreatedBy, u.CreatedAt, u.UpdatedBy, u.UpdatedAt, u.Version,
		)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

func (m *MySQLAdapter) UpdateUnit(ctx context.Context, u domain.Unit) error {
	result, err := updateUnitExec(ctx, m.db, u)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// UpdateUnits applies every update in one transaction. A single version
// conflict rolls back the whole batch: no partial reservation commit.
func (m *MySQLAdapter) UpdateUnits(ctx context.Context, units []domain.Unit) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range units {
		result, err := updateUnitExec(ctx, tx, u)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.ErrVersionConflict
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateUnitExec(ctx context.Context, ex execer, u domain.Unit) (sql.Result, error) {
	movements, err := json.Marshal(u.Movements)
	if err != nil {
		return nil, fmt.Errorf("marshal movements: %w", err)
	}
	result, err := ex.ExecContext(ctx, `
		UPDATE units SET
			product_sku = ?, product_name = ?, warehouse_id = ?, warehouse_name = ?,
			country = ?, state = ?,
			freight_cost = ?, fx_rate_payment = ?,
			sale_document_id = ?, sale_document_number = ?, sold_at = ?, sale_price = ?,
			reserved_by_doc_id = ?, reserved_at = ?, reservation_expiry = ?,
			movements = ?, updated_by = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		u.ProductSKU, u.ProductName, u.WarehouseID, u.WarehouseName,
		string(u.Country), string(u.State),
		nullDecimal(u.FreightCost), nullDecimal(u.FxRatePayment),
		u.SaleDocumentID, u.SaleDocumentNumber, u.SoldAt, nullDecimal(u.SalePrice),
		u.ReservedByDocID, u.ReservedAt, u.ReservationExpiry,
		movements, u.UpdatedBy, u.UpdatedAt,
		u.ID, u.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update unit %s: %w", u.ID, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*domain.Unit, error) {
	var u domain.Unit
	var country, state string
	var freight, fxPurchase, fxPayment, salePrice decimal.NullDecimal
	var soldAt, reservedAt, reservationExpiry sql.NullTime
	var movements []byte

	err := row.Scan(
		&u.ID, &u.ProductID, &u.ProductSKU, &u.ProductName, &u.BatchCode, &u.ExpiryDate,
		&u.WarehouseID, &u.WarehouseName, &country, &state,
		&u.UnitCost, &freight, &fxPurchase, &fxPayment,
		&u.PurchaseOrderID, &u.PurchaseOrderNumber, &u.ReceivedAt,
		&u.SaleDocumentID, &u.SaleDocumentNumber, &soldAt, &salePrice,
		&u.ReservedByDocID, &reservedAt, &reservationExpiry,
		&movements, &u.CreatedBy, &u.CreatedAt, &u.UpdatedBy, &u.UpdatedAt, &u.Version,
	)
	if err != nil {
		return nil, err
	}

	u.Country = domain.Country(country)
	u.State = domain.UnitState(state)
	u.FreightCost = fromNullDecimal(freight)
	u.FxRatePurchase = fromNullDecimal(fxPurchase)
	u.FxRatePayment = fromNullDecimal(fxPayment)
	u.SalePrice = fromNullDecimal(salePrice)
	if soldAt.Valid {
		u.SoldAt = &soldAt.Time
	}
	if reservedAt.Valid {
		u.ReservedAt = &reservedAt.Time
	}
	if reservationExpiry.Valid {
		u.ReservationExpiry = &reservationExpiry.Time
	}
	if len(movements) > 0 {
		if err := json.Unmarshal(movements, &u.Movements); err != nil {
			return nil, fmt.Errorf("unmarshal movements: %w", err)
		}
	}
	return &u, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
