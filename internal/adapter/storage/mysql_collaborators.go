package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

// CollaboratorAdapter reads the collaborator tables owned by the embedding
// application: product catalog, commercial documents and transfers. The
// engine only consumes these; it never writes them.
type CollaboratorAdapter struct {
	db *sql.DB
}

func NewCollaboratorAdapter(db *sql.DB) *CollaboratorAdapter {
	return &CollaboratorAdapter{db: db}
}

func (c *CollaboratorAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, sku, brand, name, min_stock, max_stock
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.SKU, &p.Brand, &p.Name, &p.MinStock, &p.MaxStock)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (c *CollaboratorAdapter) DocumentExists(ctx context.Context, docID string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM commercial_documents WHERE id = ? AND deleted_at IS NULL)`,
		docID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query document: %w", err)
	}
	return exists, nil
}

func (c *CollaboratorAdapter) InActiveTransfer(ctx context.Context, unitID string) (bool, error) {
	var active bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM transfer_units tu
			JOIN transfers t ON t.id = tu.transfer_id
			WHERE tu.unit_id = ? AND t.status IN ('pending', 'in_progress')
		)`, unitID,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("query transfer: %w", err)
	}
	return active, nil
}

func (c *CollaboratorAdapter) NextDeparture(ctx context.Context, warehouseID string) (*time.Time, error) {
	var departure sql.NullTime
	err := c.db.QueryRowContext(ctx, `
		SELECT MIN(departure_at) FROM transfers
		WHERE origin_warehouse_id = ? AND status = 'scheduled' AND departure_at > NOW()`,
		warehouseID,
	).Scan(&departure)
	if err != nil {
		return nil, fmt.Errorf("query departures: %w", err)
	}
	if !departure.Valid {
		return nil, nil
	}
	return &departure.Time, nil
}
