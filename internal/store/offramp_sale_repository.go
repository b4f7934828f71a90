package store

import (
	"context"
	"fmt"
)

// OffRampSaleRepository records which cleared asset transfers were already sold.
type OffRampSaleRepository struct{ db *DB }

// NewOffRampSaleRepository constructs an off-ramp sale repository.
func NewOffRampSaleRepository(db *DB) *OffRampSaleRepository { return &OffRampSaleRepository{db: db} }

// Claim reserves transferID for a sell. claimed is false when another delivery of the
// same notification got there first.
func (r *OffRampSaleRepository) Claim(ctx context.Context, transferID, accountID string) (claimed bool, err error) {
	const q = `INSERT INTO offramp_sales (transfer_id, account_id) VALUES ($1,$2)
ON CONFLICT (transfer_id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, transferID, accountID)
	if err != nil {
		return false, fmt.Errorf("claim offramp sale %s: %w", transferID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete stores the executed quote for a claimed transfer.
func (r *OffRampSaleRepository) Complete(ctx context.Context, transferID, quoteID string) error {
	const q = `UPDATE offramp_sales SET quote_id=$2, updated_at=NOW() WHERE transfer_id=$1`
	if _, err := r.db.Pool.Exec(ctx, q, transferID, quoteID); err != nil {
		return fmt.Errorf("complete offramp sale %s: %w", transferID, err)
	}
	return nil
}

// Release drops an unfinished claim so a redelivered notification can retry the sell.
func (r *OffRampSaleRepository) Release(ctx context.Context, transferID string) error {
	const q = `DELETE FROM offramp_sales WHERE transfer_id=$1 AND quote_id=''`
	if _, err := r.db.Pool.Exec(ctx, q, transferID); err != nil {
		return fmt.Errorf("release offramp sale %s: %w", transferID, err)
	}
	return nil
}
