package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kash/onboarding-service/internal/crypto"
	"github.com/kash/onboarding-service/internal/domain"
)

// SnapshotRepository stores encrypted balance snapshots.
type SnapshotRepository struct {
	db     *DB
	cipher *crypto.Cipher
}

// NewSnapshotRepository constructs a snapshot repository. cipher seals the balances blob.
func NewSnapshotRepository(db *DB, cipher *crypto.Cipher) *SnapshotRepository {
	return &SnapshotRepository{db: db, cipher: cipher}
}

// Insert appends one snapshot.
func (r *SnapshotRepository) Insert(ctx context.Context, identity string, balances []domain.Balance) error {
	if balances == nil {
		balances = []domain.Balance{}
	}
	raw, err := json.Marshal(balances)
	if err != nil {
		return err
	}
	enc, err := r.cipher.Encrypt(string(raw))
	if err != nil {
		return err
	}
	const q = `INSERT INTO balance_snapshots (identity, balances_enc) VALUES ($1,$2)`
	if _, err := r.db.Pool.Exec(ctx, q, identity, enc); err != nil {
		return fmt.Errorf("insert balance snapshot %s: %w", identity, err)
	}
	return nil
}

// FirstPerDay returns the earliest snapshot of each day in [from, to], ascending.
func (r *SnapshotRepository) FirstPerDay(ctx context.Context, identity string, from, to time.Time) ([]domain.BalanceSnapshot, error) {
	const q = `
SELECT DISTINCT ON (date_trunc('day', created_at)) balances_enc, created_at
FROM balance_snapshots
WHERE identity=$1 AND created_at BETWEEN $2 AND $3
ORDER BY date_trunc('day', created_at) ASC, created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, identity, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BalanceSnapshot
	for rows.Next() {
		var (
			enc string
			ts  time.Time
		)
		if err := rows.Scan(&enc, &ts); err != nil {
			return nil, err
		}
		plain, err := r.cipher.Decrypt(enc)
		if err != nil {
			return nil, fmt.Errorf("balance snapshot %s at %s: %w", identity, ts.Format(time.RFC3339), err)
		}
		var balances []domain.Balance
		if err := json.Unmarshal([]byte(plain), &balances); err != nil {
			return nil, err
		}
		out = append(out, domain.BalanceSnapshot{Identity: identity, Balances: balances, CreatedAt: ts})
	}
	return out, rows.Err()
}
