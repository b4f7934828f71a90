/**
 * @description
 * Kredits ledger persistence: one running account row per identity plus an append-only
 * log. Multi-row mutations run through InTx so an account update and its log entries
 * commit together.
 *
 * @notes
 * - Numeric columns cross the wire as text and are parsed with shopspring/decimal to
 *   avoid float rounding.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/shopspring/decimal"
)

// KreditsTx is the transactional view of the ledger.
type KreditsTx interface {
	GetForUpdate(ctx context.Context, identity string) (*domain.KreditsAccount, error)
	GetByReferralCodeForUpdate(ctx context.Context, code string) (*domain.KreditsAccount, error)
	Save(ctx context.Context, a *domain.KreditsAccount) error
	InsertLog(ctx context.Context, entry domain.KreditsLog) error
}

// KreditsRepository stores kredits accounts and logs.
type KreditsRepository struct{ db *DB }

// NewKreditsRepository constructs a kredits repository.
func NewKreditsRepository(db *DB) *KreditsRepository { return &KreditsRepository{db: db} }

const kreditsColumns = `identity, kredits::text, total_kredits::text, deposit_kredits::text, refer_kredits::text, ` +
	`tier, referrer, referral_pending, wallet_address, referral_code, tier_expires_at, updated_at`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanKredits(row pgx.Row) (*domain.KreditsAccount, error) {
	var (
		a                            domain.KreditsAccount
		kredits, total, deposit, ref string
		tier                         string
	)
	if err := row.Scan(&a.Identity, &kredits, &total, &deposit, &ref, &tier, &a.Referrer,
		&a.ReferralPending, &a.WalletAddress, &a.ReferralCode, &a.TierExpiresAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	a.Tier = domain.Tier(tier)
	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&a.Kredits, kredits}, {&a.TotalKredits, total}, {&a.DepositKredits, deposit}, {&a.ReferKredits, ref}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("kredits %s: %w", a.Identity, err)
		}
	}
	return &a, nil
}

// Get returns the account or errs.ErrNotFound.
func (r *KreditsRepository) Get(ctx context.Context, identity string) (*domain.KreditsAccount, error) {
	q := `SELECT ` + kreditsColumns + ` FROM kredits_accounts WHERE identity=$1`
	return scanKredits(r.db.Pool.QueryRow(ctx, q, identity))
}

// Create inserts a new account. It returns errs.ErrAlreadyExists when one is present.
func (r *KreditsRepository) Create(ctx context.Context, a *domain.KreditsAccount) error {
	const q = `INSERT INTO kredits_accounts
(identity, kredits, total_kredits, deposit_kredits, refer_kredits, tier, referrer, referral_pending, wallet_address, referral_code)
VALUES ($1,$2::numeric,$3::numeric,$4::numeric,$5::numeric,$6,$7,$8,$9,$10)`
	_, err := r.db.Pool.Exec(ctx, q, a.Identity, a.Kredits.String(), a.TotalKredits.String(),
		a.DepositKredits.String(), a.ReferKredits.String(), string(a.Tier), a.Referrer,
		a.ReferralPending, a.WalletAddress, a.ReferralCode)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return fmt.Errorf("create kredits %s: %w", a.Identity, err)
	}
	return nil
}

// ListLogs returns the identity's log, newest first.
func (r *KreditsRepository) ListLogs(ctx context.Context, identity string) ([]domain.KreditsLog, error) {
	const q = `
SELECT identity, tx_type, denom, amount::text, kredits::text, wallet_address, created_at
FROM kredits_logs WHERE identity=$1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.KreditsLog{}
	for rows.Next() {
		var (
			e               domain.KreditsLog
			txType          string
			amount, kredits string
		)
		if err := rows.Scan(&e.Identity, &txType, &e.Denom, &amount, &kredits, &e.WalletAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TxType = domain.TxType(txType)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.Kredits, err = decimal.NewFromString(kredits); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InTx runs fn with a transactional ledger view.
func (r *KreditsRepository) InTx(ctx context.Context, fn func(tx KreditsTx) error) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&kreditsTx{q: tx})
	})
}

type kreditsTx struct{ q querier }

func (t *kreditsTx) GetForUpdate(ctx context.Context, identity string) (*domain.KreditsAccount, error) {
	q := `SELECT ` + kreditsColumns + ` FROM kredits_accounts WHERE identity=$1 FOR UPDATE`
	return scanKredits(t.q.QueryRow(ctx, q, identity))
}

func (t *kreditsTx) GetByReferralCodeForUpdate(ctx context.Context, code string) (*domain.KreditsAccount, error) {
	q := `SELECT ` + kreditsColumns + ` FROM kredits_accounts WHERE referral_code=$1 LIMIT 1 FOR UPDATE`
	return scanKredits(t.q.QueryRow(ctx, q, code))
}

// Save upserts every mutable column of a.
func (t *kreditsTx) Save(ctx context.Context, a *domain.KreditsAccount) error {
	const q = `INSERT INTO kredits_accounts
(identity, kredits, total_kredits, deposit_kredits, refer_kredits, tier, referrer, referral_pending, wallet_address, referral_code, tier_expires_at, updated_at)
VALUES ($1,$2::numeric,$3::numeric,$4::numeric,$5::numeric,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (identity) DO UPDATE SET
kredits=EXCLUDED.kredits, total_kredits=EXCLUDED.total_kredits, deposit_kredits=EXCLUDED.deposit_kredits,
refer_kredits=EXCLUDED.refer_kredits, tier=EXCLUDED.tier, referral_pending=EXCLUDED.referral_pending,
tier_expires_at=EXCLUDED.tier_expires_at, updated_at=EXCLUDED.updated_at`
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	_, err := t.q.Exec(ctx, q, a.Identity, a.Kredits.String(), a.TotalKredits.String(),
		a.DepositKredits.String(), a.ReferKredits.String(), string(a.Tier), a.Referrer,
		a.ReferralPending, a.WalletAddress, a.ReferralCode, a.TierExpiresAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save kredits %s: %w", a.Identity, err)
	}
	return nil
}

func (t *kreditsTx) InsertLog(ctx context.Context, e domain.KreditsLog) error {
	const q = `INSERT INTO kredits_logs (identity, tx_type, denom, amount, kredits, wallet_address)
VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6)`
	_, err := t.q.Exec(ctx, q, e.Identity, string(e.TxType), e.Denom, e.Amount.String(), e.Kredits.String(), e.WalletAddress)
	if err != nil {
		return fmt.Errorf("insert kredits log %s: %w", e.Identity, err)
	}
	return nil
}
