package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
)

// UserRepository reads the user directory maintained by the auth system.
type UserRepository struct{ db *DB }

// NewUserRepository constructs a user repository.
func NewUserRepository(db *DB) *UserRepository { return &UserRepository{db: db} }

const userColumns = `identity, email, username, referral_code, ethereum_wallet_address, blocked, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.Identity, &u.Email, &u.Username, &u.ReferralCode,
		&u.EthereumWalletAddress, &u.Blocked, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByIdentity returns the user or errs.ErrNotFound.
func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE identity=$1`
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, identity))
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("get user %s: %w", identity, err)
	}
	return u, err
}

// GetByReferralCode returns the user owning code or errs.ErrNotFound.
func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE referral_code=$1 LIMIT 1`
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, code))
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("get user by referral code: %w", err)
	}
	return u, err
}

// ListActive returns every user that is not blocked.
func (r *UserRepository) ListActive(ctx context.Context) ([]domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE blocked=false ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
