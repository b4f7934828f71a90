/**
 * @description
 * Persistence for linkage records, the per (provider, identity) onboarding documents.
 *
 * @notes
 * - external_account_id and external_secret are stored as ciphertext under the
 *   provider's key. Decryption failures are returned to the caller, never swallowed.
 * - CreateBase is an atomic insert-if-absent on UNIQUE(provider, identity).
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kash/onboarding-service/internal/crypto"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
)

// LinkageRepository stores linkage records.
type LinkageRepository struct {
	db   *DB
	keys *crypto.Keyring
}

// NewLinkageRepository constructs a linkage repository.
func NewLinkageRepository(db *DB, keys *crypto.Keyring) *LinkageRepository {
	return &LinkageRepository{db: db, keys: keys}
}

const linkageColumns = `identity, provider, external_account_id, external_contact_id, external_secret, ` +
	`kyc_reference, current_step, document_ids, details, created_at, updated_at`

func (r *LinkageRepository) scan(row pgx.Row) (*domain.Linkage, error) {
	var (
		l        domain.Linkage
		provider string
		step     string
		account  string
		secret   string
		details  []byte
	)
	if err := row.Scan(&l.Identity, &provider, &account, &l.ExternalContactID, &secret,
		&l.KycReference, &step, &l.DocumentIDs, &details, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	l.Provider = domain.Provider(provider)
	l.CurrentStep = domain.Step(step)

	c, err := r.keys.For(l.Provider)
	if err != nil {
		return nil, err
	}
	if l.ExternalAccountID, err = c.Decrypt(account); err != nil {
		return nil, fmt.Errorf("linkage %s/%s account id: %w", l.Provider, l.Identity, err)
	}
	if l.ExternalSecret, err = c.Decrypt(secret); err != nil {
		return nil, fmt.Errorf("linkage %s/%s secret: %w", l.Provider, l.Identity, err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &l.Details); err != nil {
			return nil, fmt.Errorf("linkage %s/%s details: %w", l.Provider, l.Identity, err)
		}
	}
	return &l, nil
}

func (r *LinkageRepository) getOne(ctx context.Context, q string, args ...any) (*domain.Linkage, error) {
	return r.scan(r.db.Pool.QueryRow(ctx, q, args...))
}

// GetByIdentity returns the record for (provider, identity) or errs.ErrNotFound.
func (r *LinkageRepository) GetByIdentity(ctx context.Context, provider domain.Provider, identity string) (*domain.Linkage, error) {
	q := `SELECT ` + linkageColumns + ` FROM linkage_records WHERE provider=$1 AND identity=$2`
	return r.getOne(ctx, q, string(provider), identity)
}

// GetByContactID looks a record up by its vendor contact id (Prime Trust contact, Solaris person).
func (r *LinkageRepository) GetByContactID(ctx context.Context, provider domain.Provider, contactID string) (*domain.Linkage, error) {
	q := `SELECT ` + linkageColumns + ` FROM linkage_records WHERE provider=$1 AND external_contact_id=$2 LIMIT 1`
	return r.getOne(ctx, q, string(provider), contactID)
}

// GetByKycReference looks a record up by its vendor KYC request id.
func (r *LinkageRepository) GetByKycReference(ctx context.Context, provider domain.Provider, ref string) (*domain.Linkage, error) {
	q := `SELECT ` + linkageColumns + ` FROM linkage_records WHERE provider=$1 AND kyc_reference=$2 LIMIT 1`
	return r.getOne(ctx, q, string(provider), ref)
}

// CreateBase inserts an empty record at step unless one already exists.
// created is false when an existing record was returned instead.
func (r *LinkageRepository) CreateBase(ctx context.Context, provider domain.Provider, identity string, step domain.Step) (l *domain.Linkage, created bool, err error) {
	q := `INSERT INTO linkage_records (identity, provider, current_step) VALUES ($1,$2,$3)
ON CONFLICT (provider, identity) DO NOTHING
RETURNING ` + linkageColumns
	l, err = r.getOne(ctx, q, identity, string(provider), string(step))
	switch {
	case err == nil:
		return l, true, nil
	case errors.Is(err, errs.ErrNotFound):
		l, err = r.GetByIdentity(ctx, provider, identity)
		if err != nil {
			return nil, false, err
		}
		return l, false, nil
	default:
		return nil, false, fmt.Errorf("create linkage %s/%s: %w", provider, identity, err)
	}
}

// Update writes every mutable column of l.
func (r *LinkageRepository) Update(ctx context.Context, l *domain.Linkage) error {
	c, err := r.keys.For(l.Provider)
	if err != nil {
		return err
	}
	account, err := c.Encrypt(l.ExternalAccountID)
	if err != nil {
		return err
	}
	secret, err := c.Encrypt(l.ExternalSecret)
	if err != nil {
		return err
	}
	details, err := json.Marshal(l.Details)
	if err != nil {
		return err
	}
	docs := l.DocumentIDs
	if docs == nil {
		docs = []string{}
	}

	const q = `UPDATE linkage_records SET external_account_id=$3, external_contact_id=$4, external_secret=$5,
kyc_reference=$6, current_step=$7, document_ids=$8, details=$9, updated_at=NOW()
WHERE provider=$1 AND identity=$2`
	tag, err := r.db.Pool.Exec(ctx, q, string(l.Provider), l.Identity, account, l.ExternalContactID, secret,
		l.KycReference, string(l.CurrentStep), docs, details)
	if err != nil {
		return fmt.Errorf("update linkage %s/%s: %w", l.Provider, l.Identity, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListByProvider returns every record for provider that already has a vendor account.
func (r *LinkageRepository) ListByProvider(ctx context.Context, provider domain.Provider) ([]domain.Linkage, error) {
	q := `SELECT ` + linkageColumns + ` FROM linkage_records WHERE provider=$1 AND external_account_id<>'' ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, string(provider))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Linkage
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// Delete removes the record for (provider, identity). Used by the reset tooling so a
// test identity can onboard again.
func (r *LinkageRepository) Delete(ctx context.Context, provider domain.Provider, identity string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM linkage_records WHERE provider=$1 AND identity=$2`, string(provider), identity)
	if err != nil {
		return fmt.Errorf("delete linkage %s/%s: %w", provider, identity, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
