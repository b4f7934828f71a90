package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var kreditsCols = []string{"identity", "kredits", "total_kredits", "deposit_kredits", "refer_kredits",
	"tier", "referrer", "referral_pending", "wallet_address", "referral_code", "tier_expires_at", "updated_at"}

func TestKreditsRepo_Get_ParsesDecimals(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKreditsRepository(db)
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(`FROM kredits_accounts WHERE identity=\$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(kreditsCols).
			AddRow("u1", "12.5", "100", "50", "0", "GOLD", "ref", true, "0xabc", "code1", &exp, time.Now()))

	a, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, a.Kredits.Equal(decimal.RequireFromString("12.5")))
	require.True(t, a.TotalKredits.Equal(decimal.NewFromInt(100)))
	require.Equal(t, domain.TierGold, a.Tier)
	require.True(t, a.ReferralPending)
	require.NotNil(t, a.TierExpiresAt)
}

func TestKreditsRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKreditsRepository(db)

	mock.ExpectQuery(`FROM kredits_accounts`).WithArgs("u1").WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(context.Background(), "u1")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKreditsRepo_Create_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKreditsRepository(db)

	mock.ExpectExec(`INSERT INTO kredits_accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := r.Create(context.Background(), &domain.KreditsAccount{Identity: "u1", Tier: domain.TierBlue})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestKreditsRepo_InTx_Commit(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKreditsRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO kredits_logs`).
		WithArgs("u1", "DEPOSIT", "aUST", "100", "50", "0xabc").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := r.InTx(context.Background(), func(tx KreditsTx) error {
		return tx.InsertLog(context.Background(), domain.KreditsLog{
			Identity: "u1", TxType: domain.TxDeposit, Denom: domain.DenomAUST,
			Amount: decimal.NewFromInt(100), Kredits: decimal.NewFromInt(50), WalletAddress: "0xabc",
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKreditsRepo_InTx_RollbackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKreditsRepository(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := r.InTx(context.Background(), func(tx KreditsTx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKreditsRepo_ListLogs(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKreditsRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM kredits_logs WHERE identity=\$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"identity", "tx_type", "denom", "amount", "kredits", "wallet_address", "created_at"}).
			AddRow("u1", "WITHDRAW", "UST", "100", "10", "0x1", now).
			AddRow("u1", "DEPOSIT", "aUST", "100", "50", "0x1", now.Add(-time.Hour)))

	logs, err := r.ListLogs(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, domain.TxWithdraw, logs[0].TxType)
	require.True(t, logs[1].Kredits.Equal(decimal.NewFromInt(50)))
}
