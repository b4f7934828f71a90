package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memLedger commits a transaction's changes only when fn succeeds.
type memLedger struct {
	mu       sync.Mutex
	accounts map[string]domain.KreditsAccount
	logs     []domain.KreditsLog
}

func newMemLedger() *memLedger { return &memLedger{accounts: map[string]domain.KreditsAccount{}} }

func (l *memLedger) Get(ctx context.Context, identity string) (*domain.KreditsAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[identity]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (l *memLedger) Create(ctx context.Context, a *domain.KreditsAccount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[a.Identity]; ok {
		return errs.ErrAlreadyExists
	}
	l.accounts[a.Identity] = *a
	return nil
}

func (l *memLedger) ListLogs(ctx context.Context, identity string) ([]domain.KreditsLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.KreditsLog
	for i := len(l.logs) - 1; i >= 0; i-- {
		if l.logs[i].Identity == identity {
			out = append(out, l.logs[i])
		}
	}
	return out, nil
}

func (l *memLedger) InTx(ctx context.Context, fn func(tx store.KreditsTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := &memLedgerTx{accounts: map[string]domain.KreditsAccount{}, base: l.accounts}
	if err := fn(tx); err != nil {
		return err
	}
	for id, a := range tx.accounts {
		l.accounts[id] = a
	}
	l.logs = append(l.logs, tx.logs...)
	return nil
}

type memLedgerTx struct {
	base     map[string]domain.KreditsAccount
	accounts map[string]domain.KreditsAccount
	logs     []domain.KreditsLog
}

func (t *memLedgerTx) GetForUpdate(ctx context.Context, identity string) (*domain.KreditsAccount, error) {
	if a, ok := t.accounts[identity]; ok {
		return &a, nil
	}
	a, ok := t.base[identity]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (t *memLedgerTx) GetByReferralCodeForUpdate(ctx context.Context, code string) (*domain.KreditsAccount, error) {
	for id, a := range t.base {
		if a.ReferralCode == code {
			return t.GetForUpdate(ctx, id)
		}
	}
	return nil, errs.ErrNotFound
}

func (t *memLedgerTx) Save(ctx context.Context, a *domain.KreditsAccount) error {
	t.accounts[a.Identity] = *a
	return nil
}

func (t *memLedgerTx) InsertLog(ctx context.Context, e domain.KreditsLog) error {
	t.logs = append(t.logs, e)
	return nil
}

var kreditsNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newKreditsFixture() (*KreditsService, *memLedger, *recPublisher) {
	users := userStub{
		"alice":   {Identity: "alice", Username: "alice_u", Email: "alice@example.com", ReferralCode: "ALICE1"},
		"bob":     {Identity: "bob", Username: "bob_u", ReferralCode: "BOB1"},
		"mallory": {Identity: "mallory", Blocked: true},
	}
	ledger := newMemLedger()
	pub := &recPublisher{}
	svc := NewKreditsService(ledger, users, pub, zap.NewNop())
	svc.now = func() time.Time { return kreditsNow }
	return svc, ledger, pub
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTierFor(t *testing.T) {
	cases := []struct {
		total string
		want  domain.Tier
	}{
		{"0", domain.TierBlue},
		{"5000", domain.TierBlue},
		{"5000.5", domain.TierGold},
		{"10000", domain.TierGold},
		{"20000", domain.TierEmerald},
		{"20001", domain.TierDiamond},
		{"75000", domain.TierDiamond},
	}
	for _, tc := range cases {
		t.Run(tc.total, func(t *testing.T) {
			assert.Equal(t, tc.want, TierFor(dec(tc.total)))
		})
	}
}

func TestKredits_CreateAndGet(t *testing.T) {
	svc, ledger, _ := newKreditsFixture()
	ctx := context.Background()

	view, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TierBlue, view.Tier)
	assert.True(t, view.Kredits.IsZero())

	require.NoError(t, svc.Create(ctx, KreditsCreateInput{Identity: "bob", ReferralCode: "BOB1", Referrer: "ALICE1"}))
	require.NoError(t, svc.Create(ctx, KreditsCreateInput{Identity: "bob", ReferralCode: "OTHER"}))
	a := ledger.accounts["bob"]
	assert.True(t, a.ReferralPending)
	assert.Equal(t, "BOB1", a.ReferralCode)

	assert.ErrorIs(t, svc.Create(ctx, KreditsCreateInput{Identity: "mallory"}), errs.ErrForbidden)
	_, err = svc.Get(ctx, "ghost")
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestKredits_DepositRewardsReferralOnce(t *testing.T) {
	svc, ledger, pub := newKreditsFixture()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, KreditsCreateInput{Identity: "alice", ReferralCode: "ALICE1"}))
	require.NoError(t, svc.Create(ctx, KreditsCreateInput{Identity: "bob", ReferralCode: "BOB1", Referrer: "ALICE1"}))

	require.NoError(t, svc.Deposit(ctx, "bob", dec("100")))
	require.NoError(t, svc.Deposit(ctx, "bob", dec("100")))

	bob := ledger.accounts["bob"]
	assert.Equal(t, "600", bob.Kredits.String())
	assert.Equal(t, "600", bob.TotalKredits.String())
	assert.Equal(t, "100", bob.DepositKredits.String())
	assert.False(t, bob.ReferralPending)

	alice := ledger.accounts["alice"]
	assert.Equal(t, "500", alice.Kredits.String())
	assert.Equal(t, "500", alice.ReferKredits.String())

	assert.Equal(t, []string{domain.RoutingReferralRewarded}, pub.keys())
	evt := pub.events[0].payload.(domain.ReferralRewardedEvent)
	assert.Equal(t, "alice", evt.ReferrerIdentity)
	assert.Equal(t, "alice@example.com", evt.ReferrerEmail)

	logs, err := svc.GetLog(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, domain.TxDeposit, logs[0].TxType)
	assert.Equal(t, domain.TxRefer, logs[2].TxType)
	assert.Equal(t, "alice_u", logs[2].Denom)

	aliceLogs, err := svc.GetLog(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceLogs, 1)
	assert.Equal(t, "bob_u", aliceLogs[0].Denom)
}

func TestKredits_DepositRejections(t *testing.T) {
	svc, ledger, _ := newKreditsFixture()
	ctx := context.Background()

	assert.ErrorIs(t, svc.Deposit(ctx, "alice", dec("10")), errs.ErrForbidden)
	require.NoError(t, svc.Create(ctx, KreditsCreateInput{Identity: "alice"}))
	assert.ErrorIs(t, svc.Deposit(ctx, "alice", dec("0")), errs.ErrInvalidInput)
	assert.ErrorIs(t, svc.Deposit(ctx, "alice", dec("-3")), errs.ErrInvalidInput)
	assert.Empty(t, ledger.logs)
}

func TestKredits_RollbackOnFailure(t *testing.T) {
	svc, ledger, _ := newKreditsFixture()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, KreditsCreateInput{Identity: "alice"}))

	boom := errors.New("boom")
	err := ledger.InTx(ctx, func(tx store.KreditsTx) error {
		a, _ := tx.GetForUpdate(ctx, "alice")
		a.Kredits = dec("99")
		_ = tx.Save(ctx, a)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, ledger.accounts["alice"].Kredits.IsZero())
}

func TestKredits_WithdrawTierChange(t *testing.T) {
	future := kreditsNow.Add(24 * time.Hour)
	past := kreditsNow.Add(-time.Hour)
	cases := []struct {
		name        string
		expires     *time.Time
		wantTier    domain.Tier
		wantKredits string
	}{
		{"expired tier drops", &past, domain.TierBlue, "4900"},
		{"no expiry counts as expired", nil, domain.TierBlue, "4900"},
		{"unexpired tier kept", &future, domain.TierGold, "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, ledger, _ := newKreditsFixture()
			ledger.accounts["alice"] = domain.KreditsAccount{
				Identity:      "alice",
				Kredits:       dec("1100"),
				TotalKredits:  dec("5000"),
				Tier:          domain.TierGold,
				TierExpiresAt: tc.expires,
			}

			require.NoError(t, svc.Withdraw(context.Background(), "alice", dec("1000")))
			a := ledger.accounts["alice"]
			assert.Equal(t, "4900", a.TotalKredits.String())
			assert.Equal(t, tc.wantTier, a.Tier)
			assert.Equal(t, tc.wantKredits, a.Kredits.String())
			require.Len(t, ledger.logs, 1)
			assert.Equal(t, domain.TxWithdraw, ledger.logs[0].TxType)
			assert.Equal(t, "100", ledger.logs[0].Kredits.String())
		})
	}
}

func TestKredits_UpgradeTier(t *testing.T) {
	svc, ledger, _ := newKreditsFixture()
	ledger.accounts["alice"] = domain.KreditsAccount{
		Identity:     "alice",
		Kredits:      dec("12000"),
		TotalKredits: dec("12000"),
		Tier:         domain.TierBlue,
	}

	a, err := svc.UpgradeTier(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TierEmerald, a.Tier)
	assert.Equal(t, "2000", a.Kredits.String())
	require.NotNil(t, a.TierExpiresAt)
	assert.Equal(t, kreditsNow.AddDate(1, 0, 0), *a.TierExpiresAt)
	require.Len(t, ledger.logs, 1)
	assert.Equal(t, domain.TxTierChange, ledger.logs[0].TxType)

	a, err = svc.UpgradeTier(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "2000", a.Kredits.String())
	assert.Len(t, ledger.logs, 1)
}
