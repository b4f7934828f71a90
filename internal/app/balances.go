/**
 * @description
 * BalanceService collects a user's balances across custody sources, stores them as
 * encrypted daily snapshots and serves the balance chart.
 *
 * @dependencies
 * - github.com/shopspring/decimal: token amounts are rescaled without float rounding.
 * - golang.org/x/time/rate: spaces vendor calls during the snapshot run.
 *
 * @notes
 * - Only whitelisted ERC-20 contracts are recorded. Amounts are stored in the app's
 *   6-decimal display unit: 18-decimal tokens are shifted by 12, USDC and USDT are kept,
 *   USD cash is shifted up by 6.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/pkg/moralis"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ERC-20 contracts tracked in snapshots, lower cased.
var trackedTokens = map[string]string{
	"0x6b175474e89094c44da98b954eedeac495271d0f": "DAI",
	"0x23affce94d2a6736de456a25eb8cc96612ca55ca": "ADAI",
	"0xdac17f958d2ee523a2206206994597c13d831ec7": "USDT",
	"0x54e076dba023251854f4c29ea750566528734b2d": "AUSDT",
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "USDC",
	"0x94ead8f528a3af425de14cfdda727b218915687c": "AUSDC",
	"0x4fabb145d64652a948d72533023f6e7a623c7c53": "BUSD",
	"0x5a6a33117ecbc6ea38b3a140f3e20245052cc647": "ABUSD",
	"0xa47c8bf37f92abed4a126bda807a7b7498661acd": "WUST",
	"0xa8de3e3c934e2a1bb08b010104ccabbd4d6293ab": "WAUST",
}

// TokenBalances reads ERC-20 balances of a wallet.
type TokenBalances interface {
	ERC20Balances(ctx context.Context, address string) ([]moralis.TokenBalance, error)
}

// CashBalances reads custody cash. ok is false when the user has no custody account.
type CashBalances interface {
	USDBalance(ctx context.Context, identity string) (balance decimal.Decimal, ok bool, err error)
}

// SnapshotStore persists encrypted balance snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, identity string, balances []domain.Balance) error
	FirstPerDay(ctx context.Context, identity string, from, to time.Time) ([]domain.BalanceSnapshot, error)
}

// UserLister enumerates users for batch jobs.
type UserLister interface {
	UserDirectory
	ListActive(ctx context.Context) ([]domain.User, error)
}

// BalanceOptions tune the snapshot run.
type BalanceOptions struct {
	MinSpacing time.Duration
	Skip       bool
}

// BalanceService owns balance snapshots.
type BalanceService struct {
	tokens    TokenBalances
	cash      CashBalances
	snapshots SnapshotStore
	users     UserLister
	limiter   *rate.Limiter
	skip      bool
	logger    *zap.Logger
	now       func() time.Time
}

// NewBalanceService wires the balance service.
func NewBalanceService(tokens TokenBalances, cash CashBalances, snapshots SnapshotStore, users UserLister, opts BalanceOptions, logger *zap.Logger) *BalanceService {
	limit := rate.Inf
	if opts.MinSpacing > 0 {
		limit = rate.Every(opts.MinSpacing)
	}
	return &BalanceService{
		tokens:    tokens,
		cash:      cash,
		snapshots: snapshots,
		users:     users,
		limiter:   rate.NewLimiter(limit, 1),
		skip:      opts.Skip,
		logger:    logger.Named("balances"),
		now:       time.Now,
	}
}

// tokenBalances maps wallet holdings to snapshot entries.
func tokenBalances(holdings []moralis.TokenBalance) []domain.Balance {
	var out []domain.Balance
	for _, h := range holdings {
		if _, ok := trackedTokens[strings.ToLower(h.TokenAddress)]; !ok {
			continue
		}
		amount := h.Balance
		if h.Symbol != "USDC" && h.Symbol != "USDT" {
			amount = amount.Shift(-12)
		}
		denom := h.Symbol
		switch denom {
		case "UST":
			denom = "WUST"
		case "aUST":
			denom = "aWUST"
		}
		out = append(out, domain.Balance{Denom: denom, Balance: amount, Type: domain.BalanceTypeEthToken})
	}
	return out
}

// Collect gathers the current balances of user.
func (s *BalanceService) Collect(ctx context.Context, user domain.User) ([]domain.Balance, error) {
	balances := []domain.Balance{}
	if user.EthereumWalletAddress != "" {
		holdings, err := s.tokens.ERC20Balances(ctx, user.EthereumWalletAddress)
		if err != nil {
			return nil, fmt.Errorf("token balances: %w", err)
		}
		balances = append(balances, tokenBalances(holdings)...)
	}
	usd, ok, err := s.cash.USDBalance(ctx, user.Identity)
	if err != nil {
		return nil, fmt.Errorf("usd balance: %w", err)
	}
	if ok {
		balances = append(balances, domain.Balance{Denom: "USD", Balance: usd.Shift(6), Type: domain.BalanceTypeUSDToken})
	}
	return balances, nil
}

// SnapshotResult summarizes one snapshot run.
type SnapshotResult struct {
	Users  int
	Stored int
	Failed int
}

// SnapshotBalances stores one snapshot per active user. Users are processed one at a
// time with a minimum spacing; a failing user is logged and skipped.
func (s *BalanceService) SnapshotBalances(ctx context.Context) (SnapshotResult, error) {
	var res SnapshotResult
	if s.skip {
		s.logger.Debug("balance snapshot job disabled")
		return res, nil
	}
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	res.Users = len(users)
	s.logger.Info("balance snapshot started", zap.Int("users", len(users)))

	for _, user := range users {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		if err := s.snapshot(ctx, user); err != nil {
			res.Failed++
			s.logger.Error("balance snapshot failed", zap.String("identity", user.Identity), zap.Error(err))
			continue
		}
		res.Stored++
	}
	s.logger.Info("balance snapshot finished", zap.Int("stored", res.Stored), zap.Int("failed", res.Failed))
	return res, nil
}

func (s *BalanceService) snapshot(ctx context.Context, user domain.User) error {
	balances, err := s.Collect(ctx, user)
	if err != nil {
		return err
	}
	return s.snapshots.Insert(ctx, user.Identity, balances)
}

// UserBalances returns the first snapshot of each day in the chart range, oldest first.
func (s *BalanceService) UserBalances(ctx context.Context, identity string, r domain.ChartRange) ([]domain.BalanceStatistic, error) {
	user, err := s.users.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, identity)
		}
		return nil, err
	}
	if user.Blocked {
		return nil, errs.ErrForbidden
	}
	from, to, ok := r.Window(s.now().UTC())
	if !ok {
		return nil, fmt.Errorf("%w: invalid range %q", errs.ErrInvalidInput, r)
	}

	snaps, err := s.snapshots.FirstPerDay(ctx, identity, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BalanceStatistic, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, domain.BalanceStatistic{Date: snap.CreatedAt, Balances: snap.Balances})
	}
	return out, nil
}
