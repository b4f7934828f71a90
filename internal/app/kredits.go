/**
 * @description
 * KreditsService runs the kredits loyalty ledger: deposits and withdrawals earn or burn
 * kredits, the first deposit of a referred user rewards both parties once, and tiers are
 * recomputed from the lifetime total.
 *
 * @dependencies
 * - github.com/shopspring/decimal: all ledger arithmetic.
 *
 * @notes
 * - Every mutation runs in one database transaction with the affected rows locked.
 * - A tier only changes on withdrawal once the current tier's expiry has passed; an
 *   account without an expiry is treated as expired.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/errs"
	"github.com/kash/onboarding-service/internal/onboarding"
	"github.com/kash/onboarding-service/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	depositFactor  = decimal.NewFromInt(2)
	withdrawFactor = decimal.NewFromInt(10)
	referralReward = decimal.NewFromInt(500)

	blueLimit    = decimal.NewFromInt(5000)
	goldLimit    = decimal.NewFromInt(10000)
	emeraldLimit = decimal.NewFromInt(20000)
)

// TierFor returns the tier earned by a lifetime kredits total.
func TierFor(total decimal.Decimal) domain.Tier {
	switch {
	case total.LessThanOrEqual(blueLimit):
		return domain.TierBlue
	case total.LessThanOrEqual(goldLimit):
		return domain.TierGold
	case total.LessThanOrEqual(emeraldLimit):
		return domain.TierEmerald
	default:
		return domain.TierDiamond
	}
}

// spendable is what remains of total above the floor of tier.
func spendable(total decimal.Decimal, tier domain.Tier) decimal.Decimal {
	switch tier {
	case domain.TierGold:
		return total.Sub(blueLimit)
	case domain.TierEmerald:
		return total.Sub(goldLimit)
	case domain.TierDiamond:
		return total.Sub(emeraldLimit)
	default:
		return total
	}
}

// KreditsLedger is the kredits persistence.
type KreditsLedger interface {
	Get(ctx context.Context, identity string) (*domain.KreditsAccount, error)
	Create(ctx context.Context, a *domain.KreditsAccount) error
	ListLogs(ctx context.Context, identity string) ([]domain.KreditsLog, error)
	InTx(ctx context.Context, fn func(tx store.KreditsTx) error) error
}

// ReferralDirectory resolves users by referral code.
type ReferralDirectory interface {
	UserDirectory
	GetByReferralCode(ctx context.Context, code string) (*domain.User, error)
}

// KreditsService runs the kredits ledger.
type KreditsService struct {
	ledger KreditsLedger
	users  ReferralDirectory
	events onboarding.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewKreditsService wires the kredits service.
func NewKreditsService(ledger KreditsLedger, users ReferralDirectory, events onboarding.Publisher, logger *zap.Logger) *KreditsService {
	return &KreditsService{
		ledger: ledger,
		users:  users,
		events: events,
		logger: logger.Named("kredits"),
		now:    time.Now,
	}
}

// KreditsCreateInput opens a kredits account.
type KreditsCreateInput struct {
	Identity      string
	WalletAddress string
	ReferralCode  string
	Referrer      string
}

// Create opens a BLUE account with zero balances. An existing account is left as is.
func (s *KreditsService) Create(ctx context.Context, in KreditsCreateInput) error {
	if _, err := requireMainUser(ctx, s.users, in.Identity); err != nil {
		return err
	}
	a := &domain.KreditsAccount{
		Identity:        in.Identity,
		Tier:            domain.TierBlue,
		Referrer:        in.Referrer,
		ReferralPending: in.Referrer != "",
		WalletAddress:   in.WalletAddress,
		ReferralCode:    in.ReferralCode,
	}
	err := s.ledger.Create(ctx, a)
	if errors.Is(err, errs.ErrAlreadyExists) {
		return nil
	}
	return err
}

func positiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", errs.ErrInvalidInput)
	}
	return nil
}

func (s *KreditsService) lockAccount(ctx context.Context, tx store.KreditsTx, identity string) (*domain.KreditsAccount, error) {
	a, err := tx.GetForUpdate(ctx, identity)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("%w: no kredits account for %s", errs.ErrForbidden, identity)
	}
	return a, err
}

// Deposit credits half of amount. The first deposit of a referred account also credits
// the referral reward to it and to its referrer.
func (s *KreditsService) Deposit(ctx context.Context, identity string, amount decimal.Decimal) error {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return err
	}
	if err := positiveAmount(amount); err != nil {
		return err
	}

	var reward *domain.ReferralRewardedEvent
	err := s.ledger.InTx(ctx, func(tx store.KreditsTx) error {
		reward = nil
		a, err := s.lockAccount(ctx, tx, identity)
		if err != nil {
			return err
		}
		earned := amount.Div(depositFactor)
		a.Kredits = a.Kredits.Add(earned)
		a.TotalKredits = a.TotalKredits.Add(earned)
		a.DepositKredits = a.DepositKredits.Add(earned)

		if a.ReferralPending {
			if reward, err = s.rewardReferral(ctx, tx, a, amount); err != nil {
				return err
			}
		}

		a.UpdatedAt = s.now().UTC()
		if err := tx.Save(ctx, a); err != nil {
			return err
		}
		return tx.InsertLog(ctx, domain.KreditsLog{
			Identity:      identity,
			TxType:        domain.TxDeposit,
			Denom:         domain.DenomAUST,
			Amount:        amount,
			Kredits:       earned,
			WalletAddress: a.WalletAddress,
		})
	})
	if err != nil {
		return err
	}

	if reward != nil && s.events != nil {
		if err := s.events.Publish(ctx, domain.RoutingReferralRewarded, *reward); err != nil {
			s.logger.Warn("failed to publish referral reward", zap.String("identity", identity), zap.Error(err))
		}
	}
	return nil
}

// rewardReferral credits both sides of a pending referral and clears the flag on a.
// A referrer without a kredits account only clears the flag.
func (s *KreditsService) rewardReferral(ctx context.Context, tx store.KreditsTx, a *domain.KreditsAccount, deposit decimal.Decimal) (*domain.ReferralRewardedEvent, error) {
	a.ReferralPending = false
	ref, err := tx.GetByReferralCodeForUpdate(ctx, a.Referrer)
	if errors.Is(err, errs.ErrNotFound) {
		s.logger.Warn("referrer has no kredits account", zap.String("identity", a.Identity), zap.String("referrer", a.Referrer))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Kredits = a.Kredits.Add(referralReward)
	a.TotalKredits = a.TotalKredits.Add(referralReward)
	ref.Kredits = ref.Kredits.Add(referralReward)
	ref.TotalKredits = ref.TotalKredits.Add(referralReward)
	ref.ReferKredits = ref.ReferKredits.Add(referralReward)
	ref.UpdatedAt = s.now().UTC()
	if err := tx.Save(ctx, ref); err != nil {
		return nil, err
	}

	var referrerName, referredName, referrerEmail string
	if u, err := s.users.GetByReferralCode(ctx, a.Referrer); err == nil {
		referrerName, referrerEmail = u.Username, u.Email
	}
	if u, err := s.users.GetByIdentity(ctx, a.Identity); err == nil {
		referredName = u.Username
	}

	if err := tx.InsertLog(ctx, domain.KreditsLog{
		Identity:      a.Identity,
		TxType:        domain.TxRefer,
		Denom:         referrerName,
		Amount:        deposit,
		Kredits:       referralReward,
		WalletAddress: a.WalletAddress,
	}); err != nil {
		return nil, err
	}
	if err := tx.InsertLog(ctx, domain.KreditsLog{
		Identity:      ref.Identity,
		TxType:        domain.TxRefer,
		Denom:         referredName,
		Amount:        referralReward,
		Kredits:       referralReward,
		WalletAddress: ref.WalletAddress,
	}); err != nil {
		return nil, err
	}

	return &domain.ReferralRewardedEvent{
		ReferrerIdentity: ref.Identity,
		ReferrerEmail:    referrerEmail,
		ReferredIdentity: a.Identity,
		Kredits:          referralReward.String(),
	}, nil
}

// Withdraw burns a tenth of amount and recomputes the tier when the current one expired.
func (s *KreditsService) Withdraw(ctx context.Context, identity string, amount decimal.Decimal) error {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return err
	}
	if err := positiveAmount(amount); err != nil {
		return err
	}

	return s.ledger.InTx(ctx, func(tx store.KreditsTx) error {
		a, err := s.lockAccount(ctx, tx, identity)
		if err != nil {
			return err
		}
		burned := amount.Div(withdrawFactor)
		a.TotalKredits = a.TotalKredits.Sub(burned)
		a.Kredits = a.Kredits.Sub(burned)

		now := s.now().UTC()
		tier := TierFor(a.TotalKredits)
		expired := a.TierExpiresAt == nil || !now.Before(*a.TierExpiresAt)
		if tier != a.Tier && expired {
			s.logger.Info("tier changed on withdrawal",
				zap.String("identity", identity), zap.String("from", string(a.Tier)), zap.String("to", string(tier)))
			a.Tier = tier
			a.Kredits = spendable(a.TotalKredits, tier)
		}

		a.UpdatedAt = now
		if err := tx.Save(ctx, a); err != nil {
			return err
		}
		return tx.InsertLog(ctx, domain.KreditsLog{
			Identity:      identity,
			TxType:        domain.TxWithdraw,
			Denom:         domain.DenomUST,
			Amount:        amount,
			Kredits:       burned,
			WalletAddress: a.WalletAddress,
		})
	})
}

// Get returns the account, or a zero BLUE view when none exists yet.
func (s *KreditsService) Get(ctx context.Context, identity string) (*domain.KreditsAccount, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	a, err := s.ledger.Get(ctx, identity)
	if errors.Is(err, errs.ErrNotFound) {
		return &domain.KreditsAccount{Identity: identity, Tier: domain.TierBlue}, nil
	}
	return a, err
}

// GetLog returns the ledger entries, newest first.
func (s *KreditsService) GetLog(ctx context.Context, identity string) ([]domain.KreditsLog, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	return s.ledger.ListLogs(ctx, identity)
}

// UpgradeTier recomputes the tier from the stored total and renews its expiry for a
// year.
func (s *KreditsService) UpgradeTier(ctx context.Context, identity string) (*domain.KreditsAccount, error) {
	if _, err := requireMainUser(ctx, s.users, identity); err != nil {
		return nil, err
	}
	var out *domain.KreditsAccount
	err := s.ledger.InTx(ctx, func(tx store.KreditsTx) error {
		a, err := s.lockAccount(ctx, tx, identity)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		tier := TierFor(a.TotalKredits)
		if tier != a.Tier {
			if tier != domain.TierBlue {
				a.Kredits = spendable(a.TotalKredits, tier)
			}
			a.Tier = tier
			if err := tx.InsertLog(ctx, domain.KreditsLog{
				Identity:      identity,
				TxType:        domain.TxTierChange,
				Denom:         string(tier),
				Amount:        a.TotalKredits,
				Kredits:       a.Kredits,
				WalletAddress: a.WalletAddress,
			}); err != nil {
				return err
			}
		}
		expires := now.AddDate(1, 0, 0)
		a.TierExpiresAt = &expires
		a.UpdatedAt = now
		if err := tx.Save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
