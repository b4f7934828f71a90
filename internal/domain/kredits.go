/**
 * @description
 * Kredits loyalty ledger: a mutable running account per identity plus an append-only log.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a kredits loyalty tier.
type Tier string

const (
	TierBlue    Tier = "BLUE"
	TierGold    Tier = "GOLD"
	TierEmerald Tier = "EMERALD"
	TierDiamond Tier = "DIAMOND"
)

// TxType classifies a kredits log entry.
type TxType string

const (
	TxDeposit    TxType = "DEPOSIT"
	TxWithdraw   TxType = "WITHDRAW"
	TxRefer      TxType = "REFER"
	TxTierChange TxType = "TIERCHANGE"
)

// Denominations recorded on deposits and withdrawals.
const (
	DenomUST  = "UST"
	DenomAUST = "aUST"
)

// KreditsAccount is the running kredits balance for one identity.
type KreditsAccount struct {
	Identity        string          `json:"identity"`
	Kredits         decimal.Decimal `json:"kredits"`
	TotalKredits    decimal.Decimal `json:"totalKredits"`
	DepositKredits  decimal.Decimal `json:"depositKredits"`
	ReferKredits    decimal.Decimal `json:"referKredits"`
	Tier            Tier            `json:"tier"`
	Referrer        string          `json:"referrer"`
	ReferralPending bool            `json:"-"`
	WalletAddress   string          `json:"walletAddress"`
	ReferralCode    string          `json:"referral_code"`
	TierExpiresAt   *time.Time      `json:"tier_expiration_date,omitempty"`
	UpdatedAt       time.Time       `json:"latest_updated_date"`
}

// KreditsLog is one append-only ledger entry.
type KreditsLog struct {
	Identity      string          `json:"identity"`
	TxType        TxType          `json:"txType"`
	Denom         string          `json:"denom"`
	Amount        decimal.Decimal `json:"amount"`
	Kredits       decimal.Decimal `json:"kredits"`
	WalletAddress string          `json:"walletAddress"`
	CreatedAt     time.Time       `json:"timestamp"`
}
