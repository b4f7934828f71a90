/**
 * @description
 * Balance snapshot models used by the daily snapshot job and the chart endpoint.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceType classifies where a balance came from.
type BalanceType string

const (
	BalanceTypeEthToken BalanceType = "ETH_TOKEN"
	BalanceTypeUSDToken BalanceType = "USD_TOKEN"
)

// Balance is one asset position.
type Balance struct {
	Denom   string          `json:"denom"`
	Balance decimal.Decimal `json:"balance"`
	Type    BalanceType     `json:"type"`
}

// BalanceSnapshot is one append-only point in a user's balance history.
type BalanceSnapshot struct {
	Identity  string
	Balances  []Balance
	CreatedAt time.Time
}

// BalanceStatistic is a chart point returned to the app.
type BalanceStatistic struct {
	Date     time.Time `json:"date"`
	Balances []Balance `json:"balances"`
}

// ChartRange selects how far back the balance chart reaches.
type ChartRange string

const (
	ChartRangeWeek     ChartRange = "W"
	ChartRangeMonth    ChartRange = "1M"
	ChartRangeHalfYear ChartRange = "6M"
	ChartRangeYear     ChartRange = "1Y"
)

// Window returns the [from, to) interval for the range ending at the end of now's day.
// ok is false for unsupported ranges.
func (r ChartRange) Window(now time.Time) (from, to time.Time, ok bool) {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), now.Location())
	switch r {
	case ChartRangeWeek:
		from = endOfDay.AddDate(0, 0, -7)
	case ChartRangeMonth:
		from = endOfDay.AddDate(0, -1, 0)
	case ChartRangeHalfYear:
		from = endOfDay.AddDate(0, -6, 0)
	case ChartRangeYear:
		from = endOfDay.AddDate(-1, 0, 0)
	default:
		return time.Time{}, time.Time{}, false
	}
	return from, endOfDay, true
}
