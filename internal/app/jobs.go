/**
 * @description
 * Scheduled job implementations run by the cron scheduler.
 */
package app

import (
	"context"

	"go.uber.org/zap"
)

// BalanceSnapshotter stores the daily balance snapshots.
type BalanceSnapshotter interface {
	SnapshotBalances(ctx context.Context) (SnapshotResult, error)
}

// TokenRefresher renews a cached vendor token.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	balances BalanceSnapshotter
	ptTokens TokenRefresher
	logger   *zap.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(balances BalanceSnapshotter, ptTokens TokenRefresher, logger *zap.Logger) *Jobs {
	return &Jobs{
		balances: balances,
		ptTokens: ptTokens,
		logger:   logger.Named("jobs"),
	}
}

// SnapshotBalances stores one balance snapshot per user.
func (j *Jobs) SnapshotBalances() {
	j.logger.Info("starting balance snapshot job")
	ctx := context.Background()

	res, err := j.balances.SnapshotBalances(ctx)
	if err != nil {
		j.logger.Error("balance snapshot job failed", zap.Int("stored", res.Stored), zap.Error(err))
		return
	}

	j.logger.Info("balance snapshot job finished",
		zap.Int("users", res.Users), zap.Int("stored", res.Stored), zap.Int("failed", res.Failed))
}

// RefreshPrimeTrustToken renews the Prime Trust JWT before it expires.
func (j *Jobs) RefreshPrimeTrustToken() {
	j.logger.Info("starting prime trust token refresh job")
	ctx := context.Background()

	if err := j.ptTokens.Refresh(ctx); err != nil {
		j.logger.Error("failed to refresh prime trust token", zap.Error(err))
		return
	}

	j.logger.Info("prime trust token refresh job finished")
}
