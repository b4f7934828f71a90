/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"

	"github.com/kash/onboarding-service/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.BalanceSnapshotSchedule, s.jobs.SnapshotBalances); err != nil {
		s.logger.Error("failed to schedule balance snapshot job", zap.Error(err))
	} else {
		s.logger.Info("scheduled balance snapshot job", zap.String("schedule", s.config.BalanceSnapshotSchedule))
	}

	if _, err := s.cron.AddFunc(s.config.PrimeTrustTokenRefreshSchedule, s.jobs.RefreshPrimeTrustToken); err != nil {
		s.logger.Error("failed to schedule prime trust token refresh job", zap.Error(err))
	} else {
		s.logger.Info("scheduled prime trust token refresh job", zap.String("schedule", s.config.PrimeTrustTokenRefreshSchedule))
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
