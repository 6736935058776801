package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/repository"
)

const (
	purgeStatesSchedule   = "@every 1m"
	refreshTokensSchedule = "@every 5m"
	purgeKeysSchedule     = "@every 1h"

	// IdempotencyKeyRetention is how long a replayable response is kept
	IdempotencyKeyRetention = 24 * time.Hour

	maintenanceJobTimeout = 2 * time.Minute
)

// Maintenance runs background jobs: expired OAuth state purge, proactive
// token refresh for every enabled platform and idempotency key expiry
type Maintenance struct {
	cron    *cron.Cron
	flow    *OAuthFlow
	brokers Brokers
	keys    repository.IdempotencyRepository
	logger  *zap.Logger
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewMaintenance schedules the jobs. Call Start to run them.
func NewMaintenance(flow *OAuthFlow, brokers Brokers, keys repository.IdempotencyRepository, logger *zap.Logger) (*Maintenance, error) {
	cl := cronLogger{s: logger.Sugar()}
	m := &Maintenance{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		flow:    flow,
		brokers: brokers,
		keys:    keys,
		logger:  logger,
	}
	if _, err := m.cron.AddFunc(purgeStatesSchedule, m.purgeStates); err != nil {
		return nil, err
	}
	if _, err := m.cron.AddFunc(refreshTokensSchedule, m.refreshTokens); err != nil {
		return nil, err
	}
	if _, err := m.cron.AddFunc(purgeKeysSchedule, m.purgeKeys); err != nil {
		return nil, err
	}
	return m, nil
}

// Start runs the scheduler in its own goroutine
func (m *Maintenance) Start() {
	m.logger.Info("Maintenance jobs started",
		zap.String("purge_states", purgeStatesSchedule),
		zap.String("refresh_tokens", refreshTokensSchedule),
		zap.String("purge_idempotency_keys", purgeKeysSchedule),
	)
	m.cron.Start()
}

// Stop stops scheduling and returns a context done when running jobs finish
func (m *Maintenance) Stop() context.Context {
	return m.cron.Stop()
}

// RunOnce runs every job synchronously
func (m *Maintenance) RunOnce(ctx context.Context) {
	m.PurgeStates(ctx)
	m.RefreshTokens(ctx)
	m.PurgeIdempotencyKeys(ctx)
}

func (m *Maintenance) purgeStates() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()
	m.PurgeStates(ctx)
}

func (m *Maintenance) refreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()
	m.RefreshTokens(ctx)
}

func (m *Maintenance) purgeKeys() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()
	m.PurgeIdempotencyKeys(ctx)
}

// PurgeIdempotencyKeys deletes stored responses past their retention
func (m *Maintenance) PurgeIdempotencyKeys(ctx context.Context) {
	if m.keys == nil {
		return
	}
	n, err := m.keys.PurgeOlderThan(ctx, time.Now().Add(-IdempotencyKeyRetention))
	if err != nil {
		m.logger.Error("Maintenance: failed to purge idempotency keys", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Debug("Maintenance: purged idempotency keys", zap.Int64("count", n))
	}
}

// PurgeStates deletes expired OAuth states
func (m *Maintenance) PurgeStates(ctx context.Context) {
	if m.flow == nil {
		return
	}
	if _, err := m.flow.PurgeExpiredStates(ctx); err != nil {
		m.logger.Error("Maintenance: failed to purge oauth states", zap.Error(err))
	}
}

// RefreshTokens refreshes tokens about to expire on every platform. Errors
// are logged per platform.
func (m *Maintenance) RefreshTokens(ctx context.Context) {
	for platform, broker := range m.brokers {
		n, err := broker.RefreshExpiring(ctx)
		if err != nil {
			m.logger.Warn("Maintenance: token refresh failed", zap.String("platform", string(platform)), zap.Error(err))
			continue
		}
		if n > 0 {
			m.logger.Info("Maintenance: refreshed tokens", zap.String("platform", string(platform)), zap.Int("count", n))
		}
	}
}
