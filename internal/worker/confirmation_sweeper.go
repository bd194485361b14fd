package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/service"
)

// Expirer releases reservations that were not confirmed in time.
type Expirer interface {
	ExpireAwaitingConfirmations(ctx context.Context, timeout time.Duration) ([]service.ReleaseOutcome, error)
}

// ConfirmationSweeper periodically expires unconfirmed reservations so that a
// user who never answers does not block the queue.
type ConfirmationSweeper struct {
	expirer  Expirer
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewConfirmationSweeper creates the sweeper. A zero timeout disables it.
func NewConfirmationSweeper(expirer Expirer, timeout, interval time.Duration, logger *zap.Logger) *ConfirmationSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ConfirmationSweeper{expirer: expirer, timeout: timeout, interval: interval, logger: logger}
}

// Enabled reports whether the sweeper has anything to do.
func (s *ConfirmationSweeper) Enabled() bool {
	return s.timeout > 0
}

// Run sweeps on every tick until ctx is cancelled.
func (s *ConfirmationSweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.logger.Info("confirmation sweeper started",
		zap.Duration("timeout", s.timeout),
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("confirmation sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and returns how many reservations were released.
func (s *ConfirmationSweeper) Sweep(ctx context.Context) int {
	outcomes, err := s.expirer.ExpireAwaitingConfirmations(ctx, s.timeout)
	if err != nil {
		s.logger.Error("confirmation sweep failed", zap.Error(err))
		return 0
	}
	released := 0
	for _, o := range outcomes {
		if o.Released {
			released++
		}
	}
	if len(outcomes) > 0 {
		s.logger.Info("confirmation sweep finished",
			zap.Int("expired", released),
			zap.Int("failed", len(outcomes)-released),
		)
	}
	return released
}
