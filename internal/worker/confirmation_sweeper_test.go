package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/service"
)

type stubExpirer struct {
	mu       sync.Mutex
	calls    int
	timeout  time.Duration
	outcomes []service.ReleaseOutcome
	err      error
}

func (s *stubExpirer) ExpireAwaitingConfirmations(_ context.Context, timeout time.Duration) ([]service.ReleaseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.timeout = timeout
	return s.outcomes, s.err
}

func (s *stubExpirer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSweepCountsReleases(t *testing.T) {
	expirer := &stubExpirer{outcomes: []service.ReleaseOutcome{
		{ResourceID: "r1", UserID: "u1", Released: true},
		{ResourceID: "r2", UserID: "u2", Err: errors.New("boom")},
	}}
	sweeper := NewConfirmationSweeper(expirer, time.Minute, time.Second, zap.NewNop())

	assert.Equal(t, 1, sweeper.Sweep(context.Background()))
	assert.Equal(t, time.Minute, expirer.timeout)
}

func TestSweepSurvivesListingFailure(t *testing.T) {
	expirer := &stubExpirer{err: errors.New("store down")}
	sweeper := NewConfirmationSweeper(expirer, time.Minute, time.Second, zap.NewNop())

	assert.Zero(t, sweeper.Sweep(context.Background()))
}

func TestRunTicksUntilCancelled(t *testing.T) {
	expirer := &stubExpirer{}
	sweeper := NewConfirmationSweeper(expirer, time.Minute, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return expirer.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestDisabledSweeperReturnsImmediately(t *testing.T) {
	expirer := &stubExpirer{}
	sweeper := NewConfirmationSweeper(expirer, 0, time.Millisecond, zap.NewNop())
	assert.False(t, sweeper.Enabled())

	sweeper.Run(context.Background())
	assert.Zero(t, expirer.callCount())
}
