package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/observability"
	"github.com/spec-kit/resource-queue/internal/reliability/retry"
	"github.com/spec-kit/resource-queue/internal/repository"
)

const tracerName = "github.com/spec-kit/resource-queue/internal/service"

// transactor runs transaction bodies with conflict retries inside a span.
type transactor struct {
	store  repository.Store
	retry  *retry.Config
	logger *zap.Logger
	tracer trace.Tracer
}

func newTransactor(store repository.Store, maxAttempts int, logger *zap.Logger, metrics *observability.Metrics) *transactor {
	cfg := retry.DefaultConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	cfg.RetryIf = func(err error) bool { return errors.Is(err, repository.ErrConflict) }
	cfg.OnRetry = func(op string, _ int, _ error) { metrics.ObserveTxRetry(op) }
	return &transactor{store: store, retry: cfg, logger: logger, tracer: otel.Tracer(tracerName)}
}

func (t *transactor) run(ctx context.Context, op string, fn repository.TxFunc) error {
	ctx, span := t.tracer.Start(ctx, op)
	defer span.End()

	_, err := retry.Do(ctx, t.retry, t.logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.store.WithTransaction(ctx, fn)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	return err
}
