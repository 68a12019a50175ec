package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/smdhc/parcerias/internal/jobs"
)

// DefaultIdemRetention keeps consumed idempotency keys long enough to catch
// late client retries before expiring them.
const DefaultIdemRetention = 30 * 24 * time.Hour

// IdemStore is the slice of the idempotency store the cleanup job needs.
type IdemStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdemCleanupJob expires consumed idempotency keys past their retention.
type IdemCleanupJob struct {
	Store     IdemStore
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Retention time.Duration
}

// NewIdemCleanupJob wires the cleanup handler.
func NewIdemCleanupJob(store IdemStore, logger *slog.Logger, metrics *jobmetrics.Metrics, retention time.Duration) *IdemCleanupJob {
	if retention <= 0 {
		retention = DefaultIdemRetention
	}
	return &IdemCleanupJob{Store: store, Logger: logger, Metrics: metrics, Retention: retention}
}

// Handle processes idempotencia:limpeza tasks.
func (j *IdemCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idem cleanup: handler not configured")
	}
	tracker := j.metrics().Track(TaskTypeIdemCleanup)
	err := j.Store.Cleanup(ctx, j.Retention)
	err = tracker.End(err)
	if err != nil {
		j.logger().Error("limpeza de chaves de idempotência", slog.Any("error", err))
		return err
	}
	j.logger().Info("chaves de idempotência expiradas", slog.Duration("retencao", j.Retention))
	return nil
}

func (j *IdemCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeIdemCleanup))
	}
	return slog.Default().With(slog.String("job", TaskTypeIdemCleanup))
}

func (j *IdemCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
