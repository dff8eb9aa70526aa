package apikeys

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// BestEffortToucher records that a key was used. Touch never blocks the
// caller on I/O and never reports failure.
type BestEffortToucher interface {
	Touch(ctx context.Context, keyID string)
}

// NoOpToucher discards every touch.
type NoOpToucher struct{}

func (NoOpToucher) Touch(ctx context.Context, keyID string) {}

// AsyncLastUsedRecorder writes last-used timestamps on background goroutines.
// At most `concurrency` updates are in flight; touches beyond that are dropped.
type AsyncLastUsedRecorder struct {
	repo    Repository
	logger  *zap.Logger
	metrics MetricsProvider
	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncLastUsedRecorder creates a recorder. Zero concurrency or timeout select the defaults.
func NewAsyncLastUsedRecorder(repo Repository, logger *zap.Logger, metrics MetricsProvider, concurrency int64, timeout time.Duration) (*AsyncLastUsedRecorder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = &NoOpMetricsProvider{}
	}
	if concurrency <= 0 {
		concurrency = DEFAULT_TOUCH_CONCURRENCY
	}
	if timeout <= 0 {
		timeout = DEFAULT_TOUCH_TIMEOUT
	}

	return &AsyncLastUsedRecorder{
		repo:    repo,
		logger:  logger.Named(CLASS_LAST_USED),
		metrics: metrics,
		sem:     semaphore.NewWeighted(concurrency),
		timeout: timeout,
	}, nil
}

// Touch schedules an update and returns immediately. The update keeps the
// values of ctx but not its cancellation.
func (r *AsyncLastUsedRecorder) Touch(ctx context.Context, keyID string) {
	if !r.sem.TryAcquire(1) {
		r.logger.Debug(LOG_MSG_TOUCH_DROPPED, zap.String(LOG_FIELD_KEY_ID, keyID))
		r.metrics.RecordLastUsedUpdate(ctx, OUTCOME_DROPPED)
		return
	}

	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		r.touch(detached, keyID)
	}()
}

func (r *AsyncLastUsedRecorder) touch(parent context.Context, keyID string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(LOG_MSG_TOUCH_FAILED,
				zap.String(LOG_FIELD_KEY_ID, keyID),
				zap.Any(LOG_FIELD_PANIC, p))
			r.metrics.RecordLastUsedUpdate(parent, OUTCOME_FAILURE)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	if err := r.repo.UpdateLastUsed(ctx, keyID); err != nil {
		r.logger.Warn(LOG_MSG_TOUCH_FAILED,
			zap.String(LOG_FIELD_KEY_ID, keyID),
			zap.Error(err))
		r.metrics.RecordLastUsedUpdate(ctx, OUTCOME_FAILURE)
		return
	}
	r.metrics.RecordLastUsedUpdate(ctx, OUTCOME_SUCCESS)
}

// Wait blocks until all scheduled updates have finished.
func (r *AsyncLastUsedRecorder) Wait() {
	r.wg.Wait()
}
