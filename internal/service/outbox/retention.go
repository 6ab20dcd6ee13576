package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	defaultRetention        = 24 * time.Hour
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

var (
	outboxCleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_outbox_cleanup_runs_total",
		Help: "Total number of outbox cleanup runs grouped by result.",
	}, []string{"result"})
	outboxCleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_outbox_cleanup_deleted_total",
		Help: "Total number of deleted sent outbox records.",
	})
	outboxCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fulfillment_outbox_cleanup_last_deleted",
		Help: "Number of deleted records during the last cleanup run.",
	})
)

// RetentionOptions задаёт параметры очистки опубликованных событий.
type RetentionOptions struct {
	Logger    *log.Entry
	Retention time.Duration
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// RetentionOption настраивает RetentionWorker.
type RetentionOption func(*RetentionOptions)

// WithRetentionLogger задаёт logger.
func WithRetentionLogger(logger *log.Entry) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Logger = logger
	}
}

// WithRetention задаёт, сколько хранить опубликованные события.
func WithRetention(retention time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Retention = retention
	}
}

// WithCleanupInterval задаёт интервал между циклами очистки.
func WithCleanupInterval(interval time.Duration) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Interval = interval
	}
}

// WithCleanupBatchSize задаёт размер одного удаления.
func WithCleanupBatchSize(batchSize int) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetentionClock подменяет часы в тестах.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(opts *RetentionOptions) {
		opts.Now = now
	}
}

// RetentionWorker периодически удаляет опубликованные события outbox.
// Pending и failed записи не трогаются.
type RetentionWorker struct {
	repo      domain.OutboxPruner
	logger    *log.Entry
	retention time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewRetentionWorker создаёт воркер очистки.
func NewRetentionWorker(repo domain.OutboxPruner, options ...RetentionOption) *RetentionWorker {
	opts := RetentionOptions{
		Retention: defaultRetention,
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-retention")
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &RetentionWorker{
		repo:      repo,
		logger:    logger,
		retention: opts.Retention,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox retention worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *RetentionWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteSent(ctx, w.now().Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outboxCleanupRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	outboxCleanupRuns.WithLabelValues("ok").Inc()
	outboxCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// DeleteSent удаляет опубликованные записи старше before порциями batchSize.
func (w *RetentionWorker) DeleteSent(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteSent(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}

		total += deleted
		if deleted > 0 {
			outboxCleanupDeleted.Add(float64(deleted))
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}
}
