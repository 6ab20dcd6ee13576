package bulk

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// RetryConfig конфигурация повторов для неудачных элементов батча.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retrier повторяет только элементы, упавшие с сетевой ошибкой.
// Недопустимые переходы и конфликты никогда не повторяются.
type Retrier struct {
	coordinator *Coordinator
	config      RetryConfig
	logger      *log.Entry
}

// NewRetrier создаёт политику повторов поверх координатора.
func NewRetrier(coordinator *Coordinator, config RetryConfig, logger *log.Entry) *Retrier {
	if logger == nil {
		logger = log.WithField("component", "bulk-retrier")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &Retrier{coordinator: coordinator, config: config, logger: logger}
}

// RetryStatus повторяет неудачные элементы батча смены статусов.
func (r *Retrier) RetryStatus(ctx context.Context, batch Batch, action StatusAction) (Batch, error) {
	return r.retry(ctx, batch, func(ctx context.Context, ids []string) (Batch, error) {
		return r.coordinator.ApplyStatus(ctx, ids, action)
	})
}

// RetryMembership повторяет неудачные элементы батча над набором.
// Направление toggle заменяется явным, чтобы повтор не отменил исходное намерение.
func (r *Retrier) RetryMembership(ctx context.Context, batch Batch, action MembershipAction) (Batch, error) {
	return r.retry(ctx, batch, func(ctx context.Context, ids []string) (Batch, error) {
		if action.Direction != DirectionToggle {
			return r.coordinator.ApplyMembership(ctx, ids, action)
		}
		return r.retryToggled(ctx, batch, ids, action.Kind)
	})
}

func (r *Retrier) retryToggled(ctx context.Context, batch Batch, ids []string, kind domain.MembershipKind) (Batch, error) {
	var add, remove []string
	for _, id := range ids {
		// После отката Present показывает значение снимка, значит желаемое было обратным.
		outcome, _ := batch.Outcome(id)
		if outcome.Present {
			remove = append(remove, id)
		} else {
			add = append(add, id)
		}
	}

	result := Batch{}
	for _, group := range []struct {
		ids       []string
		direction Direction
	}{{add, DirectionAdd}, {remove, DirectionRemove}} {
		if len(group.ids) == 0 {
			continue
		}
		next, err := r.coordinator.ApplyMembership(ctx, group.ids, MembershipAction{Kind: kind, Direction: group.direction})
		if err != nil {
			return Batch{}, err
		}
		result.Outcomes = append(result.Outcomes, next.Outcomes...)
		if next.FinishedAt.After(result.FinishedAt) {
			result.FinishedAt = next.FinishedAt
		}
	}
	return result, nil
}

func (r *Retrier) retry(ctx context.Context, batch Batch, apply func(context.Context, []string) (Batch, error)) (Batch, error) {
	delay := r.config.InitialDelay
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		ids := retryable(batch)
		if len(ids) == 0 {
			return batch, nil
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return batch, ctx.Err()
			case <-time.After(delay):
			}
		}

		r.logger.WithFields(log.Fields{
			"batch_id": batch.ID,
			"attempt":  attempt,
			"items":    len(ids),
			"delay":    delay,
		}).Info("retrying failed batch items")

		retried, err := apply(ctx, ids)
		if err != nil {
			return batch, err
		}
		batch = merge(batch, retried)

		// Экспоненциальная задержка с ограничением
		delay = time.Duration(float64(delay) * r.config.BackoffFactor)
		if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	if remaining := retryable(batch); len(remaining) > 0 {
		r.logger.WithFields(log.Fields{
			"batch_id":     batch.ID,
			"max_attempts": r.config.MaxAttempts,
			"remaining":    len(remaining),
		}).Warn("batch items still failing after all retry attempts")
	}
	return batch, nil
}

// retryable возвращает идентификаторы, которые имеет смысл повторить.
func retryable(batch Batch) []string {
	ids := make([]string, 0)
	for _, outcome := range batch.Failed() {
		if domain.IsRetryable(outcome.Err) || outcome.Kind == domain.ErrorKindNetwork {
			ids = append(ids, outcome.ID)
		}
	}
	return ids
}
