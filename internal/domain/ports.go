package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPruner удаляет опубликованные события старше before, не более limit за вызов.
type OutboxPruner interface {
	DeleteSent(ctx context.Context, before time.Time, limit int) (int, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// SnapshotPublisher рассылает свежие снимки корзины и избранного подписчикам.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot MembershipSnapshot) error
}

// Типы событий outbox для агрегата order.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderShipped       = "OrderShipped"
	EventOrderDelivered     = "OrderDelivered"
	EventOrderCanceled      = "OrderCanceled"
)

// AggregateOrder — тип агрегата заказа в outbox.
const AggregateOrder = "order"

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
