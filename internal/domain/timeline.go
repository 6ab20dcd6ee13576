package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineCreated       = "created"
	TimelineStatusChanged = "status_changed"
	TimelineShipped       = "shipped"
	TimelineDelivered     = "delivered"
	TimelineCanceled      = "canceled"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	From     OrderStatus
	To       OrderStatus
	Reason   string
	Occurred time.Time
}
