package domain

import "time"

// OrderEvent — полезная нагрузка outbox-события заказа.
type OrderEvent struct {
	EventType      string      `json:"event_type"`
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	CustomerID     string      `json:"customer_id"`
	From           OrderStatus `json:"from,omitempty"`
	To             OrderStatus `json:"to"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Carrier        string      `json:"carrier,omitempty"`
	Note           string      `json:"note,omitempty"`
	Version        int64       `json:"version"`
	Occurred       time.Time   `json:"occurred"`
}

// NewOrderEvent собирает событие по заказу после перехода from -> order.Status.
func NewOrderEvent(eventType string, order Order, from OrderStatus, note string) OrderEvent {
	return OrderEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.Customer.ID,
		From:           from,
		To:             order.Status,
		TrackingNumber: order.TrackingNumber(),
		Carrier:        order.Carrier(),
		Note:           note,
		Version:        order.Version,
		Occurred:       order.UpdatedAt,
	}
}

// EventTypeFor выбирает тип outbox-события для перехода в статус to.
func EventTypeFor(to OrderStatus) string {
	switch to {
	case OrderStatusShipped:
		return EventOrderShipped
	case OrderStatusDelivered:
		return EventOrderDelivered
	case OrderStatusCanceled:
		return EventOrderCanceled
	default:
		return EventOrderStatusChanged
	}
}

// TimelineTypeFor выбирает тип записи таймлайна для перехода в статус to.
func TimelineTypeFor(to OrderStatus) string {
	switch to {
	case OrderStatusShipped:
		return TimelineShipped
	case OrderStatusDelivered:
		return TimelineDelivered
	case OrderStatusCanceled:
		return TimelineCanceled
	default:
		return TimelineStatusChanged
	}
}
