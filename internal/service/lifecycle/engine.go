// Package lifecycle содержит конечный автомат статусов заказа.
// Все переходы синхронные и не делают I/O: вызывающий проверяет переход
// до отправки запроса и сам решает, что делать с результатом.
package lifecycle

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Edge — разрешённая пара статусов графа переходов.
type Edge struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

// baseEdges — рёбра графа без отмены, отмена задаётся CancelPolicy.
var baseEdges = []Edge{
	{From: domain.OrderStatusPending, To: domain.OrderStatusConfirmed},
	{From: domain.OrderStatusConfirmed, To: domain.OrderStatusProcessing},
	{From: domain.OrderStatusConfirmed, To: domain.OrderStatusShipped},
	{From: domain.OrderStatusProcessing, To: domain.OrderStatusShipped},
	{From: domain.OrderStatusShipped, To: domain.OrderStatusOutForDelivery},
	{From: domain.OrderStatusShipped, To: domain.OrderStatusDelivered},
	{From: domain.OrderStatusOutForDelivery, To: domain.OrderStatusDelivered},
}

// UpdateOptions дополняет UpdateStatus.
type UpdateOptions struct {
	// Note не влияет на переход, его сохраняет вызывающий.
	Note string
	// Shipment обязателен при переходе в shipped.
	Shipment *domain.Shipment
}

// Option настраивает Engine.
type Option func(*Engine)

// WithCancelPolicy задаёт статусы, из которых разрешена отмена.
func WithCancelPolicy(policy CancelPolicy) Option {
	return func(e *Engine) {
		e.cancel = policy
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine валидирует и применяет переходы статусов заказа.
// Engine не хранит состояние заказов и безопасен для конкурентного использования.
type Engine struct {
	cancel CancelPolicy
	now    func() time.Time
	edges  map[Edge]struct{}
}

// NewEngine создаёт движок переходов.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cancel: DefaultCancelPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	e.edges = make(map[Edge]struct{}, len(baseEdges)+len(e.cancel.from))
	for _, edge := range baseEdges {
		e.edges[edge] = struct{}{}
	}
	for _, from := range e.cancel.From() {
		e.edges[Edge{From: from, To: domain.OrderStatusCanceled}] = struct{}{}
	}
	return e
}

// CancelPolicy возвращает действующую политику отмены.
func (e *Engine) CancelPolicy() CancelPolicy {
	return e.cancel
}

// Edges возвращает граф переходов в порядке движения заказа.
func (e *Engine) Edges() []Edge {
	result := make([]Edge, 0, len(e.edges))
	result = append(result, baseEdges...)
	for _, from := range e.cancel.From() {
		result = append(result, Edge{From: from, To: domain.OrderStatusCanceled})
	}
	return result
}

// CanTransition сообщает, есть ли прямое ребро from -> to.
func (e *Engine) CanTransition(from, to domain.OrderStatus) bool {
	_, ok := e.edges[Edge{From: from, To: to}]
	return ok
}

// Check проверяет ребро без применения перехода.
func (e *Engine) Check(order domain.Order, target domain.OrderStatus) error {
	if !target.Valid() {
		return domain.NewValidationError("status", "unknown status "+string(target))
	}
	if !e.CanTransition(order.Status, target) {
		return domain.NewInvalidTransitionError(order.Status, target)
	}
	return nil
}

// Confirm переводит заказ pending -> confirmed.
func (e *Engine) Confirm(order domain.Order) (domain.Order, error) {
	return e.move(order, domain.OrderStatusConfirmed)
}

// Process переводит заказ confirmed -> processing.
func (e *Engine) Process(order domain.Order) (domain.Order, error) {
	return e.move(order, domain.OrderStatusProcessing)
}

// Ship переводит заказ в shipped и одновременно прикрепляет данные отгрузки.
func (e *Engine) Ship(order domain.Order, trackingNumber, carrier string, estimatedDelivery *time.Time) (domain.Order, error) {
	if err := e.Check(order, domain.OrderStatusShipped); err != nil {
		return order, err
	}

	trackingNumber = strings.TrimSpace(trackingNumber)
	carrier = strings.TrimSpace(carrier)
	if trackingNumber == "" {
		return order, domain.NewValidationError("trackingNumber", "is required")
	}
	if carrier == "" {
		return order, domain.NewValidationError("carrier", "is required")
	}

	next := e.apply(order, domain.OrderStatusShipped)
	shipment := &domain.Shipment{TrackingNumber: trackingNumber, Carrier: carrier}
	if estimatedDelivery != nil {
		eta := estimatedDelivery.UTC()
		shipment.EstimatedDelivery = &eta
	}
	next.Shipment = shipment
	return next, nil
}

// MarkOutForDelivery переводит заказ shipped -> out_for_delivery.
func (e *Engine) MarkOutForDelivery(order domain.Order) (domain.Order, error) {
	return e.move(order, domain.OrderStatusOutForDelivery)
}

// Deliver закрывает заказ из shipped или out_for_delivery.
// Повторный вызов на доставленном заказе возвращает InvalidTransitionError.
func (e *Engine) Deliver(order domain.Order) (domain.Order, error) {
	return e.move(order, domain.OrderStatusDelivered)
}

// Cancel отменяет заказ, если это разрешает CancelPolicy.
func (e *Engine) Cancel(order domain.Order) (domain.Order, error) {
	return e.move(order, domain.OrderStatusCanceled)
}

// UpdateStatus — общая точка входа для массовых операций и drag-and-drop.
// Переход в shipped требует opts.Shipment.
func (e *Engine) UpdateStatus(order domain.Order, target domain.OrderStatus, opts UpdateOptions) (domain.Order, error) {
	if err := e.Check(order, target); err != nil {
		return order, err
	}

	switch target {
	case domain.OrderStatusConfirmed:
		return e.Confirm(order)
	case domain.OrderStatusProcessing:
		return e.Process(order)
	case domain.OrderStatusShipped:
		if opts.Shipment == nil {
			return order, domain.NewValidationError("shipment", "is required to ship an order")
		}
		return e.Ship(order, opts.Shipment.TrackingNumber, opts.Shipment.Carrier, opts.Shipment.EstimatedDelivery)
	case domain.OrderStatusOutForDelivery:
		return e.MarkOutForDelivery(order)
	case domain.OrderStatusDelivered:
		return e.Deliver(order)
	case domain.OrderStatusCanceled:
		return e.Cancel(order)
	default:
		return order, domain.NewInvalidTransitionError(order.Status, target)
	}
}

func (e *Engine) move(order domain.Order, target domain.OrderStatus) (domain.Order, error) {
	if err := e.Check(order, target); err != nil {
		return order, err
	}
	return e.apply(order, target), nil
}

// apply возвращает копию заказа в новом статусе; оригинал не меняется.
func (e *Engine) apply(order domain.Order, target domain.OrderStatus) domain.Order {
	next := order.Clone()
	next.Status = target
	next.UpdatedAt = e.now()
	return next
}
