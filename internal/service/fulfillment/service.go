package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
)

const (
	defaultConflictAttempts = 3
	defaultConflictDelay    = 10 * time.Millisecond
)

// CreateOrderInput — данные нового заказа.
type CreateOrderInput struct {
	OrderNumber     string
	Customer        domain.Customer
	ShippingAddress domain.Address
	Currency        string
	Items           []domain.OrderItem
}

// StatusChange — запрос на переход заказа в новый статус.
type StatusChange struct {
	Status   domain.OrderStatus
	Note     string
	Shipment *domain.Shipment
}

// Option настраивает Service.
type Option func(*Service)

// WithEngine задаёт движок переходов (например, с нестандартной CancelPolicy).
func WithEngine(engine *lifecycle.Engine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики. nil отключает их.
func WithMetrics(m *metrics.FulfillmentMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConflictRetry задаёт число попыток сохранения и базовую паузу при конфликте версий.
func WithConflictRetry(attempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.conflictAttempts = attempts
		}
		if baseDelay >= 0 {
			s.conflictDelay = baseDelay
		}
	}
}

// WithBulkLimit задаёт параллелизм BulkUpdateStatus.
func WithBulkLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.bulkLimit = limit
		}
	}
}

// Service — авторитетная сторона жизненного цикла заказа.
// Каждый переход проверяется движком, сохраняется с optimistic locking
// и сопровождается записью в timeline и outbox.
type Service struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	engine   *lifecycle.Engine
	logger   *log.Entry
	metrics  *metrics.FulfillmentMetrics
	now      func() time.Time

	conflictAttempts int
	conflictDelay    time.Duration
	bulkLimit        int
}

// NewService создаёт сервис. timeline и outbox могут быть nil.
func NewService(orders domain.OrderRepository, timeline domain.TimelineRepository, outbox domain.OutboxRepository, opts ...Option) *Service {
	s := &Service{
		orders:           orders,
		timeline:         timeline,
		outbox:           outbox,
		logger:           log.WithField("component", "fulfillment"),
		now:              func() time.Time { return time.Now().UTC() },
		conflictAttempts: defaultConflictAttempts,
		conflictDelay:    defaultConflictDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = lifecycle.NewEngine(lifecycle.WithClock(s.now))
	}
	return s
}

// Engine возвращает движок переходов сервиса.
func (s *Service) Engine() *lifecycle.Engine {
	return s.engine
}

// Create оформляет новый заказ в статусе pending. Сумма считается по позициям.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	now := s.now()
	order := domain.Order{
		ID:              uuid.NewString(),
		OrderNumber:     strings.TrimSpace(in.OrderNumber),
		Status:          domain.OrderStatusPending,
		Customer:        in.Customer,
		ShippingAddress: in.ShippingAddress,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		Items:           make([]domain.OrderItem, 0, len(in.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, item := range in.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		order.TotalMinor += int64(item.Qty) * item.PriceMinor
		order.Items = append(order.Items, item)
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, domain.NewValidationError("order", errors.Join(errs...).Error())
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  order.Customer.ID,
	}).Info("order created")

	s.record(ctx, order, "", domain.EventOrderCreated, domain.TimelineCreated, "")
	return order, nil
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.Get(ctx, id)
}

// List возвращает заказы по фильтру.
func (s *Service) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status "+string(filter.Status))
	}
	return s.orders.List(ctx, filter)
}

// Timeline возвращает историю заказа. Неизвестный заказ даёт ErrOrderNotFound.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if _, err := s.orders.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, id)
}

// UpdateStatus переводит заказ в change.Status через движок.
func (s *Service) UpdateStatus(ctx context.Context, id string, change StatusChange) (domain.Order, error) {
	return s.transition(ctx, id, change.Status, change.Note, func(order domain.Order) (domain.Order, error) {
		return s.engine.UpdateStatus(order, change.Status, lifecycle.UpdateOptions{Note: change.Note, Shipment: change.Shipment})
	})
}

// Ship отгружает заказ, прикрепляя трек-номер и перевозчика.
func (s *Service) Ship(ctx context.Context, id, trackingNumber, carrier string, estimatedDelivery *time.Time) (domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusShipped, "", func(order domain.Order) (domain.Order, error) {
		return s.engine.Ship(order, trackingNumber, carrier, estimatedDelivery)
	})
}

// Deliver отмечает заказ вручённым.
func (s *Service) Deliver(ctx context.Context, id string) (domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusDelivered, "", s.engine.Deliver)
}

// transition загружает заказ, применяет step и сохраняет результат.
// Конфликт версий перезагружает заказ и повторяет step с экспоненциальной паузой:
// переход заново проверяется на свежем состоянии.
func (s *Service) transition(ctx context.Context, id string, target domain.OrderStatus, note string, step func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < s.conflictAttempts; attempt++ {
		order, err := s.orders.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}

		next, err := step(order)
		if err != nil {
			s.metrics.RecordTransition(string(order.Status), string(target), string(domain.KindOf(err)))
			return order, err
		}

		err = s.orders.Save(ctx, next)
		if err == nil {
			next.Version = order.Version + 1
			s.metrics.RecordTransition(string(order.Status), string(next.Status), "ok")
			s.logger.WithFields(log.Fields{
				"order_id": id,
				"from":     order.Status,
				"to":       next.Status,
				"version":  next.Version,
			}).Info("order status changed")
			s.record(ctx, next, order.Status, domain.EventTypeFor(next.Status), domain.TimelineTypeFor(next.Status), note)
			return next, nil
		}
		if !domain.IsVersionConflict(err) {
			s.logger.WithError(err).WithField("order_id", id).Error("failed to persist status")
			return order, err
		}

		lastErr = err
		s.logger.WithFields(log.Fields{
			"order_id": id,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		if attempt+1 < s.conflictAttempts {
			if err := s.sleep(ctx, s.conflictDelay*time.Duration(1<<uint(attempt))); err != nil {
				return domain.Order{}, err
			}
		}
	}

	s.metrics.RecordTransition("", string(target), string(domain.ErrorKindConflict))
	return domain.Order{}, fmt.Errorf("update order %s after %d attempts: %w", id, s.conflictAttempts, lastErr)
}

// record пишет timeline и outbox после успешного сохранения.
// Ошибки логируются: переход уже зафиксирован и не откатывается.
func (s *Service) record(ctx context.Context, order domain.Order, from domain.OrderStatus, eventType, timelineType, note string) {
	fields := log.Fields{"order_id": order.ID, "event": eventType}

	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     timelineType,
			From:     from,
			To:       order.Status,
			Reason:   note,
			Occurred: order.UpdatedAt,
		}
		if err := s.timeline.Append(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}

	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(domain.NewOrderEvent(eventType, order, from, note))
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		return
	}
	s.metrics.RecordOutboxEvent()
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
