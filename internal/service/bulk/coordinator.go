// Package bulk применяет одно действие к множеству заказов или товаров
// и собирает результат по каждому элементу без общего отката.
package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/optimistic"
)

// DefaultLimit — число одновременно выполняемых элементов батча.
const DefaultLimit = 8

// StatusAction — массовая смена статуса заказов.
type StatusAction struct {
	Status domain.OrderStatus
	Note   string
	// Shipments: данные отгрузки по идентификатору заказа, нужны для shipped.
	Shipments map[string]domain.Shipment
}

// MembershipAction — массовое изменение корзины или избранного.
type MembershipAction struct {
	Kind      domain.MembershipKind
	Direction Direction
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithOrders подключает локальные заказы и шлюз к серверу.
func WithOrders(source OrderSource, gateway OrderGateway) Option {
	return func(c *Coordinator) {
		c.orders = source
		c.orderGateway = gateway
	}
}

// WithMembership подключает шлюз наборов и координаторы намерений.
func WithMembership(gateway MembershipGateway, sets ...*optimistic.Coordinator) Option {
	return func(c *Coordinator) {
		c.memberGateway = gateway
		for _, set := range sets {
			if set != nil {
				c.sets[domain.MembershipKind(set.Name())] = set
			}
		}
	}
}

// WithLimit ограничивает число элементов, выполняемых одновременно.
func WithLimit(limit int) Option {
	return func(c *Coordinator) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver подключает метрики.
func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator раздаёт элементы батча воркерам и собирает результаты.
type Coordinator struct {
	engine        *lifecycle.Engine
	orders        OrderSource
	orderGateway  OrderGateway
	memberGateway MembershipGateway
	sets          map[domain.MembershipKind]*optimistic.Coordinator
	limit         int
	logger        *log.Entry
	observer      Observer
	now           func() time.Time
}

// NewCoordinator создаёт координатор массовых операций.
func NewCoordinator(engine *lifecycle.Engine, opts ...Option) *Coordinator {
	if engine == nil {
		engine = lifecycle.NewEngine()
	}
	c := &Coordinator{
		engine: engine,
		sets:   make(map[domain.MembershipKind]*optimistic.Coordinator),
		limit:  DefaultLimit,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "bulk-coordinator")
	}
	return c
}

// Engine возвращает движок переходов, которым проверяются заказы.
func (c *Coordinator) Engine() *lifecycle.Engine {
	return c.engine
}

// Orders возвращает локальный источник заказов.
func (c *Coordinator) Orders() OrderSource {
	return c.orders
}

// ApplyStatus переводит каждый заказ из ids в action.Status.
// Недопустимые переходы отклоняются до сетевого вызова.
func (c *Coordinator) ApplyStatus(ctx context.Context, ids []string, action StatusAction) (Batch, error) {
	if c.orders == nil || c.orderGateway == nil {
		return Batch{}, fmt.Errorf("bulk status: order source is not configured")
	}
	if !action.Status.Valid() {
		return Batch{}, domain.NewValidationError("status", "unknown status "+string(action.Status))
	}

	descriptor := Action{Type: ActionStatus, Status: action.Status, Note: action.Note}
	return c.run(ctx, ids, descriptor, func(ctx context.Context, id string) Outcome {
		return c.applyStatus(ctx, id, action)
	})
}

// ApplyMembership меняет членство каждого товара из ids в наборе action.Kind.
func (c *Coordinator) ApplyMembership(ctx context.Context, ids []string, action MembershipAction) (Batch, error) {
	set, ok := c.sets[action.Kind]
	if !ok || c.memberGateway == nil {
		return Batch{}, domain.NewValidationError("kind", fmt.Sprintf("membership set %q is not configured", action.Kind))
	}
	if !action.Direction.Valid() {
		return Batch{}, domain.NewValidationError("direction", fmt.Sprintf("unknown direction %q", action.Direction))
	}

	descriptor := Action{Type: ActionMembership, Set: action.Kind, Direction: action.Direction}
	return c.run(ctx, ids, descriptor, func(ctx context.Context, id string) Outcome {
		return c.applyMembership(ctx, set, action, id)
	})
}

func (c *Coordinator) run(ctx context.Context, ids []string, action Action, apply func(context.Context, string) Outcome) (Batch, error) {
	targets := dedupe(ids)
	if len(targets) == 0 {
		return Batch{}, domain.NewValidationError("ids", "at least one id is required")
	}

	batchID := uuid.NewString()
	startedAt := c.now()
	rec := newRecorder(len(targets))

	// Ошибки элементов не возвращаются в errgroup: отказ одного элемента
	// не должен останавливать остальные.
	var group errgroup.Group
	group.SetLimit(c.limit)
	for _, id := range targets {
		id := id
		group.Go(func() error {
			var outcome Outcome
			if err := ctx.Err(); err != nil {
				outcome = failed(id, err)
			} else {
				outcome = apply(ctx, id)
			}
			rec.add(outcome)
			c.observeItem(action, outcome)
			return nil
		})
	}
	_ = group.Wait()

	batch := rec.seal(batchID, targets, action, startedAt, c.now())
	c.observeBatch(batch)

	entry := c.logger.WithFields(log.Fields{
		"batch_id": batch.ID,
		"action":   action.Label(),
		"status":   batch.Status,
		"summary":  batch.Summary(),
	})
	if batch.Status == BatchComplete {
		entry.Debug("bulk batch finished")
	} else {
		entry.WithField("failures", sortedKinds(kindsOf(batch.Outcomes))).Info("bulk batch finished with failures")
	}
	return batch, nil
}

func (c *Coordinator) applyStatus(ctx context.Context, id string, action StatusAction) Outcome {
	order, ok := c.orders.Order(id)
	if !ok {
		if loader, ok := c.orders.(LoadErrors); ok {
			if err := loader.LoadErr(id); err != nil {
				return failed(id, err)
			}
		}
		return failed(id, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id))
	}

	opts := lifecycle.UpdateOptions{Note: action.Note}
	if shipment, ok := action.Shipments[id]; ok {
		opts.Shipment = &shipment
	}

	next, err := c.engine.UpdateStatus(order, action.Status, opts)
	if err != nil {
		return failed(id, err)
	}

	authoritative, err := c.orderGateway.UpdateStatus(ctx, id, StatusRequest{
		Status:   action.Status,
		Note:     action.Note,
		Shipment: next.Shipment,
	})
	if err != nil {
		return failed(id, err)
	}

	c.orders.Put(authoritative)
	return Outcome{ID: id, OK: true, Order: &authoritative}
}

func (c *Coordinator) applyMembership(ctx context.Context, set *optimistic.Coordinator, action MembershipAction, id string) Outcome {
	var intent optimistic.Intent
	switch action.Direction {
	case DirectionAdd:
		intent = set.Set(id, true)
	case DirectionRemove:
		intent = set.Set(id, false)
	default:
		intent = set.Toggle(id)
	}

	var err error
	if intent.Desired {
		err = c.memberGateway.Add(ctx, action.Kind, id)
	} else {
		err = c.memberGateway.Remove(ctx, action.Kind, id)
	}
	if err != nil {
		set.ResolveFailure(id, intent.Token)
		outcome := failed(id, err)
		outcome.Present = set.Effective(id)
		return outcome
	}

	set.ResolveSuccess(id, intent.Token)
	return Outcome{ID: id, OK: true, Present: intent.Desired}
}

func failed(id string, err error) Outcome {
	return Outcome{ID: id, OK: false, Kind: domain.KindOf(err), Err: err}
}

func (c *Coordinator) observeItem(action Action, outcome Outcome) {
	if c.observer == nil {
		return
	}
	result := "ok"
	if !outcome.OK {
		result = string(outcome.Kind)
	}
	c.observer.ObserveBatchItem(action.Label(), result)
}

func (c *Coordinator) observeBatch(batch Batch) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveBatch(batch.Action.Label(), string(batch.Status), batch.Duration().Seconds())
}
