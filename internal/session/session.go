// Package session собирает клиентское состояние продавца на время входа:
// движок переходов, намерения корзины и избранного, локальные заказы,
// массовые операции, доску и доставку снимков. Close освобождает всё при выходе.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/client"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/realtime"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/optimistic"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/snapshot"
)

// Config — параметры сессии.
type Config struct {
	BaseURL    string
	CustomerID string
	// CancelFrom: статусы, из которых разрешена отмена, через запятую.
	// Пустое значение оставляет политику по умолчанию.
	CancelFrom      string
	PollSchedule    string
	StalenessWindow int
	BulkLimit       int
	Retry           bulk.RetryConfig
	// RedisAddr включает push-доставку снимков. Если пусто, работает только опрос.
	RedisAddr   string
	HTTPTimeout time.Duration
	// DisablePolling отключает опрос по расписанию (снимки только из push или PollNow).
	DisablePolling bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		PollSchedule:    snapshot.DefaultSchedule,
		StalenessWindow: optimistic.DefaultStalenessWindow,
		BulkLimit:       bulk.DefaultLimit,
		Retry:           bulk.DefaultRetryConfig(),
		HTTPTimeout:     15 * time.Second,
	}
}

// Option настраивает Session.
type Option func(*options)

type options struct {
	logger   *log.Entry
	metrics  *metrics.FulfillmentMetrics
	bus      *realtime.Bus
	client   []client.Option
	onChange func(orderID string, column domain.OrderStatus)
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics подключает метрики ко всем компонентам сессии.
func WithMetrics(m *metrics.FulfillmentMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBus использует готовую шину снимков. Сессия её не закрывает.
func WithBus(bus *realtime.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithClientOptions передаёт опции HTTP клиенту.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) { o.client = append(o.client, opts...) }
}

// WithBoardListener подписывает на изменения колонок доски.
func WithBoardListener(fn func(orderID string, column domain.OrderStatus)) Option {
	return func(o *options) { o.onChange = fn }
}

// Session — экземпляр клиентского состояния одного входа.
type Session struct {
	cfg     Config
	logger  *log.Entry
	client  *client.Client
	engine  *lifecycle.Engine
	sets    map[domain.MembershipKind]*optimistic.Coordinator
	orders  *bulk.OrderCache
	bulk    *bulk.Coordinator
	board   *bulk.Board
	retrier *bulk.Retrier
	pollers map[domain.MembershipKind]*snapshot.Poller

	bus     *realtime.Bus
	ownsBus bool
	subs    []*realtime.Subscription

	closeOnce sync.Once
	closeErr  error
}

// Open собирает сессию, загружает заказы и запускает доставку снимков.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.WithField("component", "session")
	}
	logger = logger.WithField("customer_id", cfg.CustomerID)

	policy := lifecycle.DefaultCancelPolicy()
	if cfg.CancelFrom != "" {
		parsed, err := lifecycle.ParseCancelPolicy(cfg.CancelFrom)
		if err != nil {
			return nil, err
		}
		policy = parsed
	}

	clientOpts := append([]client.Option{client.WithLogger(logger)}, o.client...)
	if cfg.HTTPTimeout > 0 {
		clientOpts = append([]client.Option{client.WithHTTPClient(newHTTPClient(cfg.HTTPTimeout))}, clientOpts...)
	}
	apiClient, err := client.New(cfg.BaseURL, cfg.CustomerID, clientOpts...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		client:  apiClient,
		engine:  lifecycle.NewEngine(lifecycle.WithCancelPolicy(policy)),
		sets:    make(map[domain.MembershipKind]*optimistic.Coordinator, 2),
		orders:  bulk.NewOrderCache(),
		pollers: make(map[domain.MembershipKind]*snapshot.Poller, 2),
	}

	for _, kind := range []domain.MembershipKind{domain.MembershipCart, domain.MembershipWishlist} {
		setOpts := []optimistic.Option{
			optimistic.WithStalenessWindow(cfg.StalenessWindow),
			optimistic.WithLogger(logger.WithField("component", "optimistic")),
		}
		if o.metrics != nil {
			setOpts = append(setOpts, optimistic.WithObserver(o.metrics))
		}
		s.sets[kind] = optimistic.NewCoordinator(string(kind), setOpts...)
	}

	bulkOpts := []bulk.Option{
		bulk.WithOrders(s.orders, apiClient),
		bulk.WithMembership(apiClient, s.sets[domain.MembershipCart], s.sets[domain.MembershipWishlist]),
		bulk.WithLimit(cfg.BulkLimit),
		bulk.WithLogger(logger.WithField("component", "bulk-coordinator")),
	}
	if o.metrics != nil {
		bulkOpts = append(bulkOpts, bulk.WithObserver(o.metrics))
	}
	s.bulk = bulk.NewCoordinator(s.engine, bulkOpts...)
	s.board = bulk.NewBoard(s.bulk, o.onChange)
	s.retrier = bulk.NewRetrier(s.bulk, cfg.Retry, logger.WithField("component", "bulk-retrier"))

	for kind, set := range s.sets {
		pollerOpts := []snapshot.Option{
			snapshot.WithSchedule(cfg.PollSchedule),
			snapshot.WithLogger(logger.WithField("component", "snapshot-poller")),
		}
		if o.metrics != nil {
			pollerOpts = append(pollerOpts, snapshot.WithObserver(o.metrics))
		}
		s.pollers[kind] = snapshot.NewPoller(apiClient, set, pollerOpts...)
	}

	if err := s.RefreshOrders(ctx); err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	if err := s.startPush(ctx, o.bus); err != nil {
		s.logger.WithError(err).Warn("snapshot push disabled, falling back to polling")
	}

	for kind, poller := range s.pollers {
		if cfg.DisablePolling {
			if _, err := poller.PollNow(ctx); err != nil {
				s.logger.WithError(err).WithField("set", kind).Warn("initial snapshot fetch failed")
			}
			continue
		}
		// Опрос живёт до Close, а не до ctx вызывающего.
		if err := poller.Start(context.WithoutCancel(ctx)); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.logger.Info("session opened")
	return s, nil
}

func (s *Session) startPush(ctx context.Context, bus *realtime.Bus) error {
	if bus == nil {
		if s.cfg.RedisAddr == "" {
			return nil
		}
		connected, err := realtime.Connect(ctx, s.cfg.RedisAddr, s.logger.WithField("component", "snapshot-bus"))
		if err != nil {
			return err
		}
		bus = connected
		s.ownsBus = true
	}
	s.bus = bus

	for kind, poller := range s.pollers {
		poller := poller
		sub, err := bus.Subscribe(context.WithoutCancel(ctx), kind, s.cfg.CustomerID, func(snap domain.MembershipSnapshot) {
			poller.Ingest(snap, snapshot.SourcePush)
		})
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// Engine возвращает движок переходов сессии.
func (s *Session) Engine() *lifecycle.Engine { return s.engine }

// Client возвращает HTTP клиент сессии.
func (s *Session) Client() *client.Client { return s.client }

// Orders возвращает локальные заказы.
func (s *Session) Orders() *bulk.OrderCache { return s.orders }

// Bulk возвращает координатор массовых операций.
func (s *Session) Bulk() *bulk.Coordinator { return s.bulk }

// Board возвращает канбан-доску.
func (s *Session) Board() *bulk.Board { return s.board }

// Set возвращает координатор намерений набора.
func (s *Session) Set(kind domain.MembershipKind) (*optimistic.Coordinator, bool) {
	set, ok := s.sets[kind]
	return set, ok
}

// RefreshOrders заменяет локальные заказы серверным списком.
func (s *Session) RefreshOrders(ctx context.Context) error {
	orders, err := s.client.ListOrders(ctx, domain.OrderFilter{})
	if err != nil {
		return err
	}
	s.orders.Replace(orders)
	return nil
}

// PollNow немедленно запрашивает снимок набора.
func (s *Session) PollNow(ctx context.Context, kind domain.MembershipKind) (optimistic.IngestReport, error) {
	poller, ok := s.pollers[kind]
	if !ok {
		return optimistic.IngestReport{}, domain.NewValidationError("kind", fmt.Sprintf("unknown membership set %q", kind))
	}
	return poller.PollNow(ctx)
}

// BulkStatus применяет смену статуса и повторяет элементы с сетевыми ошибками.
func (s *Session) BulkStatus(ctx context.Context, ids []string, action bulk.StatusAction) (bulk.Batch, error) {
	s.ensureOrders(ctx, ids)
	batch, err := s.bulk.ApplyStatus(ctx, ids, action)
	if err != nil {
		return batch, err
	}
	return s.retrier.RetryStatus(ctx, batch, action)
}

// Ship отгружает один заказ через ту же проверку, что и массовые операции.
func (s *Session) Ship(ctx context.Context, id, trackingNumber, carrier string, eta *time.Time) (bulk.Batch, error) {
	return s.BulkStatus(ctx, []string{id}, bulk.StatusAction{
		Status:    domain.OrderStatusShipped,
		Shipments: map[string]domain.Shipment{id: {TrackingNumber: trackingNumber, Carrier: carrier, EstimatedDelivery: eta}},
	})
}

// Deliver отмечает заказ вручённым.
func (s *Session) Deliver(ctx context.Context, id string) (bulk.Batch, error) {
	return s.BulkStatus(ctx, []string{id}, bulk.StatusAction{Status: domain.OrderStatusDelivered})
}

// Move переносит карточку заказа на доске.
func (s *Session) Move(ctx context.Context, id string, column domain.OrderStatus, opts bulk.MoveOptions) (bulk.Batch, error) {
	s.ensureOrders(ctx, []string{id})
	return s.board.Move(ctx, id, column, opts)
}

// Membership меняет членство товаров в наборе и повторяет сетевые сбои.
func (s *Session) Membership(ctx context.Context, ids []string, action bulk.MembershipAction) (bulk.Batch, error) {
	batch, err := s.bulk.ApplyMembership(ctx, ids, action)
	if err != nil {
		return batch, err
	}
	return s.retrier.RetryMembership(ctx, batch, action)
}

// ensureOrders догружает заказы, которых нет в локальной копии.
// Ошибки не возвращаются: отсутствующий заказ станет NotFound в батче.
func (s *Session) ensureOrders(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, ok := s.orders.Order(id); ok {
			continue
		}
		order, _, err := s.client.GetOrder(ctx, id)
		if err != nil {
			continue
		}
		s.orders.Put(order)
	}
}

// Close останавливает опрос и подписки и сбрасывает намерения.
// Повторный вызов возвращает результат первого.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, poller := range s.pollers {
			poller.Stop()
		}
		for _, sub := range s.subs {
			if err := sub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.ownsBus {
			if err := s.bus.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, set := range s.sets {
			set.Reset()
		}
		s.orders.Replace(nil)
		s.closeErr = errors.Join(errs...)
		s.logger.Info("session closed")
	})
	return s.closeErr
}
