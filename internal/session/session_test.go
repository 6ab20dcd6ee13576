package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/httpapi"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/membership"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type backend struct {
	url    string
	orders *fulfillment.Service
}

func newBackend(t *testing.T) backend {
	t.Helper()
	orders := fulfillment.NewService(memory.NewOrderRepository(), memory.NewTimelineRepository(), nil)
	catalog := memory.NewCatalog(domain.Product{ID: "mug", Stock: 2}, domain.Product{ID: "lamp", Stock: 0})
	members := membership.NewService(memory.NewMembershipRepository(), catalog)
	srv := httptest.NewServer(httpapi.NewServer(orders, members).Handler())
	t.Cleanup(srv.Close)
	return backend{url: srv.URL, orders: orders}
}

func (b backend) order(t *testing.T, number string) domain.Order {
	t.Helper()
	order, err := b.orders.Create(context.Background(), fulfillment.CreateOrderInput{
		OrderNumber: number,
		Customer:    domain.Customer{ID: "cust-1"},
		Currency:    "USD",
		Items:       []domain.OrderItem{{ProductID: "mug", Qty: 1, PriceMinor: 900}},
	})
	require.NoError(t, err)
	return order
}

func open(t *testing.T, b backend, opts ...Option) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = b.url
	cfg.CustomerID = "cust-1"
	cfg.DisablePolling = true
	cfg.Retry.InitialDelay = 0

	logger, _ := test.NewNullLogger()
	s, err := Open(context.Background(), cfg, append([]Option{WithLogger(log.NewEntry(logger))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenLoadsOrders(t *testing.T) {
	b := newBackend(t)
	order := b.order(t, "SO-1")

	s := open(t, b)
	got, ok := s.Orders().Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestOpenRejectsBadCancelPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CancelFrom = "delivered"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBulkStatusAndShip(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	first := b.order(t, "SO-1")
	second := b.order(t, "SO-2")
	s := open(t, b)

	batch, err := s.BulkStatus(ctx, []string{first.ID, second.ID}, bulk.StatusAction{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, bulk.BatchComplete, batch.Status)

	batch, err = s.Ship(ctx, first.ID, "TRK-1", "UPS", nil)
	require.NoError(t, err)
	require.Len(t, batch.Outcomes, 1)
	assert.True(t, batch.Outcomes[0].OK)

	local, ok := s.Orders().Order(first.ID)
	require.True(t, ok)
	assert.Equal(t, "TRK-1", local.TrackingNumber())

	// Недопустимый переход отклоняется локально.
	batch, err = s.Deliver(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindInvalidTransition, batch.Outcomes[0].Kind)
}

func TestOrderCreatedAfterOpenIsFetched(t *testing.T) {
	b := newBackend(t)
	s := open(t, b)
	late := b.order(t, "SO-late")

	batch, err := s.BulkStatus(context.Background(), []string{late.ID}, bulk.StatusAction{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.True(t, batch.Outcomes[0].OK)
}

func TestMoveNotifiesBoard(t *testing.T) {
	b := newBackend(t)
	order := b.order(t, "SO-1")

	var mu sync.Mutex
	var columns []domain.OrderStatus
	s := open(t, b, WithBoardListener(func(_ string, column domain.OrderStatus) {
		mu.Lock()
		columns = append(columns, column)
		mu.Unlock()
	}))

	_, err := s.Move(context.Background(), order.ID, domain.OrderStatusConfirmed, bulk.MoveOptions{})
	require.NoError(t, err)

	column, ok := s.Board().Column(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusConfirmed, column)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, columns)
}

func TestMembershipReconcilesThroughPoll(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := open(t, b)
	cart, ok := s.Set(domain.MembershipCart)
	require.True(t, ok)

	batch, err := s.Membership(ctx, []string{"mug", "lamp"}, bulk.MembershipAction{Kind: domain.MembershipCart, Direction: bulk.DirectionAdd})
	require.NoError(t, err)
	assert.Equal(t, bulk.BatchPartial, batch.Status)

	assert.True(t, cart.Effective("mug"))
	assert.False(t, cart.Effective("lamp"), "failed add must roll back")

	report, err := s.PollNow(ctx, domain.MembershipCart)
	require.NoError(t, err)
	assert.Equal(t, []string{"mug"}, report.Reconciled)
	assert.Equal(t, []string{"mug"}, cart.Members())

	_, err = s.PollNow(ctx, "basket")
	assert.Equal(t, domain.ErrorKindValidation, domain.KindOf(err))
}

func TestCloseResetsState(t *testing.T) {
	b := newBackend(t)
	b.order(t, "SO-1")
	s := open(t, b)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Empty(t, s.Orders().Orders())
	wishlist, _ := s.Set(domain.MembershipWishlist)
	assert.Empty(t, wishlist.Intents())
}

func TestPollingOutlivesOpenContext(t *testing.T) {
	orders := fulfillment.NewService(memory.NewOrderRepository(), memory.NewTimelineRepository(), nil)
	members := membership.NewService(memory.NewMembershipRepository(), memory.NewCatalog())
	api := httpapi.NewServer(orders, members).Handler()

	var cartPolls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/cart" {
			cartPolls.Add(1)
		}
		api.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.CustomerID = "cust-1"
	cfg.PollSchedule = "@every 1s"

	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, cfg, WithLogger(log.NewEntry(logger)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// контекст запроса, открывшего сессию, закончился
	cancel()
	initial := cartPolls.Load()
	require.GreaterOrEqual(t, initial, int32(1))

	require.Eventually(t, func() bool {
		return cartPolls.Load() > initial
	}, 3*time.Second, 50*time.Millisecond, "scheduled polling stopped with the caller's context")

	require.NoError(t, s.Close())
	stopped := cartPolls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, stopped, cartPolls.Load(), "Close stops polling")
}
