package bulk

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
)

type columnLog struct {
	mu      sync.Mutex
	entries []domain.OrderStatus
}

func (l *columnLog) record(_ string, column domain.OrderStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, column)
}

func (l *columnLog) all() []domain.OrderStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.OrderStatus(nil), l.entries...)
}

func TestBoard_MoveSucceeds(t *testing.T) {
	cache := NewOrderCache(testOrder("o1", domain.OrderStatusConfirmed))
	gateway := newFakeOrderGateway(cache)
	gateway.block = make(chan struct{})
	columns := &columnLog{}
	board := NewBoard(NewCoordinator(lifecycle.NewEngine(), WithOrders(cache, gateway)), columns.record)

	done := make(chan Batch)
	go func() {
		batch, err := board.Move(context.Background(), "o1", domain.OrderStatusProcessing, MoveOptions{})
		assert.NoError(t, err)
		done <- batch
	}()

	require.Eventually(t, func() bool {
		column, _ := board.Column("o1")
		return column == domain.OrderStatusProcessing
	}, timeout, tick, "card must move before the server answers")

	close(gateway.block)
	batch := <-done
	assert.Equal(t, BatchComplete, batch.Status)

	column, ok := board.Column("o1")
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusProcessing, column)
	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusProcessing}, columns.all())
	assert.Equal(t, []string{"o1"}, board.Columns()[domain.OrderStatusProcessing])
}

func TestBoard_MoveRevertsOnFailure(t *testing.T) {
	cases := []struct {
		name   string
		column domain.OrderStatus
		setup  func(g *fakeOrderGateway)
		kind   domain.ErrorKind
	}{
		{
			name:   "invalid transition",
			column: domain.OrderStatusDelivered,
			setup:  func(*fakeOrderGateway) {},
			kind:   domain.ErrorKindInvalidTransition,
		},
		{
			name:   "server conflict",
			column: domain.OrderStatusProcessing,
			setup: func(g *fakeOrderGateway) {
				g.failNext("o1", domain.NewInvalidTransitionError(domain.OrderStatusCanceled, domain.OrderStatusProcessing))
			},
			kind: domain.ErrorKindInvalidTransition,
		},
		{
			name:   "network",
			column: domain.OrderStatusProcessing,
			setup: func(g *fakeOrderGateway) {
				g.failNext("o1", domain.NewNetworkError("PATCH", errConnReset))
			},
			kind: domain.ErrorKindNetwork,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cache := NewOrderCache(testOrder("o1", domain.OrderStatusConfirmed))
			gateway := newFakeOrderGateway(cache)
			tc.setup(gateway)
			columns := &columnLog{}
			board := NewBoard(NewCoordinator(lifecycle.NewEngine(), WithOrders(cache, gateway)), columns.record)

			batch, err := board.Move(context.Background(), "o1", tc.column, MoveOptions{})
			require.NoError(t, err)
			assert.Equal(t, BatchFailed, batch.Status)
			assert.Equal(t, tc.kind, batch.Outcomes[0].Kind)

			column, _ := board.Column("o1")
			assert.Equal(t, domain.OrderStatusConfirmed, column)
			assert.Equal(t, []domain.OrderStatus{tc.column, domain.OrderStatusConfirmed}, columns.all())
		})
	}
}

func TestBoard_MoveToShippedCarriesShipment(t *testing.T) {
	cache := NewOrderCache(testOrder("o1", domain.OrderStatusProcessing))
	board := NewBoard(NewCoordinator(lifecycle.NewEngine(), WithOrders(cache, newFakeOrderGateway(cache))), nil)

	batch, err := board.Move(context.Background(), "o1", domain.OrderStatusShipped, MoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindValidation, batch.Outcomes[0].Kind)

	batch, err = board.Move(context.Background(), "o1", domain.OrderStatusShipped, MoveOptions{
		Shipment: &domain.Shipment{TrackingNumber: "1Z999", Carrier: "UPS"},
	})
	require.NoError(t, err)
	assert.Equal(t, BatchComplete, batch.Status)
	order, _ := cache.Order("o1")
	assert.Equal(t, "1Z999", order.TrackingNumber())
}

func TestBoard_MoveUnknownOrder(t *testing.T) {
	cache := NewOrderCache()
	board := NewBoard(NewCoordinator(nil, WithOrders(cache, newFakeOrderGateway(cache))), nil)

	_, err := board.Move(context.Background(), "nope", domain.OrderStatusConfirmed, MoveOptions{})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
