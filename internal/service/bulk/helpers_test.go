package bulk

import (
	"context"
	"errors"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

var errConnReset = errors.New("connection reset by peer")

func testOrder(id string, status domain.OrderStatus) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: "MP-" + id,
		Status:      status,
		Customer:    domain.Customer{ID: "c1"},
		Currency:    "USD",
		TotalMinor:  100,
		Items:       []domain.OrderItem{{ID: "i-" + id, ProductID: "p1", Qty: 1, PriceMinor: 100}},
		Version:     1,
	}
	if status.RequiresShipment() {
		order.Shipment = &domain.Shipment{TrackingNumber: "TRK-" + id, Carrier: "UPS"}
	}
	return order
}

// fakeOrderGateway изображает сервер: применяет запрос и увеличивает версию.
type fakeOrderGateway struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	block    chan struct{}
	source   OrderSource
}

func newFakeOrderGateway(source OrderSource) *fakeOrderGateway {
	return &fakeOrderGateway{calls: map[string]int{}, failures: map[string][]error{}, source: source}
}

func (g *fakeOrderGateway) failNext(id string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[id] = append(g.failures[id], errs...)
}

func (g *fakeOrderGateway) UpdateStatus(ctx context.Context, id string, req StatusRequest) (domain.Order, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		}
	}

	g.mu.Lock()
	g.calls[id]++
	if queue := g.failures[id]; len(queue) > 0 {
		err := queue[0]
		g.failures[id] = queue[1:]
		g.mu.Unlock()
		return domain.Order{}, err
	}
	g.mu.Unlock()

	order, ok := g.source.Order(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Status = req.Status
	if req.Shipment != nil {
		order.Shipment = req.Shipment
	}
	order.Version++
	return order, nil
}

func (g *fakeOrderGateway) callCount(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

type fakeMembershipGateway struct {
	mu      sync.Mutex
	members map[domain.MembershipKind]map[string]bool
	errs    map[string]error
	calls   int
}

func newFakeMembershipGateway() *fakeMembershipGateway {
	return &fakeMembershipGateway{
		members: map[domain.MembershipKind]map[string]bool{
			domain.MembershipCart:     {},
			domain.MembershipWishlist: {},
		},
		errs: map[string]error{},
	}
}

func (g *fakeMembershipGateway) Add(_ context.Context, kind domain.MembershipKind, id string) error {
	return g.apply(kind, id, true)
}

func (g *fakeMembershipGateway) Remove(_ context.Context, kind domain.MembershipKind, id string) error {
	return g.apply(kind, id, false)
}

func (g *fakeMembershipGateway) apply(kind domain.MembershipKind, id string, present bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err, ok := g.errs[id]; ok {
		delete(g.errs, id)
		return err
	}
	if present {
		g.members[kind][id] = true
	} else {
		delete(g.members[kind], id)
	}
	return nil
}

func (g *fakeMembershipGateway) snapshot(kind domain.MembershipKind) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make([]string, 0, len(g.members[kind]))
	for id := range g.members[kind] {
		result = append(result, id)
	}
	return result
}
