package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          "order-1",
		OrderNumber: "MP-1001",
		Status:      domain.OrderStatusPending,
		Customer:    domain.Customer{ID: "customer-1", Name: "Ann"},
		Currency:    "USD",
		TotalMinor:  500,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p-1", Qty: 5, PriceMinor: 100},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{name: "no order number", mut: func(o *domain.Order) { o.OrderNumber = "" }, want: domain.ErrOrderNumberRequired},
		{name: "no customer", mut: func(o *domain.Order) { o.Customer.ID = "" }, want: domain.ErrCustomerRequired},
		{name: "no currency", mut: func(o *domain.Order) { o.Currency = "" }, want: domain.ErrCurrencyRequired},
		{name: "negative amount", mut: func(o *domain.Order) { o.TotalMinor = -1 }, want: domain.ErrAmountNegative},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }, want: domain.ErrItemsRequired},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Qty = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[0].PriceMinor = -5 }, want: domain.ErrItemPriceInvalid},
		{name: "amount mismatch", mut: func(o *domain.Order) { o.TotalMinor = 999 }, want: domain.ErrAmountMismatch},
		{name: "unknown status", mut: func(o *domain.Order) { o.Status = "lost" }, want: domain.ErrStatusUnknown},
		{
			name: "tracking without carrier",
			mut: func(o *domain.Order) {
				o.Status = domain.OrderStatusShipped
				o.Shipment = &domain.Shipment{TrackingNumber: "1Z999"}
			},
			want: domain.ErrShipmentIncomplete,
		},
		{name: "shipped without shipment", mut: func(o *domain.Order) { o.Status = domain.OrderStatusShipped }, want: domain.ErrShipmentRequired},
		{
			name: "shipment before ship",
			mut: func(o *domain.Order) {
				o.Status = domain.OrderStatusConfirmed
				o.Shipment = &domain.Shipment{TrackingNumber: "1Z999", Carrier: "UPS"}
			},
			want: domain.ErrShipmentUnexpected,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	for _, status := range domain.OrderStatuses() {
		want := status == domain.OrderStatusDelivered || status == domain.OrderStatusCanceled
		if got := status.Terminal(); got != want {
			t.Fatalf("status %s: Terminal() = %v, want %v", status, got, want)
		}
		if !status.Valid() {
			t.Fatalf("status %s must be valid", status)
		}
	}
	if domain.OrderStatus("unknown").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestOrderClone_DoesNotShareState(t *testing.T) {
	eta := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	order := makeOrder()
	order.Status = domain.OrderStatusShipped
	order.Shipment = &domain.Shipment{TrackingNumber: "1Z999", Carrier: "UPS", EstimatedDelivery: &eta}

	clone := order.Clone()
	clone.Items[0].Qty = 42
	clone.Shipment.Carrier = "DHL"
	*clone.Shipment.EstimatedDelivery = eta.Add(24 * time.Hour)

	if order.Items[0].Qty != 5 {
		t.Fatalf("items shared with clone: qty=%d", order.Items[0].Qty)
	}
	if order.Carrier() != "UPS" {
		t.Fatalf("shipment shared with clone: carrier=%s", order.Carrier())
	}
	if !order.Shipment.EstimatedDelivery.Equal(eta) {
		t.Fatal("estimated delivery shared with clone")
	}
}

func TestMembershipSnapshot_Contains(t *testing.T) {
	set := map[string]struct{}{"p-2": {}, "p-1": {}}
	snap := domain.NewMembershipSnapshot(domain.MembershipCart, "c-1", set, 3, time.Now())

	if snap.Items[0] != "p-1" || snap.Items[1] != "p-2" {
		t.Fatalf("expected sorted items, got %v", snap.Items)
	}
	if !snap.Contains("p-2") || snap.Contains("p-3") {
		t.Fatalf("unexpected membership for %v", snap.Items)
	}
}

func TestEventTypeFor(t *testing.T) {
	cases := map[domain.OrderStatus]string{
		domain.OrderStatusConfirmed:      domain.EventOrderStatusChanged,
		domain.OrderStatusOutForDelivery: domain.EventOrderStatusChanged,
		domain.OrderStatusShipped:        domain.EventOrderShipped,
		domain.OrderStatusDelivered:      domain.EventOrderDelivered,
		domain.OrderStatusCanceled:       domain.EventOrderCanceled,
	}
	for status, want := range cases {
		if got := domain.EventTypeFor(status); got != want {
			t.Fatalf("EventTypeFor(%s) = %s, want %s", status, got, want)
		}
	}
	if got := domain.TimelineTypeFor(domain.OrderStatusShipped); got != domain.TimelineShipped {
		t.Fatalf("unexpected timeline type %s", got)
	}
}

func TestNewOrderEvent(t *testing.T) {
	order := domain.Order{
		ID:          "o1",
		OrderNumber: "MP-1",
		Status:      domain.OrderStatusShipped,
		Customer:    domain.Customer{ID: "c1"},
		Shipment:    &domain.Shipment{TrackingNumber: "1Z", Carrier: "UPS"},
		Version:     4,
	}
	ev := domain.NewOrderEvent(domain.EventOrderShipped, order, domain.OrderStatusProcessing, "packed")
	if ev.From != domain.OrderStatusProcessing || ev.To != domain.OrderStatusShipped {
		t.Fatalf("unexpected transition in event: %+v", ev)
	}
	if ev.TrackingNumber != "1Z" || ev.Carrier != "UPS" || ev.CustomerID != "c1" || ev.Version != 4 {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}
