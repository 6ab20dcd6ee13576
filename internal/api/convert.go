package api

import "github.com/vladislavdragonenkov/fulfillment/internal/domain"

// FromOrder переводит доменный заказ в JSON-представление.
func FromOrder(o domain.Order) Order {
	out := Order{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Customer:    Customer{ID: o.Customer.ID, Name: o.Customer.Name, Email: o.Customer.Email},
		ShippingAddress: Address{
			Line1:      o.ShippingAddress.Line1,
			Line2:      o.ShippingAddress.Line2,
			City:       o.ShippingAddress.City,
			Region:     o.ShippingAddress.Region,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		Items:      FromItems(o.Items),
		Currency:   o.Currency,
		TotalMinor: o.TotalMinor,
		Version:    o.Version,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if o.Shipment != nil {
		shipment := FromShipment(*o.Shipment)
		out.Shipment = &shipment
	}
	return out
}

// Domain переводит заказ обратно в доменную модель.
func (o Order) Domain() domain.Order {
	out := domain.Order{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Customer:    o.Customer.Domain(),
		ShippingAddress: domain.Address{
			Line1:      o.ShippingAddress.Line1,
			Line2:      o.ShippingAddress.Line2,
			City:       o.ShippingAddress.City,
			Region:     o.ShippingAddress.Region,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		Items:      ItemsDomain(o.Items),
		Currency:   o.Currency,
		TotalMinor: o.TotalMinor,
		Version:    o.Version,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if o.Shipment != nil {
		shipment := o.Shipment.Domain()
		out.Shipment = &shipment
	}
	return out
}

// FromOrders переводит список заказов.
func FromOrders(orders []domain.Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	return out
}

// Domain переводит покупателя в доменную модель.
func (c Customer) Domain() domain.Customer {
	return domain.Customer{ID: c.ID, Name: c.Name, Email: c.Email}
}

// Domain переводит адрес в доменную модель.
func (a Address) Domain() domain.Address {
	return domain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// FromItems переводит позиции заказа.
func FromItems(items []domain.OrderItem) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{ID: it.ID, ProductID: it.ProductID, Title: it.Title, Qty: it.Qty, PriceMinor: it.PriceMinor})
	}
	return out
}

// ItemsDomain переводит позиции в доменную модель.
func ItemsDomain(items []Item) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.OrderItem{ID: it.ID, ProductID: it.ProductID, Title: it.Title, Qty: it.Qty, PriceMinor: it.PriceMinor})
	}
	return out
}

// FromShipment переводит данные отгрузки.
func FromShipment(s domain.Shipment) Shipment {
	return Shipment{TrackingNumber: s.TrackingNumber, Carrier: s.Carrier, EstimatedDelivery: s.EstimatedDelivery}
}

// Domain переводит данные отгрузки в доменную модель.
func (s Shipment) Domain() domain.Shipment {
	return domain.Shipment{TrackingNumber: s.TrackingNumber, Carrier: s.Carrier, EstimatedDelivery: s.EstimatedDelivery}
}

// FromTimeline переводит историю заказа.
func FromTimeline(events []domain.TimelineEvent) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineEvent{Type: e.Type, From: e.From, To: e.To, Reason: e.Reason, Occurred: e.Occurred})
	}
	return out
}

// FromSnapshot переводит снимок набора.
func FromSnapshot(s domain.MembershipSnapshot) Snapshot {
	items := s.Items
	if items == nil {
		items = []string{}
	}
	return Snapshot{Kind: s.Kind, CustomerID: s.CustomerID, Items: items, Version: s.Version, TakenAt: s.TakenAt}
}

// Domain переводит снимок в доменную модель.
func (s Snapshot) Domain() domain.MembershipSnapshot {
	items := make([]string, len(s.Items))
	copy(items, s.Items)
	return domain.MembershipSnapshot{Kind: s.Kind, CustomerID: s.CustomerID, Items: items, Version: s.Version, TakenAt: s.TakenAt}
}
