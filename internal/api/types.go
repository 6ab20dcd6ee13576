// Package api описывает JSON-представление HTTP API fulfillment.
// Тот же формат используют сервер, клиент продавца и шина снимков.
package api

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// HeaderCustomerID передаёт идентификатор покупателя без аутентификации.
const HeaderCustomerID = "X-Customer-ID"

// Address описывает адрес доставки.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Customer описывает покупателя.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Item описывает позицию заказа.
type Item struct {
	ID         string `json:"id,omitempty"`
	ProductID  string `json:"productId"`
	Title      string `json:"title,omitempty"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"priceMinor"`
}

// Shipment содержит данные отгрузки.
type Shipment struct {
	TrackingNumber    string     `json:"trackingNumber"`
	Carrier           string     `json:"carrier"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// Order представляет заказ в ответах API.
type Order struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	Status          domain.OrderStatus `json:"status"`
	Customer        Customer           `json:"customer"`
	ShippingAddress Address            `json:"shippingAddress"`
	Items           []Item             `json:"items"`
	Shipment        *Shipment          `json:"shipment,omitempty"`
	Currency        string             `json:"currency"`
	TotalMinor      int64              `json:"totalMinor"`
	Version         int64              `json:"version"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// TimelineEvent описывает запись истории заказа.
type TimelineEvent struct {
	Type     string             `json:"type"`
	From     domain.OrderStatus `json:"from,omitempty"`
	To       domain.OrderStatus `json:"to"`
	Reason   string             `json:"reason,omitempty"`
	Occurred time.Time          `json:"occurred"`
}

// OrderDetails объединяет заказ и его историю.
type OrderDetails struct {
	Order    Order           `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

// OrderList отдаётся на GET /orders.
type OrderList struct {
	Orders []Order `json:"orders"`
}

// CreateOrderRequest тело POST /orders.
type CreateOrderRequest struct {
	OrderNumber     string   `json:"orderNumber"`
	Customer        Customer `json:"customer"`
	ShippingAddress Address  `json:"shippingAddress"`
	Currency        string   `json:"currency"`
	Items           []Item   `json:"items"`
}

// StatusRequest тело PATCH /orders/{id}/status.
type StatusRequest struct {
	Status   domain.OrderStatus `json:"status"`
	Note     string             `json:"note,omitempty"`
	Shipment *Shipment          `json:"shipment,omitempty"`
}

// ShipRequest тело PATCH /orders/{id}/ship.
type ShipRequest struct {
	TrackingNumber    string     `json:"trackingNumber"`
	Carrier           string     `json:"carrier"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// BulkStatusRequest тело POST /orders/bulk-status.
type BulkStatusRequest struct {
	IDs       []string            `json:"ids"`
	Status    domain.OrderStatus  `json:"status"`
	Note      string              `json:"note,omitempty"`
	Shipments map[string]Shipment `json:"shipments,omitempty"`
}

// BulkResult описывает исход одного заказа в массовой операции.
// Error несёт класс ошибки (InvalidTransition, NotFound, ...), Message её текст.
type BulkResult struct {
	ID      string           `json:"id"`
	OK      bool             `json:"ok"`
	Error   domain.ErrorKind `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
	Order   *Order           `json:"order,omitempty"`
}

// BulkStatusResponse отдаётся с кодом 207 на массовую смену статуса.
type BulkStatusResponse struct {
	BatchID string       `json:"batchId"`
	Status  string       `json:"status"`
	Results []BulkResult `json:"results"`
}

// Snapshot описывает состав корзины или избранного.
type Snapshot struct {
	Kind       domain.MembershipKind `json:"kind"`
	CustomerID string                `json:"customerId"`
	Items      []string              `json:"items"`
	Version    int64                 `json:"version"`
	TakenAt    time.Time             `json:"takenAt"`
}

// Error тело ответа с ошибкой.
type Error struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}
