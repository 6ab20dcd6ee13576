package domain

import "time"

// OrderStatus описывает стадию исполнения заказа продавцом.
type OrderStatus string

const (
	// OrderStatusPending: заказ оформлен покупателем и ждёт подтверждения продавца.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed: продавец принял заказ.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing: заказ комплектуется.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped: заказ передан перевозчику, трек-номер известен.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery: курьер везёт заказ покупателю.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered: заказ вручён. Конечный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled: заказ отменён. Конечный статус.
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderStatuses перечисляет все статусы в порядке движения заказа.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
		OrderStatusCanceled,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// RequiresShipment сообщает, что в этом статусе у заказа обязаны быть данные отгрузки.
func (s OrderStatus) RequiresShipment() bool {
	switch s {
	case OrderStatusShipped, OrderStatusOutForDelivery, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID string
	// ProductID идентификатор товара в каталоге.
	ProductID string
	Title     string
	Qty       int32
	// PriceMinor цена за единицу в минимальных денежных единицах.
	PriceMinor int64
}

// Customer описывает покупателя, оформившего заказ.
type Customer struct {
	ID    string
	Name  string
	Email string
}

// Address описывает адрес доставки.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Shipment хранит данные отгрузки. Трек-номер и перевозчик существуют только вместе,
// поэтому заказ держит их одним указателем.
type Shipment struct {
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
}

// Order агрегирует состояние заказа.
type Order struct {
	ID              string
	OrderNumber     string
	Status          OrderStatus
	Items           []OrderItem
	Customer        Customer
	ShippingAddress Address
	Shipment        *Shipment
	Currency        string
	TotalMinor      int64
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TrackingNumber возвращает трек-номер или пустую строку, если заказ не отгружен.
func (o Order) TrackingNumber() string {
	if o.Shipment == nil {
		return ""
	}
	return o.Shipment.TrackingNumber
}

// Carrier возвращает перевозчика или пустую строку.
func (o Order) Carrier() string {
	if o.Shipment == nil {
		return ""
	}
	return o.Shipment.Carrier
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if o.Customer.ID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}

	// Сумма заказа должна совпадать с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	if o.Shipment != nil && (o.Shipment.TrackingNumber == "" || o.Shipment.Carrier == "") {
		errs = append(errs, ErrShipmentIncomplete)
	}
	if o.Status.RequiresShipment() && o.Shipment == nil {
		errs = append(errs, ErrShipmentRequired)
	}
	if o.Shipment != nil && !o.Status.RequiresShipment() && o.Status != OrderStatusCanceled {
		errs = append(errs, ErrShipmentUnexpected)
	}

	return errs
}

// Clone возвращает копию заказа, не разделяющую срезы и указатели с оригиналом.
func (o Order) Clone() Order {
	clone := o
	if o.Items != nil {
		clone.Items = make([]OrderItem, len(o.Items))
		copy(clone.Items, o.Items)
	}
	if o.Shipment != nil {
		shipment := *o.Shipment
		if o.Shipment.EstimatedDelivery != nil {
			eta := *o.Shipment.EstimatedDelivery
			shipment.EstimatedDelivery = &eta
		}
		clone.Shipment = &shipment
	}
	return clone
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	Status     OrderStatus
	CustomerID string
	Limit      int
}
