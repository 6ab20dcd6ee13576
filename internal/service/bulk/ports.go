package bulk

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// OrderSource — локальная копия заказов, с которой работает продавец.
type OrderSource interface {
	Order(id string) (domain.Order, bool)
	Orders() []domain.Order
	Put(order domain.Order)
}

// LoadErrors — необязательное расширение OrderSource: причина, по которой
// заказа нет в источнике. nil означает, что заказ действительно не найден.
type LoadErrors interface {
	LoadErr(id string) error
}

// StatusRequest — запрос на смену статуса, уже проверенный движком переходов.
type StatusRequest struct {
	Status   domain.OrderStatus
	Note     string
	Shipment *domain.Shipment
}

// OrderGateway отправляет проверенный переход авторитетному серверу.
type OrderGateway interface {
	UpdateStatus(ctx context.Context, orderID string, req StatusRequest) (domain.Order, error)
}

// MembershipGateway изменяет корзину и избранное на сервере.
type MembershipGateway interface {
	Add(ctx context.Context, kind domain.MembershipKind, productID string) error
	Remove(ctx context.Context, kind domain.MembershipKind, productID string) error
}

// Observer получает сведения для метрик.
type Observer interface {
	ObserveBatchItem(action, result string)
	ObserveBatch(action string, status string, seconds float64)
}

// OrderCache — потокобезопасная реализация OrderSource в памяти.
type OrderCache struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	loadErrs map[string]error
}

// NewOrderCache создаёт кеш, заполненный orders.
func NewOrderCache(orders ...domain.Order) *OrderCache {
	cache := &OrderCache{orders: make(map[string]domain.Order, len(orders))}
	for _, order := range orders {
		cache.orders[order.ID] = order.Clone()
	}
	return cache
}

// Order возвращает копию заказа.
func (c *OrderCache) Order(id string) (domain.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, ok := c.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return order.Clone(), true
}

// Orders возвращает все заказы, новые первыми.
func (c *OrderCache) Orders() []domain.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Order, 0, len(c.orders))
	for _, order := range c.orders {
		result = append(result, order.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Put сохраняет заказ. Более старая версия не перетирает более новую.
func (c *OrderCache) Put(order domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.orders[order.ID]; ok && current.Version > order.Version {
		return
	}
	c.orders[order.ID] = order.Clone()
	delete(c.loadErrs, order.ID)
}

// Fail запоминает, что заказ id не удалось загрузить.
func (c *OrderCache) Fail(id string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loadErrs == nil {
		c.loadErrs = make(map[string]error)
	}
	c.loadErrs[id] = err
}

// LoadErr возвращает ошибку загрузки, сохранённую через Fail.
func (c *OrderCache) LoadErr(id string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadErrs[id]
}

// Replace заменяет содержимое кеша целиком.
func (c *OrderCache) Replace(orders []domain.Order) {
	next := make(map[string]domain.Order, len(orders))
	for _, order := range orders {
		next[order.ID] = order.Clone()
	}

	c.mu.Lock()
	c.orders = next
	c.loadErrs = nil
	c.mu.Unlock()
}

var (
	_ OrderSource = (*OrderCache)(nil)
	_ LoadErrors  = (*OrderCache)(nil)
)
