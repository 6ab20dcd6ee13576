package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	// Версия в order должна совпадать с сохранённой, после записи она увеличивается.
	Save(ctx context.Context, order Order) error
}

// MembershipRepository хранит состав корзины и избранного покупателей.
type MembershipRepository interface {
	// Add добавляет товар в набор. Повторное добавление не ошибка, версия не растёт.
	Add(ctx context.Context, kind MembershipKind, customerID, productID string) (MembershipSnapshot, error)
	// Remove удаляет товар из набора. Отсутствующий товар не ошибка.
	Remove(ctx context.Context, kind MembershipKind, customerID, productID string) (MembershipSnapshot, error)
	// Snapshot возвращает текущий снимок набора.
	Snapshot(ctx context.Context, kind MembershipKind, customerID string) (MembershipSnapshot, error)
}

// ProductCatalog — справочник товаров, нужный для проверок корзины.
type ProductCatalog interface {
	// Product возвращает товар или ErrProductNotFound.
	Product(ctx context.Context, id string) (Product, error)
}
