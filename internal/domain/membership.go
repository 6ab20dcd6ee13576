package domain

import (
	"sort"
	"time"
)

// MembershipKind — тип набора, в котором покупатель отмечает товары.
type MembershipKind string

const (
	MembershipCart     MembershipKind = "cart"
	MembershipWishlist MembershipKind = "wishlist"
)

// Valid проверяет, что тип набора поддерживается.
func (k MembershipKind) Valid() bool {
	return k == MembershipCart || k == MembershipWishlist
}

// Product — минимальная карточка товара для проверок корзины.
type Product struct {
	ID    string
	Title string
	Stock int
}

// InStock сообщает, можно ли положить товар в корзину.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// MembershipSnapshot — авторитетный состав набора на сервере.
// Version растёт с каждым изменением; 0 означает снимок без версии.
type MembershipSnapshot struct {
	Kind       MembershipKind
	CustomerID string
	Items      []string
	Version    int64
	TakenAt    time.Time
}

// Contains проверяет, входит ли товар в снимок.
func (s MembershipSnapshot) Contains(productID string) bool {
	for _, id := range s.Items {
		if id == productID {
			return true
		}
	}
	return false
}

// NewMembershipSnapshot собирает снимок из множества, сортируя элементы.
func NewMembershipSnapshot(kind MembershipKind, customerID string, set map[string]struct{}, version int64, takenAt time.Time) MembershipSnapshot {
	items := make([]string, 0, len(set))
	for id := range set {
		items = append(items, id)
	}
	sort.Strings(items)
	return MembershipSnapshot{
		Kind:       kind,
		CustomerID: customerID,
		Items:      items,
		Version:    version,
		TakenAt:    takenAt,
	}
}
