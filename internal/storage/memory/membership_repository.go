package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type membershipKey struct {
	kind       domain.MembershipKind
	customerID string
}

type membershipSet struct {
	items   map[string]struct{}
	version int64
}

// membershipRepositoryInMemory хранит корзины и избранное в памяти.
type membershipRepositoryInMemory struct {
	mu   sync.RWMutex
	sets map[membershipKey]*membershipSet
	now  func() time.Time
}

// NewMembershipRepository создаёт in-memory реализацию MembershipRepository.
func NewMembershipRepository() domain.MembershipRepository {
	return &membershipRepositoryInMemory{
		sets: make(map[membershipKey]*membershipSet),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *membershipRepositoryInMemory) Add(_ context.Context, kind domain.MembershipKind, customerID, productID string) (domain.MembershipSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.setLocked(kind, customerID)
	if _, ok := set.items[productID]; !ok {
		set.items[productID] = struct{}{}
		set.version++
	}
	return domain.NewMembershipSnapshot(kind, customerID, set.items, set.version, r.now()), nil
}

func (r *membershipRepositoryInMemory) Remove(_ context.Context, kind domain.MembershipKind, customerID, productID string) (domain.MembershipSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.setLocked(kind, customerID)
	if _, ok := set.items[productID]; ok {
		delete(set.items, productID)
		set.version++
	}
	return domain.NewMembershipSnapshot(kind, customerID, set.items, set.version, r.now()), nil
}

func (r *membershipRepositoryInMemory) Snapshot(_ context.Context, kind domain.MembershipKind, customerID string) (domain.MembershipSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[membershipKey{kind: kind, customerID: customerID}]
	if !ok {
		return domain.NewMembershipSnapshot(kind, customerID, nil, 0, r.now()), nil
	}
	return domain.NewMembershipSnapshot(kind, customerID, set.items, set.version, r.now()), nil
}

func (r *membershipRepositoryInMemory) setLocked(kind domain.MembershipKind, customerID string) *membershipSet {
	key := membershipKey{kind: kind, customerID: customerID}
	set, ok := r.sets[key]
	if !ok {
		set = &membershipSet{items: make(map[string]struct{})}
		r.sets[key] = set
	}
	return set
}

var _ domain.MembershipRepository = (*membershipRepositoryInMemory)(nil)

// Catalog — in-memory справочник товаров.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewCatalog создаёт справочник с начальным набором товаров.
func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Product возвращает товар или ErrProductNotFound.
func (c *Catalog) Product(_ context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// Upsert добавляет или обновляет товар.
func (c *Catalog) Upsert(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

var _ domain.ProductCatalog = (*Catalog)(nil)
