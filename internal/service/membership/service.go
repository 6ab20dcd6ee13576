// Package membership управляет корзиной и избранным покупателя на сервере.
package membership

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Option настраивает Service.
type Option func(*Service)

// WithPublisher подключает рассылку снимков после каждого изменения.
func WithPublisher(publisher domain.SnapshotPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.FulfillmentMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service — авторитетный владелец составов корзины и избранного.
type Service struct {
	repo      domain.MembershipRepository
	catalog   domain.ProductCatalog
	publisher domain.SnapshotPublisher
	logger    *log.Entry
	metrics   *metrics.FulfillmentMetrics
}

// NewService создаёт сервис. catalog может быть nil, тогда товары не проверяются.
func NewService(repo domain.MembershipRepository, catalog domain.ProductCatalog, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: catalog,
		logger:  log.WithField("component", "membership"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add кладёт товар в набор. Закончившийся товар нельзя положить в корзину,
// в избранное можно.
func (s *Service) Add(ctx context.Context, kind domain.MembershipKind, customerID, productID string) (domain.MembershipSnapshot, error) {
	if err := validate(kind, customerID, productID); err != nil {
		return domain.MembershipSnapshot{}, err
	}
	if s.catalog != nil {
		product, err := s.catalog.Product(ctx, productID)
		if err != nil {
			return s.fail(kind, "add", err)
		}
		if kind == domain.MembershipCart && !product.InStock() {
			return s.fail(kind, "add", fmt.Errorf("%w: %s", domain.ErrOutOfStock, productID))
		}
	}

	snapshot, err := s.repo.Add(ctx, kind, customerID, productID)
	if err != nil {
		return s.fail(kind, "add", err)
	}
	s.changed(ctx, "add", productID, snapshot)
	return snapshot, nil
}

// Remove убирает товар из набора. Отсутствующий товар не ошибка.
func (s *Service) Remove(ctx context.Context, kind domain.MembershipKind, customerID, productID string) (domain.MembershipSnapshot, error) {
	if err := validate(kind, customerID, productID); err != nil {
		return domain.MembershipSnapshot{}, err
	}
	snapshot, err := s.repo.Remove(ctx, kind, customerID, productID)
	if err != nil {
		return s.fail(kind, "remove", err)
	}
	s.changed(ctx, "remove", productID, snapshot)
	return snapshot, nil
}

// Snapshot возвращает текущий состав набора.
func (s *Service) Snapshot(ctx context.Context, kind domain.MembershipKind, customerID string) (domain.MembershipSnapshot, error) {
	if !kind.Valid() {
		return domain.MembershipSnapshot{}, domain.NewValidationError("kind", fmt.Sprintf("unknown membership set %q", kind))
	}
	if strings.TrimSpace(customerID) == "" {
		return domain.MembershipSnapshot{}, domain.NewValidationError("customerId", "is required")
	}
	return s.repo.Snapshot(ctx, kind, customerID)
}

func (s *Service) changed(ctx context.Context, op, productID string, snapshot domain.MembershipSnapshot) {
	s.metrics.RecordMembershipChange(string(snapshot.Kind), op, "ok")
	entry := s.logger.WithFields(log.Fields{
		"set":         snapshot.Kind,
		"customer_id": snapshot.CustomerID,
		"product_id":  productID,
		"version":     snapshot.Version,
	})
	entry.Debugf("membership %s", op)

	if s.publisher == nil {
		return
	}
	// Рассылка best-effort: клиенты догонят состояние опросом.
	if err := s.publisher.PublishSnapshot(ctx, snapshot); err != nil {
		entry.WithError(err).Warn("publish snapshot failed")
	}
}

func (s *Service) fail(kind domain.MembershipKind, op string, err error) (domain.MembershipSnapshot, error) {
	s.metrics.RecordMembershipChange(string(kind), op, string(domain.KindOf(err)))
	return domain.MembershipSnapshot{}, err
}

func validate(kind domain.MembershipKind, customerID, productID string) error {
	if !kind.Valid() {
		return domain.NewValidationError("kind", fmt.Sprintf("unknown membership set %q", kind))
	}
	if strings.TrimSpace(customerID) == "" {
		return domain.NewValidationError("customerId", "is required")
	}
	if strings.TrimSpace(productID) == "" {
		return domain.NewValidationError("productId", "is required")
	}
	return nil
}
