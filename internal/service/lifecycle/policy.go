package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// CancelPolicy задаёт статусы, из которых разрешена отмена заказа.
// Конечные статусы в политику не попадают никогда.
type CancelPolicy struct {
	from map[domain.OrderStatus]struct{}
}

// DefaultCancelPolicy разрешает отмену до передачи заказа перевозчику.
func DefaultCancelPolicy() CancelPolicy {
	policy, _ := NewCancelPolicy(
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
	)
	return policy
}

// NewCancelPolicy строит политику из явного списка статусов.
func NewCancelPolicy(from ...domain.OrderStatus) (CancelPolicy, error) {
	policy := CancelPolicy{from: make(map[domain.OrderStatus]struct{}, len(from))}
	for _, status := range from {
		if !status.Valid() {
			return CancelPolicy{}, domain.NewValidationError("cancel_from", fmt.Sprintf("unknown status %q", status))
		}
		if status.Terminal() {
			return CancelPolicy{}, domain.NewValidationError("cancel_from", fmt.Sprintf("terminal status %q cannot be canceled", status))
		}
		policy.from[status] = struct{}{}
	}
	return policy, nil
}

// ParseCancelPolicy разбирает список статусов через запятую, например "pending,confirmed".
// Пустая строка означает политику по умолчанию.
func ParseCancelPolicy(raw string) (CancelPolicy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultCancelPolicy(), nil
	}

	parts := strings.Split(raw, ",")
	statuses := make([]domain.OrderStatus, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		statuses = append(statuses, domain.OrderStatus(part))
	}
	return NewCancelPolicy(statuses...)
}

// Allows сообщает, можно ли отменить заказ в статусе status.
func (p CancelPolicy) Allows(status domain.OrderStatus) bool {
	_, ok := p.from[status]
	return ok
}

// From возвращает разрешённые статусы в порядке движения заказа.
func (p CancelPolicy) From() []domain.OrderStatus {
	result := make([]domain.OrderStatus, 0, len(p.from))
	for status := range p.from {
		result = append(result, status)
	}
	order := statusRank()
	sort.Slice(result, func(i, j int) bool {
		return order[result[i]] < order[result[j]]
	})
	return result
}

func (p CancelPolicy) String() string {
	from := p.From()
	parts := make([]string, len(from))
	for i, status := range from {
		parts[i] = string(status)
	}
	return strings.Join(parts, ",")
}

func statusRank() map[domain.OrderStatus]int {
	statuses := domain.OrderStatuses()
	rank := make(map[domain.OrderStatus]int, len(statuses))
	for i, status := range statuses {
		rank[status] = i
	}
	return rank
}
