package bulk

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MoveOptions дополняет перенос карточки.
type MoveOptions struct {
	Note string
	// Shipment нужен при переносе в колонку shipped.
	Shipment *domain.Shipment
}

// placement — временное положение карточки до ответа сервера.
type placement struct {
	column domain.OrderStatus
	seq    uint64
}

// Board — канбан-доска заказов. Колонка карточки совпадает со статусом заказа,
// кроме карточек, перенесённых и ещё не подтверждённых сервером.
type Board struct {
	coordinator *Coordinator
	onChange    func(orderID string, column domain.OrderStatus)

	mu         sync.Mutex
	seq        uint64
	placements map[string]placement
}

// NewBoard создаёт доску поверх координатора. onChange вызывается при каждом
// изменении колонки карточки, включая возврат после неудачи.
func NewBoard(coordinator *Coordinator, onChange func(orderID string, column domain.OrderStatus)) *Board {
	return &Board{
		coordinator: coordinator,
		onChange:    onChange,
		placements:  make(map[string]placement),
	}
}

// Column возвращает колонку, в которой сейчас отображается карточка.
func (b *Board) Column(orderID string) (domain.OrderStatus, bool) {
	b.mu.Lock()
	p, moved := b.placements[orderID]
	b.mu.Unlock()
	if moved {
		return p.column, true
	}

	order, ok := b.coordinator.Orders().Order(orderID)
	if !ok {
		return "", false
	}
	return order.Status, true
}

// Columns раскладывает все заказы по колонкам.
func (b *Board) Columns() map[domain.OrderStatus][]string {
	orders := b.coordinator.Orders().Orders()

	b.mu.Lock()
	defer b.mu.Unlock()

	columns := make(map[domain.OrderStatus][]string, len(domain.OrderStatuses()))
	for _, order := range orders {
		column := order.Status
		if p, ok := b.placements[order.ID]; ok {
			column = p.column
		}
		columns[column] = append(columns[column], order.ID)
	}
	return columns
}

// Move переносит карточку в column. Карточка встаёт в колонку сразу и
// возвращается обратно, если переход не удался.
func (b *Board) Move(ctx context.Context, orderID string, column domain.OrderStatus, opts MoveOptions) (Batch, error) {
	origin, ok := b.Column(orderID)
	if !ok {
		return Batch{}, domain.ErrOrderNotFound
	}

	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.placements[orderID] = placement{column: column, seq: seq}
	b.mu.Unlock()
	b.notify(orderID, column)

	action := StatusAction{Status: column, Note: opts.Note}
	if opts.Shipment != nil {
		action.Shipments = map[string]domain.Shipment{orderID: *opts.Shipment}
	}

	batch, err := b.coordinator.ApplyStatus(ctx, []string{orderID}, action)

	b.mu.Lock()
	current, stillOurs := b.placements[orderID]
	stillOurs = stillOurs && current.seq == seq
	if stillOurs {
		delete(b.placements, orderID)
	}
	b.mu.Unlock()

	if !stillOurs {
		// Карточку уже перенесли ещё раз, решает более поздний перенос.
		return batch, err
	}

	final := origin
	if err == nil && batch.Status == BatchComplete {
		final = column
	} else if order, ok := b.coordinator.Orders().Order(orderID); ok {
		final = order.Status
	}
	b.notify(orderID, final)
	return batch, err
}

func (b *Board) notify(orderID string, column domain.OrderStatus) {
	if b.onChange != nil {
		b.onChange(orderID, column)
	}
}
