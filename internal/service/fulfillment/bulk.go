package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
)

// BulkUpdateStatus применяет action к каждому заказу независимо.
// Заказы предварительно загружаются из репозитория, дальше работает тот же
// bulk.Coordinator, что и на стороне продавца, со шлюзом в этот сервис.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, action bulk.StatusAction) (bulk.Batch, error) {
	source := bulk.NewOrderCache()
	for _, id := range ids {
		order, err := s.orders.Get(ctx, id)
		switch {
		case err == nil:
			source.Put(order)
		case errors.Is(err, domain.ErrOrderNotFound):
			// Отсутствующий заказ станет NotFound-исходом внутри батча.
		default:
			source.Fail(id, fmt.Errorf("load order %s: %w", id, err))
		}
	}

	opts := []bulk.Option{
		bulk.WithOrders(source, localGateway{svc: s}),
		bulk.WithLogger(s.logger.WithField("component", "fulfillment-bulk")),
		bulk.WithClock(s.now),
	}
	if s.metrics != nil {
		opts = append(opts, bulk.WithObserver(s.metrics))
	}
	if s.bulkLimit > 0 {
		opts = append(opts, bulk.WithLimit(s.bulkLimit))
	}
	return bulk.NewCoordinator(s.engine, opts...).ApplyStatus(ctx, ids, action)
}

// localGateway направляет проверенный переход прямо в Service.
type localGateway struct {
	svc *Service
}

func (g localGateway) UpdateStatus(ctx context.Context, orderID string, req bulk.StatusRequest) (domain.Order, error) {
	return g.svc.UpdateStatus(ctx, orderID, StatusChange{Status: req.Status, Note: req.Note, Shipment: req.Shipment})
}

var _ bulk.OrderGateway = localGateway{}
