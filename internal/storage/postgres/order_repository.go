package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const orderColumns = `
	id, order_number, status,
	customer_id, customer_name, customer_email,
	ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
	tracking_number, carrier, estimated_delivery,
	currency, total_minor, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tracking, carrier, eta := shipmentColumns(order.Shipment)
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		`,
			order.ID, order.OrderNumber, string(order.Status),
			order.Customer.ID, order.Customer.Name, order.Customer.Email,
			order.ShippingAddress.Line1, order.ShippingAddress.Line2, order.ShippingAddress.City,
			order.ShippingAddress.Region, order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
			tracking, carrier, eta,
			order.Currency, order.TotalMinor, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, position, product_id, title, qty, price_minor)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, item.ID, order.ID, i, item.ProductID, item.Title, item.Qty, item.PriceMinor); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.store.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Save обновляет изменяемые поля заказа. Позиции после создания не меняются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tracking, carrier, eta := shipmentColumns(order.Shipment)
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    tracking_number = $2,
			    carrier = $3,
			    estimated_delivery = $4,
			    version = version + 1,
			    updated_at = $5
			WHERE id = $6
			  AND version = $7
		`,
			string(order.Status), tracking, carrier, eta,
			order.UpdatedAt, order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}

		exists, err := orderExistsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	})
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, product_id, title, qty, price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Title, &item.Qty, &item.PriceMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		tracking sql.NullString
		carrier  sql.NullString
		eta      sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &status,
		&order.Customer.ID, &order.Customer.Name, &order.Customer.Email,
		&order.ShippingAddress.Line1, &order.ShippingAddress.Line2, &order.ShippingAddress.City,
		&order.ShippingAddress.Region, &order.ShippingAddress.PostalCode, &order.ShippingAddress.Country,
		&tracking, &carrier, &eta,
		&order.Currency, &order.TotalMinor, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if tracking.Valid && carrier.Valid {
		order.Shipment = &domain.Shipment{TrackingNumber: tracking.String, Carrier: carrier.String}
		if eta.Valid {
			t := eta.Time.UTC()
			order.Shipment.EstimatedDelivery = &t
		}
	}
	return order, nil
}

func shipmentColumns(s *domain.Shipment) (tracking, carrier sql.NullString, eta sql.NullTime) {
	if s == nil {
		return
	}
	tracking = sql.NullString{String: s.TrackingNumber, Valid: true}
	carrier = sql.NullString{String: s.Carrier, Valid: true}
	if s.EstimatedDelivery != nil {
		eta = sql.NullTime{Time: *s.EstimatedDelivery, Valid: true}
	}
	return
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
