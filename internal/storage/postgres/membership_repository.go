package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type membershipRepository struct {
	store *Store
}

// NewMembershipRepository создаёт PostgreSQL-реализацию MembershipRepository.
// Версия набора растёт только при фактическом изменении состава.
func NewMembershipRepository(store *Store) domain.MembershipRepository {
	return &membershipRepository{store: store}
}

func (r *membershipRepository) Add(ctx context.Context, kind domain.MembershipKind, customerID, productID string) (domain.MembershipSnapshot, error) {
	return r.change(ctx, kind, customerID, `
		INSERT INTO membership_items (kind, customer_id, product_id, added_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT DO NOTHING
	`, productID, time.Now().UTC())
}

func (r *membershipRepository) Remove(ctx context.Context, kind domain.MembershipKind, customerID, productID string) (domain.MembershipSnapshot, error) {
	return r.change(ctx, kind, customerID, `
		DELETE FROM membership_items
		WHERE kind = $1 AND customer_id = $2 AND product_id = $3
	`, productID)
}

func (r *membershipRepository) Snapshot(ctx context.Context, kind domain.MembershipKind, customerID string) (domain.MembershipSnapshot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var version int64
	err := r.store.db.QueryRowContext(ctx, `
		SELECT version FROM membership_sets WHERE kind = $1 AND customer_id = $2
	`, string(kind), customerID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewMembershipSnapshot(kind, customerID, nil, 0, time.Now().UTC()), nil
		}
		return domain.MembershipSnapshot{}, fmt.Errorf("select membership version: %w", err)
	}

	items, err := loadMembershipItems(ctx, r.store.db, kind, customerID)
	if err != nil {
		return domain.MembershipSnapshot{}, err
	}
	return domain.NewMembershipSnapshot(kind, customerID, items, version, time.Now().UTC()), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// change выполняет мутацию набора и поднимает версию, если мутация затронула строку.
// Строка membership_sets блокируется через FOR UPDATE, так что версии не перескакивают.
func (r *membershipRepository) change(ctx context.Context, kind domain.MembershipKind, customerID, stmt string, args ...any) (domain.MembershipSnapshot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var snapshot domain.MembershipSnapshot
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO membership_sets (kind, customer_id, version)
			VALUES ($1,$2,0)
			ON CONFLICT DO NOTHING
		`, string(kind), customerID); err != nil {
			return fmt.Errorf("ensure membership set: %w", err)
		}

		var version int64
		if err := tx.QueryRowContext(ctx, `
			SELECT version FROM membership_sets
			WHERE kind = $1 AND customer_id = $2
			FOR UPDATE
		`, string(kind), customerID).Scan(&version); err != nil {
			return fmt.Errorf("lock membership set: %w", err)
		}

		res, err := tx.ExecContext(ctx, stmt, append([]any{string(kind), customerID}, args...)...)
		if err != nil {
			return fmt.Errorf("change membership: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			version++
			if _, err := tx.ExecContext(ctx, `
				UPDATE membership_sets SET version = $3
				WHERE kind = $1 AND customer_id = $2
			`, string(kind), customerID, version); err != nil {
				return fmt.Errorf("bump membership version: %w", err)
			}
		}

		items, err := loadMembershipItems(ctx, tx, kind, customerID)
		if err != nil {
			return err
		}
		snapshot = domain.NewMembershipSnapshot(kind, customerID, items, version, time.Now().UTC())
		return nil
	})
	if err != nil {
		return domain.MembershipSnapshot{}, err
	}
	return snapshot, nil
}

func loadMembershipItems(ctx context.Context, q queryer, kind domain.MembershipKind, customerID string) (map[string]struct{}, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id FROM membership_items
		WHERE kind = $1 AND customer_id = $2
	`, string(kind), customerID)
	if err != nil {
		return nil, fmt.Errorf("load membership items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership item: %w", err)
		}
		items[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate membership items: %w", err)
	}
	return items, nil
}

// Catalog — справочник товаров в PostgreSQL.
type Catalog struct {
	store *Store
}

// NewCatalog создаёт каталог товаров поверх store.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{store: store}
}

// Product возвращает товар или ErrProductNotFound.
func (c *Catalog) Product(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p domain.Product
	err := c.store.db.QueryRowContext(ctx, `SELECT id, title, stock FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// Upsert создаёт или обновляет товар. Используется сидами и тестами.
func (c *Catalog) Upsert(ctx context.Context, p domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := c.store.db.ExecContext(ctx, `
		INSERT INTO products (id, title, stock) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, stock = EXCLUDED.stock
	`, p.ID, p.Title, p.Stock); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var (
	_ domain.MembershipRepository = (*membershipRepository)(nil)
	_ domain.ProductCatalog       = (*Catalog)(nil)
)
