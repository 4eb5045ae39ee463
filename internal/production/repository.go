package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists production orders and bills of materials in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, product_id, quantity, status, COALESCE(sales_order_id, 0), note, COALESCE(created_by, 0), created_at, updated_at, start_date, end_date, cancelled_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.ProductID, &o.Quantity, &status, &o.SalesOrderID, &o.Note, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.StartDate, &o.EndDate, &o.CancelledAt)
	o.Status = Status(status)
	return o, err
}

func (r *Repository) CreateOrder(ctx context.Context, o Order) (Order, error) {
	if r == nil {
		return Order{}, errors.New("production repository not initialised")
	}
	conn := db.Conn(ctx, r.pool)
	created, err := scanOrder(conn.QueryRow(ctx, `INSERT INTO production_orders (number, product_id, quantity, status, sales_order_id, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING `+orderColumns, o.Number, o.ProductID, o.Quantity, string(o.Status), nullInt(o.SalesOrderID), o.Note, nullInt(o.CreatedBy), o.CreatedAt, o.UpdatedAt))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Order{}, fmt.Errorf("production: order number %q: %w", o.Number, shared.ErrDuplicate)
		}
		return Order{}, err
	}
	for i, m := range o.Materials {
		if _, err := conn.Exec(ctx, `INSERT INTO production_materials (order_id, position, product_id, quantity, unit_cost) VALUES ($1,$2,$3,$4,$5)`,
			created.ID, i, m.ProductID, m.Quantity, m.UnitCost); err != nil {
			return Order{}, err
		}
	}
	created.Materials = append([]Material(nil), o.Materials...)
	return created, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1`, id)
}

// GetOrderForUpdate row-locks the order.
func (r *Repository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	if !db.InTx(ctx) {
		return Order{}, errors.New("production: order lock requires a transaction")
	}
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repository) getOrder(ctx context.Context, query string, id int64) (Order, error) {
	o, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Order{}, shared.NotFound("production_order", id)
		}
		return Order{}, err
	}
	if o.Materials, err = r.materials(ctx, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

// materials preserves insertion order; the start check walks them in that order.
func (r *Repository) materials(ctx context.Context, orderID int64) ([]Material, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT product_id, quantity, unit_cost FROM production_materials WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	materials := []Material{}
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ProductID, &m.Quantity, &m.UnitCost); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (r *Repository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE production_orders SET status=$2, start_date=$3, end_date=$4, cancelled_at=$5, updated_at=$6 WHERE id=$1`,
		o.ID, string(o.Status), o.StartDate, o.EndDate, o.CancelledAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("production_order", o.ID)
	}
	return nil
}

func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+orderColumns+`
FROM production_orders
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR sales_order_id = $2)
ORDER BY id
LIMIT $3`, string(filter.Status), filter.SalesOrderID, limit)
	if err != nil {
		return nil, err
	}
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Materials, err = r.materials(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ReplaceBOM swaps the component list of a product.
func (r *Repository) ReplaceBOM(ctx context.Context, productID int64, components []Component) error {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `DELETE FROM bom_components WHERE product_id=$1`, productID); err != nil {
		return err
	}
	for _, c := range components {
		if _, err := conn.Exec(ctx, `INSERT INTO bom_components (product_id, component_id, quantity) VALUES ($1,$2,$3)`, productID, c.ComponentID, c.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) GetBOM(ctx context.Context, productID int64) ([]Component, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT product_id, component_id, quantity FROM bom_components WHERE product_id=$1 ORDER BY component_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	components := []Component{}
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ProductID, &c.ComponentID, &c.Quantity); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
