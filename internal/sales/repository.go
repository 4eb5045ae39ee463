package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository handles database operations for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sales repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, customer_id, status, subtotal, tax, total, COALESCE(production_order_id, 0), note, COALESCE(created_by, 0), created_at, updated_at, confirmed_at, shipped_at, delivered_at, cancelled_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var so SalesOrder
	var status string
	err := row.Scan(&so.ID, &so.Number, &so.CustomerID, &status, &so.Subtotal, &so.Tax, &so.Total, &so.ProductionOrderID, &so.Note, &so.CreatedBy, &so.CreatedAt, &so.UpdatedAt, &so.ConfirmedAt, &so.ShippedAt, &so.DeliveredAt, &so.CancelledAt)
	so.Status = Status(status)
	return so, err
}

// ============================================================================
// SALES ORDER QUERIES
// ============================================================================

func (r *Repository) CreateOrder(ctx context.Context, so SalesOrder) (SalesOrder, error) {
	if r == nil {
		return SalesOrder{}, errors.New("sales repository not initialised")
	}
	conn := db.Conn(ctx, r.pool)
	created, err := scanOrder(conn.QueryRow(ctx, `INSERT INTO sales_orders (number, customer_id, status, subtotal, tax, total, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+orderColumns, so.Number, so.CustomerID, string(so.Status), so.Subtotal, so.Tax, so.Total, so.Note, nullInt(so.CreatedBy), so.CreatedAt, so.UpdatedAt))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return SalesOrder{}, fmt.Errorf("sales: order number %q: %w", so.Number, shared.ErrDuplicate)
		}
		return SalesOrder{}, fmt.Errorf("insert sales order: %w", err)
	}
	for _, line := range so.Lines {
		line.OrderID = created.ID
		if err := conn.QueryRow(ctx, `INSERT INTO sales_order_lines (order_id, product_id, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&line.ID); err != nil {
			return SalesOrder{}, fmt.Errorf("insert sales order line: %w", err)
		}
		created.Lines = append(created.Lines, line)
	}
	return created, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id=$1`, id)
}

// GetOrderForUpdate row-locks the order header.
func (r *Repository) GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	if !db.InTx(ctx) {
		return SalesOrder{}, errors.New("sales: order lock requires a transaction")
	}
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repository) getOrder(ctx context.Context, query string, id int64) (SalesOrder, error) {
	so, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return SalesOrder{}, shared.NotFound("sales_order", id)
		}
		return SalesOrder{}, err
	}
	if so.Lines, err = r.lines(ctx, id); err != nil {
		return SalesOrder{}, err
	}
	return so, nil
}

func (r *Repository) lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, line_total FROM sales_order_lines WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) UpdateOrder(ctx context.Context, so SalesOrder) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE sales_orders
SET status=$2, production_order_id=$3, confirmed_at=$4, shipped_at=$5, delivered_at=$6, cancelled_at=$7, updated_at=$8
WHERE id=$1`, so.ID, string(so.Status), nullInt(so.ProductionOrderID), so.ConfirmedAt, so.ShippedAt, so.DeliveredAt, so.CancelledAt, so.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("sales_order", so.ID)
	}
	return nil
}

func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]SalesOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+orderColumns+`
FROM sales_orders
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR customer_id = $2)
ORDER BY id
LIMIT $3`, string(filter.Status), filter.CustomerID, limit)
	if err != nil {
		return nil, err
	}
	orders := []SalesOrder{}
	for rows.Next() {
		so, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, so)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Lines, err = r.lines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
