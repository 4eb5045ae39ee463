package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, number, supplier_id, status, source, auto_generated, subtotal, tax, total, note, COALESCE(created_by, 0), created_at, updated_at, ordered_at, received_date, cancelled_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status, source string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &status, &source, &po.AutoGenerated, &po.Subtotal, &po.Tax, &po.Total, &po.Note, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt, &po.OrderedAt, &po.ReceivedDate, &po.CancelledAt)
	po.Status = Status(status)
	po.Source = Source(source)
	return po, err
}

// CreateOrder inserts the header and its lines.
func (r *Repository) CreateOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	if r == nil {
		return PurchaseOrder{}, errors.New("procurement repository not initialised")
	}
	conn := db.Conn(ctx, r.pool)
	created, err := scanOrder(conn.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, source, auto_generated, subtotal, tax, total, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+orderColumns, po.Number, po.SupplierID, string(po.Status), string(po.Source), po.AutoGenerated, po.Subtotal, po.Tax, po.Total, po.Note, nullInt(po.CreatedBy), po.CreatedAt, po.UpdatedAt))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PurchaseOrder{}, fmt.Errorf("procurement: order number %q: %w", po.Number, shared.ErrDuplicate)
		}
		return PurchaseOrder{}, err
	}
	for _, line := range po.Lines {
		line.OrderID = created.ID
		if err := conn.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, product_id, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&line.ID); err != nil {
			return PurchaseOrder{}, err
		}
		created.Lines = append(created.Lines, line)
	}
	return created, nil
}

// GetOrder returns the order and its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id)
}

// GetOrderForUpdate row-locks the order header.
func (r *Repository) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	if !db.InTx(ctx) {
		return PurchaseOrder{}, errors.New("procurement: order lock requires a transaction")
	}
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repository) getOrder(ctx context.Context, query string, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return PurchaseOrder{}, shared.NotFound("purchase_order", id)
		}
		return PurchaseOrder{}, err
	}
	po.Lines, err = r.lines(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *Repository) lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, line_total FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, orderID)
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

// UpdateOrder persists status and lifecycle timestamps.
func (r *Repository) UpdateOrder(ctx context.Context, po PurchaseOrder) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE purchase_orders SET status=$2, ordered_at=$3, received_date=$4, cancelled_at=$5, updated_at=$6 WHERE id=$1`,
		po.ID, string(po.Status), po.OrderedAt, po.ReceivedDate, po.CancelledAt, po.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("purchase_order", po.ID)
	}
	return nil
}

// ListOrders returns headers with lines.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+orderColumns+`
FROM purchase_orders po
WHERE ($1 = '' OR status = $1)
  AND ($2 = 0 OR supplier_id = $2)
  AND (NOT $3 OR auto_generated)
  AND ($4 = 0 OR EXISTS (SELECT 1 FROM purchase_order_lines l WHERE l.order_id = po.id AND l.product_id = $4))
ORDER BY id
LIMIT $5`, string(filter.Status), filter.SupplierID, filter.AutoOnly, filter.ProductID, limit)
	if err != nil {
		return nil, err
	}
	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, po)
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

// HasOpenAutoOrder checks for a pending or ordered auto-generated order on the product.
func (r *Repository) HasOpenAutoOrder(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (
  SELECT 1 FROM purchase_orders po
  JOIN purchase_order_lines l ON l.order_id = po.id
  WHERE po.auto_generated AND po.status IN ($2, $3) AND l.product_id = $1
)`, productID, string(StatusPending), string(StatusOrdered)).Scan(&exists)
	return exists, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
