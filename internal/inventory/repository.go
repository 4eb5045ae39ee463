package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, category, current_stock, min_stock_level, max_stock_level, unit_cost, COALESCE(supplier_id, 0), active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var category string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &category, &p.CurrentStock, &p.MinStockLevel, &p.MaxStockLevel, &p.UnitCost, &p.SupplierID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.Category = Category(category)
	return p, err
}

func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if r == nil {
		return Product{}, errors.New("inventory repository not initialised")
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO products (sku, name, category, current_stock, min_stock_level, max_stock_level, unit_cost, supplier_id, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING `+productColumns, p.SKU, p.Name, string(p.Category), p.CurrentStock, p.MinStockLevel, p.MaxStockLevel, p.UnitCost, nullInt(p.SupplierID), p.Active)
	created, err := scanProduct(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, fmt.Errorf("inventory: sku %q: %w", p.SKU, shared.ErrDuplicate)
		}
		return Product{}, err
	}
	return created, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, shared.NotFound("product", id)
		}
		return Product{}, err
	}
	return p, nil
}

// GetProductForUpdate row-locks the product until the surrounding transaction ends.
func (r *Repository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	if !db.InTx(ctx) {
		return Product{}, errors.New("inventory: product lock requires a transaction")
	}
	p, err := scanProduct(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, shared.NotFound("product", id)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *Repository) UpdateStock(ctx context.Context, id int64, stock, unitCost decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE products SET current_stock=$2, unit_cost=$3, updated_at=NOW() WHERE id=$1`, id, stock, unitCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", id)
	}
	return nil
}

func (r *Repository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO stock_movements (product_id, direction, quantity, change, unit_cost, total_cost, reference, reference_id, actor_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`, m.ProductID, string(m.Direction), m.Quantity, m.Change, m.UnitCost, m.TotalCost, string(m.Reference), nullInt(m.ReferenceID), nullInt(m.ActorID), m.Note, m.CreatedAt).Scan(&m.ID)
	return m, err
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, product_id, direction, quantity, change, unit_cost, total_cost, reference, COALESCE(reference_id, 0), COALESCE(actor_id, 0), note, created_at
FROM stock_movements
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = '' OR reference = $2)
  AND ($3 = 0 OR reference_id = $3)
  AND created_at BETWEEN COALESCE($4, '-infinity'::timestamptz) AND COALESCE($5, 'infinity'::timestamptz)
ORDER BY created_at ASC, id ASC
LIMIT $6`, filter.ProductID, string(filter.Reference), filter.ReferenceID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var direction, reference string
		if err := rows.Scan(&m.ID, &m.ProductID, &direction, &m.Quantity, &m.Change, &m.UnitCost, &m.TotalCost, &reference, &m.ReferenceID, &m.ActorID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = Direction(direction)
		m.Reference = Reference(reference)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *Repository) SumMovements(ctx context.Context, productID int64) (decimal.Decimal, int, error) {
	var total decimal.Decimal
	var count int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(SUM(change), 0), COUNT(*) FROM stock_movements WHERE product_id=$1`, productID).Scan(&total, &count)
	return total, count, err
}

func (r *Repository) ListReplenishmentCandidates(ctx context.Context) ([]Product, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+productColumns+`
FROM products
WHERE active AND category=$1 AND supplier_id IS NOT NULL AND current_stock <= min_stock_level
ORDER BY id`, string(CategoryRawMaterial))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) ListProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
