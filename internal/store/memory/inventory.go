package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// InventoryRepo implements inventory.RepositoryPort.
type InventoryRepo struct {
	s *Store
}

var _ inventory.RepositoryPort = (*InventoryRepo)(nil)

func (r *InventoryRepo) CreateProduct(ctx context.Context, p inventory.Product) (inventory.Product, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, existing := range st.products {
			if existing.SKU == p.SKU {
				return fmt.Errorf("inventory: sku %q: %w", p.SKU, shared.ErrDuplicate)
			}
		}
		now := r.s.clock()
		p.ID = st.next("product")
		p.CreatedAt = now
		p.UpdatedAt = now
		st.products[p.ID] = p
		return nil
	})
	return p, err
}

func (r *InventoryRepo) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	var p inventory.Product
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.products[id]
		if !ok {
			return shared.NotFound("product", id)
		}
		p = found
		return nil
	})
	return p, err
}

func (r *InventoryRepo) GetProductForUpdate(ctx context.Context, id int64) (inventory.Product, error) {
	if err := r.s.requireTx(ctx); err != nil {
		return inventory.Product{}, err
	}
	return r.GetProduct(ctx, id)
}

func (r *InventoryRepo) UpdateStock(ctx context.Context, id int64, stock, unitCost decimal.Decimal) error {
	return r.s.do(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return shared.NotFound("product", id)
		}
		p.CurrentStock = stock
		p.UnitCost = unitCost
		p.UpdatedAt = r.s.clock()
		st.products[id] = p
		return nil
	})
}

func (r *InventoryRepo) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	err := r.s.do(ctx, func(st *state) error {
		m.ID = st.next("movement")
		st.movements = append(st.movements, m)
		return nil
	})
	return m, err
}

func (r *InventoryRepo) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	out := []inventory.Movement{}
	err := r.s.do(ctx, func(st *state) error {
		for _, m := range st.movements {
			if filter.ProductID != 0 && m.ProductID != filter.ProductID {
				continue
			}
			if filter.Reference != "" && m.Reference != filter.Reference {
				continue
			}
			if filter.ReferenceID != 0 && m.ReferenceID != filter.ReferenceID {
				continue
			}
			if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
				continue
			}
			out = append(out, m)
			if len(out) == limitOf(filter.Limit) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepo) SumMovements(ctx context.Context, productID int64) (decimal.Decimal, int, error) {
	total := decimal.Zero
	count := 0
	err := r.s.do(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID == productID {
				total = total.Add(m.Change)
				count++
			}
		}
		return nil
	})
	return total, count, err
}

func (r *InventoryRepo) ListReplenishmentCandidates(ctx context.Context) ([]inventory.Product, error) {
	out := []inventory.Product{}
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.products) {
			if p := st.products[id]; p.NeedsReplenishment() {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepo) ListProductIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.s.do(ctx, func(st *state) error {
		ids = sortedKeys(st.products)
		return nil
	})
	return ids, err
}

// SetStockUnsafe overwrites a product's stock without a movement. Tests use it to
// simulate drift between the live figure and the log.
func (r *InventoryRepo) SetStockUnsafe(id int64, stock decimal.Decimal) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.state.products[id]; ok {
		p.CurrentStock = stock
		r.s.state.products[id] = p
	}
}
