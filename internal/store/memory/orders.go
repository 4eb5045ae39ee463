package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ProcurementRepo implements procurement.RepositoryPort.
type ProcurementRepo struct {
	s *Store
}

var _ procurement.RepositoryPort = (*ProcurementRepo)(nil)

func (r *ProcurementRepo) CreateOrder(ctx context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, existing := range st.purchaseOrders {
			if existing.Number == po.Number {
				return fmt.Errorf("procurement: order number %q: %w", po.Number, shared.ErrDuplicate)
			}
		}
		po.ID = st.next("purchase_order")
		lines := slices.Clone(po.Lines)
		for i := range lines {
			lines[i].ID = st.next("purchase_order_line")
			lines[i].OrderID = po.ID
		}
		po.Lines = lines
		st.purchaseOrders[po.ID] = po
		return nil
	})
	po.Lines = slices.Clone(po.Lines)
	return po, err
}

func (r *ProcurementRepo) GetOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	var po procurement.PurchaseOrder
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.purchaseOrders[id]
		if !ok {
			return shared.NotFound("purchase_order", id)
		}
		po = found
		po.Lines = slices.Clone(found.Lines)
		return nil
	})
	return po, err
}

func (r *ProcurementRepo) GetOrderForUpdate(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	if err := r.s.requireTx(ctx); err != nil {
		return procurement.PurchaseOrder{}, err
	}
	return r.GetOrder(ctx, id)
}

func (r *ProcurementRepo) UpdateOrder(ctx context.Context, po procurement.PurchaseOrder) error {
	return r.s.do(ctx, func(st *state) error {
		existing, ok := st.purchaseOrders[po.ID]
		if !ok {
			return shared.NotFound("purchase_order", po.ID)
		}
		existing.Status = po.Status
		existing.UpdatedAt = po.UpdatedAt
		existing.OrderedAt = po.OrderedAt
		existing.ReceivedDate = po.ReceivedDate
		existing.CancelledAt = po.CancelledAt
		st.purchaseOrders[po.ID] = existing
		return nil
	})
}

func (r *ProcurementRepo) ListOrders(ctx context.Context, filter procurement.ListFilter) ([]procurement.PurchaseOrder, error) {
	out := []procurement.PurchaseOrder{}
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.purchaseOrders) {
			po := st.purchaseOrders[id]
			if filter.Status != "" && po.Status != filter.Status {
				continue
			}
			if filter.SupplierID != 0 && po.SupplierID != filter.SupplierID {
				continue
			}
			if filter.AutoOnly && !po.AutoGenerated {
				continue
			}
			if filter.ProductID != 0 && !slices.ContainsFunc(po.Lines, func(l procurement.Line) bool { return l.ProductID == filter.ProductID }) {
				continue
			}
			po.Lines = slices.Clone(po.Lines)
			out = append(out, po)
			if len(out) == limitOf(filter.Limit) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *ProcurementRepo) HasOpenAutoOrder(ctx context.Context, productID int64) (bool, error) {
	found := false
	err := r.s.do(ctx, func(st *state) error {
		for _, po := range st.purchaseOrders {
			if !po.AutoGenerated || !po.Status.Open() {
				continue
			}
			if slices.ContainsFunc(po.Lines, func(l procurement.Line) bool { return l.ProductID == productID }) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// SalesRepo implements sales.RepositoryPort.
type SalesRepo struct {
	s *Store
}

var _ sales.RepositoryPort = (*SalesRepo)(nil)

func (r *SalesRepo) CreateOrder(ctx context.Context, so sales.SalesOrder) (sales.SalesOrder, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, existing := range st.salesOrders {
			if existing.Number == so.Number {
				return fmt.Errorf("sales: order number %q: %w", so.Number, shared.ErrDuplicate)
			}
		}
		so.ID = st.next("sales_order")
		lines := slices.Clone(so.Lines)
		for i := range lines {
			lines[i].ID = st.next("sales_order_line")
			lines[i].OrderID = so.ID
		}
		so.Lines = lines
		st.salesOrders[so.ID] = so
		return nil
	})
	so.Lines = slices.Clone(so.Lines)
	return so, err
}

func (r *SalesRepo) GetOrder(ctx context.Context, id int64) (sales.SalesOrder, error) {
	var so sales.SalesOrder
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.salesOrders[id]
		if !ok {
			return shared.NotFound("sales_order", id)
		}
		so = found
		so.Lines = slices.Clone(found.Lines)
		return nil
	})
	return so, err
}

func (r *SalesRepo) GetOrderForUpdate(ctx context.Context, id int64) (sales.SalesOrder, error) {
	if err := r.s.requireTx(ctx); err != nil {
		return sales.SalesOrder{}, err
	}
	return r.GetOrder(ctx, id)
}

func (r *SalesRepo) UpdateOrder(ctx context.Context, so sales.SalesOrder) error {
	return r.s.do(ctx, func(st *state) error {
		existing, ok := st.salesOrders[so.ID]
		if !ok {
			return shared.NotFound("sales_order", so.ID)
		}
		existing.Status = so.Status
		existing.ProductionOrderID = so.ProductionOrderID
		existing.UpdatedAt = so.UpdatedAt
		existing.ConfirmedAt = so.ConfirmedAt
		existing.ShippedAt = so.ShippedAt
		existing.DeliveredAt = so.DeliveredAt
		existing.CancelledAt = so.CancelledAt
		st.salesOrders[so.ID] = existing
		return nil
	})
}

func (r *SalesRepo) ListOrders(ctx context.Context, filter sales.ListFilter) ([]sales.SalesOrder, error) {
	out := []sales.SalesOrder{}
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.salesOrders) {
			so := st.salesOrders[id]
			if filter.Status != "" && so.Status != filter.Status {
				continue
			}
			if filter.CustomerID != 0 && so.CustomerID != filter.CustomerID {
				continue
			}
			so.Lines = slices.Clone(so.Lines)
			out = append(out, so)
			if len(out) == limitOf(filter.Limit) {
				break
			}
		}
		return nil
	})
	return out, err
}

// ProductionRepo implements production.RepositoryPort.
type ProductionRepo struct {
	s *Store
}

var _ production.RepositoryPort = (*ProductionRepo)(nil)

func (r *ProductionRepo) CreateOrder(ctx context.Context, o production.Order) (production.Order, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, existing := range st.productionOrders {
			if existing.Number == o.Number {
				return fmt.Errorf("production: order number %q: %w", o.Number, shared.ErrDuplicate)
			}
		}
		o.ID = st.next("production_order")
		o.Materials = slices.Clone(o.Materials)
		st.productionOrders[o.ID] = o
		return nil
	})
	o.Materials = slices.Clone(o.Materials)
	return o, err
}

func (r *ProductionRepo) GetOrder(ctx context.Context, id int64) (production.Order, error) {
	var o production.Order
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.productionOrders[id]
		if !ok {
			return shared.NotFound("production_order", id)
		}
		o = found
		o.Materials = slices.Clone(found.Materials)
		return nil
	})
	return o, err
}

func (r *ProductionRepo) GetOrderForUpdate(ctx context.Context, id int64) (production.Order, error) {
	if err := r.s.requireTx(ctx); err != nil {
		return production.Order{}, err
	}
	return r.GetOrder(ctx, id)
}

func (r *ProductionRepo) UpdateOrder(ctx context.Context, o production.Order) error {
	return r.s.do(ctx, func(st *state) error {
		existing, ok := st.productionOrders[o.ID]
		if !ok {
			return shared.NotFound("production_order", o.ID)
		}
		existing.Status = o.Status
		existing.UpdatedAt = o.UpdatedAt
		existing.StartDate = o.StartDate
		existing.EndDate = o.EndDate
		existing.CancelledAt = o.CancelledAt
		st.productionOrders[o.ID] = existing
		return nil
	})
}

func (r *ProductionRepo) ListOrders(ctx context.Context, filter production.ListFilter) ([]production.Order, error) {
	out := []production.Order{}
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.productionOrders) {
			o := st.productionOrders[id]
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if filter.SalesOrderID != 0 && o.SalesOrderID != filter.SalesOrderID {
				continue
			}
			o.Materials = slices.Clone(o.Materials)
			out = append(out, o)
			if len(out) == limitOf(filter.Limit) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductionRepo) ReplaceBOM(ctx context.Context, productID int64, components []production.Component) error {
	return r.s.do(ctx, func(st *state) error {
		if len(components) == 0 {
			delete(st.boms, productID)
			return nil
		}
		st.boms[productID] = slices.Clone(components)
		return nil
	})
}

func (r *ProductionRepo) GetBOM(ctx context.Context, productID int64) ([]production.Component, error) {
	var out []production.Component
	err := r.s.do(ctx, func(st *state) error {
		out = slices.Clone(st.boms[productID])
		return nil
	})
	return out, err
}
