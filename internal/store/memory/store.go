// Package memory is an in-process backend implementing every repository port. Atomic
// units are serialised behind a single mutex and rolled back from a snapshot on error.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/finance"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrLockOutsideTx is returned by the *ForUpdate reads when no unit is open.
var ErrLockOutsideTx = errors.New("memory: row lock requires a transaction")

type state struct {
	seq              map[string]int64
	products         map[int64]inventory.Product
	movements        []inventory.Movement
	purchaseOrders   map[int64]procurement.PurchaseOrder
	salesOrders      map[int64]sales.SalesOrder
	productionOrders map[int64]production.Order
	boms             map[int64][]production.Component
	accounts         map[int64]finance.BankAccount
	transactions     []finance.Transaction
	invoices         map[int64]finance.Invoice
	expenses         []finance.Expense
}

func newState() *state {
	return &state{
		seq:              map[string]int64{},
		products:         map[int64]inventory.Product{},
		purchaseOrders:   map[int64]procurement.PurchaseOrder{},
		salesOrders:      map[int64]sales.SalesOrder{},
		productionOrders: map[int64]production.Order{},
		boms:             map[int64][]production.Component{},
		accounts:         map[int64]finance.BankAccount{},
		invoices:         map[int64]finance.Invoice{},
	}
}

// clone copies the containers. Stored values are never mutated in place, so a
// shallow copy of each map and slice is a full snapshot.
func (st *state) clone() *state {
	return &state{
		seq:              maps.Clone(st.seq),
		products:         maps.Clone(st.products),
		movements:        slices.Clone(st.movements),
		purchaseOrders:   maps.Clone(st.purchaseOrders),
		salesOrders:      maps.Clone(st.salesOrders),
		productionOrders: maps.Clone(st.productionOrders),
		boms:             maps.Clone(st.boms),
		accounts:         maps.Clone(st.accounts),
		transactions:     slices.Clone(st.transactions),
		invoices:         maps.Clone(st.invoices),
		expenses:         slices.Clone(st.expenses),
	}
}

func (st *state) next(kind string) int64 {
	st.seq[kind]++
	return st.seq[kind]
}

// Store keeps every aggregate in memory.
type Store struct {
	mu    sync.Mutex
	state *state
	clock func() time.Time

	auditMu sync.Mutex
	audit   []shared.AuditLog
}

type txKey struct{}

// New constructs an empty Store.
func New() *Store {
	return &Store{state: newState(), clock: func() time.Time { return time.Now().UTC() }}
}

// WithinTx runs fn as one atomic unit. Nested calls on a context already inside a
// unit of this store join it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.owns(ctx) {
		return fn(ctx)
	}
	txCtx, sess := db.Begin(ctx, nil)
	txCtx = context.WithValue(txCtx, txKey{}, s)
	if err := s.run(txCtx, fn); err != nil {
		return err
	}
	sess.Committed(ctx)
	return nil
}

// run holds the store lock for fn and restores the snapshot when fn fails or
// panics. Panics are re-raised after the lock is released.
func (s *Store) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s.mu.Lock()
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
		s.mu.Unlock()
	}()
	if err = fn(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn against the state. Outside a unit each call is its own unit.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if s.owns(ctx) {
		return fn(s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(s.state); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) requireTx(ctx context.Context) error {
	if !s.owns(ctx) {
		return ErrLockOutsideTx
	}
	return nil
}

// Inventory returns the inventory repository view.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }

// Procurement returns the purchase order repository view.
func (s *Store) Procurement() *ProcurementRepo { return &ProcurementRepo{s: s} }

// Sales returns the sales order repository view.
func (s *Store) Sales() *SalesRepo { return &SalesRepo{s: s} }

// Production returns the production order repository view.
func (s *Store) Production() *ProductionRepo { return &ProductionRepo{s: s} }

// Finance returns the financial ledger repository view.
func (s *Store) Finance() *FinanceRepo { return &FinanceRepo{s: s} }

// Record stores an audit entry.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = s.clock()
	}
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns the recorded audit entries.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return slices.Clone(s.audit)
}

func limitOf(limit int) int {
	if limit <= 0 {
		return 200
	}
	return limit
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}
