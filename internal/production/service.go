package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts persistence for production orders and BOMs.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	ReplaceBOM(ctx context.Context, productID int64, components []Component) error
	GetBOM(ctx context.Context, productID int64) ([]Component, error)
}

// LedgerPort exposes the stock ledger operations production needs.
type LedgerPort interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error)
	ApplyMovements(ctx context.Context, inputs []inventory.MovementInput) ([]inventory.Posting, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Notifier notify.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service runs the production order lifecycle.
type Service struct {
	repo     RepositoryPort
	tx       db.Transactor
	ledger   LedgerPort
	audit    AuditPort
	notifier notify.Notifier
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, tx db.Transactor, ledger LedgerPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, tx: tx, ledger: ledger, audit: audit, notifier: cfg.Notifier, logger: cfg.Logger, clock: cfg.Clock}
}

// CreateInput describes a production order.
type CreateInput struct {
	Number       string
	ProductID    int64
	Quantity     decimal.Decimal
	SalesOrderID int64
	Materials    []Material
	Note         string
	ActorID      int64
}

// Create persists a pending order. Materials without a unit cost take the
// product's current cost.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if len(input.Materials) == 0 {
		return Order{}, ErrNoMaterials
	}
	if input.ProductID == 0 || !input.Quantity.IsPositive() || !shared.FitsQuantity(input.Quantity) {
		return Order{}, fmt.Errorf("production: product and positive quantity required: %w", shared.ErrValidation)
	}
	seen := make(map[int64]bool, len(input.Materials))
	for _, m := range input.Materials {
		if m.ProductID == 0 || !m.Quantity.IsPositive() || m.UnitCost.IsNegative() ||
			!shared.FitsQuantity(m.Quantity) || !shared.FitsQuantity(m.UnitCost) {
			return Order{}, fmt.Errorf("production: invalid material %d: %w", m.ProductID, shared.ErrValidation)
		}
		if seen[m.ProductID] {
			return Order{}, fmt.Errorf("production: material %d listed twice: %w", m.ProductID, shared.ErrValidation)
		}
		seen[m.ProductID] = true
	}
	now := s.clock()
	if strings.TrimSpace(input.Number) == "" {
		input.Number = shared.DocumentNumber("MO", now)
	}
	var created Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.GetProduct(ctx, input.ProductID); err != nil {
			return err
		}
		materials := make([]Material, 0, len(input.Materials))
		for _, m := range input.Materials {
			p, err := s.ledger.GetProduct(ctx, m.ProductID)
			if err != nil {
				return err
			}
			if m.UnitCost.IsZero() {
				m.UnitCost = p.UnitCost
			}
			materials = append(materials, m)
		}
		o, err := s.repo.CreateOrder(ctx, Order{
			Number:       input.Number,
			ProductID:    input.ProductID,
			Quantity:     input.Quantity,
			Status:       StatusPending,
			SalesOrderID: input.SalesOrderID,
			Materials:    materials,
			Note:         input.Note,
			CreatedBy:    input.ActorID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		created = o
		s.recordAudit(ctx, input.ActorID, "MO_CREATE", o.ID, map[string]any{"number": o.Number, "sales_order_id": o.SalesOrderID})
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return created, nil
}

// SalesDemand asks for a finished good to be produced for a sales order.
type SalesDemand struct {
	SalesOrderID int64
	ProductID    int64
	Quantity     decimal.Decimal
	ActorID      int64
}

// CreateForSalesOrder creates a pending order whose materials come from the
// product's bill of materials. It returns ErrNoBOM when none is defined.
func (s *Service) CreateForSalesOrder(ctx context.Context, demand SalesDemand) (Order, error) {
	bom, err := s.repo.GetBOM(ctx, demand.ProductID)
	if err != nil {
		return Order{}, err
	}
	if len(bom) == 0 {
		return Order{}, fmt.Errorf("production: product %d: %w", demand.ProductID, ErrNoBOM)
	}
	materials := make([]Material, 0, len(bom))
	for _, c := range bom {
		materials = append(materials, Material{ProductID: c.ComponentID, Quantity: c.Quantity.Mul(demand.Quantity).RoundUp(shared.QuantityPlaces)})
	}
	return s.Create(ctx, CreateInput{
		ProductID:    demand.ProductID,
		Quantity:     demand.Quantity,
		SalesOrderID: demand.SalesOrderID,
		Materials:    materials,
		Note:         fmt.Sprintf("demand from sales order %d", demand.SalesOrderID),
		ActorID:      demand.ActorID,
	})
}

// Start checks materials in list order and fails on the first shortfall. Only
// when all are covered are they consumed and the order moved to in-progress.
func (s *Service) Start(ctx context.Context, id, actorID int64) (Order, error) {
	order, err := s.transition(ctx, id, actorID, "MO_START", func(ctx context.Context, o *Order) error {
		if err := shared.RequireState("production_order", o.ID, o.Status, StatusPending); err != nil {
			return err
		}
		ids := make([]int64, 0, len(o.Materials))
		for _, m := range o.Materials {
			ids = append(ids, m.ProductID)
		}
		locked, err := s.ledger.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		required := make(map[int64]decimal.Decimal, len(o.Materials))
		for _, m := range o.Materials {
			required[m.ProductID] = required[m.ProductID].Add(m.Quantity)
		}
		for _, m := range o.Materials {
			p := locked[m.ProductID]
			if p.CurrentStock.LessThan(required[m.ProductID]) {
				return &shared.InsufficientMaterialError{OrderID: o.ID, ProductID: p.ID, SKU: p.SKU, Required: required[m.ProductID], Available: p.CurrentStock}
			}
		}
		inputs := make([]inventory.MovementInput, 0, len(o.Materials))
		for _, m := range o.Materials {
			inputs = append(inputs, inventory.MovementInput{
				ProductID:   m.ProductID,
				Direction:   inventory.DirectionOut,
				Quantity:    m.Quantity,
				UnitCost:    m.UnitCost,
				Reference:   inventory.ReferenceProduction,
				ReferenceID: o.ID,
				ActorID:     actorID,
				Note:        fmt.Sprintf("MO %s material", o.Number),
			})
		}
		if _, err := s.ledger.ApplyMovements(ctx, inputs); err != nil {
			return err
		}
		return o.start(s.clock())
	})
	if err != nil {
		notify.Report(ctx, s.notifier, s.logger, "production_order", id, err)
		return Order{}, err
	}
	return order, nil
}

// Complete books the finished product at the rolled-up material cost.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, "MO_COMPLETE", func(ctx context.Context, o *Order) error {
		if err := o.complete(s.clock()); err != nil {
			return err
		}
		_, err := s.ledger.ApplyMovements(ctx, []inventory.MovementInput{{
			ProductID:   o.ProductID,
			Direction:   inventory.DirectionIn,
			Quantity:    o.Quantity,
			UnitCost:    o.UnitCost(),
			Reference:   inventory.ReferenceProduction,
			ReferenceID: o.ID,
			ActorID:     actorID,
			Note:        fmt.Sprintf("MO %s output", o.Number),
		}})
		return err
	})
}

// Cancel cancels a pending order.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, "MO_CANCEL", func(ctx context.Context, o *Order) error {
		return o.cancel(s.clock())
	})
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action string, apply func(context.Context, *Order) error) (Order, error) {
	var result Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := o.Status
		if err := apply(ctx, &o); err != nil {
			return err
		}
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		result = o
		s.recordAudit(ctx, actorID, action, o.ID, map[string]any{"number": o.Number, "from": string(from), "to": string(o.Status)})
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return result, nil
}

// Get loads an order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List lists orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

// ComponentInput is one BOM line.
type ComponentInput struct {
	ComponentID int64
	Quantity    decimal.Decimal
}

// SetBOM replaces the bill of materials of a finished good. An empty list clears it.
func (s *Service) SetBOM(ctx context.Context, productID int64, inputs []ComponentInput) ([]Component, error) {
	components := make([]Component, 0, len(inputs))
	seen := map[int64]bool{}
	for _, in := range inputs {
		if in.ComponentID == 0 || in.ComponentID == productID || !in.Quantity.IsPositive() || !shared.FitsQuantity(in.Quantity) {
			return nil, fmt.Errorf("production: invalid component %d: %w", in.ComponentID, shared.ErrValidation)
		}
		if seen[in.ComponentID] {
			return nil, fmt.Errorf("production: component %d listed twice: %w", in.ComponentID, shared.ErrValidation)
		}
		seen[in.ComponentID] = true
		components = append(components, Component{ProductID: productID, ComponentID: in.ComponentID, Quantity: in.Quantity})
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.ledger.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p.Category != inventory.CategoryFinishedGood {
			return fmt.Errorf("production: %s is not a finished good: %w", p.SKU, shared.ErrValidation)
		}
		for _, c := range components {
			if _, err := s.ledger.GetProduct(ctx, c.ComponentID); err != nil {
				return err
			}
		}
		return s.repo.ReplaceBOM(ctx, productID, components)
	})
	if err != nil {
		return nil, err
	}
	return components, nil
}

// BOM returns the bill of materials of a product.
func (s *Service) BOM(ctx context.Context, productID int64) ([]Component, error) {
	return s.repo.GetBOM(ctx, productID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "production_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
			s.logger.Warn("production audit", slog.String("action", action), slog.Any("error", err))
		}
	})
}

// IsNoBOM reports whether err means the product has no bill of materials.
func IsNoBOM(err error) bool {
	return errors.Is(err, ErrNoBOM)
}
