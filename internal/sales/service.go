package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts sales order persistence.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, so SalesOrder) (SalesOrder, error)
	GetOrder(ctx context.Context, id int64) (SalesOrder, error)
	GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error)
	UpdateOrder(ctx context.Context, so SalesOrder) error
	ListOrders(ctx context.Context, filter ListFilter) ([]SalesOrder, error)
}

// LedgerPort exposes the stock ledger operations sales needs.
type LedgerPort interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	CheckAvailability(ctx context.Context, reqs []inventory.Requirement) error
	ApplyMovements(ctx context.Context, inputs []inventory.MovementInput) ([]inventory.Posting, error)
}

// ProductionPort spawns production for confirmed demand.
type ProductionPort interface {
	CreateForSalesOrder(ctx context.Context, demand production.SalesDemand) (production.Order, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DefaultTaxRate applies when ServiceConfig.TaxRate is unset.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// ServiceConfig groups tunables and optional collaborators.
type ServiceConfig struct {
	TaxRate  decimal.Decimal
	Notifier notify.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service provides business logic for sales operations.
type Service struct {
	repo       RepositoryPort
	tx         db.Transactor
	ledger     LedgerPort
	production ProductionPort
	audit      AuditPort
	notifier   notify.Notifier
	taxRate    decimal.Decimal
	logger     *slog.Logger
	clock      func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, tx db.Transactor, ledger LedgerPort, production ProductionPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = DefaultTaxRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:       repo,
		tx:         tx,
		ledger:     ledger,
		production: production,
		audit:      audit,
		notifier:   cfg.Notifier,
		taxRate:    cfg.TaxRate,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
	}
}

// ============================================================================
// SALES ORDER OPERATIONS
// ============================================================================

// Create validates products and pre-checks availability without reserving stock.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, actorID int64) (SalesOrder, error) {
	if req.CustomerID <= 0 {
		return SalesOrder{}, fmt.Errorf("sales: customer required: %w", shared.ErrValidation)
	}
	if len(req.Lines) == 0 {
		return SalesOrder{}, ErrNoLines
	}
	for _, line := range req.Lines {
		if line.ProductID == 0 || !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() ||
			!shared.FitsQuantity(line.Quantity) || !shared.FitsQuantity(line.UnitPrice) {
			return SalesOrder{}, fmt.Errorf("sales: invalid line for product %d: %w", line.ProductID, shared.ErrValidation)
		}
	}
	now := s.clock()
	if strings.TrimSpace(req.Number) == "" {
		req.Number = shared.DocumentNumber("SO", now)
	}

	var created SalesOrder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines := make([]Line, 0, len(req.Lines))
		amounts := make([]decimal.Decimal, 0, len(req.Lines))
		for _, in := range req.Lines {
			if _, err := s.ledger.GetProduct(ctx, in.ProductID); err != nil {
				return err
			}
			total := in.Quantity.Mul(in.UnitPrice).Round(shared.MoneyPlaces)
			lines = append(lines, Line{ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice, LineTotal: total})
			amounts = append(amounts, total)
		}
		if err := s.ledger.CheckAvailability(ctx, requirements(lines)); err != nil {
			return err
		}
		totals := shared.ComputeTotals(amounts, s.taxRate)
		so, err := s.repo.CreateOrder(ctx, SalesOrder{
			Number:     req.Number,
			CustomerID: req.CustomerID,
			Status:     StatusPending,
			Subtotal:   totals.Subtotal,
			Tax:        totals.Tax,
			Total:      totals.Total,
			Note:       req.Note,
			CreatedBy:  actorID,
			CreatedAt:  now,
			UpdatedAt:  now,
			Lines:      lines,
		})
		if err != nil {
			return err
		}
		created = so
		s.recordAudit(ctx, actorID, "SO_CREATE", so.ID, map[string]any{"number": so.Number, "total": so.Total.String()})
		return nil
	})
	if err != nil {
		notify.Report(ctx, s.notifier, s.logger, "sales_order", 0, err)
		return SalesOrder{}, err
	}
	return created, nil
}

// Confirm re-validates availability and books one sale movement per line. Finished
// goods left unable to cover the ordered quantity again spawn a pending production
// order. Status change, movements and production orders commit together.
func (s *Service) Confirm(ctx context.Context, id, actorID int64) (SalesOrder, error) {
	order, err := s.transition(ctx, id, actorID, "SO_CONFIRM", func(ctx context.Context, so *SalesOrder) error {
		if err := so.confirm(s.clock()); err != nil {
			return err
		}
		if err := s.ledger.CheckAvailability(ctx, requirements(so.Lines)); err != nil {
			return err
		}
		inputs := make([]inventory.MovementInput, 0, len(so.Lines))
		for _, line := range so.Lines {
			inputs = append(inputs, inventory.MovementInput{
				ProductID:   line.ProductID,
				Direction:   inventory.DirectionOut,
				Quantity:    line.Quantity,
				Reference:   inventory.ReferenceSale,
				ReferenceID: so.ID,
				ActorID:     actorID,
				Note:        fmt.Sprintf("SO %s", so.Number),
			})
		}
		postings, err := s.ledger.ApplyMovements(ctx, inputs)
		if err != nil {
			return err
		}
		return s.spawnProduction(ctx, so, postings, actorID)
	})
	if err != nil {
		notify.Report(ctx, s.notifier, s.logger, "sales_order", id, err)
		return SalesOrder{}, err
	}
	return order, nil
}

func (s *Service) spawnProduction(ctx context.Context, so *SalesOrder, postings []inventory.Posting, actorID int64) error {
	ordered := map[int64]decimal.Decimal{}
	var productIDs []int64
	after := map[int64]inventory.Product{}
	for _, posting := range postings {
		p := posting.Product
		if _, seen := ordered[p.ID]; !seen {
			productIDs = append(productIDs, p.ID)
		}
		ordered[p.ID] = ordered[p.ID].Add(posting.Movement.Quantity)
		after[p.ID] = p
	}
	for _, productID := range productIDs {
		p := after[productID]
		if p.Category != inventory.CategoryFinishedGood || !p.CurrentStock.LessThan(ordered[productID]) {
			continue
		}
		if s.production == nil {
			continue
		}
		mo, err := s.production.CreateForSalesOrder(ctx, production.SalesDemand{
			SalesOrderID: so.ID,
			ProductID:    productID,
			Quantity:     ordered[productID].Sub(p.CurrentStock),
			ActorID:      actorID,
		})
		if production.IsNoBOM(err) {
			s.logger.Info("no bill of materials, production skipped", slog.Int64("sales_order_id", so.ID), slog.String("sku", p.SKU))
			continue
		}
		if err != nil {
			return fmt.Errorf("sales: spawn production for %s: %w", p.SKU, err)
		}
		if so.ProductionOrderID == 0 {
			so.ProductionOrderID = mo.ID
		}
	}
	return nil
}

// Ship requires a confirmed order.
func (s *Service) Ship(ctx context.Context, id, actorID int64) (SalesOrder, error) {
	return s.transition(ctx, id, actorID, "SO_SHIP", func(_ context.Context, so *SalesOrder) error {
		return so.ship(s.clock())
	})
}

// Deliver requires a shipped order.
func (s *Service) Deliver(ctx context.Context, id, actorID int64) (SalesOrder, error) {
	return s.transition(ctx, id, actorID, "SO_DELIVER", func(_ context.Context, so *SalesOrder) error {
		return so.deliver(s.clock())
	})
}

// Cancel requires a pending order; confirmed stock is never returned by cancellation.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (SalesOrder, error) {
	return s.transition(ctx, id, actorID, "SO_CANCEL", func(_ context.Context, so *SalesOrder) error {
		return so.cancel(s.clock())
	})
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action string, apply func(context.Context, *SalesOrder) error) (SalesOrder, error) {
	var result SalesOrder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		so, err := s.repo.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := so.Status
		if err := apply(ctx, &so); err != nil {
			return err
		}
		if err := s.repo.UpdateOrder(ctx, so); err != nil {
			return err
		}
		result = so
		s.recordAudit(ctx, actorID, action, so.ID, map[string]any{"number": so.Number, "from": string(from), "to": string(so.Status)})
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}
	return result, nil
}

// Get loads an order.
func (s *Service) Get(ctx context.Context, id int64) (SalesOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// List lists orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesOrder, error) {
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "sales_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
			s.logger.Warn("sales audit", slog.String("action", action), slog.Any("error", err))
		}
	})
}

func requirements(lines []Line) []inventory.Requirement {
	reqs := make([]inventory.Requirement, 0, len(lines))
	for _, line := range lines {
		reqs = append(reqs, inventory.Requirement{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return reqs
}
