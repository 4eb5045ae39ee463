package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrder(ctx context.Context, po PurchaseOrder) error
	ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	HasOpenAutoOrder(ctx context.Context, productID int64) (bool, error)
}

// LedgerPort exposes the stock ledger operations procurement needs.
type LedgerPort interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	ApplyMovements(ctx context.Context, inputs []inventory.MovementInput) ([]inventory.Posting, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DefaultTaxRate applies when ServiceConfig.TaxRate is unset.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// ServiceConfig groups tunables and optional collaborators.
type ServiceConfig struct {
	TaxRate decimal.Decimal
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Service orchestrates the purchase order lifecycle.
type Service struct {
	repo    RepositoryPort
	tx      db.Transactor
	ledger  LedgerPort
	audit   AuditPort
	taxRate decimal.Decimal
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, tx db.Transactor, ledger LedgerPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = DefaultTaxRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, tx: tx, ledger: ledger, audit: audit, taxRate: cfg.TaxRate, logger: cfg.Logger, clock: cfg.Clock}
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	Number        string
	SupplierID    int64
	Source        Source
	AutoGenerated bool
	Note          string
	ActorID       int64
	Lines         []LineInput
}

// LineInput describes an order line.
type LineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Create validates products, computes totals and persists a pending order. It joins
// a transaction already open on ctx.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if input.SupplierID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("procurement: supplier required: %w", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() ||
			!shared.FitsQuantity(line.Quantity) || !shared.FitsQuantity(line.UnitPrice) {
			return PurchaseOrder{}, fmt.Errorf("procurement: invalid line for product %d: %w", line.ProductID, shared.ErrValidation)
		}
	}
	if input.Source == "" {
		input.Source = SourceManual
	}
	now := s.clock()
	if strings.TrimSpace(input.Number) == "" {
		input.Number = shared.DocumentNumber("PO", now)
	}

	var created PurchaseOrder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines := make([]Line, 0, len(input.Lines))
		amounts := make([]decimal.Decimal, 0, len(input.Lines))
		for _, in := range input.Lines {
			if _, err := s.ledger.GetProduct(ctx, in.ProductID); err != nil {
				return err
			}
			total := in.Quantity.Mul(in.UnitPrice).Round(shared.MoneyPlaces)
			lines = append(lines, Line{ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice, LineTotal: total})
			amounts = append(amounts, total)
		}
		totals := shared.ComputeTotals(amounts, s.taxRate)
		po, err := s.repo.CreateOrder(ctx, PurchaseOrder{
			Number:        input.Number,
			SupplierID:    input.SupplierID,
			Status:        StatusPending,
			Source:        input.Source,
			AutoGenerated: input.AutoGenerated,
			Lines:         lines,
			Subtotal:      totals.Subtotal,
			Tax:           totals.Tax,
			Total:         totals.Total,
			Note:          input.Note,
			CreatedBy:     input.ActorID,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		created = po
		s.recordAudit(ctx, input.ActorID, "PO_CREATE", po.ID, map[string]any{"number": po.Number, "total": po.Total.String(), "source": string(po.Source)})
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return created, nil
}

// MarkOrdered sends a pending order to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, "PO_ORDER", func(ctx context.Context, po *PurchaseOrder) error {
		return po.markOrdered(s.clock())
	})
}

// Receive books one purchase movement per line and stamps the received date. The
// status change and the stock movements commit together.
func (s *Service) Receive(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, "PO_RECEIVE", func(ctx context.Context, po *PurchaseOrder) error {
		if err := po.receive(s.clock()); err != nil {
			return err
		}
		inputs := make([]inventory.MovementInput, 0, len(po.Lines))
		for _, line := range po.Lines {
			inputs = append(inputs, inventory.MovementInput{
				ProductID:   line.ProductID,
				Direction:   inventory.DirectionIn,
				Quantity:    line.Quantity,
				UnitCost:    line.UnitPrice,
				Reference:   inventory.ReferencePurchase,
				ReferenceID: po.ID,
				ActorID:     actorID,
				Note:        fmt.Sprintf("PO %s", po.Number),
			})
		}
		_, err := s.ledger.ApplyMovements(ctx, inputs)
		return err
	})
}

// Cancel cancels a pending order.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, "PO_CANCEL", func(ctx context.Context, po *PurchaseOrder) error {
		return po.cancel(s.clock())
	})
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action string, apply func(context.Context, *PurchaseOrder) error) (PurchaseOrder, error) {
	var result PurchaseOrder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		po, err := s.repo.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := po.Status
		if err := apply(ctx, &po); err != nil {
			return err
		}
		if err := s.repo.UpdateOrder(ctx, po); err != nil {
			return err
		}
		result = po
		s.recordAudit(ctx, actorID, action, po.ID, map[string]any{"number": po.Number, "from": string(from), "to": string(po.Status)})
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return result, nil
}

// Get loads an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// List lists orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	return s.repo.ListOrders(ctx, filter)
}

// HasOpenAutoOrder reports whether an auto-generated pending or ordered order
// already covers the product.
func (s *Service) HasOpenAutoOrder(ctx context.Context, productID int64) (bool, error) {
	return s.repo.HasOpenAutoOrder(ctx, productID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
			s.logger.Warn("procurement audit", slog.String("action", action), slog.Any("error", err))
		}
	})
}
