package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateStock(ctx context.Context, id int64, stock, unitCost decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	SumMovements(ctx context.Context, productID int64) (decimal.Decimal, int, error)
	ListReplenishmentCandidates(ctx context.Context) ([]Product, error)
	ListProductIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives movement counters.
type MetricsPort interface {
	ObserveMovement(direction, reference string)
	ObserveShortfall(reference string)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger  *slog.Logger
	Metrics MetricsPort
	Clock   func() time.Time
}

// Service is the stock ledger: the only writer of Product.CurrentStock.
type Service struct {
	repo    RepositoryPort
	tx      db.Transactor
	audit   AuditPort
	trigger ReplenishmentTrigger
	metrics MetricsPort
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, tx db.Transactor, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, tx: tx, audit: audit, metrics: cfg.Metrics, logger: logger, clock: clock}
}

// SetTrigger installs the replenishment trigger. It is wired after construction
// because the scheduler itself depends on the ledger.
func (s *Service) SetTrigger(trigger ReplenishmentTrigger) {
	s.trigger = trigger
}

// RegisterProduct creates a product. Opening stock is booked as an adjustment so the
// movement log reproduces the balance from the first entry.
func (s *Service) RegisterProduct(ctx context.Context, input ProductInput) (Product, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	if input.SKU == "" {
		return Product{}, fmt.Errorf("inventory: sku required: %w", shared.ErrValidation)
	}
	if !input.Category.Valid() {
		return Product{}, fmt.Errorf("inventory: unknown category %q: %w", input.Category, shared.ErrValidation)
	}
	if input.MinStockLevel.IsNegative() || input.MaxStockLevel.IsNegative() || input.OpeningStock.IsNegative() {
		return Product{}, fmt.Errorf("inventory: stock levels must be >= 0: %w", shared.ErrValidation)
	}
	if input.UnitCost.IsNegative() {
		return Product{}, ErrInvalidUnitCost
	}
	for _, v := range []decimal.Decimal{input.MinStockLevel, input.MaxStockLevel, input.OpeningStock, input.UnitCost} {
		if !shared.FitsQuantity(v) {
			return Product{}, ErrTooPrecise
		}
	}
	var created Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.CreateProduct(ctx, Product{
			SKU:           input.SKU,
			Name:          input.Name,
			Category:      input.Category,
			CurrentStock:  decimal.Zero,
			MinStockLevel: input.MinStockLevel,
			MaxStockLevel: input.MaxStockLevel,
			UnitCost:      input.UnitCost,
			SupplierID:    input.SupplierID,
			Active:        true,
		})
		if err != nil {
			return err
		}
		created = p
		if !input.OpeningStock.IsPositive() {
			return nil
		}
		postings, err := s.ApplyMovements(ctx, []MovementInput{{
			ProductID: p.ID,
			Direction: DirectionAdjustment,
			Quantity:  input.OpeningStock,
			UnitCost:  input.UnitCost,
			Reference: ReferenceAdjustment,
			ActorID:   input.ActorID,
			Note:      "opening stock",
		}})
		if err != nil {
			return err
		}
		created = postings[0].Product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return created, nil
}

// GetProduct loads a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ApplyMovement applies one movement atomically.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (Product, Movement, error) {
	postings, err := s.ApplyMovements(ctx, []MovementInput{input})
	if err != nil {
		return Product{}, Movement{}, err
	}
	return postings[0].Product, postings[0].Movement, nil
}

// Adjust books a manual correction. Decreases are checked against current stock and
// evaluate the replenishment trigger like any other outbound movement.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Product, Movement, error) {
	return s.ApplyMovement(ctx, MovementInput{
		ProductID: input.ProductID,
		Direction: DirectionAdjustment,
		Quantity:  input.Quantity,
		UnitCost:  input.UnitCost,
		Decrease:  input.Decrease,
		Reference: ReferenceAdjustment,
		ActorID:   input.ActorID,
		Note:      input.Note,
	})
}

// ApplyMovements applies every movement or none. Products are locked in ascending id
// order; a shortfall on any line aborts the whole batch.
func (s *Service) ApplyMovements(ctx context.Context, inputs []MovementInput) ([]Posting, error) {
	if len(inputs) == 0 {
		return nil, ErrNoMovements
	}
	changes := make([]decimal.Decimal, len(inputs))
	for i, input := range inputs {
		change, err := input.change()
		if err != nil {
			return nil, err
		}
		changes[i] = change
	}

	var postings []Posting
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		products, err := s.LockProducts(ctx, productIDs(inputs))
		if err != nil {
			return err
		}
		now := s.clock()
		postings = make([]Posting, 0, len(inputs))
		decreased := map[int64]MovementInput{}
		for i, input := range inputs {
			product := products[input.ProductID]
			newStock := product.CurrentStock.Add(changes[i])
			if newStock.IsNegative() {
				if s.metrics != nil {
					s.metrics.ObserveShortfall(string(input.Reference))
				}
				return &shared.InsufficientStockError{
					ProductID: product.ID,
					SKU:       product.SKU,
					Required:  input.Quantity,
					Available: product.CurrentStock,
				}
			}
			unitCost := input.UnitCost
			if input.Direction == DirectionIn {
				product.UnitCost = input.UnitCost
			} else if unitCost.IsZero() {
				unitCost = product.UnitCost
			}
			movement, err := s.repo.InsertMovement(ctx, Movement{
				ProductID:   product.ID,
				Direction:   input.Direction,
				Quantity:    input.Quantity,
				Change:      changes[i],
				UnitCost:    unitCost,
				TotalCost:   input.Quantity.Mul(unitCost),
				Reference:   input.Reference,
				ReferenceID: input.ReferenceID,
				ActorID:     input.ActorID,
				Note:        input.Note,
				CreatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("inventory: insert movement: %w", err)
			}
			product.CurrentStock = newStock
			product.UpdatedAt = now
			if err := s.repo.UpdateStock(ctx, product.ID, product.CurrentStock, product.UnitCost); err != nil {
				return fmt.Errorf("inventory: update stock: %w", err)
			}
			products[product.ID] = product
			postings = append(postings, Posting{Product: product, Movement: movement})
			if changes[i].IsNegative() {
				decreased[product.ID] = input
			}
		}
		for i := range postings {
			postings[i].Product = products[postings[i].Product.ID]
		}
		s.afterCommit(ctx, postings, products, decreased)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return postings, nil
}

// afterCommit registers audit, metrics and replenishment dispatch for the batch.
// They run only once the outermost transaction commits.
func (s *Service) afterCommit(ctx context.Context, postings []Posting, products map[int64]Product, decreased map[int64]MovementInput) {
	var events []LowStockEvent
	for id, input := range decreased {
		product := products[id]
		if !product.NeedsReplenishment() {
			continue
		}
		events = append(events, LowStockEvent{
			ProductID:     product.ID,
			SKU:           product.SKU,
			CurrentStock:  product.CurrentStock,
			MinStockLevel: product.MinStockLevel,
			Reference:     input.Reference,
			ReferenceID:   input.ReferenceID,
			DetectedAt:    product.UpdatedAt,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ProductID < events[j].ProductID })

	db.AfterCommit(ctx, func(ctx context.Context) {
		for _, posting := range postings {
			m := posting.Movement
			if s.metrics != nil {
				s.metrics.ObserveMovement(string(m.Direction), string(m.Reference))
			}
			if s.audit != nil {
				_ = s.audit.Record(ctx, shared.AuditLog{
					ActorID:  m.ActorID,
					Action:   fmt.Sprintf("inventory:%s", m.Direction),
					Entity:   "stock_movement",
					EntityID: fmt.Sprintf("%d", m.ID),
					Meta: map[string]any{
						"product_id":   m.ProductID,
						"change":       m.Change.String(),
						"reference":    string(m.Reference),
						"reference_id": m.ReferenceID,
						"stock":        posting.Product.CurrentStock.String(),
					},
				})
			}
		}
		for _, evt := range events {
			s.logger.Info("low stock detected",
				slog.Int64("product_id", evt.ProductID),
				slog.String("sku", evt.SKU),
				slog.String("stock", evt.CurrentStock.String()),
				slog.String("min_level", evt.MinStockLevel.String()),
			)
			if s.trigger != nil {
				s.trigger.HandleLowStock(ctx, evt)
			}
		}
	})
}

// LockProducts row-locks the given products in ascending id order and returns them.
// It must run inside a transaction.
func (s *Service) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	if !db.InTx(ctx) {
		return nil, errors.New("inventory: LockProducts requires a transaction")
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	products := make(map[int64]Product, len(sorted))
	for _, id := range sorted {
		if _, ok := products[id]; ok {
			continue
		}
		p, err := s.repo.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}
	return products, nil
}

// CheckAvailability verifies that current stock covers every requirement without
// reserving anything. Requirements on the same product are summed.
func (s *Service) CheckAvailability(ctx context.Context, reqs []Requirement) error {
	totals := map[int64]decimal.Decimal{}
	order := []int64{}
	for _, req := range reqs {
		if _, ok := totals[req.ProductID]; !ok {
			order = append(order, req.ProductID)
		}
		totals[req.ProductID] = totals[req.ProductID].Add(req.Quantity)
	}
	for _, id := range order {
		p, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p.CurrentStock.LessThan(totals[id]) {
			return &shared.InsufficientStockError{ProductID: p.ID, SKU: p.SKU, Required: totals[id], Available: p.CurrentStock}
		}
	}
	return nil
}

// CurrentValue returns current stock times unit cost.
func (s *Service) CurrentValue(ctx context.Context, productID int64) (decimal.Decimal, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.CurrentValue(), nil
}

// ListMovements lists stock card entries.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Reconcile recomputes the stock figure from the movement log.
func (s *Service) Reconcile(ctx context.Context, productID int64) (Reconciliation, error) {
	var result Reconciliation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		total, count, err := s.repo.SumMovements(ctx, productID)
		if err != nil {
			return err
		}
		result = Reconciliation{ProductID: productID, Live: p.CurrentStock, FromLog: total, Movements: count}
		return nil
	})
	return result, err
}

// ReconcileAll reconciles every product and returns the inconsistent ones.
func (s *Service) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	ids, err := s.repo.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}
	var drift []Reconciliation
	for _, id := range ids {
		rec, err := s.Reconcile(ctx, id)
		if err != nil {
			return drift, err
		}
		if !rec.Consistent() {
			drift = append(drift, rec)
		}
	}
	return drift, nil
}

// ReplenishmentCandidates lists active raw materials at or below their minimum
// level that have a supplier.
func (s *Service) ReplenishmentCandidates(ctx context.Context) ([]Product, error) {
	products, err := s.repo.ListReplenishmentCandidates(ctx)
	if err != nil {
		return nil, err
	}
	filtered := products[:0]
	for _, p := range products {
		if p.NeedsReplenishment() {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func productIDs(inputs []MovementInput) []int64 {
	ids := make([]int64, 0, len(inputs))
	for _, input := range inputs {
		ids = append(ids, input.ProductID)
	}
	return ids
}
