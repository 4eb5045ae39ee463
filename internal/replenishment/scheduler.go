// Package replenishment turns low-stock raw materials into auto-generated purchase
// orders, either on a schedule or in response to ledger events.
package replenishment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Outcome labels a per-product scheduler result.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIneligible Outcome = "ineligible"
	OutcomeFailed     Outcome = "failed"
)

// ErrRunInProgress is returned when another scan holds the run lock.
var ErrRunInProgress = errors.New("replenishment: run already in progress")

// LedgerPort is the slice of the stock ledger the scheduler reads and locks.
type LedgerPort interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error)
	ReplenishmentCandidates(ctx context.Context) ([]inventory.Product, error)
}

// OrderPort creates purchase orders and answers the dedupe question.
type OrderPort interface {
	Create(ctx context.Context, input procurement.CreateInput) (procurement.PurchaseOrder, error)
	HasOpenAutoOrder(ctx context.Context, productID int64) (bool, error)
}

// MetricsPort counts per-product outcomes.
type MetricsPort interface {
	ObserveReplenishment(outcome string)
}

// Locker guards a scan across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// Config tunes the scheduler.
type Config struct {
	Interval   time.Duration
	RunTimeout time.Duration
	LockKey    string
	Locker     Locker
	Metrics    MetricsPort
	Logger     *slog.Logger
}

// Report summarises one scan.
type Report struct {
	Scanned int
	Created []procurement.PurchaseOrder
	Skipped []int64
	Failed  map[int64]error
}

// Err joins every per-product failure.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("product %d: %w", id, err))
	}
	return errors.Join(errs...)
}

// Scheduler generates auto purchase orders for products at or below their minimum.
type Scheduler struct {
	ledger   LedgerPort
	orders   OrderPort
	tx       db.Transactor
	locker   Locker
	metrics  MetricsPort
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	lockKey  string

	running sync.Mutex
	group   singleflight.Group
}

// NewScheduler wires a Scheduler.
func NewScheduler(ledger LedgerPort, orders OrderPort, tx db.Transactor, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.LockKey == "" {
		cfg.LockKey = shared.ReplenishmentLockKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		ledger:   ledger,
		orders:   orders,
		tx:       tx,
		locker:   cfg.Locker,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		timeout:  cfg.RunTimeout,
		lockKey:  cfg.LockKey,
	}
}

// GenerateAutoPurchaseOrders scans every candidate once. Failures are isolated per
// product and joined into the returned error; the report is always populated.
func (s *Scheduler) GenerateAutoPurchaseOrders(ctx context.Context) (Report, error) {
	report := Report{Failed: map[int64]error{}}
	candidates, err := s.ledger.ReplenishmentCandidates(ctx)
	if err != nil {
		return report, fmt.Errorf("replenishment: list candidates: %w", err)
	}
	report.Scanned = len(candidates)
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			report.Failed[p.ID] = err
			continue
		}
		po, created, err := s.GenerateForProduct(ctx, p.ID)
		switch {
		case err != nil:
			report.Failed[p.ID] = err
		case created:
			report.Created = append(report.Created, po)
		default:
			report.Skipped = append(report.Skipped, p.ID)
		}
	}
	s.logger.Info("replenishment scan finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("created", len(report.Created)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, report.Err()
}

// GenerateForProduct creates an auto purchase order for one product when it still
// needs replenishment and has no open auto order. The eligibility and dedupe checks
// run under the product row lock.
func (s *Scheduler) GenerateForProduct(ctx context.Context, productID int64) (procurement.PurchaseOrder, bool, error) {
	var (
		po      procurement.PurchaseOrder
		outcome = OutcomeIneligible
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		products, err := s.ledger.LockProducts(ctx, []int64{productID})
		if err != nil {
			return err
		}
		p := products[productID]
		if !p.NeedsReplenishment() {
			return nil
		}
		open, err := s.orders.HasOpenAutoOrder(ctx, productID)
		if err != nil {
			return err
		}
		if open {
			outcome = OutcomeDuplicate
			return nil
		}
		po, err = s.orders.Create(ctx, procurement.CreateInput{
			SupplierID:    p.SupplierID,
			Source:        procurement.SourceInventory,
			AutoGenerated: true,
			Note:          "auto replenishment for " + p.SKU,
			ActorID:       shared.SystemActor.UserID,
			Lines: []procurement.LineInput{{
				ProductID: p.ID,
				Quantity:  p.ReorderQuantity(),
				UnitPrice: p.UnitCost,
			}},
		})
		if err != nil {
			return err
		}
		outcome = OutcomeCreated
		return nil
	})
	if err != nil {
		outcome = OutcomeFailed
	}
	s.observe(outcome)
	if err != nil {
		return procurement.PurchaseOrder{}, false, err
	}
	if outcome == OutcomeCreated {
		s.logger.Info("auto purchase order created",
			slog.Int64("product_id", productID),
			slog.Int64("purchase_order_id", po.ID),
			slog.String("number", po.Number),
		)
	}
	return po, outcome == OutcomeCreated, nil
}

// Candidates lists products currently meeting the trigger condition.
func (s *Scheduler) Candidates(ctx context.Context) ([]inventory.Product, error) {
	return s.ledger.ReplenishmentCandidates(ctx)
}

// RunOnce performs a guarded scan: it is skipped when another scan runs in this
// process or, with a Locker, in any process.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.running.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, s.lockKey, s.timeout)
		if err != nil {
			return Report{}, fmt.Errorf("replenishment: acquire lease: %w", err)
		}
		if !ok {
			return Report{}, ErrRunInProgress
		}
		defer release(context.WithoutCancel(ctx))
	}
	return s.GenerateAutoPurchaseOrders(ctx)
}

// Trigger runs a scan on demand. Concurrent callers share the same run.
func (s *Scheduler) Trigger(ctx context.Context) (Report, error) {
	v, err, _ := s.group.Do("scan", func() (any, error) {
		return s.RunOnce(ctx)
	})
	report, _ := v.(Report)
	return report, err
}

// TriggerProduct coalesces concurrent requests for the same product.
func (s *Scheduler) TriggerProduct(ctx context.Context, productID int64) (procurement.PurchaseOrder, bool, error) {
	type result struct {
		po      procurement.PurchaseOrder
		created bool
	}
	v, err, _ := s.group.Do("product:"+strconv.FormatInt(productID, 10), func() (any, error) {
		po, created, err := s.GenerateForProduct(ctx, productID)
		return result{po: po, created: created}, err
	})
	res, _ := v.(result)
	return res.po, res.created, err
}

// Run scans on every interval tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("replenishment scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("replenishment scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					s.logger.Info("replenishment scan skipped", slog.Any("reason", err))
					continue
				}
				s.logger.Error("replenishment scan failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Scheduler) observe(outcome Outcome) {
	if s.metrics != nil {
		s.metrics.ObserveReplenishment(string(outcome))
	}
}
