package finance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts financial ledger persistence.
type RepositoryPort interface {
	CreateAccount(ctx context.Context, acc BankAccount) (BankAccount, error)
	GetAccount(ctx context.Context, id int64) (BankAccount, error)
	GetAccountForUpdate(ctx context.Context, id int64) (BankAccount, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	ListAccounts(ctx context.Context) ([]BankAccount, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	SumTransactions(ctx context.Context, accountID int64) (decimal.Decimal, int, error)
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	ReserveExpenseID(ctx context.Context) (int64, error)
	InsertExpense(ctx context.Context, e Expense) (Expense, error)
	ListExpenses(ctx context.Context, accountID int64, limit int) ([]Expense, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	DefaultCurrency string
	Notifier        notify.Notifier
	Logger          *slog.Logger
	Clock           func() time.Time
}

// Service is the financial ledger: bank balances change only through transactions.
type Service struct {
	repo     RepositoryPort
	tx       db.Transactor
	audit    AuditPort
	notifier notify.Notifier
	currency string
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, tx db.Transactor, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "IDR"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, tx: tx, audit: audit, notifier: cfg.Notifier, currency: cfg.DefaultCurrency, logger: cfg.Logger, clock: cfg.Clock}
}

// AccountInput opens a bank account.
type AccountInput struct {
	Name           string
	Currency       string
	OpeningBalance decimal.Decimal
	ActorID        int64
}

// OpenAccount registers an account. A positive opening balance is booked as an
// opening transaction so the log reproduces the balance.
func (s *Service) OpenAccount(ctx context.Context, input AccountInput) (BankAccount, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return BankAccount{}, fmt.Errorf("finance: account name required: %w", shared.ErrValidation)
	}
	if input.OpeningBalance.IsNegative() {
		return BankAccount{}, fmt.Errorf("finance: opening balance must be >= 0: %w", shared.ErrValidation)
	}
	if !shared.FitsMoney(input.OpeningBalance) {
		return BankAccount{}, ErrTooPrecise
	}
	if input.Currency == "" {
		input.Currency = s.currency
	}
	var opened BankAccount
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acc, err := s.repo.CreateAccount(ctx, BankAccount{Name: input.Name, Currency: input.Currency, Balance: decimal.Zero})
		if err != nil {
			return err
		}
		if input.OpeningBalance.IsPositive() {
			if acc, _, err = s.post(ctx, acc, DirectionIn, input.OpeningBalance, SourceOpening, acc.ID, "opening balance", input.ActorID); err != nil {
				return err
			}
		}
		opened = acc
		s.recordAudit(ctx, input.ActorID, "BANK_OPEN", "bank_account", acc.ID, map[string]any{"name": acc.Name, "opening": input.OpeningBalance.String()})
		return nil
	})
	if err != nil {
		return BankAccount{}, err
	}
	return opened, nil
}

// post applies one transaction to a locked account.
func (s *Service) post(ctx context.Context, acc BankAccount, dir Direction, amount decimal.Decimal, source SourceType, sourceID int64, notes string, actorID int64) (BankAccount, Transaction, error) {
	if !amount.IsPositive() {
		return acc, Transaction{}, fmt.Errorf("finance: amount must be positive: %w", shared.ErrValidation)
	}
	if !shared.FitsMoney(amount) {
		return acc, Transaction{}, ErrTooPrecise
	}
	balance := acc.Balance.Add(amount)
	if dir == DirectionOut {
		if acc.Balance.LessThan(amount) {
			return acc, Transaction{}, &shared.InsufficientBalanceError{AccountID: acc.ID, Account: acc.Name, Required: amount, Available: acc.Balance}
		}
		balance = acc.Balance.Sub(amount)
	}
	t, err := s.repo.InsertTransaction(ctx, Transaction{
		Direction:     dir,
		Amount:        amount,
		BankAccountID: acc.ID,
		SourceType:    source,
		SourceID:      sourceID,
		Notes:         notes,
		ActorID:       actorID,
		CreatedAt:     s.clock(),
	})
	if err != nil {
		return acc, Transaction{}, fmt.Errorf("finance: insert transaction: %w", err)
	}
	if err := s.repo.UpdateBalance(ctx, acc.ID, balance); err != nil {
		return acc, Transaction{}, fmt.Errorf("finance: update balance: %w", err)
	}
	acc.Balance = balance
	return acc, t, nil
}

// InvoiceInput creates a draft invoice.
type InvoiceInput struct {
	Number  string
	Kind    InvoiceKind
	PartyID int64
	OrderID int64
	Total   decimal.Decimal
	DueDate *time.Time
	ActorID int64
}

// CreateInvoice stores a draft invoice.
func (s *Service) CreateInvoice(ctx context.Context, input InvoiceInput) (Invoice, error) {
	if !input.Kind.Valid() {
		return Invoice{}, fmt.Errorf("finance: unknown invoice kind %q: %w", input.Kind, shared.ErrValidation)
	}
	if !input.Total.IsPositive() {
		return Invoice{}, fmt.Errorf("finance: invoice total must be positive: %w", shared.ErrValidation)
	}
	now := s.clock()
	if strings.TrimSpace(input.Number) == "" {
		prefix := "SI"
		if input.Kind == KindPurchase {
			prefix = "PI"
		}
		input.Number = shared.DocumentNumber(prefix, now)
	}
	var created Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.CreateInvoice(ctx, Invoice{
			Number:    input.Number,
			Kind:      input.Kind,
			PartyID:   input.PartyID,
			OrderID:   input.OrderID,
			Total:     input.Total.Round(shared.MoneyPlaces),
			Status:    InvoiceDraft,
			DueDate:   input.DueDate,
			CreatedBy: input.ActorID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		created = inv
		s.recordAudit(ctx, input.ActorID, "INVOICE_CREATE", "invoice", inv.ID, map[string]any{"number": inv.Number, "kind": string(inv.Kind), "total": inv.Total.String()})
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// SendInvoice moves a draft invoice to sent.
func (s *Service) SendInvoice(ctx context.Context, id, actorID int64) (Invoice, error) {
	var result Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.send(s.clock()); err != nil {
			return err
		}
		if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		result = inv
		s.recordAudit(ctx, actorID, "INVOICE_SEND", "invoice", inv.ID, map[string]any{"number": inv.Number})
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return result, nil
}

// PayInput settles an invoice from a bank account.
type PayInput struct {
	InvoiceID     int64
	Kind          InvoiceKind
	BankAccountID int64
	Notes         string
	ActorID       int64
}

// PayInvoice creates the payment transaction, adjusts the balance and marks the
// invoice paid in one unit. Purchase invoices require sufficient balance.
func (s *Service) PayInvoice(ctx context.Context, input PayInput) (Invoice, Transaction, error) {
	var (
		paid Invoice
		txn  Transaction
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if input.Kind != "" && inv.Kind != input.Kind {
			return fmt.Errorf("finance: invoice %d is a %s invoice: %w", inv.ID, inv.Kind, shared.ErrValidation)
		}
		if inv.Status == InvoicePaid {
			return fmt.Errorf("finance: invoice %s: %w", inv.Number, shared.ErrAlreadyPaid)
		}
		acc, err := s.repo.GetAccountForUpdate(ctx, input.BankAccountID)
		if err != nil {
			return err
		}
		notes := input.Notes
		if notes == "" {
			notes = fmt.Sprintf("payment %s", inv.Number)
		}
		_, t, err := s.post(ctx, acc, inv.Kind.Direction(), inv.Total, inv.Kind.SourceType(), inv.ID, notes, input.ActorID)
		if err != nil {
			return err
		}
		now := s.clock()
		inv.Status = InvoicePaid
		inv.TransactionID = t.ID
		inv.BankAccountID = acc.ID
		inv.PaidAt = &now
		inv.UpdatedAt = now
		if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		paid, txn = inv, t
		s.recordAudit(ctx, input.ActorID, "INVOICE_PAY", "invoice", inv.ID, map[string]any{"number": inv.Number, "transaction_id": t.ID, "bank_account_id": acc.ID})
		return nil
	})
	if err != nil {
		notify.Report(ctx, s.notifier, s.logger, "invoice", input.InvoiceID, err)
		return Invoice{}, Transaction{}, err
	}
	return paid, txn, nil
}

// ExpenseInput records an operating expense.
type ExpenseInput struct {
	Description   string
	Category      string
	Amount        decimal.Decimal
	BankAccountID int64
	ActorID       int64
}

// CreateExpense books an outgoing transaction and the expense referencing it.
func (s *Service) CreateExpense(ctx context.Context, input ExpenseInput) (Expense, error) {
	if strings.TrimSpace(input.Description) == "" {
		return Expense{}, fmt.Errorf("finance: description required: %w", shared.ErrValidation)
	}
	var created Expense
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acc, err := s.repo.GetAccountForUpdate(ctx, input.BankAccountID)
		if err != nil {
			return err
		}
		expenseID, err := s.repo.ReserveExpenseID(ctx)
		if err != nil {
			return fmt.Errorf("finance: reserve expense id: %w", err)
		}
		_, t, err := s.post(ctx, acc, DirectionOut, input.Amount, SourceExpense, expenseID, input.Description, input.ActorID)
		if err != nil {
			return err
		}
		e, err := s.repo.InsertExpense(ctx, Expense{
			ID:            expenseID,
			Description:   input.Description,
			Category:      input.Category,
			Amount:        input.Amount,
			BankAccountID: acc.ID,
			TransactionID: t.ID,
			ActorID:       input.ActorID,
			CreatedAt:     t.CreatedAt,
		})
		if err != nil {
			return err
		}
		created = e
		s.recordAudit(ctx, input.ActorID, "EXPENSE_CREATE", "expense", e.ID, map[string]any{"amount": e.Amount.String(), "transaction_id": t.ID})
		return nil
	})
	if err != nil {
		notify.Report(ctx, s.notifier, s.logger, "bank_account", input.BankAccountID, err)
		return Expense{}, err
	}
	return created, nil
}

// GetAccount loads an account.
func (s *Service) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts lists accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	return s.repo.ListAccounts(ctx)
}

// GetInvoice loads an invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices lists invoices.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

// ListTransactions lists transactions.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// ListExpenses lists expenses of an account, or all when accountID is zero.
func (s *Service) ListExpenses(ctx context.Context, accountID int64, limit int) ([]Expense, error) {
	return s.repo.ListExpenses(ctx, accountID, limit)
}

// Reconcile recomputes the balance from the transaction log.
func (s *Service) Reconcile(ctx context.Context, accountID int64) (Reconciliation, error) {
	var result Reconciliation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acc, err := s.repo.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		total, count, err := s.repo.SumTransactions(ctx, accountID)
		if err != nil {
			return err
		}
		result = Reconciliation{BankAccountID: accountID, Live: acc.Balance, FromLog: total, Transactions: count}
		return nil
	})
	return result, err
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
			s.logger.Warn("finance audit", slog.String("action", action), slog.Any("error", err))
		}
	})
}
