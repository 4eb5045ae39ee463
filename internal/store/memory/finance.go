package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/finance"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// FinanceRepo implements finance.RepositoryPort.
type FinanceRepo struct {
	s *Store
}

var _ finance.RepositoryPort = (*FinanceRepo)(nil)

func (r *FinanceRepo) CreateAccount(ctx context.Context, acc finance.BankAccount) (finance.BankAccount, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, existing := range st.accounts {
			if existing.Name == acc.Name {
				return fmt.Errorf("finance: account %q: %w", acc.Name, shared.ErrDuplicate)
			}
		}
		now := r.s.clock()
		acc.ID = st.next("bank_account")
		acc.CreatedAt = now
		acc.UpdatedAt = now
		st.accounts[acc.ID] = acc
		return nil
	})
	return acc, err
}

func (r *FinanceRepo) GetAccount(ctx context.Context, id int64) (finance.BankAccount, error) {
	var acc finance.BankAccount
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.accounts[id]
		if !ok {
			return shared.NotFound("bank_account", id)
		}
		acc = found
		return nil
	})
	return acc, err
}

func (r *FinanceRepo) GetAccountForUpdate(ctx context.Context, id int64) (finance.BankAccount, error) {
	if err := r.s.requireTx(ctx); err != nil {
		return finance.BankAccount{}, err
	}
	return r.GetAccount(ctx, id)
}

func (r *FinanceRepo) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return r.s.do(ctx, func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return shared.NotFound("bank_account", id)
		}
		acc.Balance = balance
		acc.UpdatedAt = r.s.clock()
		st.accounts[id] = acc
		return nil
	})
}

func (r *FinanceRepo) ListAccounts(ctx context.Context) ([]finance.BankAccount, error) {
	out := []finance.BankAccount{}
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.accounts) {
			out = append(out, st.accounts[id])
		}
		return nil
	})
	return out, err
}

func (r *FinanceRepo) InsertTransaction(ctx context.Context, t finance.Transaction) (finance.Transaction, error) {
	err := r.s.do(ctx, func(st *state) error {
		t.ID = st.next("transaction")
		st.transactions = append(st.transactions, t)
		return nil
	})
	return t, err
}

func (r *FinanceRepo) ListTransactions(ctx context.Context, filter finance.TransactionFilter) ([]finance.Transaction, error) {
	out := []finance.Transaction{}
	err := r.s.do(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if filter.BankAccountID != 0 && t.BankAccountID != filter.BankAccountID {
				continue
			}
			if filter.SourceType != "" && t.SourceType != filter.SourceType {
				continue
			}
			out = append(out, t)
			if len(out) == limitOf(filter.Limit) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *FinanceRepo) SumTransactions(ctx context.Context, accountID int64) (decimal.Decimal, int, error) {
	total := decimal.Zero
	count := 0
	err := r.s.do(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if t.BankAccountID == accountID {
				total = total.Add(t.Signed())
				count++
			}
		}
		return nil
	})
	return total, count, err
}

func (r *FinanceRepo) CreateInvoice(ctx context.Context, inv finance.Invoice) (finance.Invoice, error) {
	err := r.s.do(ctx, func(st *state) error {
		for _, existing := range st.invoices {
			if existing.Kind == inv.Kind && existing.Number == inv.Number {
				return fmt.Errorf("finance: invoice number %q: %w", inv.Number, shared.ErrDuplicate)
			}
		}
		inv.ID = st.next("invoice")
		st.invoices[inv.ID] = inv
		return nil
	})
	return inv, err
}

func (r *FinanceRepo) GetInvoice(ctx context.Context, id int64) (finance.Invoice, error) {
	var inv finance.Invoice
	err := r.s.do(ctx, func(st *state) error {
		found, ok := st.invoices[id]
		if !ok {
			return shared.NotFound("invoice", id)
		}
		inv = found
		return nil
	})
	return inv, err
}

func (r *FinanceRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (finance.Invoice, error) {
	if err := r.s.requireTx(ctx); err != nil {
		return finance.Invoice{}, err
	}
	return r.GetInvoice(ctx, id)
}

func (r *FinanceRepo) UpdateInvoice(ctx context.Context, inv finance.Invoice) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.invoices[inv.ID]; !ok {
			return shared.NotFound("invoice", inv.ID)
		}
		st.invoices[inv.ID] = inv
		return nil
	})
}

func (r *FinanceRepo) ListInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error) {
	out := []finance.Invoice{}
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range sortedKeys(st.invoices) {
			inv := st.invoices[id]
			if filter.Kind != "" && inv.Kind != filter.Kind {
				continue
			}
			if filter.Status != "" && inv.Status != filter.Status {
				continue
			}
			out = append(out, inv)
			if len(out) == limitOf(filter.Limit) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *FinanceRepo) ReserveExpenseID(ctx context.Context) (int64, error) {
	var id int64
	err := r.s.do(ctx, func(st *state) error {
		id = st.next("expense")
		return nil
	})
	return id, err
}

func (r *FinanceRepo) InsertExpense(ctx context.Context, e finance.Expense) (finance.Expense, error) {
	err := r.s.do(ctx, func(st *state) error {
		if e.ID == 0 {
			e.ID = st.next("expense")
		}
		st.expenses = append(st.expenses, e)
		return nil
	})
	return e, err
}

func (r *FinanceRepo) ListExpenses(ctx context.Context, accountID int64, limit int) ([]finance.Expense, error) {
	out := []finance.Expense{}
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.expenses {
			if accountID != 0 && e.BankAccountID != accountID {
				continue
			}
			out = append(out, e)
			if len(out) == limitOf(limit) {
				break
			}
		}
		return nil
	})
	return out, err
}
