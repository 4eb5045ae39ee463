package finance_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/finance"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (s *alertSink) Notify(_ context.Context, alert notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func newService(t *testing.T) (*finance.Service, *alertSink) {
	t.Helper()
	store := memory.New()
	alerts := &alertSink{}
	return finance.NewService(store.Finance(), store, store, finance.ServiceConfig{Notifier: alerts}), alerts
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func openAccount(t *testing.T, svc *finance.Service, name, balance string) finance.BankAccount {
	t.Helper()
	acc, err := svc.OpenAccount(context.Background(), finance.AccountInput{Name: name, OpeningBalance: d(balance), ActorID: 1})
	require.NoError(t, err)
	return acc
}

func invoice(t *testing.T, svc *finance.Service, kind finance.InvoiceKind, total string) finance.Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), finance.InvoiceInput{Kind: kind, PartyID: 7, Total: d(total), ActorID: 1})
	require.NoError(t, err)
	return inv
}

func TestOpenAccountBooksOpeningTransaction(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	acc := openAccount(t, svc, "Operating", "300")
	require.True(t, acc.Balance.Equal(d("300")))
	require.Equal(t, "IDR", acc.Currency)

	txns, err := svc.ListTransactions(ctx, finance.TransactionFilter{BankAccountID: acc.ID})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, finance.SourceOpening, txns[0].SourceType)
	require.Equal(t, acc.ID, txns[0].SourceID)

	empty := openAccount(t, svc, "Petty", "0")
	txns, err = svc.ListTransactions(ctx, finance.TransactionFilter{BankAccountID: empty.ID})
	require.NoError(t, err)
	require.Empty(t, txns)

	_, err = svc.OpenAccount(ctx, finance.AccountInput{Name: "Operating"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	_, err = svc.OpenAccount(ctx, finance.AccountInput{Name: "Bad", OpeningBalance: d("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPayPurchaseInvoiceWithInsufficientBalance(t *testing.T) {
	svc, alerts := newService(t)
	ctx := context.Background()
	acc := openAccount(t, svc, "Operating", "300")
	inv := invoice(t, svc, finance.KindPurchase, "500")

	_, _, err := svc.PayInvoice(ctx, finance.PayInput{InvoiceID: inv.ID, Kind: finance.KindPurchase, BankAccountID: acc.ID})
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	var balanceErr *shared.InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	require.Equal(t, acc.ID, balanceErr.AccountID)
	require.True(t, balanceErr.Required.Equal(d("500")))
	require.True(t, balanceErr.Available.Equal(d("300")))

	got, err := svc.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(d("300")))
	unpaid, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, finance.InvoiceDraft, unpaid.Status)
	require.Zero(t, unpaid.TransactionID)

	txns, err := svc.ListTransactions(ctx, finance.TransactionFilter{BankAccountID: acc.ID, SourceType: finance.SourcePurchaseInvoice})
	require.NoError(t, err)
	require.Empty(t, txns)

	require.Len(t, alerts.alerts, 1)
	require.Equal(t, notify.KindInsufficientBalance, alerts.alerts[0].Kind)
}

func TestPaySalesInvoiceCreditsAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acc := openAccount(t, svc, "Operating", "0")
	inv := invoice(t, svc, finance.KindSales, "500")

	sent, err := svc.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, finance.InvoiceSent, sent.Status)

	paid, txn, err := svc.PayInvoice(ctx, finance.PayInput{InvoiceID: inv.ID, Kind: finance.KindSales, BankAccountID: acc.ID})
	require.NoError(t, err)
	require.Equal(t, finance.InvoicePaid, paid.Status)
	require.Equal(t, txn.ID, paid.TransactionID)
	require.Equal(t, acc.ID, paid.BankAccountID)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, finance.DirectionIn, txn.Direction)
	require.Equal(t, finance.SourceSalesInvoice, txn.SourceType)
	require.Equal(t, inv.ID, txn.SourceID)

	got, err := svc.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(d("500")))

	txns, err := svc.ListTransactions(ctx, finance.TransactionFilter{BankAccountID: acc.ID})
	require.NoError(t, err)
	require.Len(t, txns, 1)

	_, _, err = svc.PayInvoice(ctx, finance.PayInput{InvoiceID: inv.ID, BankAccountID: acc.ID})
	require.ErrorIs(t, err, shared.ErrAlreadyPaid)
	got, err = svc.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(d("500")))
}

func TestPayRejectsKindMismatchAndUnknownAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acc := openAccount(t, svc, "Operating", "1000")
	inv := invoice(t, svc, finance.KindPurchase, "10")

	_, _, err := svc.PayInvoice(ctx, finance.PayInput{InvoiceID: inv.ID, Kind: finance.KindSales, BankAccountID: acc.ID})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.PayInvoice(ctx, finance.PayInput{InvoiceID: inv.ID, BankAccountID: 404})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, _, err = svc.PayInvoice(ctx, finance.PayInput{InvoiceID: 404, BankAccountID: acc.ID})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateInvoice(ctx, finance.InvoiceInput{Kind: "credit", Total: d("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateExpense(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acc := openAccount(t, svc, "Operating", "100")

	e, err := svc.CreateExpense(ctx, finance.ExpenseInput{Description: "Courier", Category: "logistics", Amount: d("40"), BankAccountID: acc.ID, ActorID: 2})
	require.NoError(t, err)
	require.NotZero(t, e.TransactionID)

	_, err = svc.CreateExpense(ctx, finance.ExpenseInput{Description: "Rent", Amount: d("61"), BankAccountID: acc.ID})
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	_, err = svc.CreateExpense(ctx, finance.ExpenseInput{Description: "", Amount: d("1"), BankAccountID: acc.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(d("60")))

	expenses, err := svc.ListExpenses(ctx, acc.ID, 0)
	require.NoError(t, err)
	require.Len(t, expenses, 1)

	txns, err := svc.ListTransactions(ctx, finance.TransactionFilter{SourceType: finance.SourceExpense})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, e.TransactionID, txns[0].ID)
	require.Equal(t, finance.DirectionOut, txns[0].Direction)
	require.Equal(t, e.ID, txns[0].SourceID)
}

func TestAmountsBeyondCentsAreRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.OpenAccount(ctx, finance.AccountInput{Name: "Fractional", OpeningBalance: d("100.001")})
	require.ErrorIs(t, err, finance.ErrTooPrecise)
	require.ErrorIs(t, err, shared.ErrValidation)

	acc := openAccount(t, svc, "Operating", "100")
	_, err = svc.CreateExpense(ctx, finance.ExpenseInput{Description: "Stamp", Amount: d("10.005"), BankAccountID: acc.ID})
	require.ErrorIs(t, err, finance.ErrTooPrecise)

	_, err = svc.CreateExpense(ctx, finance.ExpenseInput{Description: "Stamp", Amount: d("10.50"), BankAccountID: acc.ID})
	require.NoError(t, err)
	rec, err := svc.Reconcile(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, rec.Live.Equal(d("89.5")))
	require.True(t, rec.Live.Equal(rec.FromLog))
}

func TestConcurrentPaymentsKeepBalanceNonNegative(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acc := openAccount(t, svc, "Operating", "250")
	invoices := make([]finance.Invoice, 10)
	for i := range invoices {
		invoices[i] = invoice(t, svc, finance.KindPurchase, "50")
	}

	var wg sync.WaitGroup
	for _, inv := range invoices {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _, _ = svc.PayInvoice(ctx, finance.PayInput{InvoiceID: id, BankAccountID: acc.ID})
		}(inv.ID)
	}
	wg.Wait()

	got, err := svc.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())

	paid, err := svc.ListInvoices(ctx, finance.InvoiceFilter{Status: finance.InvoicePaid})
	require.NoError(t, err)
	require.Len(t, paid, 5)

	rec, err := svc.Reconcile(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, rec.Consistent())
	require.Equal(t, 6, rec.Transactions)
}
