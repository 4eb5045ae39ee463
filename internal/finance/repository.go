package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists the financial ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, name, currency, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.Name, &a.Currency, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repository) CreateAccount(ctx context.Context, acc BankAccount) (BankAccount, error) {
	if r == nil {
		return BankAccount{}, errors.New("finance repository not initialised")
	}
	created, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO bank_accounts (name, currency, balance, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING `+accountColumns, acc.Name, acc.Currency, acc.Balance))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return BankAccount{}, fmt.Errorf("finance: account %q: %w", acc.Name, shared.ErrDuplicate)
		}
		return BankAccount{}, err
	}
	return created, nil
}

func (r *Repository) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id=$1`, id)
}

// GetAccountForUpdate row-locks the account until the transaction ends.
func (r *Repository) GetAccountForUpdate(ctx context.Context, id int64) (BankAccount, error) {
	if !db.InTx(ctx) {
		return BankAccount{}, errors.New("finance: account lock requires a transaction")
	}
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repository) getAccount(ctx context.Context, query string, id int64) (BankAccount, error) {
	acc, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return BankAccount{}, shared.NotFound("bank_account", id)
		}
		return BankAccount{}, err
	}
	return acc, nil
}

func (r *Repository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE bank_accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("bank_account", id)
	}
	return nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+accountColumns+` FROM bank_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []BankAccount{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *Repository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO transactions (direction, amount, bank_account_id, source_type, source_id, notes, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, string(t.Direction), t.Amount, t.BankAccountID, string(t.SourceType), nullInt(t.SourceID), t.Notes, nullInt(t.ActorID), t.CreatedAt).Scan(&t.ID)
	return t, err
}

func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, direction, amount, bank_account_id, source_type, COALESCE(source_id, 0), notes, COALESCE(actor_id, 0), created_at
FROM transactions
WHERE ($1 = 0 OR bank_account_id = $1) AND ($2 = '' OR source_type = $2)
ORDER BY id
LIMIT $3`, filter.BankAccountID, string(filter.SourceType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		var dir, source string
		if err := rows.Scan(&t.ID, &dir, &t.Amount, &t.BankAccountID, &source, &t.SourceID, &t.Notes, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Direction = Direction(dir)
		t.SourceType = SourceType(source)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) SumTransactions(ctx context.Context, accountID int64) (decimal.Decimal, int, error) {
	var total decimal.Decimal
	var count int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN direction = 'out' THEN -amount ELSE amount END), 0), COUNT(*)
FROM transactions WHERE bank_account_id=$1`, accountID).Scan(&total, &count)
	return total, count, err
}

const invoiceColumns = `id, number, kind, party_id, COALESCE(order_id, 0), total, status, due_date, COALESCE(transaction_id, 0), COALESCE(bank_account_id, 0), paid_at, COALESCE(created_by, 0), created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var kind, status string
	err := row.Scan(&inv.ID, &inv.Number, &kind, &inv.PartyID, &inv.OrderID, &inv.Total, &status, &inv.DueDate, &inv.TransactionID, &inv.BankAccountID, &inv.PaidAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Kind = InvoiceKind(kind)
	inv.Status = InvoiceStatus(status)
	return inv, err
}

func (r *Repository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	created, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO invoices (number, kind, party_id, order_id, total, status, due_date, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING `+invoiceColumns,
		inv.Number, string(inv.Kind), inv.PartyID, nullInt(inv.OrderID), inv.Total, string(inv.Status), inv.DueDate, nullInt(inv.CreatedBy), inv.CreatedAt, inv.UpdatedAt))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Invoice{}, fmt.Errorf("finance: invoice number %q: %w", inv.Number, shared.ErrDuplicate)
		}
		return Invoice{}, err
	}
	return created, nil
}

func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return r.getInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id)
}

// GetInvoiceForUpdate row-locks the invoice so concurrent payments serialise.
func (r *Repository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	if !db.InTx(ctx) {
		return Invoice{}, errors.New("finance: invoice lock requires a transaction")
	}
	return r.getInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repository) getInvoice(ctx context.Context, query string, id int64) (Invoice, error) {
	inv, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Invoice{}, shared.NotFound("invoice", id)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *Repository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE invoices SET status=$2, transaction_id=$3, bank_account_id=$4, paid_at=$5, updated_at=$6 WHERE id=$1`,
		inv.ID, string(inv.Status), nullInt(inv.TransactionID), nullInt(inv.BankAccountID), inv.PaidAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("invoice", inv.ID)
	}
	return nil
}

func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+invoiceColumns+`
FROM invoices
WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR status = $2)
ORDER BY id
LIMIT $3`, string(filter.Kind), string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ReserveExpenseID draws the next expense id so the paying transaction can
// reference the expense before its row exists.
func (r *Repository) ReserveExpenseID(ctx context.Context) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval(pg_get_serial_sequence('expenses', 'id'))`).Scan(&id)
	return id, err
}

func (r *Repository) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO expenses (id, description, category, amount, bank_account_id, transaction_id, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.ID, e.Description, e.Category, e.Amount, e.BankAccountID, e.TransactionID, nullInt(e.ActorID), e.CreatedAt)
	return e, err
}

func (r *Repository) ListExpenses(ctx context.Context, accountID int64, limit int) ([]Expense, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, description, category, amount, bank_account_id, transaction_id, COALESCE(actor_id, 0), created_at
FROM expenses WHERE ($1 = 0 OR bank_account_id = $1) ORDER BY id LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Expense{}
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.Category, &e.Amount, &e.BankAccountID, &e.TransactionID, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
