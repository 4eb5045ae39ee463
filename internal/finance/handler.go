package finance

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes the financial ledger over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bank-accounts", h.listAccounts)
	r.Post("/bank-accounts", h.openAccount)
	r.Get("/bank-accounts/{id}", h.getAccount)
	r.Get("/bank-accounts/{id}/transactions", h.listTransactions)
	r.Get("/bank-accounts/{id}/reconcile", h.reconcile)
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/send", h.sendInvoice)
	r.Post("/invoices/{id}/pay", h.payInvoice)
	r.Get("/expenses", h.listExpenses)
	r.Post("/expenses", h.createExpense)
}

type accountRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"gte=0"`
}

type invoiceRequest struct {
	Number  string          `json:"number" validate:"omitempty,max=64"`
	Kind    InvoiceKind     `json:"kind" validate:"required,oneof=sales purchase"`
	PartyID int64           `json:"party_id" validate:"required,gt=0"`
	OrderID int64           `json:"order_id" validate:"gte=0"`
	Total   decimal.Decimal `json:"total" validate:"gt=0"`
	DueDate *time.Time      `json:"due_date"`
}

type payRequest struct {
	Kind          InvoiceKind `json:"kind" validate:"omitempty,oneof=sales purchase"`
	BankAccountID int64       `json:"bank_account_id" validate:"required,gt=0"`
	Notes         string      `json:"notes" validate:"max=500"`
}

type expenseRequest struct {
	Description   string          `json:"description" validate:"required,max=200"`
	Category      string          `json:"category" validate:"max=64"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	BankAccountID int64           `json:"bank_account_id" validate:"required,gt=0"`
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.OpenAccount(r.Context(), AccountInput{
		Name:           req.Name,
		Currency:       req.Currency,
		OpeningBalance: req.OpeningBalance,
		ActorID:        shared.ActorFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.fail(w, "open bank account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, "list bank accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bank_accounts": accounts})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, "get bank account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	txns, err := h.service.ListTransactions(r.Context(), TransactionFilter{
		BankAccountID: id,
		SourceType:    SourceType(r.URL.Query().Get("source_type")),
		Limit:         httpx.QueryLimit(r),
	})
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, "reconcile bank account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"bank_account_id": rec.BankAccountID,
		"live":            rec.Live,
		"from_log":        rec.FromLog,
		"transactions":    rec.Transactions,
		"consistent":      rec.Consistent(),
	})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), InvoiceInput{
		Number:  req.Number,
		Kind:    req.Kind,
		PartyID: req.PartyID,
		OrderID: req.OrderID,
		Total:   req.Total,
		DueDate: req.DueDate,
		ActorID: shared.ActorFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListInvoices(r.Context(), InvoiceFilter{
		Kind:   InvoiceKind(r.URL.Query().Get("kind")),
		Status: InvoiceStatus(r.URL.Query().Get("status")),
		Limit:  httpx.QueryLimit(r),
	})
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.service.SendInvoice(r.Context(), id, shared.ActorFromContext(r.Context()).UserID)
	if err != nil {
		h.fail(w, "send invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) payInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.ParseID(w, r, "id")
	if !ok {
		return
	}
	var req payRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, txn, err := h.service.PayInvoice(r.Context(), PayInput{
		InvoiceID:     id,
		Kind:          req.Kind,
		BankAccountID: req.BankAccountID,
		Notes:         req.Notes,
		ActorID:       shared.ActorFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.fail(w, "pay invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "transaction": txn})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.CreateExpense(r.Context(), ExpenseInput{
		Description:   req.Description,
		Category:      req.Category,
		Amount:        req.Amount,
		BankAccountID: req.BankAccountID,
		ActorID:       shared.ActorFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.fail(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.service.ListExpenses(r.Context(), httpx.QueryInt64(r, "bank_account_id"), httpx.QueryLimit(r))
	if err != nil {
		h.fail(w, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
