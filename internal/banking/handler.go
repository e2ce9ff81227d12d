package banking

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for bank accounts and reconciliation.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type createBankAccountRequest struct {
	Name            string  `json:"name" validate:"required"`
	AccountNumber   string  `json:"account_number"`
	BankName        string  `json:"bank_name"`
	LedgerAccountID int64   `json:"ledger_account_id" validate:"required"`
	OpeningBalance  float64 `json:"opening_balance"`
	OpeningDate     string  `json:"opening_date" validate:"required"`
}

type appendTransactionRequest struct {
	TransactionDate string  `json:"transaction_date" validate:"required"`
	Type            string  `json:"type" validate:"required,oneof=DEBIT CREDIT"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	Description     string  `json:"description"`
}

type updateTransactionRequest struct {
	TransactionDate *string  `json:"transaction_date"`
	Type            *string  `json:"type"`
	Amount          *float64 `json:"amount"`
	Description     *string  `json:"description"`
}

type reconcileRequest struct {
	StatementDate    string  `json:"statement_date" validate:"required"`
	StatementBalance float64 `json:"statement_balance"`
	TransactionIDs   []int64 `json:"transaction_ids" validate:"required,min=1"`
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createBankAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	openingDate, err := time.Parse(dateLayout, req.OpeningDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_date must be YYYY-MM-DD")
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Name:            req.Name,
		AccountNumber:   req.AccountNumber,
		BankName:        req.BankName,
		LedgerAccountID: req.LedgerAccountID,
		OpeningBalance:  req.OpeningBalance,
		OpeningDate:     openingDate,
	})
	if err != nil {
		h.logger.Warn("create bank account", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.logger.Error("list bank accounts", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bankAccountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bankAccountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	summary, err := h.service.Summarize(r.Context(), id)
	if err != nil {
		h.logger.Error("bank summary", slog.Int64("bank_account", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bankAccountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	q := r.URL.Query()
	filter := TransactionFilter{
		BankAccountID:  id,
		ReconciledOnly: q.Get("reconciled") == "true",
		PendingOnly:    q.Get("reconciled") == "false",
	}
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse(dateLayout, raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if filter.To, err = time.Parse(dateLayout, raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	txns, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.logger.Error("list bank transactions", slog.Int64("bank_account", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) handleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bankAccountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req appendTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.TransactionDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transaction_date must be YYYY-MM-DD")
		return
	}
	txn, err := h.service.AppendTransaction(r.Context(), AppendInput{
		BankAccountID:   id,
		TransactionDate: date,
		Type:            TransactionType(req.Type),
		Amount:          req.Amount,
		Description:     req.Description,
	})
	if err != nil {
		h.logger.Warn("append bank transaction", slog.Int64("bank_account", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "transactionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req updateTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	in := UpdateTransactionInput{Amount: req.Amount, Description: req.Description}
	if req.TransactionDate != nil {
		date, err := time.Parse(dateLayout, *req.TransactionDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transaction_date must be YYYY-MM-DD")
			return
		}
		in.TransactionDate = &date
	}
	if req.Type != nil {
		t := TransactionType(*req.Type)
		in.Type = &t
	}
	txn, err := h.service.UpdateTransaction(r.Context(), id, in)
	if err != nil {
		h.logger.Warn("update bank transaction", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "transactionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		h.logger.Warn("delete bank transaction", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bankAccountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	statementDate, err := time.Parse(dateLayout, req.StatementDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "statement_date must be YYYY-MM-DD")
		return
	}
	if err := h.service.Reconcile(r.Context(), ReconcileInput{
		BankAccountID:    id,
		StatementDate:    statementDate,
		StatementBalance: req.StatementBalance,
		TransactionIDs:   req.TransactionIDs,
	}); err != nil {
		h.logger.Warn("reconcile", slog.Int64("bank_account", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
