package cashflow

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/partners"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for one direction of cashflow documents.
// Payments and receipts mount separate instances over the same service.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	direction Direction
	validator *validator.Validate
}

// NewHandler constructs a Handler instance bound to a direction.
func NewHandler(logger *slog.Logger, service *Service, direction Direction) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, direction: direction, validator: validator.New()}
}

type allocationRequest struct {
	ReferenceType string  `json:"reference_type" validate:"required"`
	ReferenceID   int64   `json:"reference_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
}

type createDocumentRequest struct {
	Purpose         string              `json:"purpose" validate:"required"`
	Method          string              `json:"method" validate:"required"`
	Amount          float64             `json:"amount" validate:"gt=0"`
	Date            string              `json:"doc_date" validate:"required"`
	Description     string              `json:"description"`
	PartnerType     *string             `json:"partner_type"`
	PartnerID       *int64              `json:"partner_id"`
	ReferenceType   *string             `json:"reference_type"`
	ReferenceID     *int64              `json:"reference_id"`
	BankAccountID   *int64              `json:"bank_account_id"`
	ContraAccountID int64               `json:"contra_account_id" validate:"required"`
	CreatedBy       int64               `json:"created_by"`
	Allocations     []allocationRequest `json:"allocations" validate:"dive"`
}

type approveRequest struct {
	ApproverID int64  `json:"approver_id"`
	Notes      string `json:"notes"`
}

type settleRequest struct {
	ActorID       int64  `json:"actor_id"`
	BankAccountID *int64 `json:"bank_account_id"`
	SettleDate    string `json:"settle_date"`
}

type cancelRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "doc_date must be YYYY-MM-DD")
		return
	}
	in := CreateInput{
		Direction:       h.direction,
		Purpose:         Purpose(req.Purpose),
		Method:          Method(req.Method),
		Amount:          req.Amount,
		Date:            date,
		Description:     req.Description,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
		BankAccountID:   req.BankAccountID,
		ContraAccountID: req.ContraAccountID,
		CreatedBy:       req.CreatedBy,
	}
	if req.PartnerType != nil {
		ref := partners.Ref{Kind: partners.Kind(*req.PartnerType)}
		if req.PartnerID != nil {
			ref.ID = *req.PartnerID
		}
		in.Partner = &ref
	}
	for _, alloc := range req.Allocations {
		in.Allocations = append(in.Allocations, AllocationInput{
			ReferenceType: alloc.ReferenceType,
			ReferenceID:   alloc.ReferenceID,
			Amount:        alloc.Amount,
		})
	}
	doc, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Warn("create cashflow document", slog.String("direction", string(h.direction)), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Direction: h.direction,
		Status:    DocumentStatus(q.Get("status")),
		Purpose:   Purpose(q.Get("purpose")),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	docs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list cashflow documents", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	if doc.Direction != h.direction {
		shared.RespondError(w, fmt.Errorf("cashflow document: %w", shared.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.service.Submit(r.Context(), id)
	if err != nil {
		h.logger.Warn("submit cashflow document", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req approveRequest
	_ = httpx.DecodeJSON(r, &req)
	doc, err := h.service.Approve(r.Context(), id, ApproveInput{ApproverID: req.ApproverID, Notes: req.Notes})
	if err != nil {
		h.logger.Warn("approve cashflow document", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req settleRequest
	_ = httpx.DecodeJSON(r, &req)
	in := SettleInput{ActorID: req.ActorID, BankAccountID: req.BankAccountID}
	if req.SettleDate != "" {
		date, err := time.Parse(dateLayout, req.SettleDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "settle_date must be YYYY-MM-DD")
			return
		}
		in.SettleDate = date
	}
	var doc Document
	if h.direction == DirectionInbound {
		doc, err = h.service.MarkDeposited(r.Context(), id, in)
	} else {
		doc, err = h.service.MarkPaid(r.Context(), id, in)
	}
	if err != nil {
		h.logger.Warn("settle cashflow document", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req cancelRequest
	_ = httpx.DecodeJSON(r, &req)
	doc, err := h.service.Cancel(r.Context(), id, CancelInput{ActorID: req.ActorID, Reason: req.Reason})
	if err != nil {
		h.logger.Warn("cancel cashflow document", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete cashflow document", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid document id")
	}
	return id, nil
}
