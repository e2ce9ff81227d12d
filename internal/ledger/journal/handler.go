package journal

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

// Handler wires HTTP endpoints for journal entries.
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

type lineRequest struct {
	AccountID   int64   `json:"account_id" validate:"required"`
	Debit       float64 `json:"debit_amount" validate:"gte=0"`
	Credit      float64 `json:"credit_amount" validate:"gte=0"`
	PartnerType *string `json:"partner_type"`
	PartnerID   *int64  `json:"partner_id"`
}

type createEntryRequest struct {
	Date        string        `json:"entry_date" validate:"required"`
	Description string        `json:"description"`
	Type        string        `json:"entry_type" validate:"omitempty,oneof=MANUAL AUTOMATIC ADJUSTMENT CLOSING"`
	CreatedBy   int64         `json:"created_by"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type updateEntryRequest struct {
	Date        *string       `json:"entry_date"`
	Description *string       `json:"description"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseEntryRequest struct {
	ActorID      int64  `json:"actor_id"`
	Reason       string `json:"reason"`
	ReversalDate string `json:"reversal_date"`
}

func toLineInputs(reqs []lineRequest) []LineInput {
	lines := make([]LineInput, 0, len(reqs))
	for _, l := range reqs {
		in := LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, PartnerID: l.PartnerID}
		if l.PartnerType != nil {
			kind := partners.Kind(*l.PartnerType)
			in.PartnerKind = &kind
		}
		lines = append(lines, in)
	}
	return lines
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
		return
	}
	entryType := TypeManual
	if req.Type != "" {
		entryType = EntryType(req.Type)
	}
	entry, err := h.service.CreateDraft(r.Context(), DraftInput{
		Date:        date,
		Description: req.Description,
		Type:        entryType,
		CreatedBy:   req.CreatedBy,
		Lines:       toLineInputs(req.Lines),
	})
	if err != nil {
		h.logger.Warn("create journal entry", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: EntryStatus(q.Get("status")),
		Type:   EntryType(q.Get("type")),
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
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req updateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := UpdateInput{Description: req.Description, Lines: toLineInputs(req.Lines)}
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
			return
		}
		in.Date = &date
	}
	entry, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.logger.Warn("update journal entry", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req struct {
		ActorID int64 `json:"actor_id"`
	}
	_ = httpx.DecodeJSON(r, &req)
	entry, err := h.service.Post(r.Context(), id, req.ActorID)
	if err != nil {
		h.logger.Warn("post journal entry", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req reverseEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	in := ReverseInput{EntryID: id, ActorID: req.ActorID, Reason: req.Reason}
	if req.ReversalDate != "" {
		date, err := time.Parse(dateLayout, req.ReversalDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reversal_date must be YYYY-MM-DD")
			return
		}
		in.ReversalDate = date
	}
	reversal, err := h.service.Reverse(r.Context(), in)
	if err != nil {
		h.logger.Warn("reverse journal entry", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete journal entry", slog.Int64("id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func entryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id")
	}
	return id, nil
}
