package safes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/alfani/backoffice/internal/platform/httpx"
	"github.com/alfani/backoffice/internal/shared"
)

// Handler exposes safe endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers safe routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/transactions", h.transactions)
	r.Post("/{id}/recompute", h.recompute)
	r.Post("/transactions", h.post)
	r.Post("/transfer", h.transfer)
}

type createSafeRequest struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code" validate:"required"`
	ParentID *int64 `json:"parentId,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createSafeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid safe payload", nil)
		return
	}
	safe, err := h.service.CreateSafe(r.Context(), CreateSafeInput{Name: req.Name, Code: req.Code, ParentID: req.ParentID})
	if err != nil {
		h.respondError(w, "create safe", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, safe)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	safes, err := h.service.ListSafes(r.Context())
	if err != nil {
		h.respondError(w, "list safes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": safes})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	safe, err := h.service.GetSafe(r.Context(), id)
	if err != nil {
		h.respondError(w, "get safe", err)
		return
	}
	httpx.JSON(w, http.StatusOK, safe)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.service.ListTransactions(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, "list safe transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": txs})
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	safe, err := h.service.Recompute(r.Context(), id)
	if err != nil {
		h.respondError(w, "recompute safe", err)
		return
	}
	httpx.JSON(w, http.StatusOK, safe)
}

type postRequest struct {
	SafeID       int64           `json:"safeId" validate:"required,gt=0"`
	Type         TransactionType `json:"type" validate:"required"`
	AmountUSD    float64         `json:"amountUSD"`
	AmountLYD    float64         `json:"amountLYD"`
	ExchangeRate *float64        `json:"exchangeRate,omitempty"`
	Description  string          `json:"description"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid transaction payload", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	tx, err := h.service.Post(r.Context(), PostInput{
		SafeID:       req.SafeID,
		Type:         req.Type,
		AmountUSD:    req.AmountUSD,
		AmountLYD:    req.AmountLYD,
		ExchangeRate: req.ExchangeRate,
		Description:  req.Description,
		CreatedBy:    actor.ID,
	})
	if err != nil {
		h.respondError(w, "post safe transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tx)
}

type transferRequest struct {
	SrcSafeID   int64   `json:"srcSafeId" validate:"required,gt=0"`
	DstSafeID   int64   `json:"dstSafeId" validate:"required,gt=0"`
	AmountUSD   float64 `json:"amountUSD"`
	AmountLYD   float64 `json:"amountLYD"`
	Description string  `json:"description"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid transfer payload", nil)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		SrcSafeID:   req.SrcSafeID,
		DstSafeID:   req.DstSafeID,
		AmountUSD:   req.AmountUSD,
		AmountLYD:   req.AmountLYD,
		Description: req.Description,
		CreatedBy:   actor.ID,
	})
	if err != nil {
		h.respondError(w, "transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "safe id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSafeNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidType), errors.Is(err, ErrZeroAmount), errors.Is(err, ErrSameSafe):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
