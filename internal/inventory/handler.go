package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/alfani/backoffice/internal/platform/httpx"
	"github.com/alfani/backoffice/internal/shared"
)

// Handler exposes inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.upsert)
	r.Get("/", h.list)
	r.Get("/low-stock", h.lowStock)
	r.Get("/{productID}/{branch}", h.get)
}

type upsertRequest struct {
	ProductID         int64  `json:"productId" validate:"required,gt=0"`
	Branch            Branch `json:"branch" validate:"required"`
	Quantity          int64  `json:"quantity" validate:"gte=0"`
	LowStockThreshold int64  `json:"lowStockThreshold" validate:"gte=0"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid inventory payload", fieldErrors(err))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	row, err := h.service.Upsert(r.Context(), UpsertInput{
		ProductID:         req.ProductID,
		Branch:            req.Branch,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		ActorID:           actor.ID,
	})
	if err != nil {
		h.respondError(w, "upsert inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branch := Branch(r.URL.Query().Get("branch"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	rows, total, err := h.service.List(r.Context(), branch, limit, offset)
	if err != nil {
		h.respondError(w, "list inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "total": total})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	branch := Branch(r.URL.Query().Get("branch"))
	rows, err := h.service.ListLowStock(r.Context(), branch)
	if err != nil {
		h.respondError(w, "list low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	row, err := h.service.Get(r.Context(), productID, Branch(chi.URLParam(r, "branch")))
	if err != nil {
		h.respondError(w, "get inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrRowNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidBranch), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func fieldErrors(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return fields
}
