package invoices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/alfani/backoffice/internal/inventory"
	"github.com/alfani/backoffice/internal/platform/httpx"
	"github.com/alfani/backoffice/internal/shared"
)

// IdempotencyHeader carries the client-supplied dedup key.
const IdempotencyHeader = "X-Idempotency-Key"

// IdempotencyPort is the two-state key store guarding create and return.
type IdempotencyPort interface {
	Acquire(ctx context.Context, key, module string) (*shared.StoredResponse, error)
	Finalize(ctx context.Context, key string, statusCode int, body []byte) error
	Release(ctx context.Context, key string) error
}

// Handler exposes the invoice lifecycle endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
	validate    *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	r.Post("/{id}/return", h.returnItems)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid invoice payload", validationFields(err))
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	if done := h.acquire(w, r, key, "invoices.create"); done {
		return
	}

	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.Create(r.Context(), req, actor)
	if err != nil {
		h.release(r.Context(), key)
		h.respondError(w, "create invoice", err)
		return
	}
	h.respondFinal(w, r, key, http.StatusCreated, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	invs, total, err := h.service.List(r.Context(), ListFilter{
		Branch:        inventory.Branch(q.Get("branch")),
		PaymentStatus: PaymentStatus(q.Get("paymentStatus")),
		PaymentType:   PaymentType(q.Get("paymentType")),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": invs, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid invoice payload", validationFields(err))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	inv, err := h.service.Update(r.Context(), id, req, actor)
	if err != nil {
		h.respondError(w, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, actor); err != nil {
		h.respondError(w, "delete invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) returnItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req ReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid return payload", validationFields(err))
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	if done := h.acquire(w, r, key, "invoices.return"); done {
		return
	}

	actor := shared.ActorFromContext(r.Context())
	result, err := h.service.Return(r.Context(), id, req, actor)
	if err != nil {
		h.release(r.Context(), key)
		h.respondError(w, "return invoice items", err)
		return
	}
	h.respondFinal(w, r, key, http.StatusOK, result)
}

// acquire reserves the idempotency key when one is supplied. It writes the
// replayed or conflict response itself and reports true when the caller must
// not execute the operation. Replays answer 200 regardless of the original
// status.
func (h *Handler) acquire(w http.ResponseWriter, r *http.Request, key, module string) bool {
	if key == "" || h.idempotency == nil {
		return false
	}
	stored, err := h.idempotency.Acquire(r.Context(), key, module)
	if err != nil {
		if errors.Is(err, shared.ErrInProgress) {
			httpx.RespondError(w, fmt.Errorf("%w: idempotency key %q", httpx.ErrConflict, key))
			return true
		}
		h.logger.Error("idempotency acquire", slog.Any("error", err))
		httpx.RespondError(w, err)
		return true
	}
	if stored != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(stored.Body)
		return true
	}
	return false
}

func (h *Handler) respondFinal(w http.ResponseWriter, r *http.Request, key string, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if key != "" && h.idempotency != nil {
		// Best effort: a failed finalize means a later retry may re-execute.
		if err := h.idempotency.Finalize(r.Context(), key, status, buf.Bytes()); err != nil {
			h.logger.Warn("idempotency finalize", slog.Any("error", err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) release(ctx context.Context, key string) {
	if key == "" || h.idempotency == nil {
		return
	}
	if err := h.idempotency.Release(ctx, key); err != nil {
		h.logger.Warn("idempotency release", slog.Any("error", err))
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrReturnExceedsSold), errors.Is(err, ErrPaymentsExceedTotal),
		errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, inventory.ErrInvalidBranch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func validationFields(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return fields
}
