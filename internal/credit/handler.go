package credit

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

// Handler exposes credit endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.registerPayment)
	r.Get("/payments", h.listPayments)
	r.Get("/summary", h.summary)
	r.Get("/invoices", h.listInvoices)
	r.Get("/supplier-debts", h.supplierDebts)
}

type registerPaymentRequest struct {
	InvoiceID     int64   `json:"invoiceId" validate:"required,gt=0"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string  `json:"paymentMethod"`
	SafeID        *int64  `json:"safeId,omitempty"`
	Description   string  `json:"description,omitempty"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	var req registerPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, "invalid payment payload", validationFields(err))
		return
	}
	actor := shared.ActorFromContext(r.Context())
	payment, err := h.service.RegisterPayment(r.Context(), RegisterPaymentInput{
		InvoiceID:     req.InvoiceID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		SafeID:        req.SafeID,
		Description:   req.Description,
		ActorID:       actor.ID,
	})
	if err != nil {
		h.respondError(w, "register credit payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(r.URL.Query().Get("invoiceId"), 10, 64)
	if err != nil || invoiceID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoiceId query parameter required")
		return
	}
	payments, err := h.service.ListPayments(r.Context(), invoiceID)
	if err != nil {
		h.respondError(w, "list credit payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summarize(r.Context())
	if err != nil {
		h.respondError(w, "credit summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	includeSettled := r.URL.Query().Get("includeSettled") == "true"
	debts, err := h.service.ListCreditInvoices(r.Context(), includeSettled)
	if err != nil {
		h.respondError(w, "list credit invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": debts})
}

func (h *Handler) supplierDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.service.ListSupplierDebts(r.Context())
	if err != nil {
		h.respondError(w, "list supplier debts", err)
		return
	}
	var total float64
	for _, d := range debts {
		total += d.BalanceOwed
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": debts, "total": total})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotCreditInvoice), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrOverpayment):
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
