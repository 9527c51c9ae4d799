package invoices

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/alfani/backoffice/internal/inventory"
	"github.com/alfani/backoffice/internal/shared"
)

// fakeIdempotency mimics the two-state key store.
type fakeIdempotency struct {
	pending   map[string]bool
	completed map[string]*shared.StoredResponse
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{
		pending:   make(map[string]bool),
		completed: make(map[string]*shared.StoredResponse),
	}
}

func (f *fakeIdempotency) Acquire(ctx context.Context, key, module string) (*shared.StoredResponse, error) {
	if resp, ok := f.completed[key]; ok {
		return resp, nil
	}
	if f.pending[key] {
		return nil, shared.ErrInProgress
	}
	f.pending[key] = true
	return nil, nil
}

func (f *fakeIdempotency) Finalize(ctx context.Context, key string, statusCode int, body []byte) error {
	delete(f.pending, key)
	f.completed[key] = &shared.StoredResponse{StatusCode: statusCode, Body: body}
	return nil
}

func (f *fakeIdempotency) Release(ctx context.Context, key string) error {
	delete(f.pending, key)
	return nil
}

func newTestRouter(repo *memoryInvoiceRepo, idem IdempotencyPort) http.Handler {
	handler := NewHandler(slog.Default(), testService(repo), idem)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 1, Role: shared.RoleOwner})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/invoices", handler.MountRoutes)
	return r
}

func createPayload() []byte {
	body, _ := json.Marshal(map[string]any{
		"customerName": "Walk-in",
		"branch":       "BranchA",
		"items": []map[string]any{
			{"productId": 10, "productName": "Brake pads", "quantity": 2, "unitPrice": 25},
		},
	})
	return body
}

func TestCreateReplayedForSameIdempotencyKey(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	repo.stock[stockKey{10, inventory.BranchA}] = 10
	router := newTestRouter(repo, newFakeIdempotency())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(createPayload()))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(IdempotencyHeader, "retry-abc")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)

	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())

	// Exactly one invoice and one decrement happened.
	require.Len(t, repo.invoices, 1)
	require.EqualValues(t, 8, repo.stock[stockKey{10, inventory.BranchA}])
}

func TestCreateInProgressKeyConflicts(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	repo.stock[stockKey{10, inventory.BranchA}] = 10
	idem := newFakeIdempotency()
	idem.pending["stuck"] = true
	router := newTestRouter(repo, idem)

	req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(createPayload()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, "stuck")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Empty(t, repo.invoices)
}

func TestCreateFailureReleasesKeyForRetry(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	// No stock: the create fails.
	idem := newFakeIdempotency()
	router := newTestRouter(repo, idem)

	req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(createPayload()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, "retry-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, idem.pending["retry-1"])

	// After restocking the same key may run again.
	repo.stock[stockKey{10, inventory.BranchA}] = 10
	req = httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(createPayload()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, "retry-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateWithoutKeySkipsIdempotency(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	repo.stock[stockKey{10, inventory.BranchA}] = 10
	router := newTestRouter(repo, newFakeIdempotency())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader(createPayload()))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	require.Len(t, repo.invoices, 2)
}

func TestGetUnknownInvoiceReturns404(t *testing.T) {
	router := newTestRouter(newMemoryInvoiceRepo(), nil)

	req := httptest.NewRequest(http.MethodGet, "/invoices/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsMalformedPayload(t *testing.T) {
	router := newTestRouter(newMemoryInvoiceRepo(), nil)

	req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte(`{"customerName": ""}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
