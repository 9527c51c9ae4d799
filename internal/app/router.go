package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alfani/backoffice/internal/credit"
	"github.com/alfani/backoffice/internal/inventory"
	"github.com/alfani/backoffice/internal/invoices"
	"github.com/alfani/backoffice/internal/masterdata/products"
	"github.com/alfani/backoffice/internal/masterdata/suppliers"
	"github.com/alfani/backoffice/internal/safes"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Middleware MiddlewareConfig

	ProductsHandler  *products.Handler
	SuppliersHandler *suppliers.Handler
	InventoryHandler *inventory.Handler
	InvoicesHandler  *invoices.Handler
	CreditHandler    *credit.Handler
	SafesHandler     *safes.Handler
}

// NewRouter constructs the chi.Router with the API surface under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(params.Middleware) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/products", params.ProductsHandler.MountRoutes)
		api.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		api.Route("/inventory", params.InventoryHandler.MountRoutes)
		api.Route("/invoices", params.InvoicesHandler.MountRoutes)
		api.Route("/credit", params.CreditHandler.MountRoutes)
		api.Route("/safes", params.SafesHandler.MountRoutes)
	})

	return r
}
