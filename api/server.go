/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. Logger:    request logging
  2. Recoverer: panic recovery (500 instead of crash)
  3. RequestID: unique ID per request for tracing
  4. CORS:      cross-origin requests for the desktop frontend

ROUTE GROUPS:
  /api/categories/*  catalog categories
  /api/products/*    catalog products and stock
  /api/checkout      cart checkout
  /api/deliveries/*  delivery cancellation
  /api/sales/*       undo
  /api/customers/*   loyalty customers
  /api/reports/*     bonus and sales reports
  /api/settings/*    key/value settings
  /api/admin/*       backup and restore

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Post("/{id}/stock", h.AdjustStock)
		})

		r.Post("/checkout", h.Checkout)
		r.Delete("/deliveries/{id}", h.CancelDelivery)
		r.Post("/sales/undo", h.UndoLastSale)

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Get("/by-phone", h.FindCustomerByPhone)
			r.Get("/{id}", h.GetCustomer)
			r.Get("/{id}/bonus-history", h.BonusHistory)
			r.Get("/{id}/purchase-history", h.PurchaseHistory)
			r.Get("/{id}/monthly-spend", h.MonthlySpend)
			r.Post("/{id}/bonus-transactions", h.AddManualBonus)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/bonus", h.BonusReport)
			r.Get("/sales", h.ListSales)
			r.Get("/deliveries-count", h.DeliveriesCount)
			r.Get("/daily-breakdown", h.DailyBreakdown)
			r.Get("/financial", h.FinancialSummary)
			r.Get("/top-products", h.TopProducts)
			r.Get("/least-products", h.LeastProducts)
			r.Get("/average-per-day", h.AveragePerDay)
			r.Get("/by-weekday", h.SalesByWeekday)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/{key}", h.GetSetting)
			r.Put("/{key}", h.PutSetting)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/backup", h.Backup)
			r.Post("/restore", h.Restore)
		})
	})

	return r
}
