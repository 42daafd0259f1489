package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the application router with all routes
// and standard middleware. Returns the configured router.
func NewRouter(uploads *UploadHandler, orders *OrderHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Upload session endpoints
		r.Post("/uploads", uploads.BeginSession)
		r.Put("/uploads/{sessionID}/files/{filename}/chunks/{index}", uploads.AcceptChunk)
		r.Post("/uploads/{sessionID}/commit", uploads.CommitSession)

		// Order endpoints
		r.Get("/orders", orders.ListOrders)
		r.Get("/orders/{orderID}", orders.GetOrder)
		r.Patch("/orders/{orderID}/status", orders.UpdateStatus)
		r.Patch("/orders/{orderID}/invoice", orders.UpdateInvoice)
		r.Post("/orders/bulk/status", orders.BulkUpdateStatus)
		r.Post("/orders/bulk/delete", orders.BulkDelete)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
