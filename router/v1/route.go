package v1

import (
	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/gohuifu/handler"
)

// Handlers groups the handlers served under /v1. Logs may be nil.
type Handlers struct {
	Operations *handler.OperationHandler
	Logs       *handler.LogsHandler
}

// Routes registers all API routes
func Routes(r chi.Router, h Handlers) {
	// Generic operation routes
	r.Get("/operations", h.Operations.ListOperations)
	r.Post("/operations/{operation}", h.Operations.Execute)

	// Convenience routes
	r.Post("/payments/mini-app", h.Operations.MiniAppPay)
	r.Post("/splits", h.Operations.Split)
	r.Post("/refunds", h.Operations.Refund)
	r.Get("/balance", h.Operations.Balance)
	r.Get("/orders/{orderDate}/{orderNo}", h.Operations.QueryOrder)
	r.Post("/images", h.Operations.UploadImage)

	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.Operations.ApplyInvoice)
		r.Get("/{applyDate}/{applySeqID}", h.Operations.QueryInvoice)
	})

	if h.Logs == nil {
		return
	}
	r.Route("/logs", func(r chi.Router) {
		r.Get("/exchanges", h.Logs.ListExchanges)
		r.Get("/exchanges/{requestID}", h.Logs.GetRequestLogs)
		r.Get("/notifications", h.Logs.ListNotifications)
		r.Get("/{gateway}/failures", h.Logs.GetFailures)
		r.Get("/{gateway}/stats", h.Logs.GetLogStats)
	})
}
