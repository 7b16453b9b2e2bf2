package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/vpos/handler"
)

// Routes registers the authenticated API
func Routes(r chi.Router, paymentHandler *handler.PaymentHandler, terminalHandler *handler.TerminalHandler, eventsHandler *handler.EventsHandler) {
	r.Post("/bin/query", paymentHandler.QueryBin)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", paymentHandler.ProcessPayment)
		r.Get("/{id}", paymentHandler.GetPaymentStatus)
		r.Get("/{id}/children", paymentHandler.ListChildren)
		r.Get("/{id}/bank-status", paymentHandler.GetBankStatus)
		r.Get("/{id}/events", eventsHandler.GetTransactionEvents)
		r.Post("/{id}/refund", paymentHandler.RefundPayment)
		r.Post("/{id}/cancel", paymentHandler.CancelPayment)
	})

	r.Route("/preauth", func(r chi.Router) {
		r.Post("/", paymentHandler.ProcessPreAuth)
		r.Post("/{id}/capture", paymentHandler.CapturePreAuth)
	})

	r.Route("/terminals", func(r chi.Router) {
		r.Post("/", terminalHandler.SaveTerminal)
		r.Get("/", terminalHandler.ListTerminals)
		r.Get("/{terminalID}", terminalHandler.GetTerminal)
		r.Get("/{terminalID}/capabilities", paymentHandler.GetCapabilities)
	})

	r.Post("/overrides", terminalHandler.SaveOverride)
}
