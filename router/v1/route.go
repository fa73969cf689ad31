package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gowompi/handler"
)

// Routes registers the authenticated API routes
func Routes(r chi.Router, wompiHandler *handler.WompiHandler, callsHandler *handler.CallsHandler) {
	r.Route("/wompi", func(r chi.Router) {
		r.Post("/payment-links", wompiHandler.CreatePaymentLink)
		r.Post("/transactions/3ds", wompiHandler.CreateTransaction3DS)
		r.Get("/aplicativo", wompiHandler.GetAplicativoData)

		r.Route("/cards", func(r chi.Router) {
			r.Post("/", wompiHandler.TokenizeCard)
			r.Get("/{tokenID}", wompiHandler.GetTokenizedCard)
			r.Delete("/{tokenID}", wompiHandler.DeleteTokenizedCard)
		})

		r.Post("/recurring-charges", wompiHandler.CreateRecurringCharge)
		r.Post("/test-transactions", wompiHandler.ExecuteTestTransaction)

		// outbound call audit log
		r.Get("/calls", callsHandler.ListCalls)
		r.Get("/calls/failed", callsHandler.ListFailedCalls)
	})
}
