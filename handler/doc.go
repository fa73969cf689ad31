// Package handler provides the HTTP handlers of the gowompi service.
//
// # Handlers
//
//   - WompiHandler: webhook receiver, redirect callback and one proxy
//     endpoint per Wompi REST operation
//   - CallsHandler: read access to the outbound call audit log in OpenSearch
//   - HealthHandler: liveness report covering the circuit breaker and the
//     token cache
//
// # Webhooks
//
// Wompi signs each notification with an HMAC-SHA256 of the raw body, sent in
// the wompi_hash header:
//
//	r.Post("/webhooks/wompi", wompiHandler.HandleWebhook)
//
// The body is verified before it is parsed. A rejected webhook gets 400 and
// the reason (missing hash, empty body, bad signature, bad JSON).
//
// # Redirect callbacks
//
// After checkout the customer is redirected with seven signed query
// parameters and a hash:
//
//	GET /callback/wompi?idTransaccion=...&monto=...&esAprobada=1&...&hash=...
//
// # Proxy endpoints
//
//	POST   /v1/wompi/payment-links
//	POST   /v1/wompi/transactions/3ds
//	GET    /v1/wompi/aplicativo
//	POST   /v1/wompi/cards
//	GET    /v1/wompi/cards/{tokenID}
//	DELETE /v1/wompi/cards/{tokenID}
//	POST   /v1/wompi/recurring-charges
//	POST   /v1/wompi/test-transactions
//
// Gateway failures are returned as 502, timeouts as 504 and malformed input
// as 400. Responses use the infra/response envelope:
//
//	{"code": 201, "success": true, "message": "Payment link created", "data": {...}}
package handler
