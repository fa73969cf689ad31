// Package gowompi is a client and a small HTTP service for the Wompi
// El Salvador payment gateway.
//
// # Overview
//
// Wompi exposes a REST API behind OAuth2 client credentials and notifies
// merchants through signed webhooks and signed redirect URLs. gowompi wraps
// both directions:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│    gowompi      │◄──►│     Wompi       │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Library usage
//
//	import "github.com/mstgnz/gowompi/provider/wompi"
//
//	client, err := wompi.New(wompi.Credentials{
//	    AuthURL:      "https://id.wompi.sv",
//	    APIURL:       "https://api.wompi.sv/v1",
//	    ClientID:     os.Getenv("WOMPI_CLIENT_ID"),
//	    ClientSecret: os.Getenv("WOMPI_CLIENT_SECRET"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	link, err := client.CreatePaymentLink(ctx, map[string]any{
//	    "identificadorEnlaceComercio": "order-1001",
//	    "monto":                       100.00,
//	    "nombreProducto":              "Compra de producto",
//	})
//
// The access token is requested on first use and cached for its lifetime.
// Concurrent callers of one client share a single token request. To share
// the token between processes pass a database cache:
//
//	cache, err := storage.NewSQLiteTokenCache("./data/gowompi.db")
//	client, err := wompi.New(creds, wompi.WithCache(cache))
//
// # Webhooks and redirects
//
//	payload, err := client.ValidateWebhookHTTPRequest(r)
//	if err == nil && client.IsSuccessfulPayment(payload) {
//	    // mark the order paid
//	}
//
//	valid, err := client.ValidateRedirectQuery(r.URL.Query())
//
// # Service
//
// cmd/main.go serves the webhook receiver, the redirect callback and an
// authenticated proxy for every REST operation. It is configured from the
// environment:
//
//	WOMPI_CLIENT_ID=...
//	WOMPI_CLIENT_SECRET=...
//	WOMPI_WEBHOOK_SECRET=...        # optional, defaults to the client secret
//	API_KEY=...                     # enables /v1
//	TOKEN_CACHE=memory|sqlite|postgres
//	ENABLE_CIRCUIT_BREAKER=true
//	ENABLE_OPENSEARCH_LOGGING=true
//
// # Package layout
//
//   - provider: HTTP transport, token cache contract, signatures, errors
//   - provider/wompi: the Wompi client
//   - infra/config: environment configuration
//   - infra/logger: leveled console logger with an optional OpenSearch sink
//   - infra/opensearch: call audit and system log indices
//   - infra/storage: SQLite and PostgreSQL token caches
//   - infra/middle, infra/response, handler, router: the HTTP service
package gowompi
