// Package provider holds the gateway-independent pieces of gowompi: the HTTP
// transport with its optional circuit breaker, the token cache contract with
// an in-memory LRU implementation, HMAC-SHA256 signature helpers and the
// error taxonomy.
//
// # Errors
//
// Two error types are returned by gateway clients:
//
//   - *ConfigurationError: a credential is missing. Fatal for the client.
//   - *GatewayError: a call failed (transport, non-2xx, unreadable body) or an
//     inbound notification was rejected. Unwrap exposes the cause.
//
//	if gwErr, ok := provider.AsGatewayError(err); ok {
//	    log.Printf("%s %s returned %d", gwErr.Method, gwErr.Endpoint, gwErr.StatusCode)
//	}
//
// # Token caches
//
// TokenCache is a string key/value store with TTL. InMemoryTokenCache serves
// a single process; infra/storage has SQLite and PostgreSQL implementations
// for caches shared between processes.
//
// # Signatures
//
//	sig := provider.ComputeSignature(secret, body)
//	ok := provider.VerifySignature(secret, body, received)
package provider
