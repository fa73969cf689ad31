package wompi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/provider"
)

const (
	// HashHeader is the webhook header carrying the body signature
	HashHeader = "wompi_hash"

	// HashHeaderCanonical is how most proxies forward HashHeader
	HashHeaderCanonical = "Wompi-Hash"

	// RedirectHashParam is the redirect query parameter carrying the signature
	RedirectHashParam = "hash"

	// ResultApproved is the resultadoTransaccion value of an approved payment
	ResultApproved = "ExitosaAprobada"

	maxWebhookBodySize = 1 << 20
)

// Webhook validation failures, wrapped in a *provider.GatewayError
var (
	ErrMissingHash      = errors.New("wompi_hash header is required")
	ErrEmptyBody        = errors.New("body is required")
	ErrInvalidSignature = errors.New("signature is invalid")
	ErrInvalidJSON      = errors.New("json is invalid")
	ErrBodyTooLarge     = errors.New("body exceeds 1MB")
)

// ValidateWebhookSignature checks the HMAC of the raw webhook body
func (c *Client) ValidateWebhookSignature(body []byte, receivedHash string) (bool, error) {
	secret := c.signingSecret()
	if secret == "" {
		return false, provider.NewConfigurationError("wompi: webhook secret is not set")
	}
	return provider.VerifySignature([]byte(secret), body, receivedHash), nil
}

// ValidateWebhookRequest authenticates and parses a webhook. The checks run in
// a fixed order: hash present, body present, signature valid, body is JSON.
// The signature is computed over rawBody exactly as received.
func (c *Client) ValidateWebhookRequest(rawBody []byte, receivedHash string) (map[string]any, error) {
	if receivedHash == "" {
		return nil, webhookError(ErrMissingHash)
	}

	if len(rawBody) == 0 {
		return nil, webhookError(ErrEmptyBody)
	}

	valid, err := c.ValidateWebhookSignature(rawBody, receivedHash)
	if err != nil {
		return nil, err
	}
	if !valid {
		logger.Warn("Rejected webhook with invalid signature", logger.LogContext{Provider: providerName})
		return nil, webhookError(ErrInvalidSignature)
	}

	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, webhookError(fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	if payload == nil {
		payload = map[string]any{}
	}

	return payload, nil
}

// ValidateWebhookHTTPRequest reads the hash header and the raw body of r and
// validates them with ValidateWebhookRequest
func (c *Client) ValidateWebhookHTTPRequest(r *http.Request) (map[string]any, error) {
	receivedHash := WebhookHash(r.Header)

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
		if err != nil {
			return nil, provider.NewGatewayError(providerName, "webhook request invalid: failed to read body", err)
		}
		if len(body) > maxWebhookBodySize {
			return nil, webhookError(ErrBodyTooLarge)
		}
	}

	return c.ValidateWebhookRequest(body, receivedHash)
}

// WebhookHash returns the webhook signature header. net/http stores
// wompi_hash as Wompi_hash; the dashed Wompi-Hash form is accepted too.
func WebhookHash(header http.Header) string {
	if hash := header.Get(HashHeader); hash != "" {
		return hash
	}
	return header.Get(HashHeaderCanonical)
}

// IsSuccessfulPayment reports whether a webhook payload describes an approved payment
func (c *Client) IsSuccessfulPayment(payload map[string]any) bool {
	return IsSuccessfulPayment(payload)
}

// IsSuccessfulPayment reports whether a webhook payload describes an approved payment
func IsSuccessfulPayment(payload map[string]any) bool {
	result, ok := payload[resultKey].(string)
	return ok && result == ResultApproved
}

// ValidateRedirectParams checks the signature of redirect URL parameters.
// A bad signature is reported as false, not as an error.
func (c *Client) ValidateRedirectParams(params map[string]string, receivedHash string) (bool, error) {
	secret := c.signingSecret()
	if secret == "" {
		return false, provider.NewConfigurationError("wompi: webhook secret is not set")
	}

	message := provider.RedirectMessage(params)
	return provider.VerifySignature([]byte(secret), []byte(message), receivedHash), nil
}

// ValidateRedirectQuery validates a redirect callback query string, taking the
// signature from its hash parameter
func (c *Client) ValidateRedirectQuery(query url.Values) (bool, error) {
	return c.ValidateRedirectParams(RedirectParams(query), query.Get(RedirectHashParam))
}

// RedirectParams extracts the signed redirect fields from a query string
func RedirectParams(query url.Values) map[string]string {
	params := make(map[string]string, len(provider.RedirectFields))
	for _, field := range provider.RedirectFields {
		if query.Has(field) {
			params[field] = query.Get(field)
		}
	}
	return params
}

const resultKey = "resultadoTransaccion"

// signingSecret is the HMAC key for webhooks and redirects
func (c *Client) signingSecret() string {
	if c.creds.WebhookSecret != "" {
		return c.creds.WebhookSecret
	}
	return c.creds.ClientSecret
}

func webhookError(cause error) error {
	return provider.NewGatewayError(providerName, "webhook request invalid", cause)
}
