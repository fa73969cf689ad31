// Package wompi is a client for the Wompi El Salvador payment gateway.
//
// The client authenticates with OAuth2 client credentials, caches the access
// token in a provider.TokenCache and exposes one method per REST endpoint.
// It also validates the HMAC signatures on webhooks and redirect callbacks.
//
//	client, err := wompi.New(wompi.Credentials{
//	    AuthURL:      "https://id.wompi.sv",
//	    APIURL:       "https://api.wompi.sv/v1",
//	    ClientID:     os.Getenv("WOMPI_CLIENT_ID"),
//	    ClientSecret: os.Getenv("WOMPI_CLIENT_SECRET"),
//	})
//	link, err := client.CreatePaymentLink(ctx, map[string]any{"monto": 100.00})
package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/provider"
)

const (
	providerName = "wompi"

	// API Endpoints
	endpointPaymentLink      = "EnlacePago"
	endpointTransaction3DS   = "Transaccion"
	endpointAplicativo       = "Aplicativo"
	endpointTokenization     = "Tokenizacion"
	endpointRecurringCharge  = "CargoRecurrente"
	endpointTestTransaction  = "TransaccionPrueba"
	endpointTokenizedCardFmt = "Tokenizacion/%s"
)

// Credentials holds the settings needed to talk to Wompi
type Credentials struct {
	AuthURL      string
	APIURL       string
	ClientID     string
	ClientSecret string

	// WebhookSecret signs webhooks and redirects. Empty means ClientSecret.
	WebhookSecret string
}

// Client implements the Wompi REST operations
type Client struct {
	creds      Credentials
	httpClient *provider.ProviderHTTPClient
	tokens     *TokenManager
}

type options struct {
	cache      provider.TokenCache
	cacheKey   string
	doer       provider.Doer
	timeout    time.Duration
	callLogger CallLogger
	breaker    bool
}

// Option configures a Client
type Option func(*options)

// WithCache sets the token cache. Defaults to a process-local in-memory cache.
func WithCache(cache provider.TokenCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithCacheKey overrides the key the access token is cached under
func WithCacheKey(key string) Option {
	return func(o *options) {
		o.cacheKey = key
	}
}

// WithHTTPClient sets the transport used for every outbound call
func WithHTTPClient(doer provider.Doer) Option {
	return func(o *options) {
		o.doer = doer
	}
}

// WithTimeout sets the timeout of the built-in HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithCallLogger records every outbound call
func WithCallLogger(l CallLogger) Option {
	return func(o *options) {
		o.callLogger = l
	}
}

// WithBreaker wraps the transport in a circuit breaker
func WithBreaker() Option {
	return func(o *options) {
		o.breaker = true
	}
}

// New creates a Wompi client. It fails with a *provider.ConfigurationError if
// any of the four required credentials is empty.
func New(creds Credentials, opts ...Option) (*Client, error) {
	if isBlank(creds.AuthURL) || isBlank(creds.APIURL) || isBlank(creds.ClientID) || isBlank(creds.ClientSecret) {
		return nil, provider.NewConfigurationError("wompi: credentials are not set")
	}

	o := &options{cacheKey: DefaultCacheKey}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = provider.NewInMemoryTokenCache(16)
	}
	if o.cacheKey == "" {
		o.cacheKey = DefaultCacheKey
	}

	httpConfig := provider.CreateHTTPClientConfig(creds.APIURL, o.timeout)
	httpConfig.Doer = o.doer
	if o.breaker {
		httpConfig.BreakerName = providerName
	}
	httpClient := provider.NewProviderHTTPClient(httpConfig)
	recorder := &callRecorder{logger: o.callLogger}

	return &Client{
		creds:      creds,
		httpClient: httpClient,
		tokens: &TokenManager{
			authURL:      creds.AuthURL,
			clientID:     creds.ClientID,
			clientSecret: creds.ClientSecret,
			cacheKey:     o.cacheKey,
			cache:        o.cache,
			httpClient:   httpClient,
			recorder:     recorder,
			timeout:      httpConfig.Timeout,
		},
	}, nil
}

// Tokens returns the client's token manager
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// BreakerState reports the circuit breaker state, "disabled" when off
func (c *Client) BreakerState() string {
	return c.httpClient.BreakerState()
}

// CreatePaymentLink creates a payment link (Enlace de Pago)
func (c *Client) CreatePaymentLink(ctx context.Context, data map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, endpointPaymentLink, data)
}

// CreateTransaction3DS creates a 3DS purchase transaction
func (c *Client) CreateTransaction3DS(ctx context.Context, data map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, endpointTransaction3DS, data)
}

// GetAplicativoData returns the application configuration and capabilities
func (c *Client) GetAplicativoData(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, endpointAplicativo, nil)
}

// TokenizeCard exchanges card data for a reusable token
func (c *Client) TokenizeCard(ctx context.Context, data map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, endpointTokenization, data)
}

// GetTokenizedCard returns a tokenized card by ID
func (c *Client) GetTokenizedCard(ctx context.Context, tokenID string) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, tokenizedCardEndpoint(tokenID), nil)
}

// DeleteTokenizedCard deletes a tokenized card
func (c *Client) DeleteTokenizedCard(ctx context.Context, tokenID string) (map[string]any, error) {
	return c.request(ctx, http.MethodDelete, tokenizedCardEndpoint(tokenID), nil)
}

// CreateRecurringCharge charges a tokenized card
func (c *Client) CreateRecurringCharge(ctx context.Context, data map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, endpointRecurringCharge, data)
}

// ExecuteTestTransaction runs a test transaction (development only)
func (c *Client) ExecuteTestTransaction(ctx context.Context, data map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, endpointTestTransaction, data)
}

func tokenizedCardEndpoint(tokenID string) string {
	return fmt.Sprintf(endpointTokenizedCardFmt, url.PathEscape(tokenID))
}

// request performs an authenticated call and decodes the JSON object it returns
func (c *Client) request(ctx context.Context, method, endpoint string, data map[string]any) (map[string]any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	fullURL := provider.JoinURL(c.creds.APIURL, endpoint)
	logger.Debug(method+" "+fullURL, logger.LogContext{Provider: providerName})

	req := &provider.HTTPRequest{
		Method:   method,
		Endpoint: fullURL,
		Headers:  map[string]string{"Authorization": "Bearer " + token},
	}
	if method == http.MethodPost {
		if data == nil {
			data = map[string]any{}
		}
		req.Body = data
	}

	started := time.Now()
	resp, err := c.httpClient.SendJSON(ctx, req)
	c.tokens.recorder.record(ctx, method, endpoint, resp, err, time.Since(started))
	if err != nil {
		return nil, c.requestError(method, endpoint, resp, err)
	}

	result, err := decodeObject(resp.Body)
	if err != nil {
		return nil, c.requestError(method, endpoint, resp, err)
	}
	return result, nil
}

func (c *Client) requestError(method, endpoint string, resp *provider.HTTPResponse, cause error) error {
	logger.Error("Wompi API request failed: "+method+" "+endpoint, cause, logger.LogContext{
		Provider: providerName,
	})

	gwErr := provider.NewGatewayError(providerName, "API request failed: "+endpoint, cause)
	gwErr.Method = method
	gwErr.Endpoint = endpoint
	if resp != nil {
		gwErr.StatusCode = resp.StatusCode
		gwErr.Body = resp.RawBody
	}
	return gwErr
}

// decodeObject decodes a JSON object; an empty body or null yields an empty map
func decodeObject(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}

	var result map[string]any
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
