package wompi

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/provider"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheKey is the cache key holding the access token
	DefaultCacheKey = "wompi_access_token"

	grantType = "client_credentials"
	audience  = "wompi_api"
)

// tokenResponse is the body returned by the auth endpoint
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type,omitempty"`
}

// TokenManager hands out OAuth2 client-credential tokens. The cache is
// authoritative: a cached value is returned as is, and only a miss triggers
// an exchange against the auth endpoint.
type TokenManager struct {
	authURL      string
	clientID     string
	clientSecret string
	cacheKey     string
	cache        provider.TokenCache
	httpClient   *provider.ProviderHTTPClient
	recorder     *callRecorder
	timeout      time.Duration
	group        singleflight.Group
}

// Token returns a valid access token, fetching a new one on cache miss
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	token, found, err := m.cache.Get(ctx, m.cacheKey)
	if err != nil {
		logger.Warn("Token cache read failed, requesting a new token", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"error": err.Error(), "cache_key": m.cacheKey},
		})
	}
	if found && token != "" {
		return token, nil
	}

	// Collapse concurrent misses of this client into one exchange. The flight
	// is detached from any single caller; each caller stops waiting on its own
	// context. A caller that missed just before another finished its exchange
	// finds the new token on the second look.
	ch := m.group.DoChan(m.cacheKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		if token, found, err := m.cache.Get(flightCtx, m.cacheKey); err == nil && found && token != "" {
			return token, nil
		}
		return m.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return "", provider.NewGatewayError(providerName, "failed to authenticate with wompi", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh performs the auth exchange and stores the result in the cache
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	token, expiresIn, err := m.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	if err := m.cache.Set(ctx, m.cacheKey, token, time.Duration(expiresIn)*time.Second); err != nil {
		logger.Warn("Token cache write failed", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"error": err.Error(), "cache_key": m.cacheKey},
		})
	}

	return token, nil
}

// fetchToken requests a fresh token from the auth endpoint
func (m *TokenManager) fetchToken(ctx context.Context) (string, int, error) {
	req := &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: m.authURL,
		FormData: map[string]string{
			"grant_type":    grantType,
			"client_id":     m.clientID,
			"client_secret": m.clientSecret,
			"audience":      audience,
		},
	}

	started := time.Now()
	resp, err := m.httpClient.SendForm(ctx, req)
	m.recorder.record(ctx, "POST", m.authURL, resp, err, time.Since(started))
	if err != nil {
		return "", 0, m.authError(resp, err)
	}

	var tokenResp tokenResponse
	if err := m.httpClient.ParseJSONResponse(resp, &tokenResp); err != nil {
		return "", 0, m.authError(resp, err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, m.authError(resp, errors.New("access_token missing from response"))
	}
	if tokenResp.ExpiresIn <= 0 {
		return "", 0, m.authError(resp, errors.New("expires_in missing from response"))
	}

	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

func (m *TokenManager) authError(resp *provider.HTTPResponse, cause error) error {
	logger.Error("Error getting Wompi access token", cause, logger.LogContext{
		Provider: providerName,
	})

	gwErr := provider.NewGatewayError(providerName, "failed to authenticate with wompi", cause)
	gwErr.Method = "POST"
	gwErr.Endpoint = m.authURL
	if resp != nil {
		gwErr.StatusCode = resp.StatusCode
		gwErr.Body = resp.RawBody
	}
	return gwErr
}
