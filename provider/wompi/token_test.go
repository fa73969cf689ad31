package wompi

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/gowompi/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_CachesToken(t *testing.T) {
	cache := provider.NewInMemoryTokenCache(1)
	client, fake := newTestClient(t, WithCache(cache))
	fake.on(http.MethodGet, "Aplicativo", http.StatusOK, `{"nombre":"Test App"}`)
	ctx := context.Background()

	_, err := client.GetAplicativoData(ctx)
	require.NoError(t, err)
	_, err = client.GetAplicativoData(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.authCalls.Load(), "two calls share one auth exchange")

	token, found, err := cache.Get(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, testToken, token)

	// eviction forces exactly one new exchange
	require.NoError(t, cache.Set(ctx, "other", "value", time.Hour))
	_, found, _ = cache.Get(ctx, DefaultCacheKey)
	require.False(t, found, "token evicted by the LRU")
	_, err = client.GetAplicativoData(ctx)
	require.NoError(t, err)
	_, err = client.GetAplicativoData(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.authCalls.Load())
}

func TestTokenManager_TTLFromExpiresIn(t *testing.T) {
	cache := &recordingCache{TokenCache: provider.NewInMemoryTokenCache(0)}
	client, fake := newTestClient(t, WithCache(cache))
	fake.authBody = `{"access_token":"short_lived","expires_in":120}`

	token, err := client.Tokens().Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short_lived", token)
	assert.Equal(t, 120*time.Second, cache.lastTTL)
	assert.Equal(t, DefaultCacheKey, cache.lastKey)
}

func TestTokenManager_CachedValueIsAuthoritative(t *testing.T) {
	cache := provider.NewInMemoryTokenCache(0)
	require.NoError(t, cache.Set(context.Background(), "merchant-key", "preloaded", time.Hour))

	client, fake := newTestClient(t, WithCache(cache), WithCacheKey("merchant-key"))
	fake.on(http.MethodGet, "Aplicativo", http.StatusOK, `{}`)

	_, err := client.GetAplicativoData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), fake.authCalls.Load())
	assert.Equal(t, "Bearer preloaded", fake.lastRequest().Authorization)
}

func TestTokenManager_SharedCacheAcrossClients(t *testing.T) {
	cache := provider.NewInMemoryTokenCache(0)
	fake := newFakeWompi(t)
	fake.on(http.MethodGet, "Aplicativo", http.StatusOK, `{}`)

	first := fake.client(WithCache(cache))
	second := fake.client(WithCache(cache))

	_, err := first.GetAplicativoData(context.Background())
	require.NoError(t, err)
	_, err = second.GetAplicativoData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.authCalls.Load())
}

func TestTokenManager_ConcurrentMissesCollapse(t *testing.T) {
	client, fake := newTestClient(t)
	fake.on(http.MethodGet, "Aplicativo", http.StatusOK, `{}`)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetAplicativoData(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fake.authCalls.Load())
}

func TestTokenManager_CallerCancellationDoesNotFailOthers(t *testing.T) {
	client, fake := newTestClient(t)
	fake.authDelay = 300 * time.Millisecond

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	shortErr := make(chan error, 1)
	go func() {
		_, err := client.Tokens().Token(shortCtx)
		shortErr <- err
	}()

	// the second caller joins the exchange the first one started
	require.Eventually(t, func() bool { return fake.authCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	token, err := client.Tokens().Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testToken, token)

	err = <-shortErr
	require.Error(t, err)
	assert.True(t, provider.IsGatewayError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), fake.authCalls.Load())
}

func TestTokenManager_CanceledCallerStillCachesToken(t *testing.T) {
	cache := provider.NewInMemoryTokenCache(0)
	client, fake := newTestClient(t, WithCache(cache))
	fake.authDelay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Tokens().Token(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		token, found, _ := cache.Get(context.Background(), DefaultCacheKey)
		return found && token == testToken
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), fake.authCalls.Load())
}

func TestTokenManager_CacheErrorsAreSoft(t *testing.T) {
	client, fake := newTestClient(t, WithCache(failingCache{}))
	fake.on(http.MethodGet, "Aplicativo", http.StatusOK, `{"nombre":"Test App"}`)

	result, err := client.GetAplicativoData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Test App", result["nombre"])
	assert.Equal(t, int32(1), fake.authCalls.Load())
}

func TestTokenManager_AuthFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_client"}`},
		{"server_error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"missing_access_token", http.StatusOK, `{"expires_in":3600}`},
		{"missing_expires_in", http.StatusOK, `{"access_token":"abc"}`},
		{"zero_expires_in", http.StatusOK, `{"access_token":"abc","expires_in":0}`},
		{"malformed_json", http.StatusOK, `{"access_token":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := provider.NewInMemoryTokenCache(0)
			client, fake := newTestClient(t, WithCache(cache))
			fake.authCode = tt.status
			fake.authBody = tt.body

			_, err := client.CreatePaymentLink(context.Background(), map[string]any{"monto": 100})
			require.Error(t, err)

			gwErr, ok := provider.AsGatewayError(err)
			require.True(t, ok)
			assert.Contains(t, gwErr.Error(), "failed to authenticate with wompi")
			assert.Equal(t, http.MethodPost, gwErr.Method)
			assert.Equal(t, fake.server.URL+"/test", gwErr.Endpoint)
			assert.Equal(t, tt.status, gwErr.StatusCode)
			assert.Equal(t, tt.body, gwErr.Body)

			assert.Equal(t, 0, cache.Stats().Size, "failed exchanges are not cached")

			fake.mu.Lock()
			defer fake.mu.Unlock()
			assert.Empty(t, fake.requests, "no API call without a token")
		})
	}
}

func TestTokenManager_NoRetry(t *testing.T) {
	client, fake := newTestClient(t)
	fake.authCode = http.StatusServiceUnavailable
	fake.authBody = `{}`

	_, err := client.Tokens().Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.authCalls.Load())
}

type recordingCache struct {
	provider.TokenCache
	lastKey string
	lastTTL time.Duration
}

func (c *recordingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.lastKey = key
	c.lastTTL = ttl
	return c.TokenCache.Set(ctx, key, value, ttl)
}
