package wompi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/mstgnz/gowompi/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	valid := Credentials{
		AuthURL:      "https://id.wompi.sv/test",
		APIURL:       "https://api.wompi.sv/v1/test",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}

	tests := []struct {
		name    string
		mutate  func(c *Credentials)
		wantErr bool
	}{
		{"valid", func(c *Credentials) {}, false},
		{"missing_auth_url", func(c *Credentials) { c.AuthURL = "" }, true},
		{"missing_api_url", func(c *Credentials) { c.APIURL = "" }, true},
		{"missing_client_id", func(c *Credentials) { c.ClientID = "" }, true},
		{"missing_client_secret", func(c *Credentials) { c.ClientSecret = "" }, true},
		{"blank_client_secret", func(c *Credentials) { c.ClientSecret = "   " }, true},
		{"webhook_secret_optional", func(c *Credentials) { c.WebhookSecret = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := valid
			tt.mutate(&creds)

			client, err := New(creds)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, client)
				assert.True(t, provider.IsConfigurationError(err))
				assert.Equal(t, "wompi: credentials are not set", err.Error())
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
			assert.Equal(t, DefaultCacheKey, client.Tokens().cacheKey)
			assert.Equal(t, "disabled", client.BreakerState())
		})
	}
}

func TestNew_Options(t *testing.T) {
	cache := provider.NewInMemoryTokenCache(0)
	client, err := New(Credentials{
		AuthURL:      "https://id.wompi.sv",
		APIURL:       "https://api.wompi.sv/v1",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}, WithCache(cache), WithCacheKey("wompi_access_token:merchant-1"), WithBreaker())
	require.NoError(t, err)

	assert.Same(t, cache, client.Tokens().cache)
	assert.Equal(t, "wompi_access_token:merchant-1", client.Tokens().cacheKey)
	assert.Equal(t, "closed", client.BreakerState())

	client, err = New(Credentials{
		AuthURL:      "https://id.wompi.sv",
		APIURL:       "https://api.wompi.sv/v1",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}, WithCacheKey(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheKey, client.Tokens().cacheKey)
}

func TestClient_Operations(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		status    int
		response  string
		call      func(ctx context.Context, c *Client) (map[string]any, error)
		wantKey   string
		wantValue any
		wantBody  map[string]any
	}{
		{
			name:     "create_payment_link",
			method:   http.MethodPost,
			path:     "EnlacePago",
			status:   http.StatusCreated,
			response: `{"id":"link_123","url":"https://wompi.sv/pay/link_123","amount":100.00}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.CreatePaymentLink(ctx, map[string]any{"monto": 100.00, "descripcion": "Test Payment"})
			},
			wantKey:   "id",
			wantValue: "link_123",
			wantBody:  map[string]any{"monto": 100.00, "descripcion": "Test Payment"},
		},
		{
			name:     "create_transaction_3ds",
			method:   http.MethodPost,
			path:     "Transaccion",
			status:   http.StatusCreated,
			response: `{"idTransaccion":"txn_456","estado":"Pendiente","url3DS":"https://3ds.wompi.sv/authenticate"}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.CreateTransaction3DS(ctx, map[string]any{"monto": 250.50})
			},
			wantKey:   "idTransaccion",
			wantValue: "txn_456",
			wantBody:  map[string]any{"monto": 250.50},
		},
		{
			name:     "get_aplicativo_data",
			method:   http.MethodGet,
			path:     "Aplicativo",
			status:   http.StatusOK,
			response: `{"nombre":"Test App","capacidades":["payment","tokenization"]}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.GetAplicativoData(ctx)
			},
			wantKey:   "nombre",
			wantValue: "Test App",
		},
		{
			name:     "tokenize_card",
			method:   http.MethodPost,
			path:     "Tokenizacion",
			status:   http.StatusCreated,
			response: `{"tokenId":"tok_abc123","ultimos4Digitos":"1111","tipoTarjeta":"VISA"}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.TokenizeCard(ctx, map[string]any{"numeroTarjeta": "4111111111111111"})
			},
			wantKey:   "tokenId",
			wantValue: "tok_abc123",
			wantBody:  map[string]any{"numeroTarjeta": "4111111111111111"},
		},
		{
			name:     "get_tokenized_card",
			method:   http.MethodGet,
			path:     "Tokenizacion/tok_abc123",
			status:   http.StatusOK,
			response: `{"tokenId":"tok_abc123","tipoTarjeta":"VISA"}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.GetTokenizedCard(ctx, "tok_abc123")
			},
			wantKey:   "tokenId",
			wantValue: "tok_abc123",
		},
		{
			name:     "delete_tokenized_card",
			method:   http.MethodDelete,
			path:     "Tokenizacion/tok_abc123",
			status:   http.StatusOK,
			response: `{"success":true,"message":"Token deleted"}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.DeleteTokenizedCard(ctx, "tok_abc123")
			},
			wantKey:   "success",
			wantValue: true,
		},
		{
			name:     "create_recurring_charge",
			method:   http.MethodPost,
			path:     "CargoRecurrente",
			status:   http.StatusCreated,
			response: `{"idTransaccion":"rec_789","estado":"Aprobada","monto":50.00}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.CreateRecurringCharge(ctx, map[string]any{"tokenId": "tok_abc123", "monto": 50.00})
			},
			wantKey:   "estado",
			wantValue: "Aprobada",
			wantBody:  map[string]any{"tokenId": "tok_abc123", "monto": 50.00},
		},
		{
			name:     "execute_test_transaction",
			method:   http.MethodPost,
			path:     "TransaccionPrueba",
			status:   http.StatusOK,
			response: `{"idTransaccion":"test_001","esReal":false}`,
			call: func(ctx context.Context, c *Client) (map[string]any, error) {
				return c.ExecuteTestTransaction(ctx, map[string]any{"monto": 1.00})
			},
			wantKey:   "esReal",
			wantValue: false,
			wantBody:  map[string]any{"monto": 1.00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newTestClient(t)
			fake.on(tt.method, tt.path, tt.status, tt.response)

			result, err := tt.call(context.Background(), client)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, result[tt.wantKey])

			req := fake.lastRequest()
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.path, req.Path)
			assert.Equal(t, "Bearer "+testToken, req.Authorization)
			if tt.wantBody != nil {
				assert.Equal(t, tt.wantBody, req.Body)
			}
		})
	}
}

func TestClient_PostWithNilDataSendsEmptyObject(t *testing.T) {
	client, fake := newTestClient(t)
	fake.on(http.MethodPost, "TransaccionPrueba", http.StatusOK, `{"ok":true}`)

	_, err := client.ExecuteTestTransaction(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, fake.lastRequest().Body)
}

func TestClient_TokenIDIsEscaped(t *testing.T) {
	client, fake := newTestClient(t)
	fake.on(http.MethodGet, "Tokenizacion/tok%2F..%2Fadmin", http.StatusOK, `{"tokenId":"x"}`)

	_, err := client.GetTokenizedCard(context.Background(), "tok/../admin")
	require.NoError(t, err)
	assert.Equal(t, "Tokenizacion/tok%2F..%2Fadmin", fake.lastRequest().Path)
}

func TestClient_EmptyResponseBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "  \n"},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newTestClient(t)
			fake.on(http.MethodDelete, "Tokenizacion/tok_1", http.StatusOK, tt.body)

			result, err := client.DeleteTokenizedCard(context.Background(), "tok_1")
			require.NoError(t, err)
			assert.NotNil(t, result)
			assert.Empty(t, result)
		})
	}
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"server_error", http.StatusInternalServerError, `{"error":"Internal server error"}`, http.StatusInternalServerError},
		{"unprocessable", http.StatusUnprocessableEntity, `{"mensaje":"monto requerido"}`, http.StatusUnprocessableEntity},
		{"malformed_json", http.StatusOK, `{"id":`, http.StatusOK},
		{"non_object_json", http.StatusOK, `["a","b"]`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newTestClient(t)
			fake.on(http.MethodPost, "EnlacePago", tt.status, tt.body)

			result, err := client.CreatePaymentLink(context.Background(), map[string]any{"monto": 100})
			require.Error(t, err)
			assert.Nil(t, result)

			gwErr, ok := provider.AsGatewayError(err)
			require.True(t, ok, "error should be a GatewayError")
			assert.Equal(t, "wompi", gwErr.Provider)
			assert.Equal(t, http.MethodPost, gwErr.Method)
			assert.Equal(t, "EnlacePago", gwErr.Endpoint)
			assert.Equal(t, tt.wantStatus, gwErr.StatusCode)
			assert.Equal(t, tt.body, gwErr.Body)
			assert.Contains(t, err.Error(), "API request failed: EnlacePago")
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	fake := newFakeWompi(t)
	client := fake.client()

	// authenticate first, then take the API down
	fake.on(http.MethodGet, "Aplicativo", http.StatusOK, `{}`)
	_, err := client.GetAplicativoData(context.Background())
	require.NoError(t, err)
	fake.server.Close()

	_, err = client.GetAplicativoData(context.Background())
	require.Error(t, err)

	gwErr, ok := provider.AsGatewayError(err)
	require.True(t, ok)
	assert.Zero(t, gwErr.StatusCode)
	assert.NotNil(t, errors.Unwrap(gwErr))
}

func TestClient_ContextCanceled(t *testing.T) {
	client, _ := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetAplicativoData(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, provider.IsGatewayError(err))
}
