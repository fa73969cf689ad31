package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/infra/middle"
	"github.com/mstgnz/gowompi/infra/response"
	"github.com/mstgnz/gowompi/infra/validate"
	"github.com/mstgnz/gowompi/provider"
	"github.com/mstgnz/gowompi/provider/wompi"
)

const (
	requestTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
)

// GatewayClient is the subset of *wompi.Client the handlers use
type GatewayClient interface {
	CreatePaymentLink(ctx context.Context, data map[string]any) (map[string]any, error)
	CreateTransaction3DS(ctx context.Context, data map[string]any) (map[string]any, error)
	GetAplicativoData(ctx context.Context) (map[string]any, error)
	TokenizeCard(ctx context.Context, data map[string]any) (map[string]any, error)
	GetTokenizedCard(ctx context.Context, tokenID string) (map[string]any, error)
	DeleteTokenizedCard(ctx context.Context, tokenID string) (map[string]any, error)
	CreateRecurringCharge(ctx context.Context, data map[string]any) (map[string]any, error)
	ExecuteTestTransaction(ctx context.Context, data map[string]any) (map[string]any, error)
	ValidateWebhookHTTPRequest(r *http.Request) (map[string]any, error)
	ValidateRedirectQuery(query url.Values) (bool, error)
}

// WebhookResult is returned to the gateway after a webhook is accepted
type WebhookResult struct {
	TransactionID string         `json:"transaction_id,omitempty"`
	Successful    bool           `json:"successful"`
	Payload       map[string]any `json:"payload"`
}

// CallbackResult describes a verified redirect callback
type CallbackResult struct {
	Valid         bool   `json:"valid"`
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Message       string `json:"message,omitempty"`
}

// WompiHandler serves webhooks, redirect callbacks and the API proxy routes
type WompiHandler struct {
	client                GatewayClient
	allowTestTransactions bool
}

// NewWompiHandler creates a new Wompi handler. Test transactions are only
// proxied when allowTestTransactions is set.
func NewWompiHandler(client GatewayClient, allowTestTransactions bool) *WompiHandler {
	return &WompiHandler{
		client:                client,
		allowTestTransactions: allowTestTransactions,
	}
}

// HandleWebhook authenticates a gateway notification and reports whether it
// describes an approved payment
func (h *WompiHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.WithRequestID(middle.GetRequestID(r.Context())).SetProvider("wompi")

	payload, err := h.client.ValidateWebhookHTTPRequest(r)
	if err != nil {
		if provider.IsConfigurationError(err) {
			log.Error("Webhook secret is not configured", err)
			response.Error(w, http.StatusInternalServerError, "Webhook validation is not configured", nil)
			return
		}
		log.Warn("Webhook rejected: " + err.Error())
		status := http.StatusBadRequest
		if errors.Is(err, wompi.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		response.Error(w, status, "Invalid webhook", webhookCause(err))
		return
	}

	result := WebhookResult{
		Successful: wompi.IsSuccessfulPayment(payload),
		Payload:    payload,
	}
	if id, ok := payload["idTransaccion"].(string); ok {
		result.TransactionID = id
	}

	log.AddField("transaction_id", result.TransactionID).
		AddField("successful", result.Successful).
		Info("Webhook accepted")

	response.Success(w, http.StatusOK, "Webhook processed", result)
}

// HandleCallback verifies the signed query string of a redirect callback
func (h *WompiHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	log := logger.WithProvider("wompi").SetRequestID(middle.GetRequestID(r.Context()))

	valid, err := h.client.ValidateRedirectQuery(query)
	if err != nil {
		log.Error("Redirect validation is not configured", err)
		response.Error(w, http.StatusInternalServerError, "Redirect validation is not configured", nil)
		return
	}
	if !valid {
		log.AddField("transaction_id", query.Get("idTransaccion")).
			Warn("Redirect callback with invalid signature")
		response.Error(w, http.StatusBadRequest, "Invalid signature", nil)
		return
	}

	result := CallbackResult{
		Valid:         true,
		Approved:      query.Get("esAprobada") == "1",
		TransactionID: query.Get("idTransaccion"),
		Amount:        query.Get("monto"),
		Message:       query.Get("mensaje"),
	}

	message := "Payment approved"
	if !result.Approved {
		message = "Payment not approved"
	}
	response.Success(w, http.StatusOK, message, result)
}

// CreatePaymentLink proxies POST /EnlacePago
func (h *WompiHandler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.StatusCreated, "Payment link created", h.client.CreatePaymentLink)
}

// CreateTransaction3DS proxies POST /Transaccion
func (h *WompiHandler) CreateTransaction3DS(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.StatusCreated, "Transaction created", h.client.CreateTransaction3DS)
}

// GetAplicativoData proxies GET /Aplicativo
func (h *WompiHandler) GetAplicativoData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.client.GetAplicativoData(ctx)
	if err != nil {
		h.gatewayFailure(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Application data retrieved", result)
}

// TokenizeCard proxies POST /Tokenizacion
func (h *WompiHandler) TokenizeCard(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.StatusCreated, "Card tokenized", h.client.TokenizeCard)
}

// GetTokenizedCard proxies GET /Tokenizacion/{tokenID}
func (h *WompiHandler) GetTokenizedCard(w http.ResponseWriter, r *http.Request) {
	h.forwardToken(w, r, "Card retrieved", h.client.GetTokenizedCard)
}

// DeleteTokenizedCard proxies DELETE /Tokenizacion/{tokenID}
func (h *WompiHandler) DeleteTokenizedCard(w http.ResponseWriter, r *http.Request) {
	h.forwardToken(w, r, "Card deleted", h.client.DeleteTokenizedCard)
}

// CreateRecurringCharge proxies POST /CargoRecurrente
func (h *WompiHandler) CreateRecurringCharge(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.StatusCreated, "Recurring charge created", h.client.CreateRecurringCharge)
}

// ExecuteTestTransaction proxies POST /TransaccionPrueba outside production
func (h *WompiHandler) ExecuteTestTransaction(w http.ResponseWriter, r *http.Request) {
	if !h.allowTestTransactions {
		response.Error(w, http.StatusForbidden, "Test transactions are disabled in production", nil)
		return
	}
	h.forward(w, r, http.StatusOK, "Test transaction executed", h.client.ExecuteTestTransaction)
}

type bodyCall func(ctx context.Context, data map[string]any) (map[string]any, error)

type tokenCall func(ctx context.Context, tokenID string) (map[string]any, error)

func (h *WompiHandler) forward(w http.ResponseWriter, r *http.Request, status int, message string, call bodyCall) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := decodeObject(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	result, err := call(ctx, data)
	if err != nil {
		h.gatewayFailure(w, r, err)
		return
	}
	response.Success(w, status, message, result)
}

func (h *WompiHandler) forwardToken(w http.ResponseWriter, r *http.Request, message string, call tokenCall) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tokenID := chi.URLParam(r, "tokenID")
	if err := validate.Var(tokenID, "required,max=128,printascii"); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid token ID", nil)
		return
	}

	result, err := call(ctx, tokenID)
	if err != nil {
		h.gatewayFailure(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, message, result)
}

// gatewayFailure maps client errors to HTTP statuses. The upstream body is
// never echoed, it may hold card data.
func (h *WompiHandler) gatewayFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "Payment gateway timed out", nil)
	case errors.Is(err, context.Canceled):
		// client went away
		response.Error(w, http.StatusServiceUnavailable, "Request canceled", nil)
	case provider.IsConfigurationError(err):
		response.Error(w, http.StatusInternalServerError, "Payment gateway is not configured", nil)
	default:
		if gwErr, ok := provider.AsGatewayError(err); ok {
			response.Error(w, http.StatusBadGateway, "Payment gateway request failed", upstreamStatus(gwErr))
			return
		}
		logger.Error("Unexpected gateway error", err, logger.LogContext{
			Provider:  "wompi",
			RequestID: middle.GetRequestID(r.Context()),
		})
		response.Error(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func upstreamStatus(gwErr *provider.GatewayError) error {
	if gwErr.StatusCode == 0 {
		return errors.New(gwErr.Message)
	}
	return fmt.Errorf("%s (status %d)", gwErr.Message, gwErr.StatusCode)
}

// webhookCause returns the sentinel behind a webhook rejection
func webhookCause(err error) error {
	for _, sentinel := range []error{wompi.ErrMissingHash, wompi.ErrEmptyBody, wompi.ErrInvalidSignature, wompi.ErrInvalidJSON, wompi.ErrBodyTooLarge} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return errors.New("request could not be read")
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
