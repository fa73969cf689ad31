package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func hmacHex(secret, message string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func TestComputeSignature(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		message string
	}{
		{"webhook_body", "test_client_secret", `{"idTransaccion":"txn_456"}`},
		{"empty_message", "test_client_secret", ""},
		{"unicode", "clave", "Transacción Aprobada ✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSignature([]byte(tt.secret), []byte(tt.message))
			assert.Equal(t, hmacHex(tt.secret, tt.message), got)
			assert.Len(t, got, 64)
			assert.Equal(t, strings.ToLower(got), got, "digest is lowercase hex")

			// pure function
			assert.Equal(t, got, ComputeSignature([]byte(tt.secret), []byte(tt.message)))
		})
	}
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("test_client_secret")
	message := []byte(`{"idTransaccion":"txn_456"}`)
	valid := ComputeSignature(secret, message)

	tests := []struct {
		name     string
		received string
		expected bool
	}{
		{"valid", valid, true},
		{"flipped_char", flipLast(valid), false},
		{"truncated", valid[:63], false},
		{"extended", valid + "0", false},
		{"uppercase", strings.ToUpper(valid), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, VerifySignature(secret, message, tt.received))
		})
	}

	assert.False(t, VerifySignature([]byte("other_secret"), message, valid), "wrong secret")
}

func TestRedirectMessage(t *testing.T) {
	params := map[string]string{
		"idTransaccion":      "txn_123",
		"monto":              "100.00",
		"esReal":             "1",
		"formaPago":          "VISA",
		"esAprobada":         "1",
		"codigoAutorizacion": "AUTH123",
		"mensaje":            "Transaccion Aprobada",
	}

	assert.Equal(t, "txn_123100.001VISA1AUTH123Transaccion Aprobada", RedirectMessage(params))

	// unsigned keys are ignored and missing ones count as empty
	params["hash"] = "abc"
	delete(params, "mensaje")
	assert.Equal(t, "txn_123100.001VISA1AUTH123", RedirectMessage(params))

	assert.Equal(t, "", RedirectMessage(nil))
}

func TestRedirectSignatureVector(t *testing.T) {
	params := map[string]string{
		"idTransaccion":      "txn_123",
		"monto":              "100.00",
		"esReal":             "1",
		"formaPago":          "VISA",
		"esAprobada":         "1",
		"codigoAutorizacion": "AUTH123",
		"mensaje":            "Transaccion Aprobada",
	}
	secret := []byte("test_client_secret")
	hash := hmacHex("test_client_secret", "txn_123100.001VISA1AUTH123Transaccion Aprobada")

	assert.True(t, VerifySignature(secret, []byte(RedirectMessage(params)), hash))

	for _, field := range RedirectFields {
		altered := make(map[string]string, len(params))
		for k, v := range params {
			altered[k] = v
		}
		altered[field] += "x"
		assert.False(t, VerifySignature(secret, []byte(RedirectMessage(altered)), hash), field)
	}
}

func flipLast(s string) string {
	last := s[len(s)-1]
	if last == '0' {
		return s[:len(s)-1] + "1"
	}
	return s[:len(s)-1] + "0"
}
