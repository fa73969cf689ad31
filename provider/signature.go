package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RedirectFields lists the redirect query parameters covered by the redirect
// signature, in signing order.
var RedirectFields = []string{
	"idTransaccion",
	"monto",
	"esReal",
	"formaPago",
	"esAprobada",
	"codigoAutorizacion",
	"mensaje",
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of message keyed by secret
func ComputeSignature(secret, message []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks received against the expected signature of message.
// The comparison is constant time; a length mismatch is simply a mismatch.
func VerifySignature(secret, message []byte, received string) bool {
	expected := ComputeSignature(secret, message)
	return hmac.Equal([]byte(expected), []byte(received))
}

// RedirectMessage builds the signed message for redirect callbacks by joining
// the RedirectFields values without a separator. Missing fields count as "".
//
// Field boundaries are ambiguous ("1"+"23" and "12"+"3" sign the same), the
// gateway computes it this way so it must not change.
func RedirectMessage(params map[string]string) string {
	var sb strings.Builder
	for _, field := range RedirectFields {
		sb.WriteString(params[field])
	}
	return sb.String()
}
