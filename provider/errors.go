package provider

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid credential. It is fatal:
// a client that returns it cannot be used until the configuration is fixed.
type ConfigurationError struct {
	Message string
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{Message: message}
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// GatewayError reports a failure talking to the payment gateway or a rejected
// inbound notification. Method, Endpoint and StatusCode are set when the
// failure happened on an outbound call.
type GatewayError struct {
	Provider   string
	Message    string
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

// NewGatewayError creates a new gateway error wrapping the given cause
func NewGatewayError(providerName, message string, err error) *GatewayError {
	return &GatewayError{
		Provider: providerName,
		Message:  message,
		Err:      err,
	}
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Method != "" && e.Endpoint != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Method, e.Endpoint)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsGatewayError reports whether err is, or wraps, a GatewayError
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// AsGatewayError extracts the GatewayError from err, if any
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
