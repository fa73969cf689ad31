package wompi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/infra/opensearch"
	"github.com/mstgnz/gowompi/provider"
)

// CallLogger receives one record per outbound gateway call.
// *opensearch.Logger implements it.
type CallLogger interface {
	LogGatewayCall(ctx context.Context, call opensearch.GatewayLog) error
}

// callRecorder forwards call records to an optional CallLogger
type callRecorder struct {
	logger CallLogger
}

func (r *callRecorder) record(ctx context.Context, method, endpoint string, resp *provider.HTTPResponse, err error, elapsed time.Duration) {
	if r == nil || r.logger == nil {
		return
	}

	call := opensearch.GatewayLog{
		Timestamp:        time.Now().UTC(),
		Provider:         providerName,
		Method:           method,
		Endpoint:         endpoint,
		RequestID:        uuid.New().String(),
		ProcessingTimeMs: elapsed.Milliseconds(),
		Success:          err == nil,
	}
	if resp != nil {
		call.StatusCode = resp.StatusCode
	}
	if err != nil {
		call.Error = err.Error()
		if resp != nil {
			call.ResponseBody = resp.RawBody
		}
	}

	if logErr := r.logger.LogGatewayCall(ctx, call); logErr != nil {
		logger.Warn("Failed to record gateway call", logger.LogContext{
			Provider:  providerName,
			RequestID: call.RequestID,
			Fields:    map[string]any{"error": logErr.Error(), "endpoint": endpoint},
		})
	}
}
