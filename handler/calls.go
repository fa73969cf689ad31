package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/mstgnz/gowompi/infra/opensearch"
	"github.com/mstgnz/gowompi/infra/response"
	"github.com/mstgnz/gowompi/infra/validate"
)

const callsProvider = "wompi"

// CallSearcher defines the interface for querying recorded gateway calls
type CallSearcher interface {
	SearchCalls(ctx context.Context, provider string, query map[string]any, size int) ([]opensearch.GatewayLog, error)
	GetRecentFailedCalls(ctx context.Context, provider string, hours int) ([]opensearch.GatewayLog, error)
}

// CallsHandler exposes the outbound call audit log
type CallsHandler struct {
	searcher CallSearcher
}

// callsQuery holds the list filters
type callsQuery struct {
	Endpoint string `validate:"omitempty,max=64"`
	Success  string `validate:"omitempty,oneof=true false"`
	Hours    int    `validate:"gte=1,lte=720"`
	Size     int    `validate:"gte=1,lte=100"`
}

// NewCallsHandler creates a new calls handler. A nil searcher means call
// logging is disabled.
func NewCallsHandler(searcher CallSearcher) *CallsHandler {
	return &CallsHandler{searcher: searcher}
}

// ListCalls lists recorded calls, newest first.
// GET /v1/wompi/calls?endpoint=EnlacePago&success=false&hours=24&size=50
func (h *CallsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		response.Error(w, http.StatusServiceUnavailable, "Call logging is disabled", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := r.URL.Query()
	q := callsQuery{
		Endpoint: params.Get("endpoint"),
		Success:  params.Get("success"),
		Hours:    intParam(params.Get("hours"), 24),
		Size:     intParam(params.Get("size"), 50),
	}
	if err := validate.Struct(q); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	calls, err := h.searcher.SearchCalls(ctx, callsProvider, buildCallsQuery(q), q.Size)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to search calls", err)
		return
	}

	response.Success(w, http.StatusOK, "Calls retrieved", map[string]any{
		"calls": calls,
		"count": len(calls),
		"hours": q.Hours,
	})
}

// ListFailedCalls lists failed calls of the last hours.
// GET /v1/wompi/calls/failed?hours=24
func (h *CallsHandler) ListFailedCalls(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		response.Error(w, http.StatusServiceUnavailable, "Call logging is disabled", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	hours := intParam(r.URL.Query().Get("hours"), 24)
	if err := validate.Var(hours, "gte=1,lte=720"); err != nil {
		response.Error(w, http.StatusBadRequest, "hours must be between 1 and 720", nil)
		return
	}

	calls, err := h.searcher.GetRecentFailedCalls(ctx, callsProvider, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get failed calls", err)
		return
	}

	response.Success(w, http.StatusOK, "Failed calls retrieved", map[string]any{
		"calls":        calls,
		"count":        len(calls),
		"hours":        hours,
		"generated_at": time.Now().UTC(),
	})
}

func buildCallsQuery(q callsQuery) map[string]any {
	must := []map[string]any{
		{
			"range": map[string]any{
				"timestamp": map[string]any{"gte": "now-" + strconv.Itoa(q.Hours) + "h"},
			},
		},
	}
	if q.Endpoint != "" {
		must = append(must, map[string]any{"term": map[string]any{"endpoint": q.Endpoint}})
	}
	if q.Success != "" {
		must = append(must, map[string]any{"term": map[string]any{"success": q.Success == "true"}})
	}

	return map[string]any{"bool": map[string]any{"must": must}}
}

// intParam parses a query value, falling back on empty input. Garbage
// becomes 0 so validation rejects it.
func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
