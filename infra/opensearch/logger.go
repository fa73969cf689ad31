package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// GatewayLog is one outbound call to a payment gateway
type GatewayLog struct {
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	Method           string    `json:"method"`
	Endpoint         string    `json:"endpoint"`
	RequestID        string    `json:"request_id"`
	StatusCode       int       `json:"status_code,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	ResponseBody     string    `json:"response_body,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogGatewayCall indexes a gateway call record
func (l *Logger) LogGatewayCall(ctx context.Context, call GatewayLog) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now().UTC()
	}
	if call.RequestID == "" {
		call.RequestID = uuid.New().String()
	}
	call.ResponseBody = SanitizeForLog(call.ResponseBody)

	return l.index(ctx, l.client.GetCallIndexName(call.Provider), call)
}

// LogSystemEvent indexes a system log entry
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, systemLogsIndex, entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchCalls returns the newest gateway calls of provider matching query
func (l *Logger) SearchCalls(ctx context.Context, provider string, query map[string]any, size int) ([]GatewayLog, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}
	if size <= 0 || size > 100 {
		size = 100
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.client.GetCallIndexName(provider)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source GatewayLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	calls := make([]GatewayLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		calls[i] = hit.Source
	}

	return calls, nil
}

// GetRecentFailedCalls returns failed calls of the last hours
func (l *Logger) GetRecentFailedCalls(ctx context.Context, provider string, hours int) ([]GatewayLog, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{
					"range": map[string]any{
						"timestamp": map[string]any{
							"gte": fmt.Sprintf("now-%dh", hours),
						},
					},
				},
				{
					"term": map[string]any{
						"success": false,
					},
				},
			},
		},
	}

	return l.SearchCalls(ctx, provider, query, 100)
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"numeroTarjeta", "cvv", "cvc", "fechaExpiracion",
		"client_secret", "access_token", "password", "token",
		"authorization",
	}

	patterns := make([]*regexp.Regexp, 0, len(fields)*2)
	for _, field := range fields {
		patterns = append(patterns,
			regexp.MustCompile(fmt.Sprintf(`("%s"\s*:\s*)"[^"]*"`, field)), // JSON
			regexp.MustCompile(fmt.Sprintf(`(%s=)[^&\s]+`, field)),         // form or query
		)
	}
	return patterns
}()

// SanitizeForLog redacts card data and credentials before a body is logged
func SanitizeForLog(data string) string {
	result := data
	for i, re := range sensitivePatterns {
		if i%2 == 0 {
			result = re.ReplaceAllString(result, `${1}"***REDACTED***"`)
		} else {
			result = re.ReplaceAllString(result, `${1}***REDACTED***`)
		}
	}
	return result
}
