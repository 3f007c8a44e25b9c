package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// ErrLoggingDisabled is returned by queries when OpenSearch logging is off
var ErrLoggingDisabled = errors.New("logging is disabled")

const searchLimit = 100

// ExchangeLog is one request sent to a gateway and what came back
type ExchangeLog struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Gateway      string    `json:"gateway"`
	Operation    string    `json:"operation"`
	FunctionCode string    `json:"function_code,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Outcome      string    `json:"outcome"`
	Code         string    `json:"code,omitempty"`
	Description  string    `json:"description,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Request      string    `json:"request,omitempty"`
	Response     string    `json:"response,omitempty"`
}

// NotificationLog is one asynchronous callback received from a gateway
type NotificationLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Gateway   string    `json:"gateway"`
	Event     string    `json:"event,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	State     string    `json:"state"`
	Ack       string    `json:"ack"`
	Strategy  string    `json:"strategy,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
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

// LogExchange indexes a gateway exchange. Request and response bodies are
// redacted before they leave the process.
func (l *Logger) LogExchange(ctx context.Context, entry ExchangeLog) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Request = SanitizeForLog(entry.Request)
	entry.Response = SanitizeForLog(entry.Response)

	return l.index(ctx, l.client.ExchangeIndexName(entry.Gateway), entry.ID, entry)
}

// LogNotification indexes a received callback
func (l *Logger) LogNotification(ctx context.Context, entry NotificationLog) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Payload = SanitizeForLog(entry.Payload)

	return l.index(ctx, l.client.NotificationIndexName(entry.Gateway), entry.ID, entry)
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, log any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, SystemIndexName, "", log)
}

func (l *Logger) index(ctx context.Context, indexName, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      indexName,
		DocumentID: id,
		Body:       bytes.NewReader(body),
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

// SearchExchanges returns the newest exchanges of a gateway matching query
func (l *Logger) SearchExchanges(ctx context.Context, gateway string, query map[string]any) ([]ExchangeLog, error) {
	var logs []ExchangeLog
	err := l.search(ctx, l.client.ExchangeIndexName(gateway), query, func(raw json.RawMessage) error {
		var entry ExchangeLog
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		logs = append(logs, entry)
		return nil
	})
	return logs, err
}

// SearchNotifications returns the newest callbacks of a gateway matching query
func (l *Logger) SearchNotifications(ctx context.Context, gateway string, query map[string]any) ([]NotificationLog, error) {
	var logs []NotificationLog
	err := l.search(ctx, l.client.NotificationIndexName(gateway), query, func(raw json.RawMessage) error {
		var entry NotificationLog
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		logs = append(logs, entry)
		return nil
	})
	return logs, err
}

// GetExchangesByRequestID retrieves every exchange carrying a request sequence id
func (l *Logger) GetExchangesByRequestID(ctx context.Context, gateway, requestID string) ([]ExchangeLog, error) {
	return l.SearchExchanges(ctx, gateway, map[string]any{
		"term": map[string]any{"request_id": requestID},
	})
}

// GetRecentFailures retrieves rejected and failed exchanges of the last hours
func (l *Logger) GetRecentFailures(ctx context.Context, gateway string, hours int) ([]ExchangeLog, error) {
	return l.SearchExchanges(ctx, gateway, map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"range": map[string]any{"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)}}},
				{"terms": map[string]any{"outcome": []string{"rejected", "failed"}}},
			},
		},
	})
}

func (l *Logger) search(ctx context.Context, indexName string, query map[string]any, collect func(json.RawMessage) error) error {
	if !l.client.IsEnabled() {
		return ErrLoggingDisabled
	}

	if query == nil {
		query = map[string]any{"match_all": map[string]any{}}
	}
	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": searchLimit,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch search error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode search results: %w", err)
	}

	for _, hit := range result.Hits.Hits {
		if err := collect(hit.Source); err != nil {
			return fmt.Errorf("failed to decode search hit: %w", err)
		}
	}
	return nil
}

// GetGatewayStats aggregates outcome counts and latency of the last hours
func (l *Logger) GetGatewayStats(ctx context.Context, gateway string, hours int) (map[string]any, error) {
	if !l.client.IsEnabled() {
		return nil, ErrLoggingDisabled
	}

	aggQuery := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": fmt.Sprintf("now-%dh", hours),
				},
			},
		},
		"aggs": map[string]any{
			"outcomes": map[string]any{
				"terms": map[string]any{"field": "outcome", "size": 10},
			},
			"operations": map[string]any{
				"terms": map[string]any{"field": "operation", "size": 50},
			},
			"codes": map[string]any{
				"terms": map[string]any{"field": "code", "size": 20},
			},
			"avg_duration_ms": map[string]any{
				"avg": map[string]any{"field": "duration_ms"},
			},
		},
		"size": 0,
	}

	queryJSON, err := json.Marshal(aggQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregation query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{l.client.ExchangeIndexName(gateway)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("aggregation search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch aggregation error: %s", res.String())
	}

	var result map[string]any
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}

	return result, nil
}

var sensitiveFields = []string{
	"sign", "private_key", "rsa_private_key", "card_no", "bank_card_no",
	"cert_no", "mobile_no", "card_name", "password", "token", "authorization",
}

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var redactions = func() []redaction {
	var out []redaction
	for _, field := range sensitiveFields {
		quoted := regexp.QuoteMeta(field)
		out = append(out,
			redaction{regexp.MustCompile(`"` + quoted + `"\s*:\s*"(?:[^"\\]|\\.)*"`), `"` + field + `":"***REDACTED***"`},
			redaction{regexp.MustCompile(`\b` + quoted + `=[^&\s]+`), field + `=***REDACTED***`},
		)
	}
	return out
}()

// SanitizeForLog removes signatures, keys and personal data before logging
func SanitizeForLog(data string) string {
	result := data
	for _, r := range redactions {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}
