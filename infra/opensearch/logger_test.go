package opensearch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/gohuifu/infra/config"
)

func newTestLogger(t *testing.T, enabled bool) (*fakeCluster, *Logger) {
	t.Helper()
	fc, srv := newFakeCluster(t)
	client, err := NewClient(&config.AppConfig{OpenSearchURL: srv.URL, EnableLogging: enabled}, "huifu")
	require.NoError(t, err)
	return fc, NewLogger(client)
}

func TestNewLogger(t *testing.T) {
	client, err := NewClient(&config.AppConfig{OpenSearchURL: "http://localhost:9200"})
	require.NoError(t, err)

	logger := NewLogger(client)
	assert.Same(t, client, logger.client)
}

func TestLogger_LogExchange(t *testing.T) {
	fc, logger := newTestLogger(t, true)

	err := logger.LogExchange(t.Context(), ExchangeLog{
		Gateway:      "huifu",
		Operation:    "jspay",
		FunctionCode: "V2TradePaymentJspay",
		RequestID:    "20240102030405ABCDEFGH",
		Outcome:      "succeeded",
		Code:         "00000000",
		DurationMs:   42,
		Request:      `{"trans_amt":"1.00","sign":"c2lnbmF0dXJl"}`,
	})
	require.NoError(t, err)

	docs := fc.documents("gohuifu-huifu-exchanges")
	require.Len(t, docs, 1)

	var stored ExchangeLog
	require.NoError(t, json.Unmarshal(docs[0], &stored))
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, "jspay", stored.Operation)
	assert.Equal(t, int64(42), stored.DurationMs)
	assert.Equal(t, `{"trans_amt":"1.00","sign":"***REDACTED***"}`, stored.Request)
}

func TestLogger_LogNotification(t *testing.T) {
	fc, logger := newTestLogger(t, true)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := logger.LogNotification(t.Context(), NotificationLog{
		ID:        "fixed",
		Timestamp: ts,
		Gateway:   "huifu",
		Event:     "payment",
		State:     "verified",
		Ack:       "success",
		Strategy:  "raw",
		Payload:   `{"req_seq_id":"X1"}`,
	})
	require.NoError(t, err)

	docs := fc.documents("gohuifu-huifu-notifications")
	require.Len(t, docs, 1)

	var stored NotificationLog
	require.NoError(t, json.Unmarshal(docs[0], &stored))
	assert.Equal(t, "fixed", stored.ID)
	assert.True(t, ts.Equal(stored.Timestamp))
	assert.Equal(t, "raw", stored.Strategy)
}

func TestLogger_DisabledLogging(t *testing.T) {
	fc, logger := newTestLogger(t, false)

	require.NoError(t, logger.LogExchange(t.Context(), ExchangeLog{Gateway: "huifu"}))
	require.NoError(t, logger.LogNotification(t.Context(), NotificationLog{Gateway: "huifu"}))
	require.NoError(t, logger.LogSystemEvent(t.Context(), map[string]string{"message": "x"}))
	assert.Empty(t, fc.documents("gohuifu-huifu-exchanges"))

	_, err := logger.SearchExchanges(t.Context(), "huifu", nil)
	assert.ErrorIs(t, err, ErrLoggingDisabled)

	_, err = logger.GetGatewayStats(t.Context(), "huifu", 24)
	assert.ErrorIs(t, err, ErrLoggingDisabled)
}

func TestLogger_SearchExchanges(t *testing.T) {
	fc, logger := newTestLogger(t, true)

	for _, seq := range []string{"A1", "A2"} {
		require.NoError(t, logger.LogExchange(t.Context(), ExchangeLog{
			Gateway:   "huifu",
			Operation: "scanpay-query",
			RequestID: seq,
			Outcome:   "failed",
		}))
	}

	logs, err := logger.GetExchangesByRequestID(t.Context(), "huifu", "A1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "A1", logs[0].RequestID)
	assert.JSONEq(t, `{"term":{"request_id":"A1"}}`, mustQuery(t, fc, "gohuifu-huifu-exchanges"))

	_, err = logger.GetRecentFailures(t.Context(), "huifu", 6)
	require.NoError(t, err)
	assert.Contains(t, mustQuery(t, fc, "gohuifu-huifu-exchanges"), `"now-6h"`)
}

func TestLogger_SearchNotifications(t *testing.T) {
	_, logger := newTestLogger(t, true)

	require.NoError(t, logger.LogNotification(t.Context(), NotificationLog{Gateway: "huifu", State: "rejected", Ack: "fail"}))

	logs, err := logger.SearchNotifications(t.Context(), "huifu", nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "fail", logs[0].Ack)
}

func TestLogger_GetGatewayStats(t *testing.T) {
	_, logger := newTestLogger(t, true)

	stats, err := logger.GetGatewayStats(t.Context(), "huifu", 24)
	require.NoError(t, err)
	assert.Contains(t, stats, "aggregations")
}

func TestLogger_ClusterError(t *testing.T) {
	fc, logger := newTestLogger(t, true)
	fc.mu.Lock()
	fc.fail = true
	fc.mu.Unlock()

	err := logger.LogExchange(t.Context(), ExchangeLog{Gateway: "huifu"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch error")
}

func mustQuery(t *testing.T, fc *fakeCluster, index string) string {
	t.Helper()
	fc.mu.Lock()
	body := fc.searches[index]
	fc.mu.Unlock()

	var search struct {
		Query json.RawMessage `json:"query"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &search))
	return string(search.Query)
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "signature_in_json",
			input:    `{"data":"x","sign":"YWJj+/="}`,
			expected: `{"data":"x","sign":"***REDACTED***"}`,
		},
		{
			name:     "card_number",
			input:    `{"card_no": "6222020000000000", "trans_amt":"1.00"}`,
			expected: `{"card_no":"***REDACTED***", "trans_amt":"1.00"}`,
		},
		{
			name:     "form_encoded",
			input:    `resp_data=%7B%7D&sign=YWJj%2B&x=1`,
			expected: `resp_data=%7B%7D&sign=***REDACTED***&x=1`,
		},
		{
			name:     "similar_names_untouched",
			input:    `{"sign_type":"RSA2","resp_sign=abc"}`,
			expected: `{"sign_type":"RSA2","resp_sign=abc"}`,
		},
		{
			name:     "no_sensitive_data",
			input:    `{"req_seq_id":"X1"}`,
			expected: `{"req_seq_id":"X1"}`,
		},
		{
			name:     "empty_string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeForLog(tt.input))
		})
	}
}
