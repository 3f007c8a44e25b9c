package storage

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/infra/opensearch"
	"github.com/mstgnz/gohuifu/provider"
)

type indexedDoc struct {
	index string
	body  map[string]any
}

func newSearchRecorder(t *testing.T) (*SearchRecorder, func() []indexedDoc) {
	t.Helper()

	var (
		mu   sync.Mutex
		docs []indexedDoc
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) >= 2 && parts[1] == "_doc" {
			var body map[string]any
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			mu.Lock()
			docs = append(docs, indexedDoc{index: parts[0], body: body})
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client, err := opensearch.NewClient(&config.AppConfig{OpenSearchURL: srv.URL, EnableLogging: true})
	require.NoError(t, err)

	return NewSearchRecorder(opensearch.NewLogger(client)), func() []indexedDoc {
		mu.Lock()
		defer mu.Unlock()
		return append([]indexedDoc(nil), docs...)
	}
}

func TestSearchRecorder_RecordExchange(t *testing.T) {
	rec, docs := newSearchRecorder(t)

	err := rec.RecordExchange(t.Context(), provider.Exchange{
		Gateway:   "huifu",
		Operation: "scanpay-refund",
		RequestID: "R1",
		Request:   provider.NewParams().Set("ord_amt", "5.00"),
		Response:  map[string]any{"resp_code": "00000100", "sign": "abc"},
		Outcome:   provider.OutcomePending,
		Duration:  250 * time.Millisecond,
	})
	require.NoError(t, err)

	got := docs()
	require.Len(t, got, 1)
	assert.Equal(t, "gohuifu-huifu-exchanges", got[0].index)
	assert.Equal(t, "scanpay-refund", got[0].body["operation"])
	assert.Equal(t, "pending", got[0].body["outcome"])
	assert.EqualValues(t, 250, got[0].body["duration_ms"])
	assert.Equal(t, `{"ord_amt":"5.00"}`, got[0].body["request"])
	assert.Contains(t, got[0].body["response"], `"sign":"***REDACTED***"`)
}

func TestSearchRecorder_RecordNotification(t *testing.T) {
	rec, docs := newSearchRecorder(t)

	err := rec.RecordNotification(t.Context(), provider.Notification{
		Gateway:  "huifu",
		Event:    "refund",
		State:    provider.StateVerified,
		Ack:      provider.AckSuccess,
		Strategy: "sorted",
	})
	require.NoError(t, err)

	got := docs()
	require.Len(t, got, 1)
	assert.Equal(t, "gohuifu-huifu-notifications", got[0].index)
	assert.Equal(t, "verified", got[0].body["state"])
	assert.Equal(t, "success", got[0].body["ack"])
	assert.Equal(t, "sorted", got[0].body["strategy"])
}

func TestRecorders_FanOut(t *testing.T) {
	search, docs := newSearchRecorder(t)
	journal := newTestJournal(t)

	recorders := provider.Recorders{journal, search}
	require.NoError(t, recorders.RecordExchange(t.Context(), provider.Exchange{
		Gateway: "huifu", Operation: "balance-query", RequestID: "B1", Outcome: provider.OutcomeSucceeded,
	}))

	records, err := journal.ExchangesByRequestID(t.Context(), "B1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Len(t, docs(), 1)
}
