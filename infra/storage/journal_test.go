package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/gohuifu/provider"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordExchange(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := j.RecordExchange(ctx, provider.Exchange{
		Gateway:      "huifu",
		Operation:    "jspay",
		FunctionCode: "V2TradePaymentJspay",
		RequestID:    "20240102030405ABCDEFGH",
		Request:      provider.NewParams().Set("trans_amt", "1.00").Set("goods_desc", "<tea>"),
		Response:     map[string]any{"resp_code": "00000000"},
		Code:         "00000000",
		Outcome:      provider.OutcomeSucceeded,
		Duration:     1500 * time.Millisecond,
		Timestamp:    ts,
	})
	require.NoError(t, err)

	records, err := j.ExchangesByRequestID(ctx, "20240102030405ABCDEFGH")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "huifu", rec.Gateway)
	assert.Equal(t, "jspay", rec.Operation)
	assert.Equal(t, provider.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, `{"trans_amt":"1.00","goods_desc":"<tea>"}`, string(rec.Request))
	assert.JSONEq(t, `{"resp_code":"00000000"}`, string(rec.Response))
	assert.True(t, ts.Equal(rec.CreatedAt))
}

func TestJournal_RecordExchange_WithoutBodies(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordExchange(t.Context(), provider.Exchange{
		Gateway:   "huifu",
		Operation: "unknown",
		Outcome:   provider.OutcomeInvalid,
		Error:     "unknown operation",
	}))

	records, err := j.RecentExchanges(t.Context(), "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Request)
	assert.Nil(t, records[0].Response)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestJournal_RecentExchanges(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	for i, gateway := range []string{"huifu", "sandbox", "huifu"} {
		require.NoError(t, j.RecordExchange(ctx, provider.Exchange{
			Gateway:   gateway,
			Operation: "balance-query",
			RequestID: string(rune('A' + i)),
			Outcome:   provider.OutcomeSucceeded,
		}))
	}

	records, err := j.RecentExchanges(ctx, "huifu", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "C", records[0].RequestID, "newest first")
	assert.Equal(t, "A", records[1].RequestID)

	records, err = j.RecentExchanges(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "C", records[0].RequestID)
}

func TestJournal_RecordNotification(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	require.NoError(t, j.RecordNotification(ctx, provider.Notification{
		Gateway:   "huifu",
		Event:     "payment",
		RequestID: "X1",
		State:     provider.StateVerified,
		Ack:       provider.AckSuccess,
		Strategy:  "raw",
		Payload:   `{"req_seq_id":"X1"}`,
	}))
	require.NoError(t, j.RecordNotification(ctx, provider.Notification{
		Gateway: "huifu",
		State:   provider.StateRejected,
		Ack:     provider.AckFail,
		Error:   "signature mismatch",
	}))

	records, err := j.RecentNotifications(ctx, "huifu", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rejected", records[0].State)
	assert.Equal(t, "fail", records[0].Ack)
	assert.Equal(t, "verified", records[1].State)
	assert.Equal(t, "raw", records[1].Strategy)
	assert.Equal(t, "payment", records[1].Event)
}

func TestJournal_GetStats(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	for _, outcome := range []string{provider.OutcomeSucceeded, provider.OutcomeSucceeded, provider.OutcomeRejected} {
		require.NoError(t, j.RecordExchange(ctx, provider.Exchange{Gateway: "huifu", Operation: "jspay", Outcome: outcome}))
	}
	require.NoError(t, j.RecordNotification(ctx, provider.Notification{Gateway: "huifu", State: provider.StateRejected, Ack: provider.AckFail}))

	stats, err := j.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["exchanges"])
	assert.Equal(t, map[string]int{"succeeded": 2, "rejected": 1}, stats["exchange_outcomes"])
	assert.Equal(t, 1, stats["notifications"])
	assert.Equal(t, 1, stats["rejected_notifications"])
}

func TestJournal_ConcurrentWrites(t *testing.T) {
	j := newTestJournal(t)
	ctx := t.Context()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.RecordExchange(ctx, provider.Exchange{Gateway: "huifu", Operation: "jspay", Outcome: provider.OutcomePending}))
		}()
	}
	wg.Wait()

	records, err := j.RecentExchanges(ctx, "huifu", 100)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, isBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isBusy(errors.New("database is on fire")))
}

func TestJournal_RetryOperation(t *testing.T) {
	j := newTestJournal(t)

	calls := 0
	err := j.retryOperation(t.Context(), func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("constraint failed")
	err = j.retryOperation(t.Context(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}
