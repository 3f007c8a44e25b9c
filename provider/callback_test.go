package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRecorder struct {
	mu            sync.Mutex
	exchanges     []Exchange
	notifications []Notification
	err           error
}

func (m *memoryRecorder) RecordExchange(_ context.Context, ex Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, ex)
	return m.err
}

func (m *memoryRecorder) RecordNotification(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return m.err
}

func jsonBody(t *testing.T, fields map[string]string) []byte {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return b
}

func TestCallbackHandler_RawPayloadVerifies(t *testing.T) {
	payload := `{"a":1}`
	body := jsonBody(t, map[string]string{"resp_data": payload, "sign": testSign(t, payload)})
	h := NewCallbackHandler("test", testVerifier(t), nil)

	var got map[string]any
	res := h.Process(context.Background(), body, "application/json", "sign", "resp_data",
		func(_ context.Context, data map[string]any) (any, error) {
			got = data
			return true, nil
		})

	assert.Equal(t, AckSuccess, res.Ack)
	assert.Equal(t, StateVerified, res.State)
	assert.Equal(t, "raw", res.Strategy)
	assert.NoError(t, res.Err)
	assert.Equal(t, json.Number("1"), got["a"])
}

func TestCallbackHandler_EmptyObjectFixup(t *testing.T) {
	payload := `{"trans_stat":"S","acct_split_bunch":[]}`
	body := jsonBody(t, map[string]string{
		"resp_data": payload,
		"sign":      testSign(t, `{"acct_split_bunch":{},"trans_stat":"S"}`),
	})
	h := NewCallbackHandler("test", testVerifier(t), nil)

	res := h.Process(context.Background(), body, "application/json", "", "", nil)

	assert.Equal(t, AckSuccess, res.Ack)
	assert.Equal(t, "sorted-empty-object", res.Strategy)
}

func TestCallbackHandler_MissingFields(t *testing.T) {
	payload := `{"a":1}`
	tests := []struct {
		name string
		body []byte
	}{
		{"missing sign", jsonBody(t, map[string]string{"resp_data": payload})},
		{"missing payload", jsonBody(t, map[string]string{"sign": testSign(t, payload)})},
		{"empty body", nil},
		{"not a notification", []byte("hello")},
	}

	h := NewCallbackHandler("test", testVerifier(t), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			res := h.Process(context.Background(), tt.body, "", "sign", "resp_data",
				func(context.Context, map[string]any) (any, error) {
					called = true
					return true, nil
				})

			assert.Equal(t, AckFail, res.Ack)
			assert.Equal(t, StateRejected, res.State)
			assert.ErrorIs(t, res.Err, ErrMissingField)
			assert.False(t, called)
		})
	}
}

func TestCallbackHandler_BadSignature(t *testing.T) {
	body := jsonBody(t, map[string]string{"resp_data": `{"a":1}`, "sign": testSign(t, `{"a":2}`)})
	h := NewCallbackHandler("test", testVerifier(t), nil)

	called := false
	ack := h.Handle(context.Background(), body, "application/json", "sign", "resp_data",
		func(context.Context, map[string]any) (any, error) {
			called = true
			return true, nil
		})

	assert.Equal(t, AckFail, ack)
	assert.False(t, called)
}

func TestCallbackHandler_BusinessOutcome(t *testing.T) {
	payload := `{"req_seq_id":"X1","trans_stat":"S"}`
	body := jsonBody(t, map[string]string{"resp_data": payload, "sign": testSign(t, payload)})

	tests := []struct {
		name     string
		cb       CallbackFunc
		expected Ack
		hasErr   bool
	}{
		{
			name:     "true",
			cb:       func(context.Context, map[string]any) (any, error) { return true, nil },
			expected: AckSuccess,
		},
		{
			name:     "success token",
			cb:       func(context.Context, map[string]any) (any, error) { return "success", nil },
			expected: AckSuccess,
		},
		{
			name:     "ack constant",
			cb:       func(context.Context, map[string]any) (any, error) { return AckSuccess, nil },
			expected: AckSuccess,
		},
		{
			name:     "false",
			cb:       func(context.Context, map[string]any) (any, error) { return false, nil },
			expected: AckFail,
			hasErr:   true,
		},
		{
			name:     "other value",
			cb:       func(context.Context, map[string]any) (any, error) { return 1, nil },
			expected: AckFail,
			hasErr:   true,
		},
		{
			name:     "error",
			cb:       func(context.Context, map[string]any) (any, error) { return true, errors.New("db down") },
			expected: AckFail,
			hasErr:   true,
		},
		{
			name:     "panic",
			cb:       func(context.Context, map[string]any) (any, error) { panic("boom") },
			expected: AckFail,
			hasErr:   true,
		},
		{
			name:     "nil callback",
			cb:       nil,
			expected: AckSuccess,
		},
	}

	h := NewCallbackHandler("test", testVerifier(t), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res CallbackResult
			assert.NotPanics(t, func() {
				res = h.Process(context.Background(), body, "application/json", "sign", "resp_data", tt.cb)
			})
			assert.Equal(t, tt.expected, res.Ack)
			assert.Equal(t, StateVerified, res.State)
			assert.Equal(t, tt.hasErr, res.Err != nil)
		})
	}
}

func TestCallbackHandler_FormBody(t *testing.T) {
	payload := `{"a":"b+c"}`
	form := url.Values{}
	form.Set("resp_data", payload)
	form.Set("sign", testSign(t, payload))
	h := NewCallbackHandler("test", testVerifier(t), nil)

	ack := h.Handle(context.Background(), []byte(form.Encode()), "application/x-www-form-urlencoded", "sign", "resp_data",
		func(_ context.Context, data map[string]any) (any, error) {
			return data["a"] == "b+c", nil
		})

	assert.Equal(t, AckSuccess, ack)
}

func TestCallbackHandler_CustomFieldNames(t *testing.T) {
	payload := `{"a":1}`
	body := jsonBody(t, map[string]string{"data": payload, "signature": testSign(t, payload)})
	h := NewCallbackHandler("test", testVerifier(t), nil)

	assert.Equal(t, AckSuccess, h.Handle(context.Background(), body, "application/json", "signature", "data", nil))
	assert.Equal(t, AckFail, h.Handle(context.Background(), body, "application/json", "", "", nil))
}

func TestCallbackHandler_VerifiedButNotJSON(t *testing.T) {
	payload := `not json`
	body := jsonBody(t, map[string]string{"resp_data": payload, "sign": testSign(t, payload)})
	h := NewCallbackHandler("test", testVerifier(t), nil)

	res := h.Process(context.Background(), body, "application/json", "sign", "resp_data", nil)

	assert.Equal(t, StateVerified, res.State)
	assert.Equal(t, AckFail, res.Ack)
	assert.Error(t, res.Err)
}

func TestCallbackHandler_RecordsNotification(t *testing.T) {
	payload := `{"req_seq_id":"X1"}`
	body := jsonBody(t, map[string]string{"resp_data": payload, "sign": testSign(t, payload)})
	rec := &memoryRecorder{err: errors.New("journal unavailable")}
	h := NewCallbackHandler("test", testVerifier(t), rec)

	ctx := WithEvent(context.Background(), "payment")
	ack := h.Handle(ctx, body, "application/json", "sign", "resp_data", nil)

	assert.Equal(t, AckSuccess, ack)
	require.Len(t, rec.notifications, 1)
	n := rec.notifications[0]
	assert.Equal(t, "payment", n.Event)
	assert.Equal(t, "X1", n.RequestID)
	assert.Equal(t, StateVerified, n.State)
	assert.Equal(t, AckSuccess, n.Ack)
	assert.Equal(t, "raw", n.Strategy)
}
