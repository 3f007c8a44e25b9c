package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mstgnz/gohuifu/infra/logger"
	"github.com/mstgnz/gohuifu/infra/metrics"
)

// Ack is the literal acknowledgement returned to the gateway
type Ack string

const (
	AckSuccess Ack = "success"
	AckFail    Ack = "fail"
)

// CallbackState is the verification state of one notification
type CallbackState string

const (
	StateUnverified CallbackState = "unverified"
	StateVerified   CallbackState = "verified"
	StateRejected   CallbackState = "rejected"
)

// Default notification field names
const (
	DefaultSignatureField = "sign"
	DefaultPayloadField   = "resp_data"
)

// ErrMissingField is reported when the payload or signature is absent
var ErrMissingField = errors.New("notification field is missing")

// ErrBadSignature is reported when no verification candidate matched
var ErrBadSignature = errors.New("notification signature is invalid")

// CallbackFunc handles a verified notification. Returning true or "success"
// acknowledges it; anything else, an error or a panic answers fail.
type CallbackFunc func(ctx context.Context, data map[string]any) (any, error)

// CallbackResult describes how a notification was handled
type CallbackResult struct {
	State    CallbackState
	Ack      Ack
	Strategy string
	Payload  string
	Data     map[string]any
	Err      error
}

// CallbackHandler authenticates inbound notifications and delegates verified
// ones to business code.
type CallbackHandler struct {
	name     string
	verifier *Verifier
	recorder Recorder
}

// NewCallbackHandler creates a handler for the named gateway. recorder may be nil.
func NewCallbackHandler(name string, verifier *Verifier, recorder Recorder) *CallbackHandler {
	return &CallbackHandler{name: name, verifier: verifier, recorder: recorder}
}

// Handle processes one notification body and returns the acknowledgement
func (h *CallbackHandler) Handle(ctx context.Context, body []byte, contentType, signatureField, payloadField string, cb CallbackFunc) Ack {
	return h.Process(ctx, body, contentType, signatureField, payloadField, cb).Ack
}

// Process handles a notification like Handle and returns the full result.
// Empty field names fall back to sign and resp_data.
func (h *CallbackHandler) Process(ctx context.Context, body []byte, contentType, signatureField, payloadField string, cb CallbackFunc) CallbackResult {
	if signatureField == "" {
		signatureField = DefaultSignatureField
	}
	if payloadField == "" {
		payloadField = DefaultPayloadField
	}

	res := h.process(ctx, body, contentType, signatureField, payloadField, cb)
	h.observe(ctx, res)
	return res
}

func (h *CallbackHandler) process(ctx context.Context, body []byte, contentType, signatureField, payloadField string, cb CallbackFunc) CallbackResult {
	res := CallbackResult{State: StateUnverified}

	fields := notificationFields(body, contentType, signatureField, payloadField)
	payload, signature := fields[payloadField], fields[signatureField]
	res.Payload = payload
	if payload == "" || signature == "" {
		return reject(res, fmt.Errorf("%w: need %s and %s", ErrMissingField, payloadField, signatureField))
	}

	strategy, ok := h.verifier.Match([]byte(payload), signature)
	if !ok {
		return reject(res, ErrBadSignature)
	}
	res.State = StateVerified
	res.Strategy = strategy

	data, err := decodePayload(payload)
	if err != nil {
		res.Ack = AckFail
		res.Err = err
		return res
	}
	res.Data = data

	if cb == nil {
		res.Ack = AckSuccess
		return res
	}
	result, err := invoke(ctx, cb, data)
	if err != nil {
		res.Ack = AckFail
		res.Err = err
		return res
	}
	if acknowledged(result) {
		res.Ack = AckSuccess
	} else {
		res.Ack = AckFail
		res.Err = fmt.Errorf("callback did not acknowledge notification: %v", result)
	}
	return res
}

func reject(res CallbackResult, err error) CallbackResult {
	res.State = StateRejected
	res.Ack = AckFail
	res.Err = err
	return res
}

func invoke(ctx context.Context, cb CallbackFunc, data map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(ctx, data)
}

func acknowledged(result any) bool {
	switch v := result.(type) {
	case bool:
		return v
	case string:
		return v == string(AckSuccess)
	case Ack:
		return v == AckSuccess
	default:
		return false
	}
}

// notificationFields extracts the raw payload and signature strings. JSON
// bodies are read in place so the payload keeps its exact bytes.
func notificationFields(body []byte, contentType string, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	trimmed := bytes.TrimSpace(body)

	isJSON := strings.Contains(contentType, "json") || (len(trimmed) > 0 && trimmed[0] == '{')
	if isJSON && gjson.ValidBytes(trimmed) {
		root := gjson.ParseBytes(trimmed)
		if root.IsObject() {
			wanted := make(map[string]bool, len(names))
			for _, n := range names {
				wanted[n] = true
			}
			root.ForEach(func(k, v gjson.Result) bool {
				key := k.String()
				if !wanted[key] {
					return true
				}
				if v.Type == gjson.String {
					out[key] = v.String()
				} else if v.Type != gjson.Null {
					out[key] = v.Raw
				}
				return true
			})
			return out
		}
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return out
	}
	for _, n := range names {
		if v := values.Get(n); v != "" {
			out[n] = v
		}
	}
	return out
}

func decodePayload(payload string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode notification payload: %w", err)
	}
	if data == nil {
		return nil, errors.New("notification payload is not an object")
	}
	return data, nil
}

func (h *CallbackHandler) observe(ctx context.Context, res CallbackResult) {
	metrics.ObserveCallback(h.name, string(res.State), string(res.Ack), res.Strategy)

	requestID := ""
	if res.Data != nil {
		requestID = Response(res.Data).String("req_seq_id")
	}
	entry := logger.WithRequest(h.name, requestID).
		With("state", string(res.State)).
		With("ack", string(res.Ack)).
		With("strategy", res.Strategy)
	switch {
	case res.State == StateRejected:
		entry.With("payload_sample", sample(res.Payload, 100)).Error("Callback signature rejected", res.Err)
	case res.Err != nil:
		entry.Error("Callback handling failed", res.Err)
	default:
		entry.Info("Callback acknowledged")
	}

	if h.recorder == nil {
		return
	}
	n := Notification{
		Gateway:   h.name,
		RequestID: requestID,
		State:     res.State,
		Ack:       res.Ack,
		Strategy:  res.Strategy,
		Payload:   res.Payload,
		Timestamp: time.Now(),
	}
	if res.Err != nil {
		n.Error = res.Err.Error()
	}
	if eventName, ok := ctx.Value(eventKey{}).(string); ok {
		n.Event = eventName
	}
	if err := h.recorder.RecordNotification(ctx, n); err != nil {
		entry.With("error", err.Error()).Warn("Failed to record notification")
	}
}

type eventKey struct{}

// WithEvent tags ctx with the notification event name for recording
func WithEvent(ctx context.Context, event string) context.Context {
	return context.WithValue(ctx, eventKey{}, event)
}

func sample(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
