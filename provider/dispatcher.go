package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/infra/logger"
	"github.com/mstgnz/gohuifu/infra/metrics"
)

// Transport submits an assembled request and returns the decoded response.
// It owns the wire format, signing and any retry policy.
type Transport interface {
	PostRequest(ctx context.Context, req *Request) (map[string]any, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, req *Request) (map[string]any, error)

func (f TransportFunc) PostRequest(ctx context.Context, req *Request) (map[string]any, error) {
	return f(ctx, req)
}

// Dispatcher executes named gateway operations: defaults, amount
// normalization, binding, a single transport call and classification.
type Dispatcher struct {
	name       string
	merchantID string
	registry   *KindRegistry
	transport  Transport
	accept     AcceptSet
	recorder   Recorder
	now        func() time.Time
	seqSuffix  func() string
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithRegistry resolves operations from r instead of DefaultRegistry
func WithRegistry(r *KindRegistry) DispatcherOption {
	return func(d *Dispatcher) { d.registry = r }
}

// WithRecorder hands every exchange to r
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithClock sets the clock used for req_date and req_seq_id
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithAcceptSet replaces the accept-set used to classify responses
func WithAcceptSet(s AcceptSet) DispatcherOption {
	return func(d *Dispatcher) { d.accept = s }
}

// WithSeqSuffix sets the generator of the random req_seq_id suffix
func WithSeqSuffix(fn func() string) DispatcherOption {
	return func(d *Dispatcher) { d.seqSuffix = fn }
}

// WithName sets the gateway name used in logs and metrics
func WithName(name string) DispatcherOption {
	return func(d *Dispatcher) { d.name = name }
}

// NewDispatcher creates a dispatcher for the merchant in cfg
func NewDispatcher(cfg config.Gateway, transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		name:       "gateway",
		merchantID: cfg.MerchantID,
		registry:   DefaultRegistry,
		transport:  transport,
		accept:     DefaultAcceptSet,
		now:        time.Now,
		seqSuffix:  func() string { return config.RandomString(8) },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the gateway name
func (d *Dispatcher) Name() string {
	return d.name
}

// MerchantID returns the configured default merchant id
func (d *Dispatcher) MerchantID() string {
	return d.merchantID
}

// Prepare resolves operation and builds the request without sending it.
// params is not modified.
func (d *Dispatcher) Prepare(operation string, params *Params) (*Request, error) {
	kind, err := d.registry.Get(operation)
	if err != nil {
		return nil, &ValidationError{Field: "operation", Reason: err.Error()}
	}

	working := params.Clone()
	d.applyDefaults(kind, working)

	if err := NormalizeAmounts(working); err != nil {
		return nil, err
	}
	req, err := Bind(kind, working)
	if err != nil {
		return nil, err
	}
	// extension values are encoded here so a bad one never reaches the transport
	if _, err := req.Data(); err != nil {
		return nil, err
	}
	return req, nil
}

func (d *Dispatcher) applyDefaults(kind *RequestKind, params *Params) {
	now := d.now()
	if kind.Declares("req_date") && params.Blank("req_date") {
		params.Set("req_date", now.Format("20060102"))
	}
	if kind.Declares("req_seq_id") && params.Blank("req_seq_id") {
		params.Set("req_seq_id", now.Format("20060102150405")+d.seqSuffix())
	}
	if kind.Declares("huifu_id") && params.Blank("huifu_id") && d.merchantID != "" {
		params.Set("huifu_id", d.merchantID)
	}
}

// Execute runs operation with params and returns the classified response.
// Errors are *ValidationError, *TransportError or *APIError.
func (d *Dispatcher) Execute(ctx context.Context, operation string, params *Params) (Response, error) {
	start := d.now()
	req, err := d.Prepare(operation, params)
	if err != nil {
		d.observe(ctx, operation, nil, nil, nil, OutcomeInvalid, err, start)
		return nil, err
	}
	return d.Submit(ctx, req)
}

// Submit sends a prepared request once and classifies the answer
func (d *Dispatcher) Submit(ctx context.Context, req *Request) (Response, error) {
	start := d.now()
	operation := req.Kind.Name

	raw, err := d.transport.PostRequest(ctx, req)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Operation: operation, Cause: err}
		}
		d.observe(ctx, operation, req, nil, nil, OutcomeFailed, err, start)
		return nil, err
	}

	resp, err := d.accept.Classify(raw)
	if err != nil {
		d.observe(ctx, operation, req, raw, nil, OutcomeRejected, err, start)
		return nil, err
	}

	outcome := OutcomeSucceeded
	if resp.Pending() {
		outcome = OutcomePending
	}
	d.observe(ctx, operation, req, raw, resp, outcome, nil, start)
	return resp, nil
}

func (d *Dispatcher) observe(ctx context.Context, operation string, req *Request, raw map[string]any, resp Response, outcome string, err error, start time.Time) {
	elapsed := d.now().Sub(start)
	metrics.ObserveGateway(d.name, operation, outcome, elapsed)

	ex := Exchange{
		Gateway:   d.name,
		Operation: operation,
		Response:  raw,
		Outcome:   outcome,
		Duration:  elapsed,
		Timestamp: start,
	}
	if req != nil {
		ex.FunctionCode = req.Kind.FunctionCode
		ex.RequestID = req.SeqID()
		if data, dataErr := req.Data(); dataErr == nil {
			ex.Request = data
		}
	}
	if resp != nil {
		ex.Code = resp.Code()
		ex.Description = resp.Description()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		ex.Code = apiErr.Code
		ex.Description = apiErr.Description
	}

	entry := logger.WithRequest(d.name, ex.RequestID).
		With("operation", operation).
		With("outcome", outcome)
	if err != nil {
		ex.Error = err.Error()
		entry.With("resp_code", ex.Code).Error("Gateway operation failed", err)
	} else {
		entry.With("resp_code", ex.Code).
			With("duration_ms", elapsed.Milliseconds()).
			Info("Gateway operation completed")
	}

	if d.recorder == nil {
		return
	}
	if recErr := d.recorder.RecordExchange(ctx, ex); recErr != nil {
		entry.With("error", recErr.Error()).Warn("Failed to record gateway exchange")
	}
}
