package provider

import (
	"context"
	"errors"
	"time"
)

// Outcome values recorded for an exchange
const (
	OutcomeSucceeded = "succeeded"
	OutcomePending   = "pending"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
)

// Exchange is one outbound request/response pair
type Exchange struct {
	Gateway      string
	Operation    string
	FunctionCode string
	RequestID    string
	Request      *Params
	Response     map[string]any
	Code         string
	Description  string
	Outcome      string
	Error        string
	Duration     time.Duration
	Timestamp    time.Time
}

// Notification is one inbound callback and the acknowledgement sent back
type Notification struct {
	Gateway   string
	Event     string
	RequestID string
	State     CallbackState
	Ack       Ack
	Strategy  string
	Payload   string
	Error     string
	Timestamp time.Time
}

// Recorder persists exchanges and notifications. Failures are logged by the
// caller and never change the outcome of an operation.
type Recorder interface {
	RecordExchange(ctx context.Context, ex Exchange) error
	RecordNotification(ctx context.Context, n Notification) error
}

// Recorders fans out to several recorders
type Recorders []Recorder

func (rs Recorders) RecordExchange(ctx context.Context, ex Exchange) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordExchange(ctx, ex); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rs Recorders) RecordNotification(ctx context.Context, n Notification) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordNotification(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
