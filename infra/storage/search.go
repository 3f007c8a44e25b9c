package storage

import (
	"context"

	"github.com/mstgnz/gohuifu/infra/opensearch"
	"github.com/mstgnz/gohuifu/provider"
)

// SearchRecorder ships exchanges and notifications to OpenSearch
type SearchRecorder struct {
	logger *opensearch.Logger
}

// NewSearchRecorder creates a recorder writing through logger
func NewSearchRecorder(logger *opensearch.Logger) *SearchRecorder {
	return &SearchRecorder{logger: logger}
}

func (r *SearchRecorder) RecordExchange(ctx context.Context, ex provider.Exchange) error {
	request, err := encodeJSON(ex.Request)
	if err != nil {
		return err
	}
	response, err := encodeJSON(ex.Response)
	if err != nil {
		return err
	}

	return r.logger.LogExchange(ctx, opensearch.ExchangeLog{
		Timestamp:    ex.Timestamp,
		Gateway:      ex.Gateway,
		Operation:    ex.Operation,
		FunctionCode: ex.FunctionCode,
		RequestID:    ex.RequestID,
		Outcome:      ex.Outcome,
		Code:         ex.Code,
		Description:  ex.Description,
		Error:        ex.Error,
		DurationMs:   ex.Duration.Milliseconds(),
		Request:      request.String,
		Response:     response.String,
	})
}

func (r *SearchRecorder) RecordNotification(ctx context.Context, n provider.Notification) error {
	return r.logger.LogNotification(ctx, opensearch.NotificationLog{
		Timestamp: n.Timestamp,
		Gateway:   n.Gateway,
		Event:     n.Event,
		RequestID: n.RequestID,
		State:     string(n.State),
		Ack:       string(n.Ack),
		Strategy:  n.Strategy,
		Payload:   n.Payload,
		Error:     n.Error,
	})
}

var (
	_ provider.Recorder = (*Journal)(nil)
	_ provider.Recorder = (*SearchRecorder)(nil)
)
