package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/gohuifu/infra/opensearch"
	"github.com/mstgnz/gohuifu/infra/response"
	"github.com/mstgnz/gohuifu/infra/storage"
)

// JournalReader defines the read side of the exchange journal
type JournalReader interface {
	RecentExchanges(ctx context.Context, gateway string, limit int) ([]storage.ExchangeRecord, error)
	ExchangesByRequestID(ctx context.Context, requestID string) ([]storage.ExchangeRecord, error)
	RecentNotifications(ctx context.Context, gateway string, limit int) ([]storage.NotificationRecord, error)
	GetStats(ctx context.Context) (map[string]any, error)
}

// SearchReader defines the aggregate queries served by OpenSearch
type SearchReader interface {
	GetRecentFailures(ctx context.Context, gateway string, hours int) ([]opensearch.ExchangeLog, error)
	GetGatewayStats(ctx context.Context, gateway string, hours int) (map[string]any, error)
}

// LogsHandler handles logs related HTTP requests
type LogsHandler struct {
	journal JournalReader
	search  SearchReader
}

// NewLogsHandler creates a new logs handler. search may be nil.
func NewLogsHandler(journal JournalReader, search SearchReader) *LogsHandler {
	return &LogsHandler{
		journal: journal,
		search:  search,
	}
}

// ListExchanges lists the newest gateway exchanges
func (h *LogsHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		response.Error(w, http.StatusServiceUnavailable, "Journal not available", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	gateway := r.URL.Query().Get("gateway")
	limit := queryInt(r, "limit", 50, 1000)

	records, err := h.journal.RecentExchanges(ctx, gateway, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list exchanges", err)
		return
	}

	response.Success(w, http.StatusOK, "Exchanges retrieved successfully", map[string]any{
		"gateway": gateway,
		"limit":   limit,
		"count":   len(records),
		"logs":    records,
	})
}

// GetRequestLogs retrieves every exchange sent with one request sequence id
func (h *LogsHandler) GetRequestLogs(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		response.Error(w, http.StatusServiceUnavailable, "Journal not available", nil)
		return
	}

	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		response.Error(w, http.StatusBadRequest, "requestID parameter is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	records, err := h.journal.ExchangesByRequestID(ctx, requestID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", map[string]any{
		"request_id": requestID,
		"count":      len(records),
		"logs":       records,
	})
}

// ListNotifications lists the newest callbacks
func (h *LogsHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		response.Error(w, http.StatusServiceUnavailable, "Journal not available", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	gateway := r.URL.Query().Get("gateway")
	limit := queryInt(r, "limit", 50, 1000)

	records, err := h.journal.RecentNotifications(ctx, gateway, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}

	response.Success(w, http.StatusOK, "Notifications retrieved successfully", map[string]any{
		"gateway": gateway,
		"limit":   limit,
		"count":   len(records),
		"logs":    records,
	})
}

// GetFailures retrieves recent rejected or failed exchanges from OpenSearch
func (h *LogsHandler) GetFailures(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		response.Error(w, http.StatusServiceUnavailable, "Search logging not enabled", nil)
		return
	}

	gateway := chi.URLParam(r, "gateway")
	hours := queryInt(r, "hours", 24, 168) // max 7 days

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.search.GetRecentFailures(ctx, gateway, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get failures", err)
		return
	}

	response.Success(w, http.StatusOK, "Failures retrieved successfully", map[string]any{
		"gateway": gateway,
		"hours":   hours,
		"count":   len(logs),
		"logs":    logs,
	})
}

// GetLogStats returns journal counters, plus OpenSearch aggregations for the
// gateway when search logging is enabled.
func (h *LogsHandler) GetLogStats(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		response.Error(w, http.StatusServiceUnavailable, "Journal not available", nil)
		return
	}

	gateway := chi.URLParam(r, "gateway")
	hours := queryInt(r, "hours", 24, 168)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	stats, err := h.journal.GetStats(ctx)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve log statistics", err)
		return
	}

	data := map[string]any{
		"gateway": gateway,
		"hours":   hours,
		"journal": stats,
	}
	if h.search != nil {
		if searchStats, err := h.search.GetGatewayStats(ctx, gateway, hours); err == nil {
			data["search"] = searchStats
		}
	}

	response.Success(w, http.StatusOK, "Log statistics retrieved successfully", data)
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is missing, malformed or above limit.
func queryInt(r *http.Request, name string, def, limit int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > limit {
		return def
	}
	return n
}
