package handler

import (
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/gohuifu/infra/response"
	"github.com/mstgnz/gohuifu/provider"
)

// CallbackHandler receives asynchronous gateway notifications. Each event
// (payment, refund, ...) may have its own business hook.
type CallbackHandler struct {
	callbacks *provider.CallbackHandler
	hooks     map[string]provider.CallbackFunc
	mu        sync.RWMutex
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(callbacks *provider.CallbackHandler) *CallbackHandler {
	return &CallbackHandler{
		callbacks: callbacks,
		hooks:     make(map[string]provider.CallbackFunc),
	}
}

// On registers the hook run for verified notifications of event
func (h *CallbackHandler) On(event string, fn provider.CallbackFunc) *CallbackHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[event] = fn
	return h
}

func (h *CallbackHandler) hook(event string) provider.CallbackFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hooks[event]
}

// Handle verifies the notification and answers the bare acknowledgement the
// gateway expects. Rejected signatures answer 400 so the gateway retries.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Text(w, http.StatusBadRequest, string(provider.AckFail))
		return
	}

	ctx := provider.WithEvent(r.Context(), event)
	res := h.callbacks.Process(ctx, body, r.Header.Get("Content-Type"), "", "", h.hook(event))

	status := http.StatusOK
	if res.State == provider.StateRejected {
		status = http.StatusBadRequest
	}
	response.Text(w, status, string(res.Ack))
}
