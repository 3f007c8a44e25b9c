package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mstgnz/gohuifu/infra/logger"
	"github.com/mstgnz/gohuifu/infra/middle"
	"github.com/mstgnz/gohuifu/infra/response"
	"github.com/mstgnz/gohuifu/provider"
	"github.com/mstgnz/gohuifu/provider/huifu"
)

const (
	requestTimeout = 30 * time.Second
	maxUploadSize  = 10 << 20
)

// GatewayService runs gateway operations by name
type GatewayService interface {
	Execute(ctx context.Context, operation string, params *provider.Params) (provider.Response, error)
	Operations() []string
}

// OperationHandler exposes gateway operations over HTTP
type OperationHandler struct {
	service  GatewayService
	validate *validator.Validate
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(service GatewayService, validate *validator.Validate) *OperationHandler {
	return &OperationHandler{
		service:  service,
		validate: validate,
	}
}

// MiniAppPayRequest places a WeChat mini program order
type MiniAppPayRequest struct {
	OrderNo   string         `json:"order_no" validate:"required,max=64"`
	Amount    string         `json:"trans_amt" validate:"required,amount"`
	GoodsDesc string         `json:"goods_desc" validate:"required,max=127"`
	OpenID    string         `json:"openid" validate:"required"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// RefundRequest refunds (part of) a settled order
type RefundRequest struct {
	OrderNo   string `json:"org_req_seq_id" validate:"required"`
	OrderDate string `json:"org_req_date" validate:"required,yyyymmdd"`
	Amount    string `json:"ord_amt" validate:"required,amount"`
	Reason    string `json:"reason,omitempty" validate:"max=84"`
}

// SplitRequest confirms a delayed order, dividing it by ratio or by amount
type SplitRequest struct {
	OrderNo   string       `json:"org_req_seq_id" validate:"required"`
	OrderDate string       `json:"org_req_date" validate:"required,yyyymmdd"`
	Amount    string       `json:"trans_amt" validate:"omitempty,amount"`
	Mode      string       `json:"mode" validate:"required,oneof=ratio amount"`
	Splits    []SplitShare `json:"splits" validate:"required,min=1,dive"`
}

// SplitShare is one sub-merchant's part of a split
type SplitShare struct {
	HuifuID string `json:"huifu_id" validate:"required"`
	Ratio   string `json:"ratio,omitempty" validate:"omitempty,ratio"`
	Amount  string `json:"div_amt,omitempty" validate:"omitempty,amount"`
}

// InvoiceRequest applies for an invoice over settled transactions
type InvoiceRequest struct {
	Category string         `json:"invoice_category" validate:"required"`
	HfSeqIDs []string       `json:"hf_seq_ids" validate:"required,min=1,dive,required"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// ListOperations lists every operation the gateway service accepts
func (h *OperationHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "Operations retrieved", h.service.Operations())
}

// Execute runs the operation named in the path with the JSON body as its
// parameters. Key order of the body is kept.
func (h *OperationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	params := provider.NewParams()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body) > 0 {
		if err := params.UnmarshalJSON(body); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request format", err)
			return
		}
	}

	h.run(w, r, chi.URLParam(r, "operation"), params)
}

// MiniAppPay handles mini program payment requests
func (h *OperationHandler) MiniAppPay(w http.ResponseWriter, r *http.Request) {
	var req MiniAppPayRequest
	if !h.decode(w, r, &req) {
		return
	}

	params := provider.NewParams().
		Set("order_no", req.OrderNo).
		Set("trans_amt", req.Amount).
		Set("goods_desc", req.GoodsDesc).
		Set("openid", req.OpenID)
	params.Merge(provider.ParamsFromMap(req.Extra))

	h.run(w, r, huifu.OpMiniAppPay, params)
}

// Refund handles refund requests
func (h *OperationHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !h.decode(w, r, &req) {
		return
	}

	params := provider.NewParams().
		Set("org_req_seq_id", req.OrderNo).
		Set("org_req_date", req.OrderDate).
		Set("ord_amt", req.Amount)
	if req.Reason != "" {
		params.Set("remark", req.Reason)
	}

	h.run(w, r, huifu.OpRefund, params)
}

// Split handles delayed-order confirmation requests
func (h *OperationHandler) Split(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if !h.decode(w, r, &req) {
		return
	}

	operation := huifu.OpSplitByRatio
	if req.Mode == "amount" {
		operation = huifu.OpSplitByAmount
	}

	splits := make([]any, 0, len(req.Splits))
	for _, s := range req.Splits {
		share := provider.NewParams().Set("huifu_id", s.HuifuID)
		if req.Mode == "amount" {
			share.Set("div_amt", s.Amount)
		} else {
			share.Set("ratio", s.Ratio)
		}
		splits = append(splits, share)
	}

	params := provider.NewParams().
		Set("org_req_seq_id", req.OrderNo).
		Set("org_req_date", req.OrderDate).
		Set("splits", splits)
	if req.Amount != "" {
		params.Set("trans_amt", req.Amount)
	}

	h.run(w, r, operation, params)
}

// QueryOrder handles order status requests
func (h *OperationHandler) QueryOrder(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, huifu.OpQueryOrder, provider.NewParams().
		Set("org_req_seq_id", chi.URLParam(r, "orderNo")).
		Set("org_req_date", chi.URLParam(r, "orderDate")))
}

// ApplyInvoice handles invoice applications
func (h *OperationHandler) ApplyInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	params := provider.NewParams().
		Set("invoice_category", req.Category).
		Set("hf_seq_ids", req.HfSeqIDs)
	params.Merge(provider.ParamsFromMap(req.Extra))

	h.run(w, r, huifu.OpApplyInvoice, params)
}

// QueryInvoice handles invoice application status requests
func (h *OperationHandler) QueryInvoice(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, huifu.OpQueryInvoice, provider.NewParams().
		Set("req_seq_id", chi.URLParam(r, "applySeqID")).
		Set("req_date", chi.URLParam(r, "applyDate")))
}

// Balance handles account balance requests
func (h *OperationHandler) Balance(w http.ResponseWriter, r *http.Request) {
	params := provider.NewParams()
	if huifuID := r.URL.Query().Get("huifu_id"); huifuID != "" {
		params.Set("huifu_id", huifuID)
	}
	h.run(w, r, huifu.OpBalance, params)
}

// UploadImage handles multipart image uploads
func (h *OperationHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Missing file", err)
		return
	}
	defer file.Close()

	params := provider.NewParams().
		Set("file", provider.File{Name: header.Filename, Content: file})
	if fileType := r.FormValue("file_type"); fileType != "" {
		params.Set("file_type", fileType)
	}

	h.run(w, r, huifu.OpUploadImage, params)
}

func (h *OperationHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := decodeStrict(body, v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return false
	}
	return true
}

func (h *OperationHandler) run(w http.ResponseWriter, r *http.Request, operation string, params *provider.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.service.Execute(ctx, operation, params)
	if err != nil {
		writeGatewayError(w, r, operation, err)
		return
	}

	if resp.Pending() {
		response.Success(w, http.StatusAccepted, "Operation accepted, result pending", resp)
		return
	}
	response.Success(w, http.StatusOK, "Operation completed", resp)
}

// writeGatewayError maps the three dispatcher error kinds onto HTTP statuses
func writeGatewayError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var (
		validationErr *provider.ValidationError
		apiErr        *provider.APIError
		transportErr  *provider.TransportError
	)

	switch {
	case errors.As(err, &validationErr) && validationErr.Field == "operation":
		response.Error(w, http.StatusNotFound, "Unknown operation", err)
	case errors.As(err, &validationErr):
		response.Error(w, http.StatusBadRequest, "Validation error", err)
	case errors.As(err, &apiErr):
		response.Failure(w, http.StatusBadGateway, "Gateway rejected the request", err, apiErr.Raw())
	case errors.As(err, &transportErr), errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "Gateway unreachable", err)
	default:
		logger.Error("Operation failed", err, logger.LogContext{
			RequestID: middle.GetRequestID(r.Context()),
			Fields:    map[string]any{"operation": operation},
		})
		response.Error(w, http.StatusInternalServerError, "Operation failed", err)
	}
}

func decodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
