package huifu

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/provider"
)

// Composite operations built on top of the request kinds
const (
	OpMiniAppPay        = "mini-app-pay"
	OpSplitByRatio      = "split-by-ratio"
	OpSplitByAmount     = "split-by-amount"
	OpConfirmAllocation = "confirm-allocation"
	OpBalance           = "balance"
	OpUploadImage       = "upload-image"
	OpRefund            = "refund"
	OpQueryOrder        = "query-order"
	OpApplyInvoice      = "apply-invoice"
	OpQueryInvoice      = "query-invoice"
)

const (
	tradeTypeMiniApp    = "T_MINIAPP"
	defaultFileType     = "F55"
	defaultRefundReason = "用户申请退款"
)

// Split assigns a share of an order to a sub-merchant
type Split struct {
	HuifuID string
	Ratio   decimal.Decimal
}

// Allocation assigns a fixed amount of an order to a sub-merchant
type Allocation struct {
	HuifuID string
	Amount  decimal.Decimal
}

// Service exposes the everyday Huifu operations over a dispatcher
type Service struct {
	cfg        config.Gateway
	dispatcher *provider.Dispatcher
}

// New creates a service talking to the gateway configured in cfg
func New(cfg config.Gateway, opts ...provider.DispatcherOption) (*Service, error) {
	transport, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]provider.DispatcherOption{provider.WithName(providerName)}, opts...)
	return NewService(cfg, provider.NewDispatcher(cfg, transport, opts...)), nil
}

// NewService creates a service over an existing dispatcher
func NewService(cfg config.Gateway, dispatcher *provider.Dispatcher) *Service {
	return &Service{cfg: cfg, dispatcher: dispatcher}
}

// Dispatcher returns the underlying dispatcher
func (s *Service) Dispatcher() *provider.Dispatcher {
	return s.dispatcher
}

// Operations lists every operation Execute accepts
func (s *Service) Operations() []string {
	ops := []string{
		OpMiniAppPay, OpSplitByRatio, OpSplitByAmount, OpConfirmAllocation, OpBalance,
		OpUploadImage, OpRefund, OpQueryOrder, OpApplyInvoice, OpQueryInvoice,
	}
	for _, k := range Kinds() {
		ops = append(ops, k.Name)
	}
	sort.Strings(ops)
	return ops
}

// MiniAppPay places a WeChat mini program order. extra overrides any default.
func (s *Service) MiniAppPay(ctx context.Context, orderNo string, amount any, desc, openid string, extra *provider.Params) (provider.Response, error) {
	if openid == "" {
		return nil, &provider.ValidationError{Field: "openid", Reason: "is required"}
	}

	params := provider.NewParams().
		Set("req_seq_id", orderNo).
		Set("trans_amt", amount).
		Set("goods_desc", desc).
		Set("trade_type", tradeTypeMiniApp).
		Set("delay_acct_flag", "Y").
		Set("wx_data", provider.NewParams().Set("sub_appid", s.cfg.SubAppID).Set("openid", openid))
	if s.cfg.NotifyURL != "" {
		params.Set("notify_url", s.cfg.NotifyURL)
	}
	params.Merge(extra)

	return s.dispatcher.Execute(ctx, OpJSPay, params)
}

// SplitByRatio confirms a delayed order, dividing total by ratio. Each share
// is rounded to two decimals.
func (s *Service) SplitByRatio(ctx context.Context, orderNo, orderDate string, total any, splits []Split) (provider.Response, error) {
	entries, totalAmt, err := allocateByRatio(total, splits)
	if err != nil {
		return nil, err
	}
	return s.ConfirmAllocation(ctx, orderNo, orderDate, totalAmt, entries)
}

// SplitByAmount confirms a delayed order with fixed amounts; the total is their sum
func (s *Service) SplitByAmount(ctx context.Context, orderNo, orderDate string, amounts []Allocation) (provider.Response, error) {
	if len(amounts) == 0 {
		return nil, &provider.ValidationError{Field: "splits", Reason: "at least one allocation is required"}
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a.Amount)
	}
	return s.ConfirmAllocation(ctx, orderNo, orderDate, total, amounts)
}

// ConfirmAllocation sends the delayed transaction confirmation carrying the
// allocation list.
func (s *Service) ConfirmAllocation(ctx context.Context, orderNo, orderDate string, total decimal.Decimal, entries []Allocation) (provider.Response, error) {
	params, err := confirmParams(orderNo, orderDate, total, entries)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Execute(ctx, OpDelayConfirm, params)
}

// Balance returns the available balance of huifuID, the configured merchant
// when empty. A response without acct_bal reads as zero.
func (s *Service) Balance(ctx context.Context, huifuID string) (decimal.Decimal, error) {
	resp, err := s.dispatcher.Execute(ctx, OpBalanceQuery, provider.NewParams().Set("huifu_id", huifuID))
	if err != nil {
		return decimal.Zero, err
	}
	if _, ok := resp["acct_bal"]; !ok {
		return decimal.Zero, nil
	}
	return resp.Decimal("acct_bal")
}

// UploadImage uploads a picture and returns the gateway file id. file is a
// path, a provider.File or a *provider.File.
func (s *Service) UploadImage(ctx context.Context, file any, fileType string) (string, error) {
	if fileType == "" {
		fileType = defaultFileType
	}
	resp, err := s.dispatcher.Execute(ctx, OpPictureUpload, provider.NewParams().
		Set("file_type", fileType).
		Set("file", file))
	if err != nil {
		return "", err
	}
	return resp.String("file_id"), nil
}

// Refund refunds amount of an earlier order
func (s *Service) Refund(ctx context.Context, orgOrderNo, orgOrderDate string, amount any, reason string) (provider.Response, error) {
	if reason == "" {
		reason = defaultRefundReason
	}
	return s.dispatcher.Execute(ctx, OpScanPayRefund, provider.NewParams().
		Set("org_req_seq_id", orgOrderNo).
		Set("org_req_date", orgOrderDate).
		Set("ord_amt", amount).
		Set("remark", reason))
}

// QueryOrder returns the state of an order
func (s *Service) QueryOrder(ctx context.Context, orderNo, orderDate string) (provider.Response, error) {
	return s.dispatcher.Execute(ctx, OpScanPayQuery, provider.NewParams().
		Set("org_req_seq_id", orderNo).
		Set("org_req_date", orderDate))
}

// ApplyInvoice requests an invoice for the given gateway transactions
func (s *Service) ApplyInvoice(ctx context.Context, category string, hfSeqIDs []string, extra *provider.Params) (provider.Response, error) {
	if len(hfSeqIDs) == 0 {
		return nil, &provider.ValidationError{Field: "hf_seq_ids", Reason: "at least one transaction is required"}
	}
	params := provider.NewParams().
		Set("invoice_category", category).
		Set("hf_seq_ids", hfSeqIDs).
		Merge(extra)
	return s.dispatcher.Execute(ctx, OpInvoiceApply, params)
}

// QueryInvoice returns the state of an invoice application
func (s *Service) QueryInvoice(ctx context.Context, applySeqID, applyDate string) (provider.Response, error) {
	params := provider.NewParams()
	if applySeqID != "" {
		params.Set("req_seq_id", applySeqID)
	}
	if applyDate != "" {
		params.Set("req_date", applyDate)
	}
	return s.dispatcher.Execute(ctx, OpInvoiceQueryApply, params)
}

// Execute runs a composite operation or any registered request kind
func (s *Service) Execute(ctx context.Context, operation string, params *provider.Params) (provider.Response, error) {
	if params == nil {
		params = provider.NewParams()
	}
	args := argReader{params: params}

	switch operation {
	case OpMiniAppPay:
		extra := args.rest("order_no", "req_seq_id", "trans_amt", "goods_desc", "openid")
		return s.MiniAppPay(ctx, args.str("order_no", "req_seq_id"), args.value("trans_amt"), args.str("goods_desc"), args.str("openid"), extra)

	case OpSplitByRatio:
		splits, err := parseSplits(args.value("splits"))
		if err != nil {
			return nil, err
		}
		return s.SplitByRatio(ctx, args.str("order_no", "org_req_seq_id"), args.str("order_date", "org_req_date"), args.value("trans_amt"), splits)

	case OpSplitByAmount, OpConfirmAllocation:
		entries, err := parseAllocations(args.value("splits"))
		if err != nil {
			return nil, err
		}
		if operation == OpSplitByAmount {
			return s.SplitByAmount(ctx, args.str("order_no", "org_req_seq_id"), args.str("order_date", "org_req_date"), entries)
		}
		total, err := provider.ParseAmount(args.value("trans_amt"))
		if err != nil {
			return nil, &provider.ValidationError{Field: "trans_amt", Reason: err.Error()}
		}
		return s.ConfirmAllocation(ctx, args.str("order_no", "org_req_seq_id"), args.str("order_date", "org_req_date"), total, entries)

	case OpBalance:
		bal, err := s.Balance(ctx, args.str("huifu_id"))
		if err != nil {
			return nil, err
		}
		return provider.Response{"acct_bal": bal.StringFixed(2)}, nil

	case OpUploadImage:
		fileID, err := s.UploadImage(ctx, args.value("file"), args.str("file_type"))
		if err != nil {
			return nil, err
		}
		return provider.Response{"file_id": fileID}, nil

	case OpRefund:
		return s.Refund(ctx, args.str("org_req_seq_id", "order_no"), args.str("org_req_date", "order_date"), args.value("ord_amt", "trans_amt"), args.str("remark", "reason"))

	case OpQueryOrder:
		return s.QueryOrder(ctx, args.str("org_req_seq_id", "order_no"), args.str("org_req_date", "order_date"))

	case OpApplyInvoice:
		ids, err := parseStrings(args.value("hf_seq_ids"))
		if err != nil {
			return nil, err
		}
		return s.ApplyInvoice(ctx, args.str("invoice_category"), ids, args.rest("invoice_category", "hf_seq_ids"))

	case OpQueryInvoice:
		return s.QueryInvoice(ctx, args.str("req_seq_id"), args.str("req_date"))
	}

	return s.dispatcher.Execute(ctx, operation, params)
}

func allocateByRatio(total any, splits []Split) ([]Allocation, decimal.Decimal, error) {
	totalAmt, err := provider.ParseAmount(total)
	if err != nil {
		return nil, decimal.Zero, &provider.ValidationError{Field: "trans_amt", Reason: err.Error()}
	}
	if len(splits) == 0 {
		return nil, decimal.Zero, &provider.ValidationError{Field: "splits", Reason: "at least one split is required"}
	}

	one := decimal.NewFromInt(1)
	sum := decimal.Zero
	entries := make([]Allocation, 0, len(splits))
	for _, sp := range splits {
		if sp.HuifuID == "" {
			return nil, decimal.Zero, &provider.ValidationError{Field: "splits", Reason: "huifu_id is required"}
		}
		if !sp.Ratio.IsPositive() || sp.Ratio.GreaterThan(one) {
			return nil, decimal.Zero, &provider.ValidationError{Field: "splits", Reason: fmt.Sprintf("ratio of %s must be in (0, 1]", sp.HuifuID)}
		}
		sum = sum.Add(sp.Ratio)
		entries = append(entries, Allocation{HuifuID: sp.HuifuID, Amount: totalAmt.Mul(sp.Ratio).Round(2)})
	}
	if sum.GreaterThan(one) {
		return nil, decimal.Zero, &provider.ValidationError{Field: "splits", Reason: "ratios add up to more than 1"}
	}

	// rounding each share may overshoot the total; the last share absorbs the
	// difference, and takes the exact remainder when the ratios cover it all
	allocated := decimal.Zero
	for _, e := range entries {
		allocated = allocated.Add(e.Amount)
	}
	if sum.Equal(one) || allocated.GreaterThan(totalAmt) {
		last := &entries[len(entries)-1]
		last.Amount = totalAmt.Sub(allocated.Sub(last.Amount))
		if last.Amount.IsNegative() {
			return nil, decimal.Zero, &provider.ValidationError{Field: "trans_amt", Reason: fmt.Sprintf("%s is too small to split", totalAmt.StringFixed(2))}
		}
	}
	return entries, totalAmt, nil
}

func confirmParams(orderNo, orderDate string, total decimal.Decimal, entries []Allocation) (*provider.Params, error) {
	if orderNo == "" {
		return nil, &provider.ValidationError{Field: "org_req_seq_id", Reason: "is required"}
	}
	if orderDate == "" {
		return nil, &provider.ValidationError{Field: "org_req_date", Reason: "is required"}
	}

	infos := make([]any, 0, len(entries))
	for _, e := range entries {
		amt, err := provider.FormatAmount(e.Amount)
		if err != nil {
			return nil, &provider.ValidationError{Field: "div_amt", Reason: err.Error()}
		}
		infos = append(infos, provider.NewParams().Set("huifu_id", e.HuifuID).Set("div_amt", amt))
	}

	return provider.NewParams().
		Set("org_req_seq_id", orderNo).
		Set("org_req_date", orderDate).
		Set("trans_amt", total).
		Set("acct_split_bunch", provider.NewParams().Set("acct_infos", infos)), nil
}

// parseSplits reads ratios from an object {"huifu_id": ratio} or a list of
// {"huifu_id", "ratio"} objects.
func parseSplits(v any) ([]Split, error) {
	var out []Split
	err := eachShare(v, "ratio", func(huifuID string, value any) error {
		ratio, err := provider.ParseAmount(value)
		if err != nil {
			return fmt.Errorf("ratio of %s: %w", huifuID, err)
		}
		out = append(out, Split{HuifuID: huifuID, Ratio: ratio})
		return nil
	})
	return out, err
}

// parseAllocations reads amounts from an object {"huifu_id": amount} or a
// list of {"huifu_id", "div_amt"} objects.
func parseAllocations(v any) ([]Allocation, error) {
	var out []Allocation
	err := eachShare(v, "div_amt", func(huifuID string, value any) error {
		amt, err := provider.ParseAmount(value)
		if err != nil {
			return fmt.Errorf("amount of %s: %w", huifuID, err)
		}
		out = append(out, Allocation{HuifuID: huifuID, Amount: amt})
		return nil
	})
	return out, err
}

func eachShare(v any, valueKey string, fn func(huifuID string, value any) error) error {
	wrap := func(err error) error {
		if err == nil {
			return nil
		}
		return &provider.ValidationError{Field: "splits", Reason: err.Error()}
	}

	switch t := v.(type) {
	case *provider.Params:
		var err error
		t.Range(func(k string, value any) bool {
			err = fn(k, value)
			return err == nil
		})
		return wrap(err)
	case map[string]any:
		return eachShare(provider.ParamsFromMap(t), valueKey, fn)
	case []any:
		for _, item := range t {
			var entry *provider.Params
			switch e := item.(type) {
			case *provider.Params:
				entry = e
			case map[string]any:
				entry = provider.ParamsFromMap(e)
			default:
				return wrap(fmt.Errorf("entry must be an object, got %T", item))
			}
			id, _ := entry.Get("huifu_id")
			huifuID, _ := id.(string)
			if huifuID == "" {
				return wrap(fmt.Errorf("entry has no huifu_id"))
			}
			value, _ := entry.Get(valueKey)
			if err := fn(huifuID, value); err != nil {
				return wrap(err)
			}
		}
		return nil
	case nil:
		return wrap(fmt.Errorf("splits are required"))
	default:
		return wrap(fmt.Errorf("splits must be an object or a list, got %T", v))
	}
}

func parseStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, &provider.ValidationError{Field: "hf_seq_ids", Reason: "entries must be strings"}
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return []string{t}, nil
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, &provider.ValidationError{Field: "hf_seq_ids", Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// argReader reads loosely typed operation arguments
type argReader struct {
	params *provider.Params
}

func (a argReader) value(keys ...string) any {
	for _, k := range keys {
		if v, ok := a.params.Get(k); ok && !a.params.Blank(k) {
			return v
		}
	}
	return nil
}

func (a argReader) str(keys ...string) string {
	switch v := a.value(keys...).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// rest returns the parameters not named in used, in their original order
func (a argReader) rest(used ...string) *provider.Params {
	skip := make(map[string]bool, len(used))
	for _, k := range used {
		skip[k] = true
	}
	out := provider.NewParams()
	a.params.Range(func(k string, v any) bool {
		if !skip[k] {
			out.Set(k, v)
		}
		return true
	})
	return out
}
