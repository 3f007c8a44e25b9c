package huifu

import "github.com/mstgnz/gohuifu/provider"

// Operation names
const (
	OpJSPay             = "jspay"
	OpDelayConfirm      = "delaytrans-confirm"
	OpBalanceQuery      = "balance-query"
	OpPictureUpload     = "picture-upload"
	OpScanPayRefund     = "scanpay-refund"
	OpScanPayQuery      = "scanpay-query"
	OpInvoiceApply      = "invoice-apply"
	OpInvoiceQueryApply = "invoice-query"
)

// Fields declared by each request kind. Anything else a caller sends travels
// in the extension bag and is flattened into the data object.
var (
	JSPay = provider.NewRequestKind(OpJSPay, "V2TradePaymentJspay", "v2/trade/payment/jspay",
		provider.StringField("req_date"),
		provider.StringField("req_seq_id"),
		provider.StringField("huifu_id"),
		provider.StringField("goods_desc"),
		provider.StringField("trade_type"),
		provider.StringField("trans_amt"),
	)

	DelayConfirm = provider.NewRequestKind(OpDelayConfirm, "V2TradePaymentDelaytransConfirm", "v2/trade/payment/delaytrans/confirm",
		provider.StringField("req_date"),
		provider.StringField("req_seq_id"),
		provider.StringField("huifu_id"),
		provider.StringField("org_req_date"),
		provider.StringField("org_req_seq_id"),
		provider.JSONField("acct_split_bunch"),
	)

	BalanceQuery = provider.NewRequestKind(OpBalanceQuery, "V2TradeAcctpaymentBalanceQuery", "v2/trade/acctpayment/balance/query",
		provider.StringField("req_date"),
		provider.StringField("huifu_id"),
	)

	PictureUpload = provider.NewRequestKind(OpPictureUpload, "V2SupplementaryPicture", "v2/supplementary/picture",
		provider.StringField("req_seq_id"),
		provider.StringField("req_date"),
		provider.StringField("file_type"),
		provider.FileField("file"),
	)

	ScanPayRefund = provider.NewRequestKind(OpScanPayRefund, "V2TradePaymentScanpayRefund", "v2/trade/payment/scanpay/refund",
		provider.StringField("req_date"),
		provider.StringField("req_seq_id"),
		provider.StringField("huifu_id"),
		provider.StringField("ord_amt"),
		provider.StringField("org_req_date"),
	)

	ScanPayQuery = provider.NewRequestKind(OpScanPayQuery, "V3TradePaymentScanpayQuery", "v3/trade/payment/scanpay/query",
		provider.StringField("huifu_id"),
		provider.StringField("org_req_date"),
		provider.StringField("org_req_seq_id"),
		provider.StringField("org_hf_seq_id"),
	)

	InvoiceApply = provider.NewRequestKind(OpInvoiceApply, "V2HycInvoiceApply", "v2/hyc/invoice/apply",
		provider.StringField("req_seq_id"),
		provider.StringField("req_date"),
		provider.StringField("huifu_id"),
		provider.StringField("invoice_category"),
		provider.JSONField("hf_seq_ids"),
	)

	InvoiceQueryApply = provider.NewRequestKind(OpInvoiceQueryApply, "V2InvoiceQueryapply", "v2/invoice/queryapply",
		provider.StringField("req_seq_id"),
		provider.StringField("req_date"),
		provider.StringField("huifu_id"),
	)
)

// Kinds returns the request kinds shipped with the package
func Kinds() []*provider.RequestKind {
	return []*provider.RequestKind{
		JSPay,
		DelayConfirm,
		BalanceQuery,
		PictureUpload,
		ScanPayRefund,
		ScanPayQuery,
		InvoiceApply,
		InvoiceQueryApply,
	}
}
