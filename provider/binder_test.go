package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaymentKind() *RequestKind {
	return NewRequestKind("test-pay", "V2TestPay", "v2/test/pay",
		StringField("req_seq_id"),
		StringField("req_date"),
		StringField("huifu_id"),
		StringField("trans_amt"),
		StringField("goods_desc"),
		JSONField("acct_split_bunch"),
		FileField("file"),
	)
}

func TestAccessorName(t *testing.T) {
	tests := map[string]string{
		"trans_amt":  "TransAmt",
		"req_seq_id": "ReqSeqId",
		"huifu_id":   "HuifuId",
		"_x_":        "X",
		"file":       "File",
	}
	for wire, expected := range tests {
		assert.Equal(t, expected, AccessorName(wire), wire)
	}
}

func TestBind_Partition(t *testing.T) {
	params := NewParams().
		Set("goods_desc", "coffee").
		Set("notify_url", "https://merchant.example/notify").
		Set("trans_amt", "10.00").
		Set("wx_data", map[string]any{"sub_appid": "wx1", "openid": "o1"})

	req, err := Bind(testPaymentKind(), params)
	require.NoError(t, err)

	assert.Equal(t, []string{"goods_desc", "trans_amt"}, req.Fields().Keys())
	require.NotNil(t, req.ExtendInfo())
	assert.Equal(t, []string{"notify_url", "wx_data"}, req.ExtendInfo().Keys())

	// every input key lands in exactly one destination
	for _, key := range params.Keys() {
		inFields := req.Fields().Has(key)
		inExtend := req.ExtendInfo().Has(key)
		assert.True(t, inFields != inExtend, key)
	}
	assert.Equal(t, params.Len(), req.Fields().Len()+req.ExtendInfo().Len())
}

func TestBind_NoExtension(t *testing.T) {
	req, err := Bind(testPaymentKind(), NewParams().Set("trans_amt", "1.00"))
	require.NoError(t, err)
	assert.Nil(t, req.ExtendInfo())
}

func TestBind_DuplicateAccessor(t *testing.T) {
	params := NewParams().Set("trans_amt", "1.00").Set("trans__amt", "2.00")

	_, err := Bind(testPaymentKind(), params)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "trans__amt", vErr.Field)
}

func TestBind_SetterRejectsValue(t *testing.T) {
	params := NewParams().Set("goods_desc", map[string]any{"a": 1})

	_, err := Bind(testPaymentKind(), params)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "goods_desc", vErr.Field)
}

func TestBind_TypedSetters(t *testing.T) {
	params := NewParams().
		Set("acct_split_bunch", map[string]any{"acct_infos": []any{map[string]any{"huifu_id": "M1", "div_amt": "1.00"}}}).
		Set("file", "/tmp/license.png").
		Set("req_date", 20240101)

	req, err := Bind(testPaymentKind(), params)
	require.NoError(t, err)

	assert.Equal(t, `{"acct_infos":[{"div_amt":"1.00","huifu_id":"M1"}]}`, req.Value("acct_split_bunch"))
	assert.Equal(t, "20240101", req.Value("req_date"))

	file, field := req.File()
	require.NotNil(t, file)
	assert.Equal(t, "/tmp/license.png", file.Path)
	assert.Equal(t, "file", field)
	assert.False(t, req.Fields().Has("file"))
}

func TestRequest_Data(t *testing.T) {
	params := NewParams().
		Set("trans_amt", "10.00").
		Set("wx_data", map[string]any{"sub_appid": "wx1", "openid": "o1"}).
		Set("delay_acct_flag", "Y").
		Set("goods_desc", "tea")

	req, err := Bind(testPaymentKind(), params)
	require.NoError(t, err)

	data, err := req.Data()
	require.NoError(t, err)
	assert.Equal(t, []string{"trans_amt", "goods_desc", "wx_data", "delay_acct_flag"}, data.Keys())

	wx, _ := data.Get("wx_data")
	assert.Equal(t, `{"openid":"o1","sub_appid":"wx1"}`, wx)
}

func TestBind_Deterministic(t *testing.T) {
	build := func() string {
		params := NewParams().
			Set("notify_url", "https://merchant.example/notify").
			Set("trans_amt", "10.00").
			Set("goods_desc", "coffee")
		req, err := Bind(testPaymentKind(), params)
		require.NoError(t, err)
		data, err := req.Data()
		require.NoError(t, err)
		b, err := data.MarshalJSON()
		require.NoError(t, err)
		return string(b)
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}

func TestRequestKind_Fields(t *testing.T) {
	kind := testPaymentKind()

	assert.True(t, kind.Declares("trans_amt"))
	assert.False(t, kind.Declares("notify_url"))
	assert.Equal(t, []string{"acct_split_bunch", "file", "goods_desc", "huifu_id", "req_date", "req_seq_id", "trans_amt"}, kind.Fields())
}
