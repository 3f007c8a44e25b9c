package provider

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountFields lists the money fields normalized before binding
var AmountFields = []string{"trans_amt", "ord_amt", "div_amt", "cash_amt", "refund_amt"}

const maxAmountExponent = 20

// MaxAmount is the largest absolute amount ParseAmount accepts
var MaxAmount = decimal.New(1, 15)

// NormalizeAmounts rewrites every money field present in params to a fixed
// two-decimal string. When fields is empty AmountFields is used.
func NormalizeAmounts(params *Params, fields ...string) error {
	if len(fields) == 0 {
		fields = AmountFields
	}
	for _, field := range fields {
		v, ok := params.Get(field)
		if !ok {
			continue
		}
		formatted, err := FormatAmount(v)
		if err != nil {
			return &ValidationError{Field: field, Reason: err.Error()}
		}
		params.Set(field, formatted)
	}
	return nil
}

// FormatAmount rounds v to two decimals (half away from zero) and renders it
// with a '.' separator, no grouping and no exponent.
func FormatAmount(v any) (string, error) {
	d, err := ParseAmount(v)
	if err != nil {
		return "", err
	}
	return d.StringFixed(2), nil
}

// ParseAmount converts a loosely typed money value into a decimal. Values
// with an exponent outside ±20 or a magnitude above MaxAmount are rejected.
func ParseAmount(v any) (decimal.Decimal, error) {
	d, err := parseAmount(v)
	if err != nil {
		return decimal.Zero, err
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Zero, fmt.Errorf("amount exponent %d is out of range", exp)
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return decimal.Zero, fmt.Errorf("amount exceeds %s", MaxAmount.String())
	}
	return d, nil
}

func parseAmount(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return parseAmountString(t)
	case json.Number:
		return parseAmountString(t.String())
	case float64:
		return amountFromFloat(t)
	case float32:
		return amountFromFloat(float64(t))
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case uint:
		return decimal.RequireFromString(strconv.FormatUint(uint64(t), 10)), nil
	case uint32:
		return decimal.NewFromInt(int64(t)), nil
	case uint64:
		return decimal.RequireFromString(strconv.FormatUint(t, 10)), nil
	case nil:
		return decimal.Zero, fmt.Errorf("amount is empty")
	default:
		return decimal.Zero, fmt.Errorf("amount must be numeric, got %T", v)
	}
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not numeric", s)
	}
	return d, nil
}

func amountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("amount %v is not finite", f)
	}
	return decimal.NewFromFloat(f), nil
}
