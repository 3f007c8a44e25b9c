package provider

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/shopspring/decimal"
)

// AcceptSet holds the response codes treated as non-error
type AcceptSet map[string]struct{}

// NewAcceptSet creates an accept-set from the given codes
func NewAcceptSet(codes ...string) AcceptSet {
	s := make(AcceptSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// DefaultAcceptSet accepts succeeded and accepted-pending responses
var DefaultAcceptSet = NewAcceptSet(CodeSuccess, CodePending)

// Accepts reports whether code is in the set
func (s AcceptSet) Accepts(code string) bool {
	_, ok := s[code]
	return ok
}

// Response is a classified gateway response
type Response map[string]any

// Code returns resp_code
func (r Response) Code() string {
	return r.String("resp_code")
}

// Description returns resp_desc
func (r Response) Description() string {
	return r.String("resp_desc")
}

// Succeeded reports a fully succeeded operation
func (r Response) Succeeded() bool {
	return r.Code() == CodeSuccess
}

// Pending reports an operation accepted by the gateway but still processing
func (r Response) Pending() bool {
	return r.Code() == CodePending
}

// String returns the value under key as a string
func (r Response) String(key string) string {
	switch v := r[key].(type) {
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

// Decimal returns the value under key as a decimal
func (r Response) Decimal(key string) (decimal.Decimal, error) {
	v, ok := r[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("response has no %s", key)
	}
	return ParseAmount(v)
}

// Classify checks the response code against the default accept-set
func Classify(raw map[string]any) (Response, error) {
	return DefaultAcceptSet.Classify(raw)
}

// Classify checks the response code of raw against the set. Accepted responses
// return their data object when present, else raw itself.
func (s AcceptSet) Classify(raw map[string]any) (Response, error) {
	if len(raw) == 0 {
		synth := SystemErrorResponse("empty response from gateway")
		return nil, NewAPIError(CodeSystemError, synth["resp_desc"].(string), synth)
	}

	source := raw
	data, hasData := raw["data"].(map[string]any)
	if hasData {
		source = data
	}

	code, ok := codeOf(source["resp_code"])
	topLevel := false
	if !ok && hasData {
		code, ok = codeOf(raw["resp_code"])
		source = raw
		topLevel = true
	}
	if !ok {
		return nil, NewAPIError(CodeSystemError, "response has no resp_code", raw)
	}

	desc := Response(source).Description()
	if !s.Accepts(code) {
		return nil, NewAPIError(code, desc, raw)
	}

	if !hasData {
		return Response(raw), nil
	}
	if !topLevel {
		return Response(data), nil
	}
	// the code lives beside data, carry it over so Pending and Succeeded agree
	out := Response(maps.Clone(data))
	out["resp_code"] = code
	if _, has := out["resp_desc"]; !has && desc != "" {
		out["resp_desc"] = desc
	}
	return out, nil
}

func codeOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
