package provider

import (
	"fmt"
	"strings"
)

// AccessorName converts a snake_case wire name to its CamelCase accessor,
// e.g. trans_amt -> TransAmt. Empty segments are dropped.
func AccessorName(wire string) string {
	var b strings.Builder
	for _, part := range strings.Split(wire, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// Bind maps params onto a new request of the given kind. Keys the kind
// declares go through their setter, everything else lands in the extension
// bag, which is attached once when non-empty.
func Bind(kind *RequestKind, params *Params) (*Request, error) {
	req := kind.NewRequest()
	bag := NewParams()
	bound := make(map[string]string)

	var bindErr error
	params.Range(func(key string, value any) bool {
		accessor := AccessorName(key)
		set, ok := kind.Setter(accessor)
		if !ok {
			bag.Set(key, value)
			return true
		}
		if prev, dup := bound[accessor]; dup {
			bindErr = &ValidationError{
				Field:  key,
				Reason: fmt.Sprintf("resolves to %s already bound from %s", accessor, prev),
			}
			return false
		}
		if err := set(req, value); err != nil {
			bindErr = &ValidationError{Field: key, Reason: err.Error()}
			return false
		}
		bound[accessor] = key
		return true
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if bag.Len() > 0 {
		req.SetExtendInfo(bag)
	}
	return req, nil
}
