package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Params is an insertion-ordered parameter map keyed by snake_case field name.
// Iteration follows insertion order so repeated binds of the same input produce
// the same wire output. Overwriting a key keeps its original position.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams creates an empty parameter map
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// ParamsFromMap builds Params from a plain map. Go maps carry no order, so keys
// are inserted in ascending order.
func ParamsFromMap(m map[string]any) *Params {
	p := NewParams()
	for _, k := range sortedKeys(m) {
		p.Set(k, m[k])
	}
	return p
}

// Set stores value under key and returns the receiver for chaining
func (p *Params) Set(key string, value any) *Params {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get returns the value stored under key
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present
func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Blank reports whether key is absent, nil or an empty string.
func (p *Params) Blank(key string) bool {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return true
	}
	if s, isString := v.(string); isString {
		return s == ""
	}
	return false
}

// Delete removes key
func (p *Params) Delete(key string) {
	if p == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in insertion order
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of entries
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Range calls fn for every entry in insertion order until fn returns false
func (p *Params) Range(fn func(key string, value any) bool) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		if !fn(k, p.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy
func (p *Params) Clone() *Params {
	out := NewParams()
	p.Range(func(k string, v any) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Merge copies every entry of other into p, overwriting existing keys
func (p *Params) Merge(other *Params) *Params {
	other.Range(func(k string, v any) bool {
		p.Set(k, v)
		return true
	})
	return p
}

// Map returns the entries as a plain map; nested Params are converted too.
func (p *Params) Map() map[string]any {
	out := make(map[string]any, p.Len())
	p.Range(func(k string, v any) bool {
		out[k] = plainValue(v)
		return true
	})
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *Params:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the entries as a JSON object in insertion order
func (p *Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalNoEscape(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document order of its keys.
// Numbers are kept as json.Number and nested objects become *Params.
func (p *Params) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid JSON parameters")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return errors.New("parameters must be a JSON object")
	}
	p.keys = nil
	p.values = make(map[string]any)
	root.ForEach(func(key, value gjson.Result) bool {
		p.Set(key.String(), resultValue(value))
		return true
	})
	return nil
}

func resultValue(r gjson.Result) any {
	switch {
	case r.IsObject():
		nested := NewParams()
		r.ForEach(func(key, value gjson.Result) bool {
			nested.Set(key.String(), resultValue(value))
			return true
		})
		return nested
	case r.IsArray():
		items := r.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, resultValue(item))
		}
		return out
	}
	switch r.Type {
	case gjson.String:
		return r.String()
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		return nil
	}
}

// marshalNoEscape encodes v without HTML escaping; the gateway signs the
// literal characters.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
