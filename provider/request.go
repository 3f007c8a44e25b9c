package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Setter assigns a caller value to one declared field of a request
type Setter func(req *Request, value any) error

// Field is one entry of a request kind's capability table
type Field struct {
	Accessor string // CamelCase accessor name, e.g. TransAmt
	Wire     string // snake_case wire name, e.g. trans_amt
	Set      Setter
}

// File is an attachment carried by upload requests
type File struct {
	Name    string
	Path    string
	Content io.Reader
}

// RequestKind describes one gateway operation: its function code, endpoint path
// and the fields it declares. It is built once and shared by every call.
type RequestKind struct {
	Name         string
	FunctionCode string
	Path         string

	fields map[string]Field
	wires  map[string]string
}

// NewRequestKind builds a request kind from its capability table
func NewRequestKind(name, functionCode, path string, fields ...Field) *RequestKind {
	k := &RequestKind{
		Name:         name,
		FunctionCode: functionCode,
		Path:         path,
		fields:       make(map[string]Field, len(fields)),
		wires:        make(map[string]string, len(fields)),
	}
	for _, f := range fields {
		k.fields[f.Accessor] = f
		k.wires[f.Wire] = f.Accessor
	}
	return k
}

// Setter returns the setter declared for an accessor name
func (k *RequestKind) Setter(accessor string) (Setter, bool) {
	f, ok := k.fields[accessor]
	if !ok {
		return nil, false
	}
	return f.Set, true
}

// Declares reports whether the kind has a field with the given wire name
func (k *RequestKind) Declares(wire string) bool {
	_, ok := k.wires[wire]
	return ok
}

// Fields returns the declared wire names in ascending order
func (k *RequestKind) Fields() []string {
	out := make([]string, 0, len(k.wires))
	for w := range k.wires {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// NewRequest returns an empty request of this kind
func (k *RequestKind) NewRequest() *Request {
	return &Request{Kind: k, fields: NewParams()}
}

// StringField declares a scalar field. Numbers and booleans are rendered as
// plain strings.
func StringField(wire string) Field {
	return Field{
		Accessor: AccessorName(wire),
		Wire:     wire,
		Set: func(req *Request, value any) error {
			s, err := scalarString(value)
			if err != nil {
				return err
			}
			req.fields.Set(wire, s)
			return nil
		},
	}
}

// JSONField declares a field the gateway expects as a JSON encoded string.
// Structured values are encoded, strings are passed through untouched.
func JSONField(wire string) Field {
	return Field{
		Accessor: AccessorName(wire),
		Wire:     wire,
		Set: func(req *Request, value any) error {
			s, err := jsonString(value)
			if err != nil {
				return err
			}
			req.fields.Set(wire, s)
			return nil
		},
	}
}

// FileField declares a file attachment. It accepts a File, *File or a path.
func FileField(wire string) Field {
	return Field{
		Accessor: AccessorName(wire),
		Wire:     wire,
		Set: func(req *Request, value any) error {
			switch t := value.(type) {
			case File:
				req.file = &t
			case *File:
				if t == nil {
					return fmt.Errorf("file is nil")
				}
				req.file = t
			case string:
				if t == "" {
					return fmt.Errorf("file path is empty")
				}
				req.file = &File{Path: t}
			default:
				return fmt.Errorf("expected a file, got %T", value)
			}
			req.fileField = wire
			return nil
		},
	}
}

// Request is one assembled gateway request: the declared fields bound from
// caller input plus an optional extension bag for everything else.
type Request struct {
	Kind *RequestKind

	fields    *Params
	extend    *Params
	file      *File
	fileField string
}

// SetExtendInfo attaches the extension bag. Called once by the binder.
func (r *Request) SetExtendInfo(bag *Params) {
	r.extend = bag
}

// ExtendInfo returns the extension bag, nil when every key was declared
func (r *Request) ExtendInfo() *Params {
	return r.extend
}

// Fields returns the bound declared fields
func (r *Request) Fields() *Params {
	return r.fields
}

// Value returns a bound declared field
func (r *Request) Value(wire string) string {
	v, _ := r.fields.Get(wire)
	s, _ := v.(string)
	return s
}

// SeqID returns the request sequence id, empty when the kind has none
func (r *Request) SeqID() string {
	return r.Value("req_seq_id")
}

// File returns the attachment and the field it was bound to
func (r *Request) File() (*File, string) {
	return r.file, r.fileField
}

// Data returns the wire data object: declared fields in bind order followed by
// the extension fields. Structured extension values are JSON encoded strings.
func (r *Request) Data() (*Params, error) {
	out := r.fields.Clone()
	var err error
	r.extend.Range(func(k string, v any) bool {
		switch v.(type) {
		case File, *File:
			err = &ValidationError{Field: k, Reason: "extension field cannot carry a file"}
			return false
		}
		s, encErr := jsonString(v)
		if encErr != nil {
			err = &ValidationError{Field: k, Reason: encErr.Error()}
			return false
		}
		out.Set(k, s)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scalarString(value any) (string, error) {
	switch t := value.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case decimal.Decimal:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected a scalar value, got %T", value)
	}
}

func jsonString(value any) (string, error) {
	switch t := value.(type) {
	case string:
		return t, nil
	case json.Number, decimal.Decimal, bool, int, int64, float64, nil:
		return scalarString(t)
	}
	b, err := marshalNoEscape(value)
	if err != nil {
		return "", fmt.Errorf("cannot encode value as JSON: %w", err)
	}
	return string(b), nil
}
