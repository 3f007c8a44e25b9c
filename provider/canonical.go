package provider

import (
	"bytes"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// CanonicalOptions controls how a JSON payload is re-serialized
type CanonicalOptions struct {
	SortKeys      bool // sort top-level keys ascending; nested order is kept
	EmptyAsObject bool // rewrite empty arrays as {}
	EscapeSlashes bool // emit / as \/
	EscapeUnicode bool // emit non-ASCII as \uXXXX
}

// CanonicalJSON decodes payload and re-encodes it per opts. It reports false
// when payload is not a JSON object.
func CanonicalJSON(payload []byte, opts CanonicalOptions) ([]byte, bool) {
	if !gjson.ValidBytes(payload) {
		return nil, false
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, false
	}

	var buf bytes.Buffer
	enc := canonicalEncoder{buf: &buf, opts: opts}
	enc.object(root, opts.SortKeys)
	return buf.Bytes(), true
}

type canonicalEncoder struct {
	buf  *bytes.Buffer
	opts CanonicalOptions
}

type member struct {
	key   string
	value gjson.Result
}

// members returns object entries; a repeated key keeps its first position and
// its last value.
func members(obj gjson.Result) []member {
	var out []member
	index := make(map[string]int)
	obj.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if i, seen := index[key]; seen {
			out[i].value = v
			return true
		}
		index[key] = len(out)
		out = append(out, member{key: key, value: v})
		return true
	})
	return out
}

func (e canonicalEncoder) object(obj gjson.Result, sortKeys bool) {
	entries := members(obj)
	if sortKeys {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	}
	e.buf.WriteByte('{')
	for i, m := range entries {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.string(m.key)
		e.buf.WriteByte(':')
		e.value(m.value)
	}
	e.buf.WriteByte('}')
}

func (e canonicalEncoder) value(v gjson.Result) {
	switch {
	case v.IsObject():
		e.object(v, false)
	case v.IsArray():
		items := v.Array()
		if len(items) == 0 && e.opts.EmptyAsObject {
			e.buf.WriteString("{}")
			return
		}
		e.buf.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			e.value(item)
		}
		e.buf.WriteByte(']')
	case v.Type == gjson.String:
		e.string(v.String())
	default:
		e.buf.WriteString(v.Raw)
	}
}

const hexDigits = "0123456789abcdef"

func (e canonicalEncoder) string(s string) {
	b := e.buf
	b.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				b.WriteString(`\"`)
			case '\\':
				b.WriteString(`\\`)
			case '/':
				if e.opts.EscapeSlashes {
					b.WriteString(`\/`)
				} else {
					b.WriteByte('/')
				}
			case '\b':
				b.WriteString(`\b`)
			case '\f':
				b.WriteString(`\f`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				if c < 0x20 {
					b.WriteString(`\u00`)
					b.WriteByte(hexDigits[c>>4])
					b.WriteByte(hexDigits[c&0xf])
				} else {
					b.WriteByte(c)
				}
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if !e.opts.EscapeUnicode {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		if r > 0xffff {
			r1, r2 := utf16.EncodeRune(r)
			writeUnicodeEscape(b, r1)
			writeUnicodeEscape(b, r2)
		} else {
			writeUnicodeEscape(b, r)
		}
		i += size
	}
	b.WriteByte('"')
}

func writeUnicodeEscape(b *bytes.Buffer, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hexDigits[(r>>12)&0xf])
	b.WriteByte(hexDigits[(r>>8)&0xf])
	b.WriteByte(hexDigits[(r>>4)&0xf])
	b.WriteByte(hexDigits[r&0xf])
}

// stripSlashes removes one level of backslash escaping: \x becomes x, \\
// becomes \ and \0 becomes a NUL byte. A trailing lone backslash is dropped.
func stripSlashes(payload []byte) []byte {
	out := make([]byte, 0, len(payload))
	for i := 0; i < len(payload); i++ {
		if payload[i] != '\\' {
			out = append(out, payload[i])
			continue
		}
		i++
		if i >= len(payload) {
			break
		}
		if payload[i] == '0' {
			out = append(out, 0)
			continue
		}
		out = append(out, payload[i])
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
