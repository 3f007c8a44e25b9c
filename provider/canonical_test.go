package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		opts     CanonicalOptions
		expected string
	}{
		{
			name:     "top level sort keeps nested order",
			payload:  `{"b":1,"a":{"d":1,"c":2}}`,
			opts:     CanonicalOptions{SortKeys: true},
			expected: `{"a":{"d":1,"c":2},"b":1}`,
		},
		{
			name:     "empty array as object",
			payload:  `{"b":[],"a":"x","c":{"d":[]}}`,
			opts:     CanonicalOptions{SortKeys: true, EmptyAsObject: true},
			expected: `{"a":"x","b":{},"c":{"d":{}}}`,
		},
		{
			name:     "empty array kept",
			payload:  `{"b":[]}`,
			opts:     CanonicalOptions{SortKeys: true},
			expected: `{"b":[]}`,
		},
		{
			name:     "slashes unescaped",
			payload:  `{"u":"http:\/\/x"}`,
			opts:     CanonicalOptions{},
			expected: `{"u":"http://x"}`,
		},
		{
			name:     "slashes escaped",
			payload:  `{"u":"http://x"}`,
			opts:     CanonicalOptions{EscapeSlashes: true},
			expected: `{"u":"http:\/\/x"}`,
		},
		{
			name:     "unicode literal",
			payload:  `{"n":"汇付"}`,
			opts:     CanonicalOptions{},
			expected: `{"n":"汇付"}`,
		},
		{
			name:     "unicode escaped",
			payload:  `{"n":"汇付"}`,
			opts:     CanonicalOptions{EscapeUnicode: true},
			expected: `{"n":"\u6c47\u4ed8"}`,
		},
		{
			name:     "astral plane uses surrogates",
			payload:  `{"e":"😀"}`,
			opts:     CanonicalOptions{EscapeUnicode: true},
			expected: `{"e":"\ud83d\ude00"}`,
		},
		{
			name:     "control characters and quotes",
			payload:  `{"s":"a\"b\\c\nd\u0001"}`,
			opts:     CanonicalOptions{},
			expected: `{"s":"a\"b\\c\nd\u0001"}`,
		},
		{
			name:     "numbers and literals kept raw",
			payload:  `{"f":1.50,"t":true,"n":null,"l":[1,2]}`,
			opts:     CanonicalOptions{SortKeys: true},
			expected: `{"f":1.50,"l":[1,2],"n":null,"t":true}`,
		},
		{
			name:     "whitespace removed",
			payload:  "{ \"a\" : 1 ,\n \"b\" : [ 1 , 2 ] }",
			opts:     CanonicalOptions{},
			expected: `{"a":1,"b":[1,2]}`,
		},
		{
			name:     "duplicate key keeps last value",
			payload:  `{"a":1,"b":2,"a":3}`,
			opts:     CanonicalOptions{},
			expected: `{"a":3,"b":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalJSON([]byte(tt.payload), tt.opts)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestCanonicalJSON_NotAnObject(t *testing.T) {
	for _, payload := range []string{`[1,2]`, `"text"`, `{"a":`, ``, `plain`} {
		_, ok := CanonicalJSON([]byte(payload), CanonicalOptions{SortKeys: true})
		assert.False(t, ok, payload)
	}
}

func TestStripSlashes(t *testing.T) {
	tests := map[string]string{
		`{\"a\":1}`:  `{"a":1}`,
		`a\\b`:       `a\b`,
		`http:\/\/x`: `http://x`,
		`tail\`:      `tail`,
		`no escapes`: `no escapes`,
		`nul\0byte`:  "nul\x00byte",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, string(stripSlashes([]byte(in))), in)
	}
}
