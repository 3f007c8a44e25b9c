package provider

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerifier(t *testing.T, opts ...VerifierOption) *Verifier {
	t.Helper()
	v, err := NewVerifier(testPublicPEM(t), opts...)
	require.NoError(t, err)
	return v
}

func TestVerifier_MatchesStrategy(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		signed   string
		strategy string
	}{
		{
			name:     "raw payload",
			payload:  `{"a":1}`,
			signed:   `{"a":1}`,
			strategy: "raw",
		},
		{
			name:     "escaped slashes removed",
			payload:  `{"url":"http:\/\/x"}`,
			signed:   `{"url":"http://x"}`,
			strategy: "unescaped",
		},
		{
			name:     "empty list signed as empty object",
			payload:  `{"b":[],"a":"x"}`,
			signed:   `{"a":"x","b":{}}`,
			strategy: "sorted-empty-object",
		},
		{
			name:     "sorted keeps empty list",
			payload:  `{"b":[],"a":"x"}`,
			signed:   `{"a":"x","b":[]}`,
			strategy: "sorted",
		},
		{
			name:     "sorted with escaped slashes",
			payload:  `{"url":"http://x/y","n":"汇"}`,
			signed:   `{"n":"汇","url":"http:\/\/x\/y"}`,
			strategy: "sorted-escaped-slashes",
		},
		{
			name:     "sorted with escaped unicode",
			payload:  `{"url":"http://x/y","n":"汇"}`,
			signed:   `{"n":"\u6c47","url":"http://x/y"}`,
			strategy: "sorted-escaped-unicode",
		},
		{
			name:     "php default encoding",
			payload:  `{"url":"http://x/y","n":"汇"}`,
			signed:   `{"n":"\u6c47","url":"http:\/\/x\/y"}`,
			strategy: "sorted-escaped",
		},
	}

	v := testVerifier(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := v.Match([]byte(tt.payload), testSign(t, tt.signed))
			assert.True(t, ok)
			assert.Equal(t, tt.strategy, label)
		})
	}
}

func TestVerifier_TamperedPayloadFails(t *testing.T) {
	v := testVerifier(t)
	payload := []byte(`{"b":[],"a":"x"}`)
	sig := testSign(t, `{"a":"x","b":{}}`)
	require.True(t, v.Verify(payload, sig))

	for i := range payload {
		tampered := bytes.Clone(payload)
		tampered[i] ^= 0x01
		assert.False(t, v.Verify(tampered, sig), "byte %d", i)
	}
}

func TestVerifier_RejectsBadInput(t *testing.T) {
	v := testVerifier(t)
	payload := []byte(`{"a":1}`)

	assert.False(t, v.Verify(payload, ""))
	assert.False(t, v.Verify(payload, "!!not base64!!"))
	assert.False(t, v.Verify(payload, testSign(t, `{"a":2}`)))
}

func TestVerifier_SignatureWithSpaces(t *testing.T) {
	v := testVerifier(t)
	sig := testSign(t, `{"a":1}`)

	assert.True(t, v.Verify([]byte(`{"a":1}`), strings.ReplaceAll(sig, "+", " ")))
}

func TestVerifier_ShortCircuits(t *testing.T) {
	calls := 0
	v := testVerifier(t, WithStrategies(
		Strategy{Label: "first", Build: func(p []byte) ([]byte, bool) { return p, true }},
		Strategy{Label: "second", Build: func(p []byte) ([]byte, bool) {
			calls++
			return append([]byte("x"), p...), true
		}},
	))

	label, ok := v.Match([]byte(`{"a":1}`), testSign(t, `{"a":1}`))
	assert.True(t, ok)
	assert.Equal(t, "first", label)
	assert.Zero(t, calls)
}

func TestVerifier_AppendStrategy(t *testing.T) {
	suffixed := Strategy{Label: "suffixed", Build: func(p []byte) ([]byte, bool) {
		return append(bytes.Clone(p), "|v1"...), true
	}}
	payload := []byte(`{"a":1}`)
	sig := testSign(t, `{"a":1}|v1`)

	assert.False(t, testVerifier(t).Verify(payload, sig))

	label, ok := testVerifier(t, AppendStrategy(suffixed)).Match(payload, sig)
	assert.True(t, ok)
	assert.Equal(t, "suffixed", label)
}

func TestVerifier_UnlabelledStrategy(t *testing.T) {
	identity := Strategy{Build: func(p []byte) ([]byte, bool) { return p, true }}
	payload := []byte(`{"a":1}`)

	v := testVerifier(t, WithStrategies(identity))
	label, ok := v.Match(payload, testSign(t, `{"a":1}`))
	assert.True(t, ok)
	assert.Empty(t, label)
	assert.False(t, v.Verify(payload, testSign(t, `{"a":2}`)))

	suffixed := Strategy{Build: func(p []byte) ([]byte, bool) {
		return append(bytes.Clone(p), "|v1"...), true
	}}
	assert.True(t, testVerifier(t, AppendStrategy(suffixed)).Verify(payload, testSign(t, `{"a":1}|v1`)))
}

func TestCandidates_SkipsDuplicatesAndInapplicable(t *testing.T) {
	labels := func(cs []Candidate) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Label)
		}
		return out
	}

	assert.Equal(t, []string{"raw"}, labels(Candidates([]byte(`{"a":1}`), DefaultStrategies())))
	assert.Equal(t, []string{"raw"}, labels(Candidates([]byte(`[1,2]`), DefaultStrategies())))
	assert.Equal(t,
		[]string{"raw", "sorted-empty-object", "sorted"},
		labels(Candidates([]byte(`{"b":[],"a":1}`), DefaultStrategies())),
	)
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig := testSign(t, `{"a":1}`)

	bare := testPublicPEM(t)
	bare = strings.ReplaceAll(bare, "-----BEGIN PUBLIC KEY-----", "")
	bare = strings.ReplaceAll(bare, "-----END PUBLIC KEY-----", "")

	assert.True(t, Verify(payload, sig, testPublicPEM(t)))
	assert.True(t, Verify(payload, sig, bare))
	assert.False(t, Verify(payload, sig, "garbage"))
}
