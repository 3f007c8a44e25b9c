package provider

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"strings"
)

// Strategy derives one candidate signing string from a raw payload. Build
// reports false when the strategy does not apply to the payload.
type Strategy struct {
	Label string
	Build func(payload []byte) ([]byte, bool)
}

// Candidate is one labelled signing string tried during verification
type Candidate struct {
	Label   string
	Payload []byte
}

func canonicalStrategy(label string, opts CanonicalOptions) Strategy {
	return Strategy{
		Label: label,
		Build: func(payload []byte) ([]byte, bool) {
			return CanonicalJSON(payload, opts)
		},
	}
}

// DefaultStrategies returns the verification strategies in priority order.
// The order matters: the first candidate that verifies wins.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Label: "raw", Build: func(p []byte) ([]byte, bool) { return p, true }},
		{Label: "unescaped", Build: func(p []byte) ([]byte, bool) {
			if bytes.IndexByte(p, '\\') < 0 {
				return nil, false
			}
			return stripSlashes(p), true
		}},
		canonicalStrategy("sorted-empty-object", CanonicalOptions{SortKeys: true, EmptyAsObject: true}),
		canonicalStrategy("sorted", CanonicalOptions{SortKeys: true}),
		canonicalStrategy("sorted-escaped-slashes", CanonicalOptions{SortKeys: true, EscapeSlashes: true}),
		canonicalStrategy("sorted-escaped-unicode", CanonicalOptions{SortKeys: true, EscapeUnicode: true}),
		canonicalStrategy("sorted-escaped", CanonicalOptions{SortKeys: true, EscapeSlashes: true, EscapeUnicode: true}),
	}
}

// Candidates lists every distinct candidate the strategies build from payload,
// in order. Duplicates of an earlier candidate are skipped.
func Candidates(payload []byte, strategies []Strategy) []Candidate {
	var out []Candidate
	eachCandidate(payload, strategies, func(c Candidate) bool {
		out = append(out, c)
		return true
	})
	return out
}

func eachCandidate(payload []byte, strategies []Strategy, fn func(Candidate) bool) {
	var seen [][]byte
	for _, s := range strategies {
		built, ok := s.Build(payload)
		if !ok {
			continue
		}
		dup := false
		for _, prev := range seen {
			if bytes.Equal(prev, built) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, built)
		if !fn(Candidate{Label: s.Label, Payload: built}) {
			return
		}
	}
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithStrategies replaces the strategy list
func WithStrategies(strategies ...Strategy) VerifierOption {
	return func(v *Verifier) {
		v.strategies = strategies
	}
}

// AppendStrategy adds a fallback strategy after the existing ones
func AppendStrategy(s Strategy) VerifierOption {
	return func(v *Verifier) {
		v.strategies = append(v.strategies, s)
	}
}

// Verifier checks gateway signatures against an ordered list of payload
// canonicalizations. It is safe for concurrent use.
type Verifier struct {
	key        *rsa.PublicKey
	strategies []Strategy
}

// NewVerifier parses publicKey once and builds a verifier
func NewVerifier(publicKey string, opts ...VerifierOption) (*Verifier, error) {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	v := &Verifier{key: key, strategies: DefaultStrategies()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Match returns the label of the first candidate the signature verifies
func (v *Verifier) Match(payload []byte, signature string) (string, bool) {
	sig, err := decodeSignature(signature)
	if err != nil || len(sig) == 0 {
		return "", false
	}

	var (
		label   string
		matched bool
	)
	eachCandidate(payload, v.strategies, func(c Candidate) bool {
		if verifySHA256(v.key, c.Payload, sig) {
			label, matched = c.Label, true
			return false
		}
		return true
	})
	return label, matched
}

// Verify reports whether signature is valid for any candidate of payload
func (v *Verifier) Verify(payload []byte, signature string) bool {
	_, ok := v.Match(payload, signature)
	return ok
}

// Verify checks signature over payload with publicKey using the default
// strategies. An unusable key yields false.
func Verify(payload []byte, signature, publicKey string) bool {
	v, err := NewVerifier(publicKey)
	if err != nil {
		return false
	}
	return v.Verify(payload, signature)
}

// decodeSignature accepts standard base64; form decoding may have turned '+'
// into spaces.
func decodeSignature(signature string) ([]byte, error) {
	s := strings.ReplaceAll(strings.TrimSpace(signature), " ", "+")
	return base64.StdEncoding.DecodeString(s)
}
