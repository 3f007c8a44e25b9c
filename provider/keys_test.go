package provider

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func testPublicPEM(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&testPrivateKey(t).PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func testSign(t *testing.T, payload string) string {
	t.Helper()
	sig, err := SignSHA256(testPrivateKey(t), []byte(payload))
	require.NoError(t, err)
	return sig
}

func TestWrapPEM(t *testing.T) {
	body := strings.Repeat("A", 150)
	wrapped := WrapPEM(body, "PUBLIC KEY")

	lines := strings.Split(strings.TrimSpace(wrapped), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----", lines[0])
	assert.Len(t, lines[1], 64)
	assert.Len(t, lines[2], 64)
	assert.Len(t, lines[3], 22)
	assert.Equal(t, "-----END PUBLIC KEY-----", lines[4])

	already := "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n"
	assert.Equal(t, already, WrapPEM(already, "PUBLIC KEY"))
}

func TestParsePublicKey_Formats(t *testing.T) {
	pub := &testPrivateKey(t).PublicKey

	pkix, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pkcs1 := x509.MarshalPKCS1PublicKey(pub)

	tests := []struct {
		name string
		key  string
	}{
		{"pkix pem", testPublicPEM(t)},
		{"pkix bare base64", base64.StdEncoding.EncodeToString(pkix)},
		{"pkcs1 pem", string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: pkcs1}))},
		{"pkcs1 bare base64", base64.StdEncoding.EncodeToString(pkcs1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParsePublicKey(tt.key)
			require.NoError(t, err)
			assert.True(t, pub.Equal(parsed))
		})
	}

	_, err = ParsePublicKey("not a key")
	assert.Error(t, err)
}

func TestParsePrivateKey_Formats(t *testing.T) {
	key := testPrivateKey(t)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs1 := x509.MarshalPKCS1PrivateKey(key)

	for name, raw := range map[string]string{
		"pkcs8 bare": base64.StdEncoding.EncodeToString(pkcs8),
		"pkcs1 pem":  string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: pkcs1})),
	} {
		parsed, err := ParsePrivateKey(raw)
		require.NoError(t, err, name)
		assert.True(t, key.Equal(parsed), name)
	}
}

func TestSignSHA256_RoundTrip(t *testing.T) {
	sig := testSign(t, `{"a":1}`)
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)

	assert.True(t, verifySHA256(&testPrivateKey(t).PublicKey, []byte(`{"a":1}`), raw))
	assert.False(t, verifySHA256(&testPrivateKey(t).PublicKey, []byte(`{"a":2}`), raw))
}
