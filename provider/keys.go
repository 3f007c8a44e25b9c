package provider

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const pemLineWidth = 64

// WrapPEM returns key as a PEM block. Keys already carrying -----BEGIN markers
// are returned unchanged; bare base64 material is folded at 64 columns.
func WrapPEM(key, blockType string) string {
	if strings.Contains(key, "-----BEGIN") {
		return key
	}
	body := strings.Join(strings.Fields(key), "")

	var b strings.Builder
	b.WriteString("-----BEGIN " + blockType + "-----\n")
	for len(body) > pemLineWidth {
		b.WriteString(body[:pemLineWidth])
		b.WriteByte('\n')
		body = body[pemLineWidth:]
	}
	if body != "" {
		b.WriteString(body)
		b.WriteByte('\n')
	}
	b.WriteString("-----END " + blockType + "-----\n")
	return b.String()
}

// ParsePublicKey parses a PKIX or PKCS#1 RSA public key, PEM wrapped or bare
func ParsePublicKey(key string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(WrapPEM(key, "PUBLIC KEY")))
	if block == nil {
		return nil, errors.New("public key is not valid PEM")
	}
	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return rsaPub, nil
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return pub, nil
}

// ParsePrivateKey parses a PKCS#8 or PKCS#1 RSA private key, PEM wrapped or bare
func ParsePrivateKey(key string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(WrapPEM(key, "PRIVATE KEY")))
	if block == nil {
		return nil, errors.New("private key is not valid PEM")
	}
	if priv, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaPriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaPriv, nil
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return priv, nil
}

// SignSHA256 signs data with RSA PKCS#1 v1.5 over SHA-256 and returns base64
func SignSHA256(key *rsa.PrivateKey, data []byte) (string, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func verifySHA256(key *rsa.PublicKey, data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
}
