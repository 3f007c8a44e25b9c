package huifu

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/mstgnz/gohuifu/infra/config"
	"github.com/mstgnz/gohuifu/infra/logger"
	"github.com/mstgnz/gohuifu/provider"
)

const (
	providerName   = "huifu"
	snippetLength  = 200
	dataField      = "data"
	signatureField = "sign"
)

// Transport sends requests to the Huifu gateway. The data object is signed
// with the merchant key over its top-level-sorted JSON form.
type Transport struct {
	cfg      config.Gateway
	key      *rsa.PrivateKey
	verifier *provider.Verifier
	client   *provider.ProviderHTTPClient
}

// NewTransport creates a signed transport for the merchant in cfg
func NewTransport(cfg config.Gateway) (*Transport, error) {
	key, err := provider.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("huifu: invalid merchant private key: %w", err)
	}

	t := &Transport{
		cfg:    cfg,
		key:    key,
		client: provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(cfg.BaseURL, cfg.Timeout, cfg.Retries)),
	}

	if cfg.PublicKey != "" {
		t.verifier, err = provider.NewVerifier(cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("huifu: invalid gateway public key: %w", err)
		}
	}

	return t, nil
}

// Sign returns the signing string of req's data object and its signature
func (t *Transport) Sign(req *provider.Request) ([]byte, string, error) {
	data, err := req.Data()
	if err != nil {
		return nil, "", err
	}
	raw, err := data.MarshalJSON()
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request data: %w", err)
	}
	signed, ok := provider.CanonicalJSON(raw, provider.CanonicalOptions{SortKeys: true})
	if !ok {
		return nil, "", fmt.Errorf("request data is not a JSON object")
	}
	sig, err := provider.SignSHA256(t.key, signed)
	if err != nil {
		return nil, "", err
	}
	return signed, sig, nil
}

// PostRequest signs and sends req. Bodies that are not JSON objects come back
// as a synthesized SYSTEM_ERROR response.
func (t *Transport) PostRequest(ctx context.Context, req *provider.Request) (map[string]any, error) {
	signed, sig, err := t.Sign(req)
	if err != nil {
		return nil, err
	}

	if t.cfg.Debug {
		logger.Debug("Huifu request", logger.LogContext{
			Provider:  providerName,
			RequestID: req.SeqID(),
			Fields:    map[string]any{"path": req.Kind.Path, "data": string(signed)},
		})
	}

	var resp *provider.HTTPResponse
	if file, field := req.File(); file != nil {
		resp, err = t.client.PostMultipart(ctx, &provider.HTTPRequest{
			Endpoint: req.Kind.Path,
			FormData: map[string]string{
				"sys_id":       t.cfg.SysID,
				"product_id":   t.cfg.ProductID,
				dataField:      string(signed),
				signatureField: sig,
			},
			File:      file,
			FileField: field,
		})
	} else {
		var body []byte
		body, err = provider.NewParams().
			Set("sys_id", t.cfg.SysID).
			Set("product_id", t.cfg.ProductID).
			Set(dataField, json.RawMessage(signed)).
			Set(signatureField, sig).
			MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode request envelope: %w", err)
		}
		resp, err = t.client.PostJSON(ctx, &provider.HTTPRequest{Endpoint: req.Kind.Path, Body: body})
	}
	if err != nil {
		return nil, &provider.TransportError{Operation: req.Kind.Name, Cause: err}
	}

	return t.decode(req, resp), nil
}

func (t *Transport) decode(req *provider.Request, resp *provider.HTTPResponse) map[string]any {
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return provider.SystemErrorResponse(fmt.Sprintf("empty response body (HTTP %d)", resp.StatusCode))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil || out == nil {
		return provider.SystemErrorResponse(fmt.Sprintf("unreadable response (HTTP %d): %s", resp.StatusCode, snippet(body)))
	}

	t.checkSignature(req, body)
	return out
}

// checkSignature verifies the response signature when a gateway key is
// configured. A mismatch is logged, the response is still classified.
func (t *Transport) checkSignature(req *provider.Request, body []byte) {
	if t.verifier == nil {
		return
	}
	data := gjson.GetBytes(body, dataField)
	sig := gjson.GetBytes(body, signatureField)
	if !data.Exists() || sig.Type != gjson.String {
		return
	}
	if _, ok := t.verifier.Match([]byte(data.Raw), sig.String()); !ok {
		logger.Warn("Huifu response signature mismatch", logger.LogContext{
			Provider:  providerName,
			RequestID: req.SeqID(),
			Fields:    map[string]any{"operation": req.Kind.Name},
		})
	}
}

func snippet(body []byte) string {
	if len(body) <= snippetLength {
		return string(body)
	}
	return string(body[:snippetLength]) + "..."
}
