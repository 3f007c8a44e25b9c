package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPClientConfig represents configuration for HTTP client
type HTTPClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
	// MaxRetries is the number of extra attempts after a network failure.
	// HTTP error statuses are never retried.
	MaxRetries int
}

// HTTPRequest represents a standardized HTTP request
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        []byte
	FormData    map[string]string
	File        *File
	FileField   string
	QueryParams map[string]string
}

// HTTPResponse represents a standardized HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ProviderHTTPClient provides standardized HTTP operations for gateway transports
type ProviderHTTPClient struct {
	config *HTTPClientConfig
	client *http.Client
}

// NewProviderHTTPClient creates a new provider HTTP client
func NewProviderHTTPClient(config *HTTPClientConfig) *ProviderHTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	return &ProviderHTTPClient{
		config: config,
		client: client,
	}
}

// PostJSON posts a pre-encoded JSON body
func (c *ProviderHTTPClient) PostJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	req.Method = http.MethodPost
	return c.sendRequest(ctx, req, func() (io.Reader, string, error) {
		return bytes.NewReader(req.Body), "application/json", nil
	})
}

// PostForm posts url-encoded form data
func (c *ProviderHTTPClient) PostForm(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	req.Method = http.MethodPost
	return c.sendRequest(ctx, req, func() (io.Reader, string, error) {
		form := url.Values{}
		for key, value := range req.FormData {
			form.Set(key, value)
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	})
}

// PostMultipart posts the form fields and the attached file as multipart/form-data
func (c *ProviderHTTPClient) PostMultipart(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	if req.File == nil {
		return nil, errors.New("multipart request has no file")
	}
	content, name, err := readFile(req.File)
	if err != nil {
		return nil, err
	}

	req.Method = http.MethodPost
	return c.sendRequest(ctx, req, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for key, value := range req.FormData {
			if err := w.WriteField(key, value); err != nil {
				return nil, "", fmt.Errorf("failed to write form field %s: %w", key, err)
			}
		}
		field := req.FileField
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(content); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	})
}

func readFile(f *File) ([]byte, string, error) {
	name := f.Name
	if f.Content != nil {
		content, err := io.ReadAll(f.Content)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file content: %w", err)
		}
		if name == "" {
			name = "upload"
		}
		return content, name, nil
	}
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file %s: %w", f.Path, err)
	}
	if name == "" {
		name = filepath.Base(f.Path)
	}
	return content, name, nil
}

// sendRequest sends the request, retrying network failures with exponential
// backoff. build is called once per attempt.
func (c *ProviderHTTPClient) sendRequest(ctx context.Context, req *HTTPRequest, build func() (io.Reader, string, error)) (*HTTPResponse, error) {
	fullURL := c.buildURL(req.Endpoint, req.QueryParams)

	var response *HTTPResponse
	attempt := func() error {
		body, contentType, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		for key, value := range c.config.DefaultHeaders {
			httpReq.Header.Set(key, value)
		}
		for key, value := range req.Headers {
			httpReq.Header.Set(key, value)
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("HTTP request failed: %w", err))
			}
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		response = &HTTPResponse{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       respBody,
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(c.config.MaxRetries, 0))),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return response, nil
}

func joinURL(base, endpoint string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/") {
		return base + endpoint[1:]
	}
	if !strings.HasSuffix(base, "/") && !strings.HasPrefix(endpoint, "/") {
		return base + "/" + endpoint
	}
	return base + endpoint
}

// buildURL constructs the full URL with query parameters
func (c *ProviderHTTPClient) buildURL(endpoint string, queryParams map[string]string) string {
	fullURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		fullURL = joinURL(c.config.BaseURL, endpoint)
	}
	if len(queryParams) == 0 {
		return fullURL
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return fullURL
	}
	q := u.Query()
	for key, value := range queryParams {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// CreateHTTPClientConfig creates a standard HTTP client configuration for gateways
func CreateHTTPClientConfig(baseURL string, timeout time.Duration, retries int) *HTTPClientConfig {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClientConfig{
		BaseURL:    baseURL,
		Timeout:    timeout,
		MaxRetries: retries,
		DefaultHeaders: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "gohuifu/1.0",
		},
	}
}
