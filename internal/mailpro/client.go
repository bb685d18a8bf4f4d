package mailpro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/mailpro-dashboard/internal/pkg/httpretry"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
)

// PublicKeyHeader carries the account's API key on every request.
const PublicKeyHeader = "X-MW-PUBLIC-KEY"

const (
	defaultPageSize       = 50
	defaultMaxConcurrency = 8
)

// DefaultExcludeTerms is the name filter applied when none is configured.
var DefaultExcludeTerms = []string{"farm", "test"}

// RequestInfo describes the outgoing request for diagnostics. The public
// key header is masked.
type RequestInfo struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

// Response is an unwrapped API response.
type Response struct {
	// Data is the unwrapped payload; nil when the body was empty.
	Data    json.RawMessage
	Shape   Shape
	Request RequestInfo
}

// Empty reports whether the response carries no usable payload.
func (r *Response) Empty() bool {
	return r == nil || isEmptyPayload(r.Data)
}

// Decode unmarshals the payload into v.
func (r *Response) Decode(v interface{}) error {
	if r.Empty() {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", r.Shape, err)
	}
	return nil
}

// APIError is returned for transport failures and non-2xx responses.
type APIError struct {
	Message    string
	StatusCode int
	Request    RequestInfo
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("MailPro request %s %s failed: %s", e.Request.Method, e.Request.URL, e.Message)
	}
	return fmt.Sprintf("MailPro API error (status %d): %s", e.StatusCode, e.Message)
}

// EnvelopeError is returned when HTTP succeeded but the envelope status is
// not "success".
type EnvelopeError struct {
	Status  string
	Raw     json.RawMessage
	Request RequestInfo
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("MailPro API returned status %q: %s", e.Status, string(e.Raw))
}

// ParseError is returned when a 2xx body is not valid JSON.
type ParseError struct {
	Raw     string
	Request RequestInfo
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("MailPro API returned invalid JSON: %q", raw)
}

// Client is the MailPro API client
type Client struct {
	baseURL        string
	publicKey      string
	pageSize       int
	maxConcurrency int
	excludeTerms   []string
	httpClient     httpretry.HTTPDoer
	log            logger.Entry
}

// NewClient creates a new MailPro API client
func NewClient(config Config) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		publicKey:      config.PublicKey,
		pageSize:       config.PageSize,
		maxConcurrency: config.MaxConcurrency,
		excludeTerms:   config.ExcludeTerms,
		httpClient:     httpretry.New(config.Timeout, config.Retries),
		log:            logger.With("component", "mailpro"),
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.maxConcurrency <= 0 {
		c.maxConcurrency = defaultMaxConcurrency
	}
	if c.excludeTerms == nil {
		c.excludeTerms = DefaultExcludeTerms
	}
	return c
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// Request performs an authenticated call and unwraps the response envelope.
// GET params are sent as a query string; body is JSON-encoded for other methods.
func (c *Client) Request(ctx context.Context, method, endpoint string, params url.Values, body interface{}) (*Response, error) {
	reqURL := c.baseURL + endpoint
	if method == http.MethodGet && len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	info := RequestInfo{
		Method: method,
		URL:    reqURL,
		Headers: map[string]string{
			PublicKeyHeader: logger.RedactSecret(c.publicKey),
			"Accept":        "application/json",
		},
	}

	var reqBody io.Reader
	if body != nil && (method == http.MethodPost || method == http.MethodPut) {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
		info.Body = string(jsonBody)
		info.Headers["Content-Type"] = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(PublicKeyHeader, c.publicKey)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Request: info}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("reading response body: %v", err), StatusCode: resp.StatusCode, Request: info}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Message:    errorMessage(respBody, resp.Status),
			StatusCode: resp.StatusCode,
			Request:    info,
		}
	}

	env, err := DecodeEnvelope(respBody)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Request = info
		}
		return nil, err
	}
	if env.Failed() {
		return nil, &EnvelopeError{Status: *env.Status, Raw: json.RawMessage(bytes.TrimSpace(respBody)), Request: info}
	}

	return &Response{Data: env.Payload, Shape: env.Shape, Request: info}, nil
}

// errorMessage prefers the JSON "error" field of a failed response and
// falls back to the raw text, then the HTTP status line.
func errorMessage(body []byte, status string) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return status
	}

	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.Error) > 0 && !isNull(parsed.Error) {
			var s string
			if err := json.Unmarshal(parsed.Error, &s); err == nil {
				return s
			}
			return string(parsed.Error)
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return text
}
