// Package client builds and sends requests for the fusion task protocol.
//
// The client validates every response (anything but 200 or 204 is a
// validation failure) but never retries and never interprets task status.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/validation"
)

const (
	jsonContentType = "application/json"

	// maxPrintLen caps every header or body value copied into a ValidationError.
	maxPrintLen = 500
)

// Config describes one task service endpoint and the caller's credentials.
type Config struct {
	BaseURL          string
	APIKey           string
	TeamID           string
	ClientHeaderName string
	ClientHeader     string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// Client talks to one task service.
type Client struct {
	apiURL           string
	apiKey           string
	teamID           string
	clientHeaderName string
	clientHeader     string
	httpClient       *http.Client
	logger           *slog.Logger
}

// New creates a Client. BaseURL is the service root; requests go to
// <BaseURL>/api/v1.
func New(cfg Config) (*Client, error) {
	if err := validation.ValidateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key must be specified", errpkg.ErrInvalidInput)
	}
	if cfg.ClientHeaderName == "" {
		cfg.ClientHeaderName = "X-Appdome-Client"
	}
	if cfg.ClientHeader == "" {
		cfg.ClientHeader = "fusionctl-go/1.0"
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Minute
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		apiURL:           strings.TrimRight(cfg.BaseURL, "/") + "/api/v1",
		apiKey:           cfg.APIKey,
		teamID:           cfg.TeamID,
		clientHeaderName: cfg.ClientHeaderName,
		clientHeader:     cfg.ClientHeader,
		httpClient:       cfg.HTTPClient,
		logger:           cfg.Logger,
	}, nil
}

func (c *Client) buildURL(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, c.apiURL)
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

func (c *Client) teamParams() url.Values {
	params := url.Values{}
	if c.teamID != "" {
		params.Set("team_id", c.teamID)
	}
	return params
}

// newRequest attaches the protocol headers and query parameters.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, params url.Values, body io.Reader, contentType string) (*http.Request, error) {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set(c.clientHeaderName, c.clientHeader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do sends req and validates the response. On success the returned body is
// already decompressed; the caller must close it.
func (c *Client) do(req *http.Request, captured *captureWriter) (io.ReadCloser, error) {
	c.logger.Debug("about to send request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errpkg.ErrTransport, req.Method, req.URL.Redacted(), err)
	}

	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: decode response body: %v", errpkg.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		defer body.Close()
		raw, _ := io.ReadAll(body)
		return nil, newValidationError(req, captured, resp.StatusCode, raw)
	}

	return body, nil
}

// doJSON sends req and decodes a JSON response into out.
func (c *Client) doJSON(req *http.Request, captured *captureWriter, out any) error {
	body, err := c.do(req, captured)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response from %s: %v", errpkg.ErrMalformedResponse, req.URL.Redacted(), err)
	}
	return nil
}

func newValidationError(req *http.Request, captured *captureWriter, status int, responseBody []byte) *errpkg.ValidationError {
	headers := make(map[string]string, len(req.Header))
	for key := range req.Header {
		value := req.Header.Get(key)
		if key == "Authorization" {
			value = "<redacted>"
		}
		headers[key] = valueToPrint(value)
	}

	body := ""
	if captured != nil {
		body = valueToPrint(captured.String())
	}

	return &errpkg.ValidationError{
		URL:          req.URL.String(),
		Headers:      headers,
		Body:         body,
		StatusCode:   status,
		ResponseBody: string(responseBody),
	}
}

func valueToPrint(value string) string {
	if len(value) < maxPrintLen {
		return value
	}
	return value[:maxPrintLen] + " ... '"
}

// captureWriter keeps the first limit bytes written to it.
type captureWriter struct {
	buf   []byte
	limit int
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{limit: maxPrintLen + 1}
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if room := w.limit - len(w.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
	}
	return len(p), nil
}

func (w *captureWriter) String() string {
	return string(w.buf)
}
