package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/r9s-ai/snippet-relay/internal/logx"
	"github.com/r9s-ai/snippet-relay/internal/trafficdump"
)

const defaultTimeout = 180 * time.Second

// maxResponseBytes bounds how much of a reply is read into memory.
const maxResponseBytes = 32 << 20

var tracer = otel.Tracer("github.com/r9s-ai/snippet-relay/internal/gemini")

type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	// HTTPClient overrides the client built from the proxy settings.
	HTTPClient *http.Client
}

// Client calls generateContent for a single model. It is safe for concurrent use and holds
// no mutable state.
type Client struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts)
	}
	return &Client{
		http:    hc,
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   strings.TrimSpace(opts.Model),
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		timeout: timeout,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Timeout() time.Duration { return c.timeout }

// Endpoint is the generateContent URL without the key, safe to log.
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
}

func (c *Client) signedURL() string {
	return c.Endpoint() + "?key=" + url.QueryEscape(c.apiKey)
}

// GenerateContent sends prompt as a single text part and decodes the reply.
//
// Errors are one of *StatusError, *TransportError, *DecodeError or a wrapped ErrTimeout.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", c.model),
		attribute.Int("gemini.prompt_bytes", len(prompt)),
	)

	out, status, err := c.generate(ctx, prompt)
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (Outcome, int, error) {
	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signedURL(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	rec := trafficdump.FromContext(ctx)
	rec.AppendUpstreamRequest(req.Method, req.URL.String(), req.Header, body)

	logx.Debugf("POST %s (model=%s prompt_bytes=%d)", c.Endpoint(), c.model, len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, c.classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, c.classify(ctx, err)
	}
	rec.AppendUpstreamResponse(resp.Status, resp.Header, respBody)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, newStatusError(resp.StatusCode, resp.Status, respBody)
	}

	out, err := Decode(respBody)
	if err != nil {
		return nil, resp.StatusCode, &DecodeError{Body: respBody, Err: err}
	}
	return out, resp.StatusCode, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	return &TransportError{Err: scrubKey(err, c.apiKey)}
}

// scrubKey removes the API key from errors that embed the request URL (*url.Error does).
func scrubKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), url.QueryEscape(key)) {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: RedactURL(ue.URL), Err: ue.Err}
	}
	return errors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(key), "[REDACTED]"))
}

// RedactURL drops the query string, which carries the key.
func RedactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
