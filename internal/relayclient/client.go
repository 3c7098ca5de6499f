package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "http://127.0.0.1:5000"

// Response is the relay's result object plus the HTTP status it came with.
type Response struct {
	StatusCode           int    `json:"-"`
	Status               string `json:"status"`
	Message              string `json:"message"`
	ExtractedCodePreview string `json:"extracted_code_preview,omitempty"`
	FullResponse         string `json:"full_response,omitempty"`
}

func (r *Response) OK() bool { return r != nil && r.Status == "success" }

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for the relay at baseURL. The timeout must outlive the relay's own
// upstream timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type processRequest struct {
	Question       string `json:"question"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// Process posts one question. Error responses from the relay are returned as a Response,
// not an error; err is only set when no result object could be read.
func (c *Client) Process(ctx context.Context, question, additionalInfo string) (*Response, error) {
	body, err := json.Marshal(processRequest{Question: question, AdditionalInfo: strings.TrimSpace(additionalInfo)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s/process: %w", c.BaseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out Response
	if err := json.Unmarshal(b, &out); err != nil || out.Status == "" {
		return nil, fmt.Errorf("HTTP error! Status: %d", resp.StatusCode)
	}
	out.StatusCode = resp.StatusCode
	return &out, nil
}

// Health is the /healthz reply.
type Health struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}

// Health calls GET /healthz. The CLI uses it to tell "relay not running" apart from a
// failed request before sending a question.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return Health{}, err
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Health{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("healthz: status %d", resp.StatusCode)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("healthz: %w", err)
	}
	return h, nil
}
