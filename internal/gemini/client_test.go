package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		APIKey:     "k-123",
		Model:      "gemini-test",
		BaseURL:    srv.URL + "/v1beta/",
		Timeout:    timeout,
		HTTPClient: srv.Client(),
	})
}

func TestGenerateContent_SendsPromptAndKey(t *testing.T) {
	var gotPath, gotKey, gotCT string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  hi  "}]},"finishReason":"STOP"}]}`)
	}, time.Second)

	out, err := c.GenerateContent(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	require.Equal(t, "k-123", gotKey)
	require.Equal(t, "application/json", gotCT)

	contents := gotBody["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Equal(t, "hello", parts[0].(map[string]any)["text"])

	a, ok := out.(*Answer)
	require.True(t, ok)
	require.Equal(t, "hi", a.Text)
	require.Equal(t, FinishStop, a.FinishReason)
}

func TestGenerateContent_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}, time.Second)

	_, err := c.GenerateContent(context.Background(), "q")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	require.Equal(t, "quota exhausted", se.Message)
	require.Contains(t, se.Error(), "429")
}

func TestGenerateContent_StatusErrorWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}, time.Second)

	_, err := c.GenerateContent(context.Background(), "q")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Empty(t, se.Message)
	require.Equal(t, "upstream down", string(se.Body))
}

func TestGenerateContent_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.GenerateContent(context.Background(), "q")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateContent_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Options{APIKey: "secret-key", Model: "m", BaseURL: base, Timeout: time.Second})
	_, err := c.GenerateContent(context.Background(), "q")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.False(t, errors.Is(err, ErrTimeout))
	require.NotContains(t, err.Error(), "secret-key")
}

func TestGenerateContent_DecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	}, time.Second)

	_, err := c.GenerateContent(context.Background(), "q")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.True(t, strings.HasPrefix(string(de.Body), "<html>"))
}

func TestEndpointOmitsKey(t *testing.T) {
	c := NewClient(Options{APIKey: "abc", Model: "gemini-x", BaseURL: "https://example.test/v1beta"})
	require.Equal(t, "https://example.test/v1beta/models/gemini-x:generateContent", c.Endpoint())
	require.NotContains(t, c.Endpoint(), "abc")
	require.Equal(t, defaultTimeout, c.Timeout())
}

func TestRedactURL(t *testing.T) {
	require.Equal(t, "https://h/x", RedactURL("https://h/x?key=abc"))
	require.Equal(t, "https://h/x", RedactURL("https://h/x"))
}

func TestProxyFunc(t *testing.T) {
	fn := proxyFunc(Options{HTTPSProxy: "http://proxy.local:3128", NoProxy: "internal.test"})

	req, _ := http.NewRequest(http.MethodPost, "https://generativelanguage.googleapis.com/v1beta", nil)
	u, err := fn(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "proxy.local:3128", u.Host)

	req, _ = http.NewRequest(http.MethodPost, "https://internal.test/x", nil)
	u, err = fn(req)
	require.NoError(t, err)
	require.Nil(t, u)
}
