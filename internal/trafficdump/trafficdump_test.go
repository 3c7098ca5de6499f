package trafficdump

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/snippet-relay/internal/requestid"
)

func TestRedactURL_GeminiKey(t *testing.T) {
	in := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent?key=AIzaSy123"
	out := redactURL(in)
	require.Contains(t, out, "key=%5BREDACTED%5D")
	require.NotContains(t, out, "AIzaSy123")

	out = redactURL("https://example.com/x?access_token=abc&foo=bar")
	require.Contains(t, out, "access_token=%5BREDACTED%5D")
	require.Contains(t, out, "foo=bar")

	require.Equal(t, "https://example.com/x?foo=bar", redactURL("https://example.com/x?foo=bar"))
}

func TestRecorderWithoutMaskKeepsURL(t *testing.T) {
	r := &Recorder{}
	in := "https://example.com/path?key=abc"
	require.Equal(t, in, r.redactURL(in))
}

func TestLimitBytes(t *testing.T) {
	out, truncated := LimitBytes([]byte("abcdef"), 4)
	require.Equal(t, "abcd", string(out))
	require.True(t, truncated)

	out, truncated = LimitBytes([]byte("abc"), 0)
	require.Equal(t, "abc", string(out))
	require.False(t, truncated)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.AppendOriginRequest([]byte("x"))
	r.AppendOutcome(map[string]string{"outcome": "success"})
	r.Close()
	require.Nil(t, FromContext(context.Background()))
	require.Equal(t, context.Background(), NewContext(context.Background(), nil))
}

func TestDumpPath(t *testing.T) {
	dir := t.TempDir()

	p, err := dumpPath(dir, "{{.request_id}}.log", "rid-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "rid-1.log"), p)

	p, err = dumpPath(dir, "relay/{{.request_id}}.log", "rid-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "relay", "rid-1.log"), p)

	_, err = dumpPath(dir, "{{.request_id}}.log", "../../escaped")
	require.Error(t, err)

	_, err = dumpPath(dir, "../{{.request_id}}.log", "rid-1")
	require.Error(t, err)

	_, err = dumpPath("", "{{.request_id}}.log", "rid-1")
	require.Error(t, err)
}

func TestStart_ReplacesUnsafeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := filepath.Join(t.TempDir(), "dumps")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/process", nil)
	c.Set(requestid.HeaderKey, "../escaped")

	rec, err := Start(c, Config{Enabled: true, Dir: dir, FilePath: "{{.request_id}}.log"})
	require.NoError(t, err)
	rec.Close()

	id := c.GetString(requestid.HeaderKey)
	require.True(t, requestid.Valid(id))
	_, err = os.Stat(filepath.Join(dir, id+".log"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escaped.log"))
	require.True(t, os.IsNotExist(err))
}

func TestRecorder_RoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{"question":"q"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("Authorization", "Bearer hidden")
	c.Set(requestid.HeaderKey, "20261016090507123456")

	rec, err := Start(c, Config{Enabled: true, Dir: dir, FilePath: "{{.request_id}}.log", MaxBytes: 120, MaskSecrets: true})
	require.NoError(t, err)
	require.Same(t, rec, FromGin(c))
	ctx := NewContext(context.Background(), rec)
	require.Same(t, rec, FromContext(ctx))

	rec.AppendOriginRequest([]byte(`{"question":"q"}`))
	rec.AppendUpstreamRequest(http.MethodPost, "https://g.example/v1beta/models/m:generateContent?key=secret",
		http.Header{"Content-Type": {"application/json"}}, []byte(`{"contents":[{"parts":[{"text":"Give code\n\nfor q"}]}]}`))
	rec.AppendUpstreamResponse("200 OK", http.Header{}, []byte(strings.Repeat("x", 200)))
	rec.AppendOutcome(map[string]string{"outcome": "client_input", "model": "m", "finish_reason": "STOP", "language": ""})
	rec.AppendRelayResponse(400, []byte(`{"status":"error","message":"No code block found in the response.","full_response":"prose"}`))
	rec.Close()

	path := filepath.Join(dir, "20261016090507123456.log")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret")
	require.NotContains(t, string(raw), "hidden")

	d, err := ReadDump(path)
	require.NoError(t, err)
	require.Len(t, d.Sections, 6)
	require.True(t, d.Truncated())
	require.Equal(t, "Give code\n\nfor q", d.Prompt())
	require.Equal(t, 200, d.UpstreamStatus())

	origin, ok := d.Section(sectionOriginRequest)
	require.True(t, ok)
	require.Equal(t, `{"question":"q"}`, origin.Body)
	require.Equal(t, "16", origin.Field("bytes"))

	rep, ok := d.Reply()
	require.True(t, ok)
	require.Equal(t, 400, rep.HTTPStatus)
	require.Equal(t, "prose", rep.FullResponse)

	sum, err := ParseSummary(path, nil)
	require.NoError(t, err)
	require.Equal(t, "20261016090507123456", sum.RequestID)
	require.Equal(t, "client_input", sum.Outcome)
	require.Equal(t, "m", sum.Model)
	require.Equal(t, "STOP", sum.FinishReason)
	require.Empty(t, sum.Language)
	require.Equal(t, 400, sum.RelayStatus)
	require.Equal(t, "No code block found in the response.", sum.Message)
	require.True(t, sum.Truncated)
	require.False(t, sum.Time.IsZero())

	list, err := ListSummaries(ListOptions{Dir: dir})
	require.NoError(t, err)
	require.Len(t, list, 1)
	row := FormatRow(list[0])
	require.Contains(t, row, "400 client_input")
	require.Contains(t, row, "model=m rid=20261016090507123456")

	list, err = ListSummaries(ListOptions{Dir: dir, Outcome: "success"})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestParseDump_EmptyBodyAndHeadOnlySections(t *testing.T) {
	text := "=== META ===\nrequest_id=a\n\n=== ORIGIN REQUEST ===\nbytes=0\n\n\n=== OUTCOME ===\noutcome=success\n\n"
	d, err := parseDump(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, d.Sections, 3)
	origin, _ := d.Section(sectionOriginRequest)
	require.Empty(t, origin.Body)
	out, _ := d.Section(sectionOutcome)
	require.Equal(t, "success", out.Field("outcome"))
	_, ok := d.Reply()
	require.False(t, ok)
}

func TestListSummaries_MissingDir(t *testing.T) {
	list, err := ListSummaries(ListOptions{Dir: filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	require.Empty(t, list)
}
