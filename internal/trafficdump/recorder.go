// Package trafficdump writes one file per relay request and reads those files back.
//
// A dump is a sequence of sections. Each section starts with a "=== NAME ===" marker,
// followed by head lines, and, when the section carries a payload, a blank line and the
// payload itself:
//
//	=== RELAY RESPONSE ===
//	status=400
//
//	{"status":"error","message":"No code block found in the response.", ...}
package trafficdump

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/snippet-relay/internal/requestid"
)

const (
	sectionMeta             = "META"
	sectionOriginRequest    = "ORIGIN REQUEST"
	sectionUpstreamRequest  = "UPSTREAM REQUEST"
	sectionUpstreamResponse = "UPSTREAM RESPONSE"
	sectionOutcome          = "OUTCOME"
	sectionRelayResponse    = "RELAY RESPONSE"

	truncatedMarker = "[truncated]"

	// requestIDVar is the only placeholder file_path understands.
	requestIDVar = "{{.request_id}}"

	ginKey = "snr.traffic_dump"
)

type Config struct {
	Enabled     bool
	Dir         string
	FilePath    string
	MaxBytes    int
	MaskSecrets bool
}

// Recorder appends one request's exchange to its dump file. A nil *Recorder records
// nothing, so callers never check whether dumping is on.
type Recorder struct {
	mu       sync.Mutex
	f        *os.File
	maxBytes int
	mask     bool
}

type ctxKey struct{}

// NewContext carries r to code that only sees a context.Context (the Gemini client and
// the relay service).
func NewContext(ctx context.Context, r *Recorder) context.Context {
	if r == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, r)
}

func FromContext(ctx context.Context) *Recorder {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(ctxKey{}).(*Recorder)
	return r
}

func FromGin(c *gin.Context) *Recorder {
	if c == nil {
		return nil
	}
	v, ok := c.Get(ginKey)
	if !ok {
		return nil
	}
	r, _ := v.(*Recorder)
	return r
}

// Start creates the dump file for the request in c and writes its META section. The file
// is named by cfg.FilePath with {{.request_id}} replaced by the request id.
func Start(c *gin.Context, cfg Config) (*Recorder, error) {
	if c == nil || c.Request == nil {
		return nil, fmt.Errorf("traffic dump: no request")
	}
	if cfg.MaxBytes < 0 {
		return nil, fmt.Errorf("traffic_dump.max_bytes must be non-negative")
	}
	rid := requestIDOf(c)
	path, err := dumpPath(cfg.Dir, cfg.FilePath, rid)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	// #nosec G304 -- dumpPath keeps path under the configured dir.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}

	r := &Recorder{f: f, maxBytes: cfg.MaxBytes, mask: cfg.MaskSecrets}
	c.Set(ginKey, r)

	head := []string{
		"time=" + time.Now().Format(time.RFC3339),
		"request_id=" + rid,
		"method=" + c.Request.Method,
		"path=" + r.redactURL(c.Request.URL.String()),
		"client_ip=" + c.ClientIP(),
	}
	r.section(sectionMeta, append(head, r.headerLines(c.Request.Header)...), nil)
	return r, nil
}

// requestIDOf prefers the id the router middleware settled on. The header is not trusted
// here: it becomes a file name.
func requestIDOf(c *gin.Context) string {
	if id := c.GetString(requestid.HeaderKey); requestid.Valid(id) {
		return id
	}
	id := requestid.Gen()
	c.Set(requestid.HeaderKey, id)
	return id
}

// dumpPath expands pattern for rid and refuses any result that leaves dir.
func dumpPath(dir, pattern, rid string) (string, error) {
	dir = strings.TrimSpace(dir)
	pattern = strings.TrimSpace(pattern)
	if dir == "" {
		return "", fmt.Errorf("traffic_dump.dir is empty")
	}
	if pattern == "" {
		return "", fmt.Errorf("traffic_dump.file_path is empty")
	}
	if !requestid.Valid(rid) {
		return "", fmt.Errorf("request id %q cannot name a dump file", rid)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, strings.ReplaceAll(pattern, requestIDVar, rid))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("dump file %q is outside %s", pattern, dir)
	}
	return path, nil
}

func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
}

func (r *Recorder) AppendOriginRequest(body []byte) {
	if r == nil {
		return
	}
	r.section(sectionOriginRequest, []string{fmt.Sprintf("bytes=%d", len(body))}, body)
}

// AppendUpstreamRequest records the generateContent call. The key query parameter is
// redacted when masking is on.
func (r *Recorder) AppendUpstreamRequest(method, rawURL string, h http.Header, body []byte) {
	if r == nil {
		return
	}
	head := append([]string{method + " " + r.redactURL(rawURL)}, r.headerLines(h)...)
	r.section(sectionUpstreamRequest, head, body)
}

func (r *Recorder) AppendUpstreamResponse(statusLine string, h http.Header, body []byte) {
	if r == nil {
		return
	}
	r.section(sectionUpstreamResponse, append([]string{statusLine}, r.headerLines(h)...), body)
}

// AppendOutcome records how the relay classified the exchange, one key=value per line.
// Blank values are skipped.
func (r *Recorder) AppendOutcome(fields map[string]string) {
	if r == nil || len(fields) == 0 {
		return
	}
	head := make([]string, 0, len(fields))
	for k, v := range fields {
		if v = strings.TrimSpace(v); v != "" {
			head = append(head, k+"="+v)
		}
	}
	sort.Strings(head)
	r.section(sectionOutcome, head, nil)
}

func (r *Recorder) AppendRelayResponse(status int, body []byte) {
	if r == nil {
		return
	}
	r.section(sectionRelayResponse, []string{fmt.Sprintf("status=%d", status)}, body)
}

// section writes one block in a single write so that sections never interleave.
func (r *Recorder) section(name string, head []string, body []byte) {
	var b bytes.Buffer
	b.WriteString("=== " + name + " ===\n")
	for _, l := range head {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if body != nil {
		b.WriteByte('\n')
		payload, truncated := LimitBytes(body, r.maxBytes)
		b.Write(payload)
		if len(payload) > 0 && payload[len(payload)-1] != '\n' {
			b.WriteByte('\n')
		}
		if truncated {
			b.WriteString(truncatedMarker + "\n")
		}
	}
	b.WriteByte('\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		_, _ = r.f.Write(b.Bytes())
	}
}

func (r *Recorder) headerLines(h http.Header) []string {
	lines := []string{"headers:"}
	for k, vs := range h {
		for _, v := range vs {
			if r.mask && secretHeader(k) {
				v = redacted
			}
			lines = append(lines, "  "+k+": "+v)
		}
	}
	sort.Strings(lines[1:])
	return lines
}

const redacted = "[REDACTED]"

func secretHeader(name string) bool {
	n := strings.ToLower(name)
	return n == "cookie" || n == "x-goog-api-key" ||
		strings.Contains(n, "authorization") || strings.Contains(n, "token")
}

// secretQueryKey matches the Gemini key parameter and the usual token spellings.
func secretQueryKey(k string) bool {
	k = strings.ToLower(strings.TrimSpace(k))
	switch k {
	case "":
		return false
	case "key", "api_key", "apikey":
		return true
	}
	return strings.Contains(k, "token") || strings.Contains(k, "secret")
}

func (r *Recorder) redactURL(raw string) string {
	if !r.mask {
		return raw
	}
	return redactURL(raw)
}

func redactURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	hit := false
	for k := range q {
		if secretQueryKey(k) {
			q.Set(k, redacted)
			hit = true
		}
	}
	if !hit {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LimitBytes caps b at max bytes. max <= 0 means unlimited.
func LimitBytes(b []byte, max int) (out []byte, truncated bool) {
	if max <= 0 || len(b) <= max {
		return b, false
	}
	return b[:max], true
}
