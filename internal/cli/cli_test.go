package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExtractCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "Here:\n```python\nprint('hi')\n```\n", "extract")
	require.NoError(t, err)
	require.Equal(t, "print('hi')\n", out)

	out, err = execute(t, "```\nabc\n```", "extract", "--preview")
	require.NoError(t, err)
	require.Equal(t, "abc...\n", out)

	_, err = execute(t, "just words", "extract")
	require.ErrorIs(t, err, errNoCode)
}

func TestExtractCmd_RulesFlag(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	rules := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("fallback_prefixes: [\"SELECT \"]\n"), 0o600))

	out, err := execute(t, "SELECT 1;", "extract", "--rules", rules)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1;\n", out)
}

func TestCheckCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	_, err := execute(t, "", "check", "-c", "missing.yaml")
	require.Error(t, err)

	t.Setenv("GEMINI_API_KEY", "k")
	out, err := execute(t, "", "check", "-c", "missing.yaml")
	require.NoError(t, err)
	require.Contains(t, out, "configuration ok")
	require.Contains(t, out, "listen=127.0.0.1:5000")
}

// newRelayStub serves /healthz and hands /process to process.
func newRelayStub(t *testing.T, process http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"model":"m"}`)
	})
	mux.HandleFunc("/process", process)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAskCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	var got string
	srv := newRelayStub(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		_, _ = io.WriteString(w, `{"status":"success","message":"Code extracted and copied to clipboard","extracted_code_preview":"x = 1..."}`)
	})

	out, err := execute(t, "", "ask", "--server", srv.URL, "--context", "a = 0", "fix", "this")
	require.NoError(t, err)
	require.Contains(t, out, "Code extracted and copied to clipboard")
	require.Contains(t, out, "x = 1...")
	require.Contains(t, got, `Main Question:\nfix this\n\nAdditional Context Provided:\n[Context 1]:\na = 0`)
}

func TestAskCmd_RelayError(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := newRelayStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"status":"error","message":"Rate limit exceeded for Gemini API (m)."}`)
	})

	out, err := execute(t, "question from stdin", "ask", "--server", srv.URL)
	require.Error(t, err)
	require.Contains(t, out, "Rate limit exceeded")
	require.Contains(t, out, "rate limited")
}

func TestAskCmd_NoRelay(t *testing.T) {
	t.Chdir(t.TempDir())
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	out, err := execute(t, "", "ask", "--server", base, "anything")
	require.Error(t, err)
	require.Contains(t, out, "no relay at "+base)
}

func TestDumpsCmd_ListByOutcome(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	for rid, outcome := range map[string]string{"rid-a": "success", "rid-b": "timeout"} {
		body := "=== META ===\nrequest_id=" + rid + "\n\n=== OUTCOME ===\noutcome=" + outcome + "\n\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, rid+".log"), []byte(body), 0o600))
	}

	out, err := execute(t, "", "dumps", "--dir", dir, "--list", "--outcome", "timeout")
	require.NoError(t, err)
	require.Contains(t, out, "rid=rid-b")
	require.NotContains(t, out, "rid-a")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "snippet-relay "))
}
