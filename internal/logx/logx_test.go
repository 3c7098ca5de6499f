package logx

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestFormatFieldsSortedAndSkipsEmpty(t *testing.T) {
	out := formatFields(map[string]any{
		"model":           "gemini-2.0-flash",
		"finish_reason":   "",
		"upstream_status": 429,
		"code_lang":       nil,
		"latency_s":       0.0000012,
	})
	if out != "latency_s=0.0000012 model=gemini-2.0-flash upstream_status=429" {
		t.Fatalf("unexpected fields: %q", out)
	}
}

func TestFormatRequestLineWithColor(t *testing.T) {
	ts := time.Date(2026, 1, 26, 17, 44, 22, 0, time.UTC)
	line := FormatRequestLineWithColor(ts, 400, 12*time.Millisecond, " 127.0.0.1 ", "POST", "/process", map[string]any{"outcome": "client_input"}, false)
	want := `[SNR] 2026/01/26 - 17:44:22 | 400 | 12ms | 127.0.0.1 | POST "/process" | outcome=client_input`
	if line != want {
		t.Fatalf("got %q\nwant %q", line, want)
	}

	colored := FormatRequestLineWithColor(ts, 200, time.Second, "::1", "GET", "/healthz", nil, true)
	if !strings.Contains(colored, "\x1b[32m200\x1b[0m") {
		t.Fatalf("expected green status: %q", colored)
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(prev)
		SetLevel(LevelInfo)
	})

	SetLevel(ParseLevel("warn"))
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN] shown 2") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
	// "é" is two bytes; cutting at 2 would land inside it.
	if got := Truncate("aéb", 2); got != "a..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("日本語", 4); got != "日..." || !utf8.ValidString(got) {
		t.Fatalf("got %q", got)
	}
}
