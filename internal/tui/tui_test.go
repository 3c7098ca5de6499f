package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/snippet-relay/internal/relayclient"
)

func TestCompose_EmptyQuestionIsRejected(t *testing.T) {
	called := false
	m := newComposeModel("http://127.0.0.1:5000", func(context.Context, string, string) (*relayclient.Response, error) {
		called = true
		return nil, nil
	})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	require.Nil(t, cmd)
	cm := next.(composeModel)
	require.Contains(t, cm.status, "Please enter a question")
	require.False(t, cm.sending)
	require.False(t, called)
}

func TestCompose_SubmitAndResult(t *testing.T) {
	var gotQ, gotInfo string
	m := newComposeModel("srv", func(_ context.Context, q, info string) (*relayclient.Response, error) {
		gotQ, gotInfo = q, info
		return &relayclient.Response{Status: "success", ExtractedCodePreview: "print(1)..."}, nil
	})
	m.question.SetValue("  how?  ")
	m.context.SetValue("ctx")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	cm := next.(composeModel)
	require.True(t, cm.sending)

	// The batch also carries the spinner tick, so run the submit command on its own.
	msg := cm.submitCmd("how?", "ctx")()
	require.Equal(t, "how?", gotQ)
	require.Equal(t, "ctx", gotInfo)

	next, _ = cm.Update(msg)
	cm = next.(composeModel)
	require.False(t, cm.sending)
	require.Contains(t, cm.status, "Code copied to clipboard")
	require.Equal(t, "print(1)...", cm.preview)
	require.Contains(t, cm.View(), "Preview")
}

func TestCompose_TabSwitchesFocus(t *testing.T) {
	m := newComposeModel("srv", nil)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	cm := next.(composeModel)
	require.Equal(t, 1, cm.focus)
	require.True(t, cm.context.Focused())
	require.False(t, cm.question.Focused())
}

func TestRenderOutcome(t *testing.T) {
	status, preview := renderOutcome(nil, errors.New("connection refused"))
	require.Contains(t, status, "connection refused")
	require.Empty(t, preview)

	status, preview = renderOutcome(&relayclient.Response{Status: "error", Message: "No code block found in the response.", FullResponse: "prose"}, nil)
	require.Contains(t, status, "No code block found")
	require.Equal(t, "prose", preview)
}

func writeDump(t *testing.T, dir, rid, outcome string, status int, reply string) {
	t.Helper()
	prompt := `{"contents":[{"parts":[{"text":"Give me code` + `\n\n--- Combined User Input ---\n` + `sort a list"}]}]}`
	content := strings.Join([]string{
		"=== META ===",
		"time=2026-10-16T09:05:07Z",
		"request_id=" + rid,
		"client_ip=127.0.0.1",
		"",
		"=== UPSTREAM REQUEST ===",
		"POST https://g.example/v1beta/models/gemini-test:generateContent?key=%5BREDACTED%5D",
		"",
		prompt,
		"",
		"=== OUTCOME ===",
		"model=gemini-test",
		"outcome=" + outcome,
		"",
		"=== RELAY RESPONSE ===",
		"status=" + strconv.Itoa(status),
		"",
		reply,
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, rid+".log"), []byte(content), 0o600))
}

func loadedBrowser(t *testing.T, dir string) browser {
	t.Helper()
	b := newBrowser(dir)
	next, _ := b.Update(b.load()())
	next, _ = next.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(browser)
}

func TestBrowser_ListsAndFiltersByOutcome(t *testing.T) {
	dir := t.TempDir()
	writeDump(t, dir, "rid-ok", "success", 200, `{"status":"success","message":"Code extracted and copied to clipboard","extracted_code_preview":"x..."}`)
	writeDump(t, dir, "rid-nocode", "client_input", 400, `{"status":"error","message":"No code block found in the response.","full_response":"just prose"}`)

	b := loadedBrowser(t, dir)
	require.NoError(t, b.err)
	require.Len(t, b.list.Items(), 2)
	require.Equal(t, []string{"client_input", "success"}, b.outcomes)

	next, _ := b.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	b = next.(browser)
	require.Equal(t, "client_input", b.outcome)
	require.Len(t, b.list.Items(), 1)
	row := b.list.Items()[0].(dumpRow)
	require.Equal(t, "rid-nocode", row.s.RequestID)
	require.Contains(t, row.Title(), "400")
	require.Contains(t, row.Description(), "No code block found")

	for range 2 {
		next, _ = b.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
		b = next.(browser)
	}
	require.Empty(t, b.outcome)
	require.Len(t, b.list.Items(), 2)
}

func TestBrowser_ReportHighlightsFullResponse(t *testing.T) {
	dir := t.TempDir()
	writeDump(t, dir, "rid-nocode", "client_input", 400, `{"status":"error","message":"No code block found in the response.","full_response":"just prose"}`)

	b := loadedBrowser(t, dir)
	next, _ := b.Update(openDump(filepath.Join(dir, "rid-nocode.log"))())
	b = next.(browser)
	require.NoError(t, b.err)
	require.Equal(t, browseReport, b.mode)

	report := renderReport(b.open, 100)
	require.Contains(t, report, "sort a list")
	require.NotContains(t, report, "Give me code")
	require.Contains(t, report, "Model reply (no code block found)")
	require.Contains(t, report, "just prose")
	require.Contains(t, report, "client_input")

	next, _ = b.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("v")})
	b = next.(browser)
	require.Equal(t, browseRaw, b.mode)
	require.Contains(t, b.raw, "=== RELAY RESPONSE ===")

	next, _ = b.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, browseList, next.(browser).mode)
}

func TestNextOutcome(t *testing.T) {
	known := []string{"a", "b"}
	require.Equal(t, "a", nextOutcome(known, ""))
	require.Equal(t, "b", nextOutcome(known, "a"))
	require.Equal(t, "", nextOutcome(known, "b"))
	require.Equal(t, "", nextOutcome(nil, ""))
}

func TestQuestionOf(t *testing.T) {
	require.Equal(t, "q", questionOf("instr\n\n--- Combined User Input ---\nq"))
	require.Equal(t, "plain", questionOf(" plain "))
}
