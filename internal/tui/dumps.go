package tui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/trafficdump"
)

type browseMode int

const (
	browseList browseMode = iota
	browseReport
	browseRaw
)

type browserKeys struct {
	Open    key.Binding
	Back    key.Binding
	Raw     key.Binding
	Outcome key.Binding
	Reload  key.Binding
	Quit    key.Binding
}

func (k browserKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Outcome, k.Raw, k.Back, k.Quit}
}

func (k browserKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Open, k.Outcome, k.Reload}, {k.Raw, k.Back, k.Quit}}
}

var defaultBrowserKeys = browserKeys{
	Open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "report")),
	Back:    key.NewBinding(key.WithKeys("esc", "b"), key.WithHelp("esc", "back")),
	Raw:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "raw/report")),
	Outcome: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "next outcome")),
	Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// dumpRow is one dump in the list: relay status and outcome first, the reply message
// underneath.
type dumpRow struct {
	s trafficdump.Summary
}

func (r dumpRow) Title() string {
	when := "-"
	if !r.s.Time.IsZero() {
		when = r.s.Time.Format("01-02 15:04:05")
	}
	return fmt.Sprintf("%s %-12s %s  %s", statusBadge(r.s.RelayStatus), orDash(r.s.Outcome), orDash(r.s.Model), when)
}

func (r dumpRow) Description() string {
	d := orDash(r.s.Message)
	if r.s.FinishReason != "" {
		d += "  finish=" + r.s.FinishReason
	}
	if r.s.Truncated {
		d += "  [truncated]"
	}
	return d
}

func (r dumpRow) FilterValue() string {
	return strings.ToLower(strings.Join([]string{r.s.RequestID, r.s.Outcome, r.s.FinishReason, r.s.Language, r.s.Message}, " "))
}

func statusBadge(code int) string {
	switch {
	case code == 0:
		return faintStyle.Render("[---]")
	case code < 300:
		return successStyle.Render(fmt.Sprintf("[%d]", code))
	default:
		return errorStyle.Render(fmt.Sprintf("[%d]", code))
	}
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}

type browser struct {
	dir   string
	limit int
	keys  browserKeys

	mode     browseMode
	all      []trafficdump.Summary
	outcome  string
	outcomes []string

	list list.Model
	vp   viewport.Model
	help help.Model

	open   *trafficdump.Dump
	raw    string
	width  int
	height int
	err    error
}

type summariesLoaded struct {
	items []trafficdump.Summary
	err   error
}

type dumpOpened struct {
	dump *trafficdump.Dump
	raw  string
	err  error
}

// RunDumps opens the dump browser over dir.
func RunDumps(dir string, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(newBrowser(dir), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dump browser: %w", err)
	}
	return nil
}

func newBrowser(dir string) browser {
	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	l := list.New(nil, delegate, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	return browser{
		dir:   strings.TrimSpace(dir),
		limit: 500,
		keys:  defaultBrowserKeys,
		list:  l,
		vp:    viewport.New(0, 0),
		help:  help.New(),
	}
}

func (b browser) Init() tea.Cmd { return b.load() }

func (b browser) load() tea.Cmd {
	dir, limit := b.dir, b.limit
	return func() tea.Msg {
		items, err := trafficdump.ListSummaries(trafficdump.ListOptions{Dir: dir, Limit: limit})
		return summariesLoaded{items: items, err: err}
	}
}

func openDump(path string) tea.Cmd {
	return func() tea.Msg {
		d, err := trafficdump.ReadDump(path)
		if err != nil {
			return dumpOpened{err: err}
		}
		raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the listed dump dir.
		return dumpOpened{dump: d, raw: string(raw), err: err}
	}
}

func (b browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.layout()
		return b, nil

	case summariesLoaded:
		b.err = msg.err
		if msg.err == nil {
			b.all = msg.items
			b.outcomes = outcomesOf(msg.items)
			b.applyOutcome()
		}
		return b, nil

	case dumpOpened:
		b.err = msg.err
		if msg.err == nil {
			b.open, b.raw = msg.dump, msg.raw
			b.show(browseReport)
		}
		return b, nil

	case tea.KeyMsg:
		if b.mode == browseList && b.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, b.keys.Quit):
			return b, tea.Quit
		case b.mode != browseList && key.Matches(msg, b.keys.Back):
			b.mode = browseList
			b.layout()
			return b, nil
		case b.mode == browseReport && key.Matches(msg, b.keys.Raw):
			b.show(browseRaw)
			return b, nil
		case b.mode == browseRaw && key.Matches(msg, b.keys.Raw):
			b.show(browseReport)
			return b, nil
		case b.mode == browseList && key.Matches(msg, b.keys.Outcome):
			b.outcome = nextOutcome(b.outcomes, b.outcome)
			b.applyOutcome()
			return b, nil
		case b.mode == browseList && key.Matches(msg, b.keys.Reload):
			return b, b.load()
		case b.mode == browseList && key.Matches(msg, b.keys.Open):
			if row, ok := b.list.SelectedItem().(dumpRow); ok {
				return b, openDump(row.s.Path)
			}
			return b, nil
		}
	}

	var cmd tea.Cmd
	if b.mode == browseList {
		b.list, cmd = b.list.Update(msg)
	} else {
		b.vp, cmd = b.vp.Update(msg)
	}
	return b, cmd
}

func (b *browser) show(mode browseMode) {
	b.mode = mode
	if mode == browseRaw {
		b.vp.SetContent(b.raw)
	} else {
		b.vp.SetContent(renderReport(b.open, b.width))
	}
	b.vp.GotoTop()
	b.layout()
}

func (b *browser) applyOutcome() {
	rows := make([]list.Item, 0, len(b.all))
	for _, s := range b.all {
		if b.outcome == "" || s.Outcome == b.outcome {
			rows = append(rows, dumpRow{s: s})
		}
	}
	b.list.SetItems(rows)
}

func outcomesOf(items []trafficdump.Summary) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range items {
		if s.Outcome != "" && !seen[s.Outcome] {
			seen[s.Outcome] = true
			out = append(out, s.Outcome)
		}
	}
	sort.Strings(out)
	return out
}

// nextOutcome cycles all -> each known outcome -> all.
func nextOutcome(known []string, cur string) string {
	if cur == "" {
		if len(known) == 0 {
			return ""
		}
		return known[0]
	}
	for i, o := range known {
		if o == cur && i+1 < len(known) {
			return known[i+1]
		}
	}
	return ""
}

func (b *browser) layout() {
	if b.width <= 0 || b.height <= 0 {
		return
	}
	body := max(b.height-3, 3)
	b.list.SetSize(b.width, body)
	b.vp.Width, b.vp.Height = b.width, body
	if b.open != nil && b.mode == browseReport {
		b.vp.SetContent(renderReport(b.open, b.width))
	}
}

func (b browser) View() string {
	var sb strings.Builder
	switch b.mode {
	case browseList:
		filter := "all"
		if b.outcome != "" {
			filter = b.outcome
		}
		sb.WriteString(titleStyle.Render("Relay dumps") + faintStyle.Render(fmt.Sprintf("  %s  outcome=%s  %d shown", b.dir, filter, len(b.list.Items()))))
	default:
		what := "report"
		if b.mode == browseRaw {
			what = "raw"
		}
		sb.WriteString(titleStyle.Render("Dump "+what) + faintStyle.Render("  "+b.open.Path))
	}
	sb.WriteString("\n")
	if b.err != nil {
		sb.WriteString(errorStyle.Render("error: "+b.err.Error()) + "\n")
	}
	if b.mode == browseList {
		sb.WriteString(b.list.View())
	} else {
		sb.WriteString(b.vp.View())
	}
	sb.WriteString("\n" + b.help.View(b.keys))
	return sb.String()
}

// renderReport lays out one exchange: what was asked, how the relay classified it, and
// what it answered. A no-code reply shows the model's full text, highlighted.
func renderReport(d *trafficdump.Dump, width int) string {
	if d == nil {
		return ""
	}
	s := d.Summary()
	boxWidth := max(width-4, 20)

	var sb strings.Builder
	field := func(label, value string) {
		if value != "" {
			sb.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", label)) + value + "\n")
		}
	}
	field("request", s.RequestID)
	if !s.Time.IsZero() {
		field("time", s.Time.Format("2006-01-02 15:04:05"))
	}
	field("client", s.ClientIP)
	field("model", s.Model)
	field("outcome", s.Outcome)
	field("finish reason", s.FinishReason)
	field("language", s.Language)
	if s.UpstreamStatus != 0 {
		field("upstream status", fmt.Sprint(s.UpstreamStatus))
	}
	if s.Truncated {
		sb.WriteString(faintStyle.Render("some sections were cut at traffic_dump.max_bytes") + "\n")
	}
	sb.WriteString("\n")

	if q := questionOf(d.Prompt()); q != "" {
		sb.WriteString(boxStyle.Width(boxWidth).Render(labelStyle.Render("Question") + "\n" + q))
		sb.WriteString("\n")
	}

	rep, ok := d.Reply()
	if !ok {
		sb.WriteString(faintStyle.Render("no relay response recorded") + "\n")
		return sb.String()
	}
	sb.WriteString(StatusLine(rep.Status == "success", fmt.Sprintf("%d %s", rep.HTTPStatus, rep.Message)) + "\n")
	if rep.Preview != "" {
		sb.WriteString(boxStyle.Width(boxWidth).Render(labelStyle.Render("Code preview") + "\n" + rep.Preview))
		sb.WriteString("\n")
	}
	if rep.FullResponse != "" {
		sb.WriteString(highlightBoxStyle.Width(boxWidth).Render(warnStyle.Render("Model reply (no code block found)") + "\n" + rep.FullResponse))
		sb.WriteString("\n")
	}
	return sb.String()
}

// questionOf strips the fixed instruction from a prompt, leaving what the user sent.
func questionOf(prompt string) string {
	if i := strings.LastIndex(prompt, config.DefaultSeparator); i >= 0 {
		return strings.TrimSpace(prompt[i+len(config.DefaultSeparator):])
	}
	return strings.TrimSpace(prompt)
}
