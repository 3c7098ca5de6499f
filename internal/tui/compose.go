package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/r9s-ai/snippet-relay/internal/relayclient"
)

// SubmitFunc sends one question to the relay.
type SubmitFunc func(ctx context.Context, question, additionalInfo string) (*relayclient.Response, error)

type composeKeyMap struct {
	Submit key.Binding
	Next   key.Binding
	Quit   key.Binding
}

func (k composeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Next, k.Quit}
}

func (k composeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Submit, k.Next, k.Quit}}
}

var composeKeys = composeKeyMap{
	Submit: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "send"),
	),
	Next: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("tab", "switch field"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "quit"),
	),
}

type composeResultMsg struct {
	resp *relayclient.Response
	err  error
}

type composeModel struct {
	submit SubmitFunc
	server string

	question textarea.Model
	context  textarea.Model
	focus    int

	spin    spinner.Model
	sending bool

	help help.Model
	keys composeKeyMap

	status  string
	preview string
}

// RunCompose opens the question composer. server is only shown in the header.
func RunCompose(server string, submit SubmitFunc, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(newComposeModel(server, submit), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui run failed: %w", err)
	}
	return nil
}

func newComposeModel(server string, submit SubmitFunc) composeModel {
	q := textarea.New()
	q.Placeholder = "Enter your main question"
	q.ShowLineNumbers = false
	q.SetHeight(4)
	q.Focus()

	c := textarea.New()
	c.Placeholder = "Additional information (optional)"
	c.ShowLineNumbers = false
	c.SetHeight(8)

	s := spinner.New()
	s.Spinner = spinner.Dot

	return composeModel{
		submit:   submit,
		server:   server,
		question: q,
		context:  c,
		spin:     s,
		help:     help.New(),
		keys:     composeKeys,
	}
}

func (m composeModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m composeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := max(msg.Width-4, 20)
		m.question.SetWidth(w)
		m.context.SetWidth(w)
		return m, nil

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case composeResultMsg:
		m.sending = false
		m.status, m.preview = renderOutcome(msg.resp, msg.err)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case m.sending:
			return m, nil
		case key.Matches(msg, m.keys.Next):
			m.toggleFocus()
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			question := strings.TrimSpace(m.question.Value())
			if question == "" {
				m.status = errorStyle.Render("Error: Please enter a question.")
				m.preview = ""
				return m, nil
			}
			m.sending = true
			m.status = ""
			m.preview = ""
			return m, tea.Batch(m.spin.Tick, m.submitCmd(question, strings.TrimSpace(m.context.Value())))
		}
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.question, cmd = m.question.Update(msg)
	} else {
		m.context, cmd = m.context.Update(msg)
	}
	return m, cmd
}

func (m *composeModel) toggleFocus() {
	if m.focus == 0 {
		m.focus = 1
		m.question.Blur()
		m.context.Focus()
		return
	}
	m.focus = 0
	m.context.Blur()
	m.question.Focus()
}

func (m composeModel) submitCmd(question, info string) tea.Cmd {
	submit := m.submit
	return func() tea.Msg {
		resp, err := submit(context.Background(), question, info)
		return composeResultMsg{resp: resp, err: err}
	}
}

func renderOutcome(resp *relayclient.Response, err error) (string, string) {
	if err != nil {
		return ErrorLine(err.Error()), ""
	}
	if resp.OK() {
		return successStyle.Render("Success! Code copied to clipboard."), resp.ExtractedCodePreview
	}
	msg := resp.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return StatusLine(false, msg), resp.FullResponse
}

func (m composeModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("snippet-relay  " + m.server))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Question"))
	b.WriteString("\n")
	b.WriteString(m.question.View())
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Additional information"))
	b.WriteString("\n")
	b.WriteString(m.context.View())
	b.WriteString("\n\n")
	switch {
	case m.sending:
		b.WriteString(m.spin.View() + " Sending to server...")
	case m.status != "":
		b.WriteString(m.status)
	}
	b.WriteString("\n")
	if m.preview != "" {
		b.WriteString(Box("Preview", m.preview))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
