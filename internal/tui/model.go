// Package tui is the interactive terminal client: one query box, a spinner
// while the gateway works, then either the error or the rendered result.
package tui

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/researcher/internal/client"
	"github.com/nextlevelbuilder/researcher/internal/render"
	"github.com/nextlevelbuilder/researcher/internal/research"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

const (
	title       = "Research Agent AI"
	placeholder = "What would you like to research?"
	searchLabel = "Search"
	busyLabel   = "Researching..."
)

// Querier runs one research query.
type Querier interface {
	Query(ctx context.Context, query string) (*protocol.AgentResponse, error)
}

type resultMsg struct{ resp research.Response }

type errMsg struct{ err error }

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	buttonStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	errBoxStyle = boxStyle.BorderForeground(lipgloss.Color("#ef4444"))
)

// Model is the bubbletea model.
type Model struct {
	ctx      context.Context
	querier  Querier
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	opts     render.Options

	loading bool
	errText string
	result  research.Response
}

// New builds a model that sends queries through q.
func New(ctx context.Context, q Querier, opts render.Options) Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 60
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		querier:  q,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		opts:     opts,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.input.Width = max(msg.Width-len(searchLabel)-12, 20)
		m.opts.Width = max(msg.Width-6, 20)
		m.viewport.Width = max(msg.Width-4, 20)
		m.viewport.Height = max(msg.Height-10, 5)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resultMsg:
		m.loading = false
		m.result = msg.resp
		m.input.Focus()
		m.refresh()
		return m, nil

	case errMsg:
		m.loading = false
		m.errText = client.FetchFailedMessage
		m.input.Focus()
		return m, nil
	}
	return m, nil
}

// submit starts a query. Blank input is ignored.
func (m Model) submit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}
	m.loading = true
	m.errText = ""
	m.result = research.Response{}
	m.input.Blur()
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.search(query))
}

func (m Model) search(query string) tea.Cmd {
	ctx, q := m.ctx, m.querier
	return func() tea.Msg {
		resp, err := q.Query(ctx, query)
		if err != nil {
			slog.Debug("tui: query failed", "error", err)
			return errMsg{err: err}
		}
		return resultMsg{resp: resp.Response}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(render.Text(m.result, m.opts))
	m.viewport.GotoTop()
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")

	label := searchLabel
	if m.loading {
		label = busyLabel
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, m.input.View(), "  ", buttonStyle.Render(label)))
	sb.WriteString("\n\n")

	switch {
	case m.loading:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(busyLabel)
		sb.WriteString("\n")
	case m.errText != "":
		sb.WriteString(errBoxStyle.Render(render.ErrorStyle.Render(m.errText)))
		sb.WriteString("\n")
	case !m.result.IsEmpty():
		sb.WriteString(boxStyle.Render(m.viewport.View()))
		sb.WriteString("\n")
	}

	sb.WriteString(render.MutedStyle.Render("enter: search • pgup/pgdn: scroll • esc: quit"))
	return sb.String()
}

// Run starts the program on the alternate screen.
func Run(ctx context.Context, q Querier, opts render.Options) error {
	p := tea.NewProgram(New(ctx, q, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
