package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

const (
	msgIndexNotFound = "No vector index found. Press ctrl+r to build it first."
	msgIndexVersion  = "The vector index does not match the current configuration. Press ctrl+r to rebuild it."
	msgEmptyQuery    = "Type a question first."
	msgReady         = "Ready. Type a question and press enter, ctrl+r rebuilds the index."
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	RebuildIndex(ctx context.Context) (*models.BuildReport, error)
	Answer(ctx context.Context, query string) (*models.Answer, error)
}

type rebuildDoneMsg struct {
	report *models.BuildReport
	err    error
}

type answerDoneMsg struct {
	answer *models.Answer
	err    error
}

// Model is the Bubble Tea model of the interactive shell.
// Only one action runs at a time, keys that start another are ignored while busy.
type Model struct {
	service  RAGPort
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	answer   *models.Answer
	status   string
	failed   bool
	busy     bool
	ready    bool
}

func New(service RAGPort, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		service:  service,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   msgReady,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// header, status and a spacer
		reserved := 3 + qh + 1
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.input.Width = max(10, msg.Width-6)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.busy {
				return m, nil
			}
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				m.setStatus(msgEmptyQuery, true)
				return m, nil
			}
			m.busy = true
			m.setStatus(fmt.Sprintf("Answering %q...", q), false)
			return m, tea.Batch(m.spinner.Tick, answerCmd(m.service, m.timeout, q))
		case "ctrl+r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.setStatus("Rebuilding the vector index...", false)
			return m, tea.Batch(m.spinner.Tick, rebuildCmd(m.service, m.timeout))
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerDoneMsg:
		m.busy = false
		if msg.err != nil {
			log.Error().Err(msg.err).Msg("Answer failed")
			m.setStatus(errorMessage(msg.err), true)
			return m, nil
		}
		m.answer = msg.answer
		m.input.Reset()
		m.setStatus(fmt.Sprintf("Answered from %d chunks.", len(msg.answer.Sources)), false)
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoTop()
		return m, nil

	case rebuildDoneMsg:
		m.busy = false
		if msg.err != nil {
			log.Error().Err(msg.err).Msg("Rebuild failed")
			m.setStatus(errorMessage(msg.err), true)
			return m, nil
		}
		r := msg.report
		status := fmt.Sprintf("Index rebuilt: %d chunks from %d pages in %s.", r.Chunks, r.Documents, r.Duration.Round(time.Millisecond))
		if len(r.Skipped) > 0 {
			status += fmt.Sprintf(" Skipped %d unreadable files.", len(r.Skipped))
		}
		m.setStatus(status, false)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(status string, failed bool) {
	m.status = status
	m.failed = failed
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("PDF RAG") + "  " + hintStyle.Render("enter ask · ctrl+r rebuild · esc quit")
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())

	status := statusStyle.Render(m.status)
	if m.failed {
		status = errorStyle.Render(m.status)
	}
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.answer == nil {
		return hintStyle.Render("No answer yet.")
	}
	width := max(20, m.viewport.Width-4)
	var b strings.Builder
	b.WriteString(questionStyle.Render(m.answer.Query))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Render(m.answer.Content))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("Sources"))
	for i, s := range m.answer.Sources {
		fmt.Fprintf(&b, "\n%d. %s p.%d #%d  %s", i+1, filepath.Base(s.Chunk.Source), s.Chunk.PageNumber, s.Chunk.ChunkID,
			hintStyle.Render(fmt.Sprintf("score=%.3f", s.Score)))
	}
	return b.String()
}

// errorMessage turns an action error into a status line
func errorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrIndexNotFound):
		return msgIndexNotFound
	case errors.Is(err, models.ErrIndexVersion):
		return msgIndexVersion
	case errors.Is(err, models.ErrEmptyQuery):
		return msgEmptyQuery
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

func actionContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

func answerCmd(service RAGPort, timeout time.Duration, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := actionContext(timeout)
		defer cancel()
		answer, err := service.Answer(ctx, query)
		return answerDoneMsg{answer: answer, err: err}
	}
}

func rebuildCmd(service RAGPort, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := actionContext(timeout)
		defer cancel()
		report, err := service.RebuildIndex(ctx)
		return rebuildDoneMsg{report: report, err: err}
	}
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
