// ABOUTME: Server TUI for displaying stream position and connected clients
// ABOUTME: Real-time status display using bubbletea, polled once per second
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/distribute"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusSource is polled by the TUI on every tick
type StatusSource interface {
	Status() Status
}

// tuiModel is the bubbletea model for the server TUI
type tuiModel struct {
	source   StatusSource
	status   Status
	quitting bool
}

type tickMsg time.Time

func newTUIModel(source StatusSource) tuiModel {
	return tuiModel{source: source, status: source.Status()}
}

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.status = m.source.Status()
		return m, tickEvery()
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	clientHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("220"))
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	st := m.status
	var b strings.Builder

	b.WriteString(titleStyle.Render("pcmcast"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("Server", st.Name)
	field("Listening", st.Addr)
	field("Uptime", st.Uptime.Round(time.Second).String())
	field("Format", st.Format.String())
	field("Program", fmt.Sprintf("%d chunks, %v", st.Policy.Length, st.ProgramDuration.Round(time.Millisecond)))
	field("Mode", modeLine(st.Policy))
	b.WriteString("\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(st.Clients))))
	b.WriteString("\n\n")

	if len(st.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, c := range st.Clients {
			b.WriteString(fmt.Sprintf("  • %s", c.RemoteAddr))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %s, %d chunks, %d lags)",
				c.Transport, formatBytes(c.Bytes), c.Chunks, c.Lags)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func modeLine(st distribute.Status) string {
	if st.Mode != distribute.ModeSync {
		if st.Loop {
			return st.Mode + " (looping)"
		}
		return st.Mode
	}
	if st.Position < 0 {
		return st.Mode + " (starting)"
	}
	return fmt.Sprintf("%s, chunk %d/%d, loop %d", st.Mode, st.Position+1, st.Length, st.Loops+1)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

// RunTUI shows the status display until the user quits or ctx ends. A user
// quit returns nil; callers treat it as a shutdown request.
func RunTUI(ctx context.Context, source StatusSource) error {
	p := tea.NewProgram(newTUIModel(source), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && (ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled)) {
		return nil
	}
	return err
}
