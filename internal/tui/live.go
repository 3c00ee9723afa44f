// Package tui renders a live view of a running solve. Samples arrive on
// a channel from the solver's observer callback, so the viewer never
// touches solver state directly.
package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

var sparks = []rune(" ▁▂▃▄▅▆▇█")

// Sample is one accepted grid point of the forward solve.
type Sample struct {
	Index int
	T     float64
	State []float64
}

type sampleMsg Sample

type doneMsg struct{ err error }

type model struct {
	title   string
	total   int
	latest  Sample
	history []float64
	done    bool
	err     error
	width   int
}

func newModel(title string, total int) model {
	return model{
		title:   title,
		total:   total,
		history: make([]float64, 0, 256),
		width:   80,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case sampleMsg:
		m.latest = Sample(msg)
		if len(msg.State) > 0 {
			m.history = append(m.history, msg.State[0])
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString("\n  " + cyan.Render(m.title) + "\n\n")

	b.WriteString("  " + m.progressBar() + "\n")
	b.WriteString(fmt.Sprintf("  %s %s\n\n",
		dim.Render("t ="),
		white.Render(fmt.Sprintf("%.4f", m.latest.T))))

	for i, v := range m.latest.State {
		if i >= 6 {
			b.WriteString("  " + dim.Render(fmt.Sprintf("... %d more", len(m.latest.State)-i)) + "\n")
			break
		}
		b.WriteString(fmt.Sprintf("  %s %s\n",
			dim.Render(fmt.Sprintf("y[%d] =", i)),
			white.Render(fmt.Sprintf("% .6f", v))))
	}

	b.WriteString("\n  " + m.sparkline() + "\n\n")

	switch {
	case m.err != nil:
		b.WriteString("  " + yellow.Render("error: "+m.err.Error()) + "\n")
		b.WriteString("  " + dim.Render("press q to exit") + "\n")
	case m.done:
		b.WriteString("  " + green.Render("done") + "  " + dim.Render("press q to exit") + "\n")
	default:
		b.WriteString("  " + dim.Render("press q to abort") + "\n")
	}

	return b.String()
}

func (m model) progressBar() string {
	w := 40
	frac := 0.0
	if m.total > 1 {
		frac = float64(m.latest.Index) / float64(m.total-1)
	}
	filled := int(frac * float64(w))
	bar := green.Render(strings.Repeat("█", filled)) + dim.Render(strings.Repeat("░", w-filled))
	return fmt.Sprintf("%s %s", bar, white.Render(fmt.Sprintf("%d/%d", m.latest.Index+1, m.total)))
}

func (m model) sparkline() string {
	w := 56
	if len(m.history) == 0 {
		return dim.Render(strings.Repeat("·", w))
	}
	vals := m.history
	if len(vals) > w {
		vals = vals[len(vals)-w:]
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	var sb strings.Builder
	for _, v := range vals {
		idx := int((v - lo) / span * float64(len(sparks)-1))
		sb.WriteRune(sparks[idx])
	}
	return cyan.Render(sb.String()) + dim.Render(fmt.Sprintf("  y[0] ∈ [%.3g, %.3g]", lo, hi))
}

// Run displays the live view while draining samples. It returns once the
// solve has finished and the user has dismissed the screen, or as soon
// as the user quits. The samples channel must be closed by the producer;
// solveErr is read after that to report how the solve ended.
func Run(title string, total int, samples <-chan Sample, solveErr func() error) error {
	p := tea.NewProgram(newModel(title, total))

	go func() {
		for s := range samples {
			p.Send(sampleMsg(s))
		}
		p.Send(doneMsg{err: solveErr()})
	}()

	_, err := p.Run()
	return err
}
