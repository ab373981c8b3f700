package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/conductor/internal/events"
)

// ProgressPaneModel shows task counts, a progress bar and the session outcome.
type ProgressPaneModel struct {
	objective string
	total     int
	completed int
	running   int
	failed    int
	blocked   int
	pending   int
	stalled   []string
	done      *events.SessionCompletedEvent
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a progress pane for objective.
func NewProgressPaneModel(objective string) ProgressPaneModel {
	return ProgressPaneModel{objective: objective}
}

// Update handles graph and session events.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.SessionStartedEvent:
		m.objective = msg.Objective

	case events.PlanReadyEvent:
		m.total = len(msg.Tasks)
		m.pending = len(msg.Tasks)

	case events.GraphProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.blocked = msg.Blocked
		m.pending = msg.Pending

	case events.DeadlockEvent:
		m.stalled = msg.Stalled

	case events.SessionCompletedEvent:
		m.done = &msg
	}

	return m, nil
}

// View renders the pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.objective != "" {
		b.WriteString(StyleHeader.Render(m.objective))
		b.WriteString("\n\n")
	}

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.blocked))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))
	b.WriteString("\n")

	if m.total > 0 {
		b.WriteString(m.bar(min(m.width-12, 40)))
		b.WriteString("\n")
	}

	if len(m.stalled) > 0 {
		b.WriteString(StyleStatusFailed.Render("Deadlock: " + strings.Join(m.stalled, ", ")))
		b.WriteString("\n")
	}
	if m.done != nil {
		b.WriteString("\n")
		if m.done.Err != "" {
			b.WriteString(StyleStatusFailed.Render("Synthesis failed: " + m.done.Err))
		} else {
			b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Session complete in %v", m.done.Duration)))
		}
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) bar(width int) string {
	width = max(width, 4)
	completedWidth := (m.completed * width) / m.total
	failedWidth := ((m.failed + m.blocked) * width) / m.total
	runningWidth := (m.running * width) / m.total
	pendingWidth := width - completedWidth - failedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))
	return fmt.Sprintf("[%s]  %d/%d", bar, m.completed, m.total)
}

// Finished reports whether the session has completed.
func (m ProgressPaneModel) Finished() bool {
	return m.done != nil
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
