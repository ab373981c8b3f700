package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/scheduler"
)

const listWidth = 32

// TaskState is what the view knows about one task.
type TaskState struct {
	ID        string
	Title     string
	Role      string
	Status    scheduler.TaskStatus
	Attempt   int
	Result    string
	Err       string
	BlockedBy string
	Notes     []string // Retry notices, oldest first
	Duration  time.Duration
}

// TaskPaneModel is the task list with a detail viewport for the selected task.
type TaskPaneModel struct {
	keys     KeyMap
	tasks    map[string]*TaskState
	order    []string // plan order, then first-seen order
	selected int
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel(keys KeyMap) TaskPaneModel {
	return TaskPaneModel{
		keys:     keys,
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles keys and task events.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.order)-1 {
				m.selected++
				m.refreshDetail()
			}
		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
				m.refreshDetail()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.PlanReadyEvent:
		for _, pt := range msg.Tasks {
			t := m.ensure(pt.ID)
			t.Title = pt.Title
			t.Role = pt.Role
		}
		m.refreshDetail()

	case events.TaskStartedEvent:
		t := m.ensure(msg.ID)
		t.Title = msg.Title
		t.Role = msg.Role
		t.Status = scheduler.TaskInProgress
		t.Attempt = msg.Attempt
		m.refreshIfSelected(msg.ID)

	case events.TaskRetryingEvent:
		t := m.ensure(msg.ID)
		t.Status = scheduler.TaskPending
		t.Notes = append(t.Notes, fmt.Sprintf("attempt %d failed: %s (retrying in %v)", msg.Attempt, msg.Err, msg.Wait.Round(time.Millisecond)))
		m.refreshIfSelected(msg.ID)

	case events.TaskCompletedEvent:
		t := m.ensure(msg.ID)
		t.Status = scheduler.TaskCompleted
		t.Result = msg.Result
		t.Attempt = msg.Attempts
		t.Duration = msg.Duration
		m.refreshIfSelected(msg.ID)

	case events.TaskFailedEvent:
		t := m.ensure(msg.ID)
		t.Status = scheduler.TaskFailed
		t.Err = msg.Err
		t.Attempt = msg.Attempts
		t.Duration = msg.Duration
		m.refreshIfSelected(msg.ID)

	case events.TaskBlockedEvent:
		t := m.ensure(msg.ID)
		t.Status = scheduler.TaskBlocked
		t.BlockedBy = msg.BlockedBy
		m.refreshIfSelected(msg.ID)
	}

	return m, cmd
}

func (m *TaskPaneModel) ensure(id string) *TaskState {
	t, ok := m.tasks[id]
	if !ok {
		t = &TaskState{ID: id, Title: id, Status: scheduler.TaskPending}
		m.tasks[id] = t
		m.order = append(m.order, id)
	}
	return t
}

// Task returns the state of id.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

// SelectedID returns the selected task's ID, or "".
func (m TaskPaneModel) SelectedID() string {
	if m.selected >= 0 && m.selected < len(m.order) {
		return m.order[m.selected]
	}
	return ""
}

// View renders the list and the detail viewport side by side.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	detailWidth := max(m.width-listWidth-4, 10)
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(detailWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Planning..."))
	}
	for i, id := range m.order {
		t := m.tasks[id]
		label := fmt.Sprintf("[%s] %s", t.Role, t.Title)
		if len([]rune(label)) > listWidth-4 {
			label = string([]rune(label)[:listWidth-7]) + "..."
		}
		line := StatusIcon(t.Status) + " " + label
		if i == m.selected {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(b.String())
}

func (m *TaskPaneModel) refreshIfSelected(id string) {
	if m.SelectedID() == id {
		m.refreshDetail()
	}
}

func (m *TaskPaneModel) refreshDetail() {
	id := m.SelectedID()
	if id == "" {
		m.viewport.SetContent("Waiting for a plan...")
		return
	}
	m.viewport.SetContent(renderDetail(m.tasks[id]))
	m.viewport.GotoTop()
}

func renderDetail(t *TaskState) string {
	var b strings.Builder
	b.WriteString(StyleHeader.Render(t.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s · %s · %s", t.ID, t.Role, t.Status)
	if t.Attempt > 0 {
		fmt.Fprintf(&b, " · attempt %d", t.Attempt)
	}
	if t.Duration > 0 {
		fmt.Fprintf(&b, " · %v", t.Duration.Round(time.Millisecond))
	}
	b.WriteString("\n\n")

	for _, note := range t.Notes {
		b.WriteString(StyleStatusRunning.Render(note))
		b.WriteString("\n")
	}
	if len(t.Notes) > 0 {
		b.WriteString("\n")
	}

	switch t.Status {
	case scheduler.TaskCompleted:
		b.WriteString(t.Result)
	case scheduler.TaskFailed:
		b.WriteString(StyleStatusFailed.Render("Error: " + t.Err))
	case scheduler.TaskBlocked:
		b.WriteString(StyleStatusBlocked.Render("Blocked by " + t.BlockedBy))
	case scheduler.TaskInProgress:
		b.WriteString(StyleStatusPending.Render("Running..."))
	default:
		b.WriteString(StyleStatusPending.Render("Waiting for dependencies"))
	}
	return b.String()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-listWidth-4, 10)
	m.viewport.Height = max(h-4, 5)
	m.refreshDetail()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
