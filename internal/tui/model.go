// Package tui renders a live, read-only view of one orchestration run.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/conductor/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// busClosedMsg signals that the event subscription has ended.
type busClosedMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	keys         KeyMap
	help         help.Model
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	busClosed    bool
	width        int
	height       int
	quitting     bool
}

// New creates a model fed by sub, typically an EventBus subscription.
func New(sub <-chan events.Event, objective string) Model {
	keys := DefaultKeyMap()
	m := Model{
		keys:         keys,
		help:         help.New(),
		taskPane:     NewTaskPaneModel(keys),
		progressPane: NewProgressPaneModel(objective),
		focusedPane:  PaneTasks,
		eventSub:     sub,
	}
	m.updateFocusStates()
	return m
}

// Init starts listening for events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.NextPane):
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()
		case key.Matches(msg, m.keys.PrevPane):
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()
		default:
			var cmd tea.Cmd
			m.taskPane, cmd = m.taskPane.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.computeLayout()

	case busClosedMsg:
		m.busClosed = true

	case events.PlanReadyEvent:
		m.taskPane, _ = m.taskPane.Update(msg)
		m.progressPane, _ = m.progressPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.TaskStartedEvent, events.TaskRetryingEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.TaskBlockedEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.SessionStartedEvent, events.GraphProgressEvent, events.DeadlockEvent,
		events.SessionCompletedEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		// Unknown event kinds are skipped
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.help.View(m.keys))
}

// Finished reports whether the session completed.
func (m Model) Finished() bool {
	return m.progressPane.Finished()
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	taskWidth := (m.width * 65) / 100
	progressWidth := m.width - taskWidth
	availableHeight := m.height - 1 // help bar

	m.taskPane.SetSize(taskWidth, availableHeight)
	m.progressPane.SetSize(progressWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
