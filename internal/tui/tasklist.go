package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskchat/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusToDo       = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusReview     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // Blue
	statusDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
)

// TaskItem implements list.Item for the task list.
type TaskItem struct {
	Task models.Task
}

func (i TaskItem) FilterValue() string { return i.Task.Title }
func (i TaskItem) Title() string       { return fmt.Sprintf("#%d %s", i.Task.ID, i.Task.Title) }
func (i TaskItem) Description() string {
	desc := formatStatus(i.Task.Status) + " • " + string(i.Task.Priority)
	if i.Task.AssigneeUsername != "" {
		desc += " • @" + i.Task.AssigneeUsername
	}
	if i.Task.DueDate != nil {
		desc += " • due " + models.FormatDate(i.Task.DueDate)
	}
	return desc
}

func formatStatus(status models.TaskStatus) string {
	switch status {
	case models.StatusToDo:
		return statusToDo.Render("○ " + string(status))
	case models.StatusInProgress:
		return statusInProgress.Render("◑ " + string(status))
	case models.StatusUnderReview:
		return statusReview.Render("◐ " + string(status))
	case models.StatusCompleted:
		return statusDone.Render("● " + string(status))
	default:
		return string(status)
	}
}

// TaskListModel manages the task list screen.
type TaskListModel struct {
	client      *Client
	list        list.Model
	tasks       []models.Task
	projectID   int64
	filterIndex int
	loading     bool
}

// filters cycles through "all" then each canonical status.
var filters = append([]models.TaskStatus{""}, models.Statuses...)

// NewTaskListModel creates a new task list model.
func NewTaskListModel(client *Client) *TaskListModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Tasks"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = listTitleStyle

	return &TaskListModel{client: client, list: l}
}

// SetSize sets the list dimensions.
func (m *TaskListModel) SetSize(w, h int) {
	m.list.SetSize(w, h)
}

// SetProject scopes the list to one project; zero means recent tasks.
func (m *TaskListModel) SetProject(id int64) {
	m.projectID = id
}

// SelectedTask returns the currently selected task.
func (m *TaskListModel) SelectedTask() *models.Task {
	if item, ok := m.list.SelectedItem().(TaskItem); ok {
		return &item.Task
	}
	return nil
}

// CycleFilter cycles through status filters.
func (m *TaskListModel) CycleFilter() {
	m.filterIndex = (m.filterIndex + 1) % len(filters)
	m.applyFilter()
}

func (m *TaskListModel) applyFilter() {
	want := filters[m.filterIndex]
	label := "all"
	if want != "" {
		label = string(want)
	}
	m.list.Title = fmt.Sprintf("Tasks [%s]", label)

	items := make([]list.Item, 0, len(m.tasks))
	for _, t := range m.tasks {
		if want == "" || t.Status == want {
			items = append(items, TaskItem{Task: t})
		}
	}
	m.list.SetItems(items)
}

// Refresh fetches tasks from the API.
func (m *TaskListModel) Refresh() tea.Cmd {
	m.loading = true
	projectID := m.projectID
	return func() tea.Msg {
		tasks, err := m.client.ListTasks(context.Background(), projectID)
		if err != nil {
			return errMsg{err: err}
		}
		return tasksLoadedMsg{tasks}
	}
}

// Update handles messages.
func (m *TaskListModel) Update(msg tea.Msg) (*TaskListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tasksLoadedMsg:
		m.loading = false
		m.tasks = msg.tasks
		m.applyFilter()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return m, m.Refresh()
		case "f":
			m.CycleFilter()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the task list.
func (m *TaskListModel) View() string {
	if m.loading {
		return "Loading tasks..."
	}
	return m.list.View()
}

type tasksLoadedMsg struct {
	tasks []models.Task
}
