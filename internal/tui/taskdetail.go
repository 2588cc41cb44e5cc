package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskchat/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

// maxActivities caps the history shown under a task.
const maxActivities = 10

// TaskDetailModel manages the task detail screen.
type TaskDetailModel struct {
	client  *Client
	taskID  int64
	task    *models.Task
	height  int
	loading bool
	scroll  int
}

// NewTaskDetailModel creates a new task detail model.
func NewTaskDetailModel(client *Client) *TaskDetailModel {
	return &TaskDetailModel{client: client}
}

// SetTask sets the task to display.
func (m *TaskDetailModel) SetTask(id int64) {
	m.taskID = id
	m.task = nil
	m.scroll = 0
}

// SetSize sets the dimensions.
func (m *TaskDetailModel) SetSize(h int) {
	m.height = h
}

// Refresh fetches task details.
func (m *TaskDetailModel) Refresh() tea.Cmd {
	m.loading = true
	id := m.taskID
	return func() tea.Msg {
		task, err := m.client.GetTask(context.Background(), id)
		if err != nil {
			return errMsg{err: err}
		}
		return taskDetailLoadedMsg{task}
	}
}

// Update handles messages.
func (m *TaskDetailModel) Update(msg tea.Msg) (*TaskDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case taskDetailLoadedMsg:
		m.loading = false
		m.task = msg.task
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			m.scroll++
		case "k", "up":
			if m.scroll > 0 {
				m.scroll--
			}
		case "r":
			return m, m.Refresh()
		}
	}
	return m, nil
}

// View renders the task detail.
func (m *TaskDetailModel) View() string {
	if m.loading || m.task == nil {
		return "Loading task details..."
	}
	t := m.task
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("#%d %s", t.ID, t.Title)))
	b.WriteString("\n\n")

	b.WriteString(m.renderField("Project", t.ProjectName))
	b.WriteString(m.renderField("Status", formatStatus(t.Status)))
	b.WriteString(m.renderField("Priority", string(t.Priority)))
	if t.Description != "" {
		b.WriteString(m.renderField("Description", t.Description))
	}
	if t.Tags != "" {
		b.WriteString(m.renderField("Tags", t.Tags))
	}
	b.WriteString(m.renderField("Start", orDash(models.FormatDate(t.StartDate))))
	b.WriteString(m.renderField("Due", orDash(models.FormatDate(t.DueDate))))
	if t.Points != nil {
		b.WriteString(m.renderField("Points", fmt.Sprint(*t.Points)))
	}
	b.WriteString(m.renderField("Author", t.AuthorUsername))
	b.WriteString(m.renderField("Assignee", orDash(t.AssigneeUsername)))

	if len(t.Activities) > 0 {
		b.WriteString(sectionStyle.Render("History"))
		b.WriteString("\n")
		for i, a := range t.Activities {
			if i >= maxActivities {
				b.WriteString(fmt.Sprintf("  ... and %d more changes\n", len(t.Activities)-maxActivities))
				break
			}
			b.WriteString(fmt.Sprintf("  %s  %s: %s → %s\n",
				a.CreatedAt.Format("2006-01-02 15:04"), a.Field, orDash(deref(a.OldValue)), orDash(deref(a.NewValue))))
		}
	}

	lines := strings.Split(b.String(), "\n")
	if m.scroll >= len(lines) {
		m.scroll = len(lines) - 1
	}
	visible := lines[m.scroll:]
	if m.height > 0 && len(visible) > m.height {
		visible = visible[:m.height]
	}
	return strings.Join(visible, "\n")
}

func (m *TaskDetailModel) renderField(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type taskDetailLoadedMsg struct {
	task *models.Task
}
