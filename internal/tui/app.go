// Package tui provides the interactive terminal chat client for taskchat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/fentz26/taskchat/internal/conversation"
	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/resolver"
	"github.com/fentz26/taskchat/internal/turn"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true)

	userStyle      = lipgloss.NewStyle().Foreground(cyanColor).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(warningColor)
	onlineStyle    = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle   = lipgloss.NewStyle().Foreground(errorColor)
)

const (
	modeChat   = "chat"
	modeTasks  = "tasks"
	modeDetail = "detail"
)

// Options configures the chat client.
type Options struct {
	APIAddr string
	// Actor is the username mutations are attributed to.
	Actor string
	// HistoryPath, when set, persists the conversation between sessions.
	HistoryPath   string
	HistoryWindow int
	Logger        *zap.Logger
}

// App is the main TUI application model.
type App struct {
	client      *Client
	log         *zap.Logger
	convo       *conversation.Log
	historyPath string

	input       textinput.Model
	viewport    viewport.Model
	taskList    *TaskListModel
	taskDetail  *TaskDetailModel
	suggestions *Suggestions

	width, height int
	mode          string
	message       string
	busy          bool
	daemonOnline  bool

	actorName string
	actor     *models.User
	project   *models.Project
	users     []models.User
	projects  []models.Project

	// pending is the last actionable turn awaiting confirmation.
	pending     *engine.TurnResult
	pendingTurn string
}

// New creates a new TUI application.
func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ti := textinput.New()
	ti.Placeholder = "Ask me to create, update or delete a task... (/ for commands)"
	ti.Focus()
	ti.CharLimit = 1000
	ti.Width = 80

	client := NewClient(opts.APIAddr)
	a := &App{
		client:      client,
		log:         opts.Logger,
		convo:       conversation.NewLog(opts.HistoryWindow),
		historyPath: opts.HistoryPath,
		input:       ti,
		viewport:    viewport.New(80, 20),
		taskList:    NewTaskListModel(client),
		taskDetail:  NewTaskDetailModel(client),
		suggestions: NewSuggestions(),
		mode:        modeChat,
		actorName:   opts.Actor,
	}
	if a.historyPath != "" {
		if err := a.convo.Load(a.historyPath); err != nil {
			a.message = "Error: " + err.Error()
		}
	}
	a.refreshTranscript()
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.checkDaemon(),
		a.loadDirectory(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if model, cmd, handled := a.handleKey(msg); handled {
			return model, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-9, 3)
		a.taskList.SetSize(msg.Width, max(msg.Height-6, 3))
		a.taskDetail.SetSize(max(msg.Height-6, 3))
		a.refreshTranscript()

	case directoryLoadedMsg:
		a.users = msg.users
		a.projects = msg.projects
		a.bindActor()
		names := make([]string, len(a.projects))
		for i, p := range a.projects {
			names[i] = p.Name
		}
		usernames := make([]string, len(a.users))
		for i, u := range a.users {
			usernames[i] = u.Username
		}
		a.suggestions.SetReferences(usernames, names)

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case chatResultMsg:
		a.busy = false
		a.onChatResult(msg.result)

	case confirmResultMsg:
		a.busy = false
		a.onConfirmResult(msg.outcome)

	case tasksLoadedMsg:
		a.taskList, _ = a.taskList.Update(msg)
		return a, nil

	case taskDetailLoadedMsg:
		a.taskDetail, _ = a.taskDetail.Update(msg)
		return a, nil

	case errMsg:
		a.busy = false
		a.message = "Error: " + msg.err.Error()
		if a.pendingTurn != "" && msg.confirming {
			a.settle(conversation.OutcomeFailed, msg.err.Error())
		} else if msg.chatting {
			a.say(msg.err.Error(), nil)
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.suggestions.Update(a.input.Value())

	return a, tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit, true

	case "esc":
		switch a.mode {
		case modeDetail:
			a.mode = modeTasks
		case modeTasks:
			a.mode = modeChat
		default:
			a.suggestions.Update("")
		}
		return a, nil, true

	case "ctrl+y":
		return a, a.confirm(false), true

	case "ctrl+f":
		return a, a.confirm(true), true
	}

	switch a.mode {
	case modeTasks:
		if msg.String() == "enter" {
			if t := a.taskList.SelectedTask(); t != nil {
				a.mode = modeDetail
				a.taskDetail.SetTask(t.ID)
				return a, a.taskDetail.Refresh(), true
			}
		}
		var cmd tea.Cmd
		a.taskList, cmd = a.taskList.Update(msg)
		return a, cmd, true
	case modeDetail:
		var cmd tea.Cmd
		a.taskDetail, cmd = a.taskDetail.Update(msg)
		return a, cmd, true
	}

	switch msg.String() {
	case "up":
		if a.suggestions.IsVisible() {
			a.suggestions.Prev()
			return a, nil, true
		}
		a.viewport.LineUp(1)
		return a, nil, true

	case "down":
		if a.suggestions.IsVisible() {
			a.suggestions.Next()
			return a, nil, true
		}
		a.viewport.LineDown(1)
		return a, nil, true

	case "tab":
		if a.suggestions.IsVisible() {
			a.input.SetValue(a.suggestions.Complete(a.input.Value()))
			a.input.CursorEnd()
			a.suggestions.Update("")
		}
		return a, nil, true

	case "enter":
		text := strings.TrimSpace(a.input.Value())
		if text == "" {
			return a, nil, true
		}
		a.input.SetValue("")
		a.suggestions.Update("")
		if strings.HasPrefix(text, "/") {
			return a, a.runCommand(text), true
		}
		return a, a.send(text), true
	}
	return nil, nil, false
}

// send records the user turn and submits it with the history that preceded it.
func (a *App) send(text string) tea.Cmd {
	if a.busy {
		a.message = "Still working on the last message..."
		return nil
	}
	history := a.convo.History()
	a.convo.Append(conversation.RoleUser, text, nil)
	a.save()
	a.refreshTranscript()
	a.busy = true
	a.message = "Thinking..."

	req := engine.TurnRequest{Message: text, History: history}
	if a.project != nil {
		id := a.project.ID
		req.CurrentProjectID = &id
	}
	return func() tea.Msg {
		res, err := a.client.Chat(context.Background(), req)
		if err != nil {
			return errMsg{err: err, chatting: true}
		}
		return chatResultMsg{res}
	}
}

func (a *App) onChatResult(res *engine.TurnResult) {
	a.message = ""
	c := res.Classification
	extracted := res.Extracted
	reply := c.Message
	if c.Actionable() {
		a.pending = res
		if c.State == turn.StateBlockedMissingFields {
			reply += "  [Ctrl+F fill & run · /cancel]"
		} else {
			reply += "  [Ctrl+Y confirm · /cancel]"
		}
		a.pendingTurn = a.say(reply, &extracted)
		return
	}
	a.pending = nil
	a.pendingTurn = ""
	a.say(reply, nil)
}

func (a *App) confirm(autoFill bool) tea.Cmd {
	if a.pending == nil {
		a.message = "Nothing to confirm."
		return nil
	}
	if a.busy {
		return nil
	}
	if !autoFill && a.pending.Classification.State == turn.StateBlockedMissingFields {
		a.message = "Some fields are missing. Press Ctrl+F to fill them in and run."
		return nil
	}
	if a.actor == nil {
		a.message = "Choose who you are first: /as <username>"
		return nil
	}
	req := engine.ConfirmRequest{
		TurnID:      a.pending.TurnID,
		Intent:      a.pending.Extracted,
		ActorUserID: a.actor.ID,
		AutoFill:    autoFill,
	}
	if a.project != nil {
		id := a.project.ID
		req.CurrentProjectID = &id
	}
	a.busy = true
	a.message = "Working..."
	return func() tea.Msg {
		out, err := a.client.Confirm(context.Background(), req)
		if err != nil {
			return errMsg{err: err, confirming: true}
		}
		return confirmResultMsg{out}
	}
}

func (a *App) onConfirmResult(out *engine.Outcome) {
	a.message = ""
	a.settle(conversation.OutcomeCompleted, out.Message)
}

// settle closes the pending turn with outcome and reports text.
func (a *App) settle(outcome conversation.Outcome, text string) {
	if a.pendingTurn != "" {
		if err := a.convo.SetOutcome(a.pendingTurn, outcome); err != nil {
			a.log.Warn("set outcome", zap.Error(err))
		}
	}
	a.pending = nil
	a.pendingTurn = ""
	a.say(text, nil)
}

// say appends an assistant turn and returns its id. A turn carrying an
// intent stays pending until confirmed or cancelled.
func (a *App) say(text string, in *intent.Intent) string {
	t := a.convo.Append(conversation.RoleAssistant, text, in)
	a.save()
	a.refreshTranscript()
	return t.ID
}

func (a *App) save() {
	if a.historyPath == "" {
		return
	}
	if err := a.convo.Save(a.historyPath); err != nil {
		a.message = "Error: " + err.Error()
	}
}

func (a *App) runCommand(text string) tea.Cmd {
	fields := strings.Fields(text)
	arg := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	switch fields[0] {
	case "/as":
		a.actorName = arg
		a.bindActor()
		if a.actor == nil {
			a.message = fmt.Sprintf("Unknown user %q", arg)
			return a.loadDirectory()
		}
		a.message = "Acting as " + a.actor.Username
	case "/project":
		if arg == "" {
			a.project = nil
			a.message = "Cleared the current project"
			break
		}
		dir := resolver.NewDirectory(a.projects, nil)
		id, ok := dir.ResolveProject(arg)
		if !ok {
			a.message = fmt.Sprintf("Unknown project %q", arg)
			return a.loadDirectory()
		}
		for i := range a.projects {
			if a.projects[i].ID == id {
				a.project = &a.projects[i]
			}
		}
		a.message = "Current project: " + a.project.Name
	case "/confirm":
		return a.confirm(false)
	case "/fill":
		return a.confirm(true)
	case "/cancel":
		if a.pending == nil {
			a.message = "Nothing to cancel."
			break
		}
		a.settle(conversation.OutcomeFailed, "Okay, I won't do that.")
	case "/tasks":
		a.mode = modeTasks
		if a.project != nil {
			a.taskList.SetProject(a.project.ID)
		} else {
			a.taskList.SetProject(0)
		}
		return a.taskList.Refresh()
	case "/clear":
		a.convo = conversation.NewLog(0)
		a.pending = nil
		a.pendingTurn = ""
		a.save()
		a.refreshTranscript()
		a.message = "Started a new conversation"
	case "/quit", "/exit":
		return tea.Quit
	default:
		a.message = fmt.Sprintf("Unknown command %s", fields[0])
	}
	return nil
}

// bindActor resolves actorName against the loaded users.
func (a *App) bindActor() {
	a.actor = nil
	if a.actorName == "" {
		return
	}
	dir := resolver.NewDirectory(nil, a.users)
	id, ok := dir.ResolveUser(a.actorName)
	if !ok {
		return
	}
	for i := range a.users {
		if a.users[i].ID == id {
			a.actor = &a.users[i]
		}
	}
}

func (a *App) refreshTranscript() {
	a.viewport.SetContent(renderTranscript(a.convo.Turns(), a.width))
	a.viewport.GotoBottom()
}

func renderTranscript(turns []conversation.Turn, width int) string {
	if len(turns) == 0 {
		return "\n  Say something like \"create a task called Fix Login Bug in Apollo\".\n"
	}
	wrap := lipgloss.NewStyle().Width(max(width-4, 20))
	var b strings.Builder
	for _, t := range turns {
		label := assistantStyle.Render("taskchat")
		if t.Role == conversation.RoleUser {
			label = userStyle.Render("you")
		}
		text := t.Text
		if t.Outcome == conversation.OutcomePending {
			text = pendingStyle.Render(text)
		}
		b.WriteString(wrap.Render(label + "  " + text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	daemon := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemon = offlineStyle.Render("○ DAEMON")
	}
	who := lipgloss.NewStyle().Foreground(mutedColor).Render("○ no user (/as <name>)")
	if a.actor != nil {
		who = lipgloss.NewStyle().Foreground(successColor).Render("● " + a.actor.Username)
	}
	project := ""
	if a.project != nil {
		project = "  " + lipgloss.NewStyle().Foreground(cyanColor).Render("["+a.project.Name+"]")
	}
	b.WriteString(titleStyle.Render("taskchat") + "  " + daemon + "  " + who + project + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	switch a.mode {
	case modeTasks:
		b.WriteString(a.taskList.View())
	case modeDetail:
		b.WriteString(a.taskDetail.View())
	default:
		b.WriteString(a.viewport.View())
	}

	if a.message != "" {
		style := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			style = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + style.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	if a.mode == modeChat {
		b.WriteString("\n" + inputBoxStyle.Render(a.input.View()))
		if a.suggestions.IsVisible() {
			b.WriteString("\n" + a.suggestions.Render(a.width))
		}
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeTasks:
		status = " ↑↓:nav | Enter:details | f:filter | r:refresh | Esc:chat"
	case modeDetail:
		status = " ↑↓:scroll | r:refresh | Esc:back"
	default:
		status = fmt.Sprintf(" Turns: %d | Enter:send | Ctrl+Y:confirm | Ctrl+F:fill & run | /tasks | Ctrl+C:quit", a.convo.Len())
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))
	return b.String()
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, err := a.client.CheckHealth(context.Background())
		return daemonStatusMsg{online: err == nil && ok}
	}
}

func (a *App) loadDirectory() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		users, err := a.client.ListUsers(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		projects, err := a.client.ListProjects(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return directoryLoadedMsg{users: users, projects: projects}
	}
}

type errMsg struct {
	err        error
	chatting   bool
	confirming bool
}

type daemonStatusMsg struct {
	online bool
}

type directoryLoadedMsg struct {
	users    []models.User
	projects []models.Project
}

type chatResultMsg struct {
	result *engine.TurnResult
}

type confirmResultMsg struct {
	outcome *engine.Outcome
}
