package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for slash commands and @ references.
type Suggestions struct {
	items        []SuggestionItem
	filtered     []SuggestionItem
	refs         []SuggestionItem
	selectedIdx  int
	visible      bool
	prefix       string // "/" or "@"
	currentInput string
}

// SuggestionItem represents a single autocomplete suggestion.
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command", "user", "project"
}

var commandSuggestions = []SuggestionItem{
	{Text: "/as", Description: "Act as a user: /as <username>", Type: "command"},
	{Text: "/project", Description: "Set the current project: /project <name>", Type: "command"},
	{Text: "/confirm", Description: "Run the pending action", Type: "command"},
	{Text: "/fill", Description: "Fill missing fields and run the pending action", Type: "command"},
	{Text: "/cancel", Description: "Drop the pending action", Type: "command"},
	{Text: "/tasks", Description: "Browse tasks", Type: "command"},
	{Text: "/clear", Description: "Start a new conversation", Type: "command"},
	{Text: "/quit", Description: "Exit", Type: "command"},
}

// NewSuggestions creates a new suggestions handler.
func NewSuggestions() *Suggestions {
	return &Suggestions{items: commandSuggestions}
}

// SetReferences replaces the @ candidates with the known users and projects.
func (s *Suggestions) SetReferences(usernames, projects []string) {
	s.refs = s.refs[:0]
	for _, u := range usernames {
		s.refs = append(s.refs, SuggestionItem{Text: "@" + u, Description: "user", Type: "user"})
	}
	for _, p := range projects {
		s.refs = append(s.refs, SuggestionItem{Text: "@" + p, Description: "project", Type: "project"})
	}
}

// Update recomputes suggestions for the current input. Commands are offered
// at the start of the line; references for the word being typed after "@".
func (s *Suggestions) Update(input string) {
	s.currentInput = input
	word := lastWord(input)
	switch {
	case strings.HasPrefix(input, "/") && !strings.Contains(input, " "):
		s.prefix = "/"
		s.items = commandSuggestions
	case strings.HasPrefix(word, "@"):
		s.prefix = "@"
		s.items = s.refs
	default:
		s.visible = false
		s.filtered = nil
		s.prefix = ""
		return
	}
	s.visible = true
	s.filter(strings.ToLower(word))
}

// Complete returns input with the word being typed replaced by the
// selected suggestion.
func (s *Suggestions) Complete(input string) string {
	sel := s.Selected()
	if sel == nil {
		return input
	}
	word := lastWord(input)
	return input[:len(input)-len(word)] + sel.Text + " "
}

func lastWord(input string) string {
	if i := strings.LastIndexByte(input, ' '); i >= 0 {
		return input[i+1:]
	}
	return input
}

func (s *Suggestions) filter(query string) {
	s.selectedIdx = 0
	if query == s.prefix {
		s.filtered = s.items
		return
	}
	s.filtered = []SuggestionItem{}
	for _, item := range s.items {
		if strings.HasPrefix(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
}

// Next moves to the next suggestion.
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion.
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion.
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible returns whether suggestions are currently visible.
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown.
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	suggestionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	itemStyle := lipgloss.NewStyle().Foreground(fgColor)
	descStyle := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	header := "Commands"
	if s.prefix == "@" {
		header = "References"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	const maxVisible = 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}
		var line string
		if i == s.selectedIdx {
			line = selectedStyle.Render("▶ "+item.Text) + " " + selectedStyle.Render(item.Description)
		} else {
			line = itemStyle.Render("  "+item.Text) + " " + descStyle.Render(item.Description)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return suggestionStyle.Render(b.String())
}
