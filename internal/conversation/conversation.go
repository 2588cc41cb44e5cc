// Package conversation holds the client-side log of chat turns. It exists for
// display continuity and prompt context only; no mutation depends on it.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fentz26/taskchat/internal/intent"
)

// DefaultWindow is the number of trailing turns replayed into prompts.
const DefaultWindow = 12

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts "user" and "assistant" (also "ai" and "model").
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "assistant", "ai", "model":
		return RoleAssistant, true
	}
	return "", false
}

// Outcome is the resolution state of a turn's intent.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// ErrTurnNotFound is returned by SetOutcome for an unknown turn id.
var ErrTurnNotFound = errors.New("turn not found")

// Message is one history entry as sent to the server.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one entry in the log.
type Turn struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Intent    *intent.Intent `json:"intent,omitempty"`
	Outcome   Outcome        `json:"outcome,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Log is an append-only, concurrency-safe sequence of turns.
type Log struct {
	mu     sync.RWMutex
	turns  []Turn
	window int
}

// NewLog returns an empty log replaying at most window turns.
func NewLog(window int) *Log {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Log{window: window}
}

// Append adds a turn. A turn carrying an intent starts out pending.
func (l *Log) Append(role Role, text string, in *intent.Intent) Turn {
	t := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Intent:    in,
		CreatedAt: time.Now().UTC(),
	}
	if in != nil {
		t.Outcome = OutcomePending
	}
	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.mu.Unlock()
	return t
}

// SetOutcome records the resolution of the turn with id.
func (l *Log) SetOutcome(id string, o Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.turns {
		if l.turns[i].ID == id {
			l.turns[i].Outcome = o
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, ErrTurnNotFound)
}

// Turns returns a copy of every turn in arrival order.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// History returns the trailing window of turns as prompt messages.
func (l *Log) History() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Window(toMessages(l.turns), l.window)
}

func toMessages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: t.Role, Content: t.Text})
	}
	return out
}

// Window returns the last n messages.
func Window(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// Save writes the log to path as JSON, replacing the file atomically.
func (l *Log) Save(path string) error {
	l.mu.RLock()
	data, err := json.MarshalIndent(l.turns, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create conversation directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the log's turns with those stored at path. A missing file
// leaves the log empty.
func (l *Log) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read conversation: %w", err)
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return fmt.Errorf("parse conversation: %w", err)
	}
	l.mu.Lock()
	l.turns = turns
	l.mu.Unlock()
	return nil
}
