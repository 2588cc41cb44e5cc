// Package turn classifies an extracted intent and tracks the turn through its
// lifecycle: blocked, ready, executing, then completed or failed.
package turn

import (
	"fmt"
	"strings"

	"github.com/fentz26/taskchat/internal/completion"
	"github.com/fentz26/taskchat/internal/intent"
)

// State is a turn lifecycle state.
type State string

// These must remain plain strings for statekit.StateID conversion.
const (
	StateExtracted            State = "extracted"
	StateBlockedMissingID     State = "blocked_missing_id"
	StateBlockedClarification State = "blocked_clarification"
	StateBlockedMissingFields State = "blocked_missing_fields"
	StateReady                State = "ready"
	StateExecuting            State = "executing"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// User-facing messages for blocked turns.
const (
	MsgUpdateNeedsID  = "I need the task ID to perform an update."
	MsgDeleteNeedsID  = "I need the task ID to delete it."
	MsgClarifyDefault = "Could you tell me a bit more about what you'd like to do?"
)

// Classification is the verdict on one intent.
type Classification struct {
	Action  intent.Action `json:"action"`
	State   State         `json:"state"`
	Missing []string      `json:"missing,omitempty"`
	Message string        `json:"message"`
}

// Actionable reports whether the user can trigger execution from here, either
// directly or through auto-fill.
func (c Classification) Actionable() bool {
	return c.State == StateReady || c.State == StateBlockedMissingFields
}

// Classify decides what can happen next with in. Update and delete without a
// task id block first; a clarification request blocks next; a create with
// blank required fields waits for auto-fill; anything else is ready for
// confirmation. Nothing is ever executed without a confirmation.
func Classify(in intent.Intent) Classification {
	action := in.Action
	if action == "" {
		action = intent.ActionCreate
	}
	c := Classification{Action: action}

	switch {
	case action == intent.ActionUpdate && in.TaskID == nil:
		c.State, c.Message = StateBlockedMissingID, MsgUpdateNeedsID
	case action == intent.ActionDelete && in.TaskID == nil:
		c.State, c.Message = StateBlockedMissingID, MsgDeleteNeedsID
	case in.NeedsClarification:
		c.State = StateBlockedClarification
		c.Message = strings.TrimSpace(in.FollowUpQuestion)
		if c.Message == "" {
			c.Message = MsgClarifyDefault
		}
	case action == intent.ActionCreate && len(completion.MissingFields(in)) > 0:
		c.State = StateBlockedMissingFields
		c.Missing = completion.MissingFields(in)
		c.Message = fmt.Sprintf("Some details are missing (%s). I can fill them in and create the task.", strings.Join(c.Missing, ", "))
	default:
		c.State = StateReady
		c.Message = readyMessage(action, in)
	}
	return c
}

func readyMessage(action intent.Action, in intent.Intent) string {
	switch action {
	case intent.ActionUpdate:
		return fmt.Sprintf("Ready to update task #%d.", *in.TaskID)
	case intent.ActionDelete:
		return fmt.Sprintf("Ready to delete task #%d.", *in.TaskID)
	default:
		return fmt.Sprintf("Ready to create %q.", in.Title)
	}
}
