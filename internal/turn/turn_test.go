package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/models"
)

func id(v int64) *int64 { return &v }

func completeCreate() intent.Intent {
	return intent.Intent{
		Action: intent.ActionCreate, Title: "Fix Login Bug", Description: "d",
		Status: models.StatusToDo, Priority: models.PriorityHigh, Tags: "bug",
		StartDate: "2025-06-01", DueDate: "2025-06-20", Assignee: "alice",
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		in      intent.Intent
		state   State
		message string
	}{
		{"update without id", intent.Intent{Action: intent.ActionUpdate}, StateBlockedMissingID, MsgUpdateNeedsID},
		{"delete without id", intent.Intent{Action: intent.ActionDelete}, StateBlockedMissingID, MsgDeleteNeedsID},
		{"missing id beats clarification", intent.Intent{Action: intent.ActionDelete, NeedsClarification: true, FollowUpQuestion: "Which?"}, StateBlockedMissingID, MsgDeleteNeedsID},
		{"clarification", intent.Intent{Action: intent.ActionUpdate, TaskID: id(3), NeedsClarification: true, FollowUpQuestion: "Which field?"}, StateBlockedClarification, "Which field?"},
		{"clarification default text", func() intent.Intent { in := completeCreate(); in.NeedsClarification = true; return in }(), StateBlockedClarification, MsgClarifyDefault},
		{"ready update", intent.Intent{Action: intent.ActionUpdate, TaskID: id(42)}, StateReady, "Ready to update task #42."},
		{"ready delete", intent.Intent{Action: intent.ActionDelete, TaskID: id(7)}, StateReady, "Ready to delete task #7."},
		{"ready create", completeCreate(), StateReady, `Ready to create "Fix Login Bug".`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.in)
			assert.Equal(t, tt.state, c.State)
			assert.Equal(t, tt.message, c.Message)
		})
	}
}

func TestClassify_MissingFields(t *testing.T) {
	c := Classify(intent.Intent{Title: "Fix Login Bug"})
	assert.Equal(t, intent.ActionCreate, c.Action)
	assert.Equal(t, StateBlockedMissingFields, c.State)
	assert.Equal(t, []string{"description", "status", "priority", "tags", "startDate", "dueDate", "assignee"}, c.Missing)
	assert.True(t, c.Actionable())
}

// Scenario: "assign this to Alice" with no task reference.
func TestClassify_AssignWithoutTask(t *testing.T) {
	in := intent.Intent{Action: intent.ActionUpdate, Assignee: "Alice", UpdatedFields: map[string]any{"assignee": "Alice"}}
	c := Classify(in)
	assert.Equal(t, StateBlockedMissingID, c.State)
	assert.False(t, c.Actionable())
}

func TestMachine_ReadyToCompleted(t *testing.T) {
	m, err := NewMachine(Classify(completeCreate()), false)
	require.NoError(t, err)
	assert.Equal(t, StateReady, m.State())

	require.NoError(t, m.Confirm())
	assert.Equal(t, StateExecuting, m.State())
	require.NoError(t, m.Succeed())
	assert.Equal(t, StateCompleted, m.State())

	assert.Error(t, m.Fail(), "completed is terminal")
}

func TestMachine_AutoFillPath(t *testing.T) {
	m, err := NewMachine(Classify(intent.Intent{}), false)
	require.NoError(t, err)
	assert.Equal(t, StateBlockedMissingFields, m.State())

	assert.Error(t, m.Confirm(), "cannot confirm before auto-fill")
	require.NoError(t, m.AutoFill())
	require.NoError(t, m.Confirm())
	require.NoError(t, m.Fail())
	assert.Equal(t, StateFailed, m.State())
}

func TestMachine_BlockedStatesNeverExecute(t *testing.T) {
	blocked := []intent.Intent{
		{Action: intent.ActionUpdate},
		{Action: intent.ActionUpdate, TaskID: id(1), NeedsClarification: true},
		func() intent.Intent { in := completeCreate(); in.NeedsClarification = true; return in }(),
	}
	for _, in := range blocked {
		m, err := NewMachine(Classify(in), in.NeedsClarification)
		require.NoError(t, err)
		assert.Error(t, m.AutoFill())
		assert.Error(t, m.Confirm())
		assert.NotEqual(t, StateExecuting, m.State())
	}
}

func TestMachine_ConfirmGuardedByClarification(t *testing.T) {
	// A ready classification paired with a clarification flag cannot even
	// reach ready.
	_, err := NewMachine(Classification{State: StateReady}, true)
	assert.Error(t, err)
}
