package gateway

import (
	"strings"
	"time"

	"github.com/fentz26/taskchat/internal/conversation"
	"github.com/fentz26/taskchat/internal/models"
)

const instructions = `You turn chat messages about a project board into exactly one task action.

Reply with ONE JSON object and nothing else, using these keys:
{
  "action": "create" | "update" | "delete",
  "taskId": number | null,
  "projectId": number | null,
  "projectName": string | null,
  "title": string | null,
  "description": string | null,
  "status": "To Do" | "Work In Progress" | "Under Review" | "Completed" | null,
  "priority": "Urgent" | "High" | "Medium" | "Low" | "Backlog" | null,
  "tags": string | null,
  "startDate": "YYYY-MM-DD" | null,
  "dueDate": "YYYY-MM-DD" | null,
  "assignee": string | null,
  "assigneeUserId": number | null,
  "updatedFields": object | null,
  "deleteReason": string | null,
  "needsClarification": boolean,
  "followUpQuestion": string | null
}

Rules:
1. Use "create" unless the message clearly refers to a task that exists in RECENT TASKS (by id, title or project).
2. Use "update" only for an existing task. Put exactly the fields the user wants changed in "updatedFields", keyed by the names above.
3. Use "delete" only when the user explicitly asks to delete or remove a task.
4. For "update" and "delete", copy every known field of the referenced task into the reply unless the user overrides it. Never blank out known values.
5. For "create", fill in realistic values for anything the user did not say instead of leaving fields empty.
6. Prefer users and projects listed below. If no user fits, set "assignee" to "Unassigned"; if no project fits, set "projectId" to null.
7. If you cannot tell what the user wants, set "needsClarification" to true and ask one short question in "followUpQuestion".
8. Write every date as YYYY-MM-DD.`

// BuildPrompt assembles the single prompt sent for one turn.
func BuildPrompt(grounding string, history []conversation.Message, message string, today time.Time) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nToday is ")
	b.WriteString(today.Format(models.DateLayout))
	b.WriteString(".\n\n")
	b.WriteString(grounding)
	b.WriteString("\n\nCONVERSATION SO FAR:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\nUSER MESSAGE:\n")
	b.WriteString(strings.TrimSpace(message))
	b.WriteString("\n")
	return b.String()
}

func renderHistory(history []conversation.Message) string {
	if len(history) == 0 {
		return "No prior conversation."
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+strings.TrimSpace(m.Content))
	}
	return strings.Join(lines, "\n")
}
