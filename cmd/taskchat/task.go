package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and change tasks directly",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update [task-id] field=value...",
	Short: "Update task fields",
	Long: `Applies field changes through the same audited path a confirmed chat
turn uses. Use field=null to clear an optional field.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTaskUpdate,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a task and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var (
	taskProject int64
	taskLimit   int
	taskActor   string
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskUpdateCmd, taskDeleteCmd)

	taskListCmd.Flags().Int64Var(&taskProject, "project", 0, "Only tasks of this project")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 50, "Maximum tasks to list")

	for _, c := range []*cobra.Command{taskUpdateCmd, taskDeleteCmd} {
		c.Flags().StringVar(&taskActor, "as", os.Getenv("USER"), "Username the change is attributed to")
	}
}

func runTaskList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if taskProject > 0 {
		q.Set("projectId", strconv.FormatInt(taskProject, 10))
	} else {
		q.Set("limit", strconv.Itoa(taskLimit))
	}

	var tasks []models.Task
	if err := apiJSON(http.MethodGet, "/tasks?"+q.Encode(), nil, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tPROJECT\tASSIGNEE\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Priority, truncate(t.ProjectName, 20),
			orDash(t.AssigneeUsername), truncate(t.Title, 40))
	}
	return w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	var t models.Task
	if err := apiJSON(http.MethodGet, fmt.Sprintf("/tasks/%d", id), nil, &t); err != nil {
		return err
	}

	fmt.Printf("Task #%d: %s\n", t.ID, t.Title)
	fmt.Printf("  Status:      %s\n", t.Status)
	fmt.Printf("  Priority:    %s\n", t.Priority)
	fmt.Printf("  Project:     %s\n", t.ProjectName)
	fmt.Printf("  Author:      %s\n", orDash(t.AuthorUsername))
	fmt.Printf("  Assignee:    %s\n", orDash(t.AssigneeUsername))
	fmt.Printf("  Tags:        %s\n", orDash(t.Tags))
	fmt.Printf("  Start:       %s\n", formatDate(t.StartDate))
	fmt.Printf("  Due:         %s\n", formatDate(t.DueDate))
	if t.Points != nil {
		fmt.Printf("  Points:      %d\n", *t.Points)
	}
	if t.Description != "" {
		fmt.Printf("  Description: %s\n", t.Description)
	}

	if len(t.Activities) > 0 {
		fmt.Println("\nHistory:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  WHEN\tFIELD\tFROM\tTO")
		for _, a := range t.Activities {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Field,
				truncate(orDash(deref(a.OldValue)), 30), truncate(orDash(deref(a.NewValue)), 30))
		}
		return w.Flush()
	}
	return nil
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	fields := make(map[string]any, len(args)-1)
	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("expected field=value, got %q", kv)
		}
		if v == "null" {
			fields[k] = nil
			continue
		}
		fields[k] = v
	}
	actor, err := resolveActor(taskActor)
	if err != nil {
		return err
	}

	var out engine.Outcome
	if err := apiJSON(http.MethodPatch, fmt.Sprintf("/tasks/%d", id), map[string]any{
		"actorUserId": actor,
		"fields":      fields,
	}, &out); err != nil {
		return err
	}
	fmt.Println(out.Message)
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	actor, err := resolveActor(taskActor)
	if err != nil {
		return err
	}

	var out engine.Outcome
	if err := apiJSON(http.MethodDelete, fmt.Sprintf("/tasks/%d?actorUserId=%d", id, actor), nil, &out); err != nil {
		return err
	}
	fmt.Println(out.Message)
	return nil
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
