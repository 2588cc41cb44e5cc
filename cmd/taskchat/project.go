package main

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskchat/internal/models"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a new project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE:  runProjectList,
}

var projectDesc string

func init() {
	projectCmd.AddCommand(projectAddCmd, projectListCmd)
	projectAddCmd.Flags().StringVar(&projectDesc, "desc", "", "Project description")
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	var p models.Project
	if err := apiJSON(http.MethodPost, "/projects", map[string]string{
		"name":        args[0],
		"description": projectDesc,
	}, &p); err != nil {
		return err
	}
	fmt.Printf("Created project #%d: %s\n", p.ID, p.Name)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	var projects []models.Project
	if err := apiJSON(http.MethodGet, "/projects", nil, &projects); err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, p := range projects {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, truncate(p.Name, 30), truncate(p.Description, 50))
	}
	return w.Flush()
}
