package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskchat/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Add a new user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUserList,
}

var userEmail string

func init() {
	userCmd.AddCommand(userAddCmd, userListCmd)
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	var u models.User
	if err := apiJSON(http.MethodPost, "/users", map[string]string{
		"username": args[0],
		"email":    userEmail,
	}, &u); err != nil {
		return err
	}
	fmt.Printf("Created user #%d: %s\n", u.ID, u.Username)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	users, err := listUsers()
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Username, u.Email)
	}
	return w.Flush()
}

func listUsers() ([]models.User, error) {
	var users []models.User
	if err := apiJSON(http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// resolveActor maps a username to its id, case-insensitively.
func resolveActor(name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("no acting user; pass --as <username>")
	}
	users, err := listUsers()
	if err != nil {
		return 0, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, name) {
			return u.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown user %q; add it with 'taskchat user add %s'", name, name)
}
