package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/turn"
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one request and optionally apply it",
	Long: `Sends a single plain-language request to the daemon, shows the task
action it was understood as, and applies it after confirmation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askActor   string
	askProject int64
	askYes     bool
	askFill    bool
)

func init() {
	askCmd.Flags().StringVar(&askActor, "as", os.Getenv("USER"), "Username the change is attributed to")
	askCmd.Flags().Int64Var(&askProject, "project", 0, "Current project id")
	askCmd.Flags().BoolVarP(&askYes, "yes", "y", false, "Apply without prompting")
	askCmd.Flags().BoolVar(&askFill, "fill", false, "Auto-fill missing fields on create")
}

func runAsk(cmd *cobra.Command, args []string) error {
	req := engine.TurnRequest{Message: strings.Join(args, " ")}
	if askProject > 0 {
		req.CurrentProjectID = &askProject
	}

	var res engine.TurnResult
	if err := apiJSON(http.MethodPost, "/ai/chat", req, &res); err != nil {
		return err
	}
	printIntent(cmd.OutOrStdout(), res.Extracted)
	fmt.Fprintln(cmd.OutOrStdout(), res.Classification.Message)

	c := res.Classification
	if !c.Actionable() {
		return nil
	}
	if c.State == turn.StateBlockedMissingFields && !askFill {
		fmt.Fprintln(cmd.OutOrStdout(), "Re-run with --fill to complete the missing fields automatically.")
		return nil
	}
	if !askYes && !promptYes(cmd.InOrStdin(), cmd.OutOrStdout(), "Apply? [y/N] ") {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	actor, err := resolveActor(askActor)
	if err != nil {
		return err
	}
	var out engine.Outcome
	if err := apiJSON(http.MethodPost, "/ai/confirm", engine.ConfirmRequest{
		TurnID:           res.TurnID,
		Intent:           res.Extracted,
		ActorUserID:      actor,
		CurrentProjectID: req.CurrentProjectID,
		AutoFill:         askFill,
	}, &out); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Message)
	return nil
}

func printIntent(w io.Writer, in intent.Intent) {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(w, string(data))
}

func promptYes(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprint(w, prompt)
	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
