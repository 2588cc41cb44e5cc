package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/taskchat/internal/config"
	"github.com/fentz26/taskchat/internal/logging"
	"github.com/fentz26/taskchat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"tui"},
	Short:   "Launch the interactive chat",
	RunE:    runChat,
}

var chatActor string

func init() {
	chatCmd.Flags().StringVar(&chatActor, "as", os.Getenv("USER"), "Username changes are attributed to")
}

func runChat(cmd *cobra.Command, args []string) error {
	if !isDaemonRunning(apiAddr) {
		fmt.Println("taskchat daemon not running. Starting background service...")
		if err := startDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	// The alternate screen owns the terminal, so logs go to a file.
	logCfg := cfg.Logging
	if logCfg.File == "" {
		logCfg.File = filepath.Join(config.Dir(), "chat.log")
	}
	if err := os.MkdirAll(filepath.Dir(logCfg.File), 0755); err != nil {
		return err
	}
	chatLog, err := logging.New(logCfg, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = chatLog.Sync() }()

	app := tui.New(tui.Options{
		APIAddr:       apiAddr,
		Actor:         chatActor,
		HistoryPath:   cfg.Conversation.Path,
		HistoryWindow: cfg.Conversation.HistoryWindow,
		Logger:        chatLog.Named("chat"),
	})
	if err := app.Run(); err != nil {
		chatLog.Error("chat ended with error", zap.Error(err))
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning(addr string) bool {
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"daemon"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(exe, args...)
	// Detach so the daemon survives the chat session.
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	logger.Debug("daemon started", zap.Int("pid", cmd.Process.Pid))

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ {
		if isDaemonRunning(apiAddr) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
