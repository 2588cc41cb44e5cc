package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/taskchat/internal/api"
	"github.com/fentz26/taskchat/internal/completion"
	"github.com/fentz26/taskchat/internal/config"
	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/store"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the taskchat daemon",
	Long:  `Starts the taskchat daemon which serves the chat, confirm and task HTTP API.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting taskchat daemon",
		zap.String("listen", cfg.Server.Listen),
		zap.String("driver", cfg.Store.Driver),
		zap.String("provider", cfg.LLM.Provider))

	if cfg.Store.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		logger.Info("closing database connection")
		if err := s.Close(); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	eng := engine.New(s, provider, logger, engine.Options{
		TaskLimit:     cfg.Snapshot.TaskLimit,
		HistoryWindow: cfg.Conversation.HistoryWindow,
		Completion: completion.Options{
			StartOffsetDays: cfg.Completion.StartOffsetDays,
			DueOffsetDays:   cfg.Completion.DueOffsetDays,
			SpreadDays:      cfg.Completion.SpreadDays,
			Vocabulary:      &completion.DefaultVocabulary,
		},
	})
	server := api.NewServer(eng, s, cfg.Server.Listen, logger, api.Options{
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	})

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped with error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newProvider builds the configured model provider, bounded by the LLM
// timeout and logged.
func newProvider(ctx context.Context, c *config.Config) (llm.Provider, error) {
	var p llm.Provider
	switch c.LLM.Provider {
	case "gemini":
		g, err := llm.NewGeminiProvider(ctx, c.LLM.APIKey, c.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		p = g
	case "mock":
		p = llm.NewStaticMockProvider(c.LLM.MockReply)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.LLM.Provider)
	}
	return llm.WithLogging(llm.WithTimeout(p, c.LLMTimeout()), logger), nil
}
