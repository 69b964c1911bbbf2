package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/viewcache/internal/config"
	"github.com/unkn0wn-root/viewcache/internal/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "poolwatch",
		Short: "Inspect the compute nodes of a pool",
		Long: `poolwatch lists and watches the nodes of a compute pool. Responses are
cached in memory, ristretto, bigcache or redis, so repeated runs against a
shared redis start from the last known state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-dir", ".", "directory holding the .env file")
	root.AddCommand(newNodesCmd(), newNodeCmd())
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	// commands may fail before their logger exists
	l, logErr := logger.New(config.LogConfig{Level: "debug", Format: "console"})
	if logErr == nil {
		l.Error("command failed", zap.Error(err))
		_ = l.Sync()
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// withStack loads config, builds the cache stack and runs fn with it. The
// stack is closed when fn returns.
func withStack(cmd *cobra.Command, fn func(ctx context.Context, s *stack) error) error {
	dir, _ := cmd.Flags().GetString("env-dir")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ctx := cmd.Context()
	s, err := newStack(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer s.Close(context.WithoutCancel(ctx))
	return fn(ctx, s)
}
