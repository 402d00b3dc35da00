package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/config"
	"github.com/rosiefs/rosie/internal/executor"
	"github.com/rosiefs/rosie/internal/pipeline"
	"github.com/rosiefs/rosie/internal/plan"
	"github.com/rosiefs/rosie/internal/store"
)

// setupLogging installs the default slog logger per the verbose flag and
// returns it. Logs go to stderr so JSON output stays parseable.
func setupLogging(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig resolves the engine config from the --config flag or defaults.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// openStore opens the event database under the configured state dir.
func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create state dir", err)
	}
	st, err := store.Open(filepath.Join(cfg.StateDir, "events.db"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open event database", err)
	}
	return st, nil
}

// openSession opens the store and a session over it. The returned cleanup
// closes the store.
func openSession(ctx context.Context, cfg config.Config, caps pipeline.Capabilities, logger *slog.Logger) (*pipeline.Session, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	shaping := plan.Shaping{
		MaxDepth:    cfg.Shaping.MaxDepth,
		MaxChildren: cfg.Shaping.MaxChildren,
	}
	sess, err := pipeline.NewSession(ctx, st, caps, shaping, logger)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "open session", err)
	}
	return sess, func() { st.Close() }, nil
}

// newExecutor builds the executor from config.
func newExecutor(cfg config.Config, logger *slog.Logger) *executor.Executor {
	guards := executor.Guards{
		MaxActions:     cfg.Guards.MaxActions,
		MaxMoveBytes:   cfg.Guards.MaxMoveBytes,
		ProtectedPaths: cfg.Guards.ProtectedPaths,
	}
	return executor.New(filepath.Join(cfg.StateDir, "checkpoints"), guards, logger)
}

// cmdContext returns the command's context, or Background for tests that
// execute commands without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// formatter builds the output formatter bound to the command's streams.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format: opts.Format,
		Writer: cmd.OutOrStdout(),
	}
}
