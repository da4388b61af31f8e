// Package main provides the civicreport binary entry point.
// Civicreport helps citizens report civic issues: it drafts formal complaint
// descriptions and suggests a category from a photo using Gemini, stores
// reports, and composes the complaint e-mail for the municipality.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/civicreport/llm/providers"

	"github.com/c360studio/civicreport/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "civicreport"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Civic issue reporting assistant",
		Long: `Civicreport helps citizens report civic issues to their municipality.

It provides:
- Formal complaint descriptions drafted from a short note
- Category suggestions from a photo of the issue
- Report storage with per-user dashboards
- The complaint e-mail, ready to send

AI calls go to Gemini and are retried with back-off when rate limited.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(opts),
		describeCmd(opts),
		classifyCmd(opts),
		submitCmd(opts),
		reportsCmd(opts),
		watchCmd(opts),
		callsCmd(opts),
		initCmd(opts),
	)

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

// newLogger builds the stderr text logger for level.
func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setup configures logging and loads configuration.
func (o *globalOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	logger := newLogger(cmd.ErrOrStderr(), o.logLevel)
	slog.SetDefault(logger)

	loader := config.NewLoader(logger)
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = loader.LoadFile(o.configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger, nil
}

// runApp loads configuration, starts an App and hands it to fn.
func (o *globalOptions) runApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, logger, err := o.setup(cmd)
	if err != nil {
		return err
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Shutdown()

	return fn(ctx, app)
}
