package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/civicreport/category"
	"github.com/c360studio/civicreport/config"
	"github.com/c360studio/civicreport/llm"
	"github.com/c360studio/civicreport/photos"
	"github.com/c360studio/civicreport/report"
	"github.com/c360studio/civicreport/storage"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second

	// defaultCLIUser owns reports filed from the command line.
	defaultCLIUser = "cli"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				if addr != "" {
					app.cfg.Server.Addr = addr
				}
				handler, err := app.Handler()
				if err != nil {
					return err
				}
				return serveHTTP(ctx, app, handler)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func serveHTTP(ctx context.Context, app *App, handler http.Handler) error {
	srv := &http.Server{
		Addr:              app.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP API listening", "addr", srv.Addr, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func describeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <note...>",
		Short: "Draft a formal complaint description from a short note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				text, err := app.describer.Generate(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func classifyCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify <photo>",
		Short: "Suggest a category for a photo of the issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				result, err := app.classifier.ClassifyFile(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				printClassification(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func submitCmd(opts *globalOptions) *cobra.Command {
	var (
		sub      report.Submission
		lat, lon float64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "File a report and print the complaint e-mail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lat") {
				sub.Latitude = &lat
			}
			if cmd.Flags().Changed("lon") {
				sub.Longitude = &lon
			}
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				receipt, err := app.flow.Submit(ctx, sub)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), receipt)
				}
				printReceipt(cmd.OutOrStdout(), receipt)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&sub.UserID, "user", defaultCLIUser, "Reporting user ID")
	f.StringVar(&sub.PhotoPath, "photo", "", "Path to the photo of the issue")
	f.Float64Var(&lat, "lat", 0, "Latitude of the issue")
	f.Float64Var(&lon, "lon", 0, "Longitude of the issue")
	f.StringVarP(&sub.Description, "description", "d", "", "Description of the issue")
	f.StringVar(&sub.Category, "category", "", "Category (one of: "+categoryList()+")")
	f.BoolVar(&sub.AutoClassify, "auto-classify", false, "Suggest the category from the photo when none is given")
	f.BoolVar(&sub.EnhanceDescription, "enhance", false, "Rewrite the description formally before filing")
	f.BoolVar(&asJSON, "json", false, "Print the receipt as JSON")
	return cmd
}

func reportsCmd(opts *globalOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List a user's reports with status counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				dash, err := app.flow.Dashboard(ctx, userID)
				if err != nil {
					return err
				}
				printDashboard(cmd.OutOrStdout(), dash)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", defaultCLIUser, "User ID")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				r, err := app.store.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-status <id> <Pending|In Progress|Resolved>",
		Short: "Move a report to a new status",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				r, err := app.store.UpdateReportStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", r.ID, r.Status)
				return nil
			})
		},
	})

	return cmd
}

func watchCmd(opts *globalOptions) *cobra.Command {
	var (
		dir     string
		backlog bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Classify photos as they appear in the capture directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				if dir != "" {
					app.cfg.Photos.Dir = dir
				}
				return watchPhotos(ctx, app, cmd.OutOrStdout(), backlog)
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Capture directory (overrides photos.dir)")
	cmd.Flags().BoolVar(&backlog, "backlog", false, "Also classify photos already in the directory")
	return cmd
}

func watchPhotos(ctx context.Context, app *App, out io.Writer, backlog bool) error {
	cfg := app.cfg.Photos
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return fmt.Errorf("resolve photo dir: %w", err)
	}

	matcher, err := photos.NewMatcher(cfg.Patterns)
	if err != nil {
		return err
	}

	watcher, err := photos.NewWatcher(dir, matcher, cfg.Debounce, app.logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create photo dir: %w", err)
	}
	existing, err := photos.Scan(dir, matcher)
	if err != nil {
		return err
	}
	if backlog {
		for _, path := range existing {
			classifyPhoto(ctx, app, out, path)
		}
	}
	watcher.Seed(existing)

	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			if dropped := watcher.DroppedEvents(); dropped > 0 {
				app.logger.Warn("Photo events dropped", "count", dropped)
			}
			return nil
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			app.logger.Debug("Photo event", "path", event.Path, "op", event.Operation)
			classifyPhoto(ctx, app, out, event.AbsPath)
		}
	}
}

// classifyPhoto logs failures rather than stopping the watch loop.
func classifyPhoto(ctx context.Context, app *App, out io.Writer, path string) {
	result, err := app.classifier.ClassifyFile(ctx, path)
	if err != nil {
		app.logger.Warn("Photo classification failed", "path", path, "error", err)
		return
	}
	app.logger.Info("Photo classified",
		"path", path,
		"category", result.Category,
		"confidence", result.Confidence)
	fmt.Fprintf(out, "%s\t", path)
	printClassification(out, result)
}

func callsCmd(opts *globalOptions) *cobra.Command {
	var (
		traceID string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recorded AI calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runApp(cmd, func(ctx context.Context, app *App) error {
				records, err := app.calls.List(ctx, traceID, limit)
				if err != nil {
					return err
				}
				printCalls(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&traceID, "trace", "", "Only calls made for this HTTP request ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Most recent calls to show (0 = all)")
	return cmd
}

func initCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(newLogger(cmd.ErrOrStderr(), opts.logLevel))
			path, err := loader.EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func parseStatus(s string) (storage.Status, error) {
	s = strings.TrimSpace(s)
	for _, status := range []storage.Status{storage.StatusPending, storage.StatusInProgress, storage.StatusResolved} {
		if strings.EqualFold(string(status), s) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", storage.ErrInvalidStatus, s)
}

func categoryList() string {
	names := make([]string, 0, len(category.All()))
	for _, c := range category.All() {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printClassification(w io.Writer, r category.Result) {
	fmt.Fprintf(w, "%s (%.0f%% confidence)\n", r.Category, r.Confidence*100)
}

func printReceipt(w io.Writer, r *report.Receipt) {
	fmt.Fprintf(w, "Report %s filed as %s (%s)\n\n", r.Report.ID, r.Report.Category, r.Report.Status)
	for _, n := range r.Notices {
		fmt.Fprintf(w, "note: %s\n", n.Message)
	}
	if len(r.Notices) > 0 {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "To: %s\nSubject: %s\n\n%s\n\n", r.Email.To, r.Email.Subject, r.Email.Body)
	fmt.Fprintf(w, "Send: %s\n", r.MailtoURL)
}

func printCalls(w io.Writer, records []*llm.CallRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No AI calls recorded.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-14s  %-20s  attempts=%d  %6dms  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Policy, r.Outcome, r.Attempts, r.DurationMs, r.RequestID)
	}
}

func printDashboard(w io.Writer, d *report.Dashboard) {
	fmt.Fprintf(w, "Hello, %s\n", d.Name)
	fmt.Fprintf(w, "Total: %d  Pending: %d  In Progress: %d  Resolved: %d\n",
		d.Stats.Total, d.Stats.Pending, d.Stats.InProgress, d.Stats.Resolved)
	if len(d.Reports) == 0 {
		fmt.Fprintln(w, "\nNo reports yet.")
		return
	}
	fmt.Fprintln(w)
	for _, r := range d.Reports {
		fmt.Fprintf(w, "%s  %-11s  %-13s  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Category, r.ID)
	}
}
