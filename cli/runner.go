// Command execution for CLI commands.
//
// Information Hiding:
// - Settings loading and app construction per command
// - Signal handling for the server
// - Output formatting

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/richinex/kotoba/config"
	"github.com/richinex/kotoba/orchestration"
	"github.com/richinex/kotoba/storage"
	"github.com/richinex/kotoba/tools"
)

// Options holds CLI execution options.
type Options struct {
	ConfigPath string
	Addr       string // overrides server.addr when set
}

// TranslateOptions controls a one-shot translation.
type TranslateOptions struct {
	SourceLang string
	UserID     string
	JSON       bool
}

// Serve runs the HTTP service until SIGINT or SIGTERM.
func Serve(ctx context.Context, opts Options) error {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		settings.Server.Addr = opts.Addr
	}

	app, err := NewApp(settings, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Logger.Info().
		Str("provider", app.Gateway.Provider().Name()).
		Str("model", app.Gateway.Provider().Model()).
		Bool("tts", app.Speech.Available()).
		Bool("journal", settings.Journal.Path != "").
		Msg("starting translation service")

	return app.Server().Run(ctx, settings.Server.Addr)
}

// Translate runs one conversational translation and prints the reply.
func Translate(ctx context.Context, text string, topts TranslateOptions, opts Options) error {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	app, err := NewApp(settings, os.Stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	return translate(ctx, app, text, topts, os.Stdout)
}

func translate(ctx context.Context, app *App, text string, topts TranslateOptions, out io.Writer) error {
	ctx = app.Logger.WithContext(ctx)

	outcome, err := app.Orchestrator.Translate(ctx, orchestration.Request{
		UserID:     topts.UserID,
		Message:    text,
		SourceLang: topts.SourceLang,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", orchestration.Classify(err).Message(), err)
	}

	if topts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			orchestration.Outcome
			LatencyMs int64 `json:"latency_ms"`
		}{outcome, outcome.Latency.Milliseconds()})
	}

	fmt.Fprintln(out, outcome.Reply)
	fmt.Fprintf(out, "\n(%s → %s, %dms", outcome.DetectedLang, outcome.TargetLang, outcome.Latency.Milliseconds())
	if outcome.ToolUsed != "" {
		fmt.Fprintf(out, ", tool: %s", outcome.ToolUsed)
	}
	fmt.Fprintln(out, ")")
	return nil
}

// ListTools prints the registered tools.
func ListTools(verbose bool, out io.Writer) error {
	registry, err := tools.WithDefaults()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Available tools:")
	fmt.Fprintln(out)

	for _, meta := range registry.List() {
		fmt.Fprintf(out, "  %s\n", meta.Name)
		fmt.Fprintf(out, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(out, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(out, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

// ShowJournal prints recent journal entries and per-category counts for
// the last 24 hours.
func ShowJournal(ctx context.Context, dbPath string, limit int, out io.Writer) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("journal not found at %s: %w", dbPath, err)
	}
	journal, err := storage.OpenJournal(dbPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	counts, err := journal.CountByCategory(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tENDPOINT\tSTATUS\tCATEGORY\tLATENCY\tUSER\tREQUEST")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%dms\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.Endpoint,
			e.Status,
			e.Category,
			e.LatencyMs,
			e.UserID,
			e.RequestID,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Last 24h:")
	for _, category := range sortedKeys(counts) {
		fmt.Fprintf(out, "  %-24s %d\n", category, counts[category])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
