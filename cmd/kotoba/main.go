// Package main provides the kotoba CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/kotoba/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "kotoba",
		Short: "Vietnamese ↔ Japanese conversational translation service",
		Long: `A translation service between Vietnamese and Japanese.

Each request is translated with the user's recent conversation as context.
The completion service may call a business-trip reimbursement calculator
when a message is about travel expenses.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default ./config.yaml if present)")

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(translateCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(journalCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP translation API",
		Long: `Run the HTTP translation API.

Routes:
- POST /api/translate, /api/chat   conversational translation
- POST /api/batch                  stateless batch translation
- GET|DELETE /api/context/{user}   inspect or clear a conversation
- GET /api/health                  liveness
- POST /api/tts                    speech synthesis (when enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(cmd.Context(), cli.Options{ConfigPath: configPath, Addr: addr})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides SERVER_ADDR)")

	return cmd
}

func translateCmd() *cobra.Command {
	var topts cli.TranslateOptions

	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate one message and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Translate(cmd.Context(), args[0], topts, cli.Options{ConfigPath: configPath})
		},
	}

	cmd.Flags().StringVarP(&topts.SourceLang, "source", "s", "auto", "Source language (auto, vi, ja)")
	cmd.Flags().StringVarP(&topts.UserID, "user", "u", "", "User id for conversation context")
	cmd.Flags().BoolVar(&topts.JSON, "json", false, "Print the full outcome as JSON")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(verboseTools, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

func journalCmd() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent requests from the operator journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowJournal(cmd.Context(), dbPath, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", ".kotoba/journal.db", "Journal database path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")

	return cmd
}
