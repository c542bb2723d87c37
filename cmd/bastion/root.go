package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/bastion/internal/adapters/logging"
	"github.com/felixgeelhaar/bastion/internal/app"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

var (
	// Global flags
	cfgFile  string
	verbose  bool
	yesFlag  bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Safe reconfiguration for remote access hosts",
	Long: `Bastion reconfigures the access-critical surface of a remote host
without cutting off the hand that operates it.

Every change to the SSH daemon or the firewall is snapshotted first,
validated before it goes live, and verified reachable afterwards; a
change that cannot be verified is rolled back to the captured state.
Certificates are provisioned through the system ACME client and
services activate only once their readiness conditions hold.`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "bastion.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "auto-confirm all prompts")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "log as JSON lines")

	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
	})

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the CLI logger from the global flags.
func newLogger() ports.Logger {
	opts := []logging.Option{logging.WithOutput(os.Stderr)}
	if verbose {
		opts = append(opts, logging.WithLevel(ports.LevelDebug))
	}
	if jsonLogs {
		opts = append(opts, logging.WithJSON(true))
	}
	return logging.NewConsole(opts...)
}

// newEngine loads configuration and wires the application engine.
func newEngine() (*app.Engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	engine := app.New(cfg, newLogger())
	if !yesFlag {
		engine.WithConfirm(confirmAccessPath)
	}
	return engine, nil
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the underlying technical error.
func formatError(err error) string {
	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}
