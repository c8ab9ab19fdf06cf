// Package cli implements the tsquery command line: argument parsing, the
// connection-mode dispatcher and the mapping of failures to exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jcosta/tsquery/config"
	"jcosta/tsquery/ingester"
	"jcosta/tsquery/logging"
	"jcosta/tsquery/querier"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitUsage   = 1
	ExitFailure = 2
)

type exitCoder interface {
	ExitCode() int
}

// SettingsError wraps a failure to resolve settings or build the logger.
type SettingsError struct {
	Err error
}

func (e *SettingsError) Error() string { return "settings: " + e.Err.Error() }
func (e *SettingsError) Unwrap() error { return e.Err }
func (e *SettingsError) ExitCode() int { return ExitUsage }

// App wires the commands to their collaborators. Nil hooks select the AWS
// backed implementations.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// NewRunner returns the factory used by Dispatch.
	NewRunner func(args InputArguments, settings config.Settings, log *zap.Logger) RunnerFactory
	// NewWriter returns the Timestream writer used by ingest.
	NewWriter func(ctx context.Context, settings config.AWS, host string) (ingester.WriteAPI, error)
	// NewStore returns the object store read by ingest --bucket.
	NewStore func(ctx context.Context, settings config.Settings) (ingester.Downloader, error)
}

// Execute runs tsquery with os.Args style arguments (without the program
// name) on the process streams and returns the exit code.
func Execute(args []string) int {
	app := &App{Stdout: os.Stdout, Stderr: os.Stderr}
	return app.Execute(args)
}

// Execute runs the root command and maps its outcome to an exit code.
func (a *App) Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := a.NewRootCmd()
	cmd.SetArgs(args)
	return a.exitCode(cmd.ExecuteContext(ctx))
}

// NewRootCmd builds the tsquery command tree.
func (a *App) NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tsquery --database <name> --host <host> [flags]",
		Short: "Run sample queries against an Amazon Timestream database",
		Args:  cobra.ArbitraryArgs,
		// Flags are decoded by Parse so the schema lives in one place.
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE:               a.runQuery,
	}
	cmd.Flags().AddFlagSet(newFlagSet(&InputArguments{}))
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &UsageError{Err: err, usage: c.UsageString()}
	})
	cmd.SetOut(a.Stdout)
	cmd.SetErr(a.Stderr)

	cmd.AddCommand(a.ingestCmd())
	return cmd
}

func (a *App) runQuery(cmd *cobra.Command, raw []string) error {
	args, err := Parse(raw)
	if errors.Is(err, ErrHelp) {
		fmt.Fprint(a.Stdout, Usage())
		return nil
	}
	if err != nil {
		return err
	}

	settings, log, err := a.setup(args.ConfigPath)
	if err != nil {
		return err
	}
	defer logging.Sync(log)

	newRunner := a.NewRunner
	if newRunner == nil {
		newRunner = queryRunner
	}
	return Dispatch(cmd.Context(), log, args, newRunner(args, settings, log))
}

func (a *App) setup(configPath string) (config.Settings, *zap.Logger, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, nil, &SettingsError{Err: err}
	}
	log, err := logging.New(settings.Log.Level, settings.Log.Format, a.Stdout)
	if err != nil {
		return config.Settings{}, nil, &SettingsError{Err: err}
	}
	return settings, log, nil
}

func queryRunner(args InputArguments, settings config.Settings, log *zap.Logger) RunnerFactory {
	return func(database, host string) QueryRunner {
		opts := []querier.Option{
			querier.WithLogger(log),
			querier.WithSettings(settings),
		}
		if args.Output != "" {
			opts = append(opts, querier.WithOutputFile(args.Output))
		}
		if args.Query != "" {
			opts = append(opts, querier.WithQuery(args.Query))
		}
		return querier.New(database, host, opts...)
	}
}

func (a *App) exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var uerr *UsageError
	if errors.As(err, &uerr) {
		fmt.Fprintln(a.Stderr, "Error:", uerr.Err)
		fmt.Fprint(a.Stderr, uerr.Usage())
		return uerr.ExitCode()
	}

	// Print a short, single-line error to stderr.
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if msg == "" {
		msg = "error"
	}
	fmt.Fprintln(a.Stderr, msg)

	var ec exitCoder
	if errors.As(err, &ec) {
		if c := ec.ExitCode(); c != 0 {
			return c
		}
	}
	return ExitFailure
}
