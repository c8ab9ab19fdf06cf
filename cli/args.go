package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// ErrHelp is returned by Parse when -h or --help was given.
var ErrHelp = pflag.ErrHelp

// InputArguments is the decoded command line of the query command. It is
// not modified after Parse returns.
type InputArguments struct {
	Database   string
	Host       string
	Endpoint   bool
	ConfigPath string
	Output     string
	Query      string
}

// Mode reports the connection strategy the arguments select.
func (a InputArguments) Mode() Mode {
	if a.Endpoint {
		return ModeEndpoint
	}
	return ModeSimple
}

// UsageError reports a malformed command line. Usage holds the synopsis to
// print alongside the diagnostic.
type UsageError struct {
	Err   error
	usage string
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }
func (e *UsageError) ExitCode() int { return 1 }

// Usage returns the generated usage synopsis.
func (e *UsageError) Usage() string { return e.usage }

var requiredFlags = []string{"database", "host"}

func newFlagSet(args *InputArguments) *pflag.FlagSet {
	fs := pflag.NewFlagSet("tsquery", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringVarP(&args.Database, "database", "d", "", "Timestream database to query (required)")
	fs.StringVar(&args.Host, "host", "", "query service host, e.g. query.timestream.us-east-1.amazonaws.com (required)")
	fs.BoolVarP(&args.Endpoint, "endpoint", "e", false, "discover the query endpoint from --host before connecting")
	fs.StringVarP(&args.ConfigPath, "config", "c", "", "TOML settings file")
	fs.StringVarP(&args.Output, "output", "o", "", "also write results to this file")
	fs.StringVarP(&args.Query, "query", "q", "", "run this query instead of the sample queries")
	return fs
}

// Usage returns the usage synopsis of the query command.
func Usage() string {
	fs := newFlagSet(&InputArguments{})
	return "Usage: tsquery --database <name> --host <host> [flags]\n" +
		"       tsquery ingest [flags]\n\n" +
		"Flags:\n" + fs.FlagUsages()
}

// Parse decodes rawArgs. Any malformed token, unknown flag, stray argument
// or missing required flag yields a *UsageError.
func Parse(rawArgs []string) (InputArguments, error) {
	var args InputArguments
	fs := newFlagSet(&args)

	if err := fs.Parse(rawArgs); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return InputArguments{}, ErrHelp
		}
		return InputArguments{}, &UsageError{Err: err, usage: Usage()}
	}
	if fs.NArg() > 0 {
		return InputArguments{}, &UsageError{Err: fmt.Errorf("unexpected argument %q", fs.Arg(0)), usage: Usage()}
	}

	var missing []string
	for _, name := range requiredFlags {
		if strings.TrimSpace(fs.Lookup(name).Value.String()) == "" {
			missing = append(missing, `"`+name+`"`)
		}
	}
	if len(missing) > 0 {
		return InputArguments{}, &UsageError{
			Err:   fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", ")),
			usage: Usage(),
		}
	}

	return args, nil
}
