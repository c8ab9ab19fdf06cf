package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mode is the connection strategy used to reach the query service.
type Mode int

const (
	// ModeSimple connects straight to the given host.
	ModeSimple Mode = iota
	// ModeEndpoint discovers the query endpoint from the host first.
	ModeEndpoint
)

func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeEndpoint:
		return "endpoint"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// QueryRunner executes the query battery with one of the two strategies.
type QueryRunner interface {
	RunAllQueriesWithSimpleConnection(ctx context.Context) error
	RunAllQueriesWithEndpointConnection(ctx context.Context) error
}

// RunnerFactory builds a QueryRunner bound to a database and host. It must
// not perform I/O.
type RunnerFactory func(database, host string) QueryRunner

// Dispatch logs the resolved arguments and runs exactly one execution path
// of a freshly built runner. Runner errors are returned unchanged.
func Dispatch(ctx context.Context, log *zap.Logger, args InputArguments, newRunner RunnerFactory) error {
	log.Info("resolved arguments",
		zap.String("database", args.Database),
		zap.String("host", args.Host),
		zap.Bool("endpoint", args.Endpoint),
	)

	runner := newRunner(args.Database, args.Host)

	switch mode := args.Mode(); mode {
	case ModeEndpoint:
		return runner.RunAllQueriesWithEndpointConnection(ctx)
	case ModeSimple:
		return runner.RunAllQueriesWithSimpleConnection(ctx)
	default:
		return fmt.Errorf("unknown connection mode %s", mode)
	}
}
