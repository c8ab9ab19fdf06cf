package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jcosta/tsquery/config"
	"jcosta/tsquery/ingester"
)

type harness struct {
	stdout, stderr bytes.Buffer
	runner         *fakeRunner
	built          int
	settings       config.Settings
	app            *App
}

func newHarness() *harness {
	h := &harness{runner: &fakeRunner{}}
	h.app = &App{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		NewRunner: func(_ InputArguments, s config.Settings, _ *zap.Logger) RunnerFactory {
			h.settings = s
			inner := h.runner.factory()
			return func(database, host string) QueryRunner {
				h.built++
				return inner(database, host)
			}
		},
	}
	return h
}

func TestScenarioSimpleConnection(t *testing.T) {
	h := newHarness()

	code := h.app.Execute([]string{"--database", "sampleDB", "--host", "myhost"})

	assert.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, 1, h.runner.simple)
	assert.Zero(t, h.runner.endpoint)
	assert.Equal(t, "sampleDB", h.runner.database)
	assert.Equal(t, "myhost", h.runner.host)
	assert.Contains(t, h.stdout.String(), "resolved arguments")
	assert.Empty(t, h.stderr.String())
}

func TestScenarioEndpointConnection(t *testing.T) {
	h := newHarness()

	code := h.app.Execute([]string{"--database", "sampleDB", "--host", "myhost", "--endpoint"})

	assert.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, 1, h.runner.endpoint)
	assert.Zero(t, h.runner.simple)
}

func TestScenarioMissingArguments(t *testing.T) {
	h := newHarness()

	code := h.app.Execute([]string{})

	assert.Equal(t, ExitUsage, code)
	assert.Zero(t, h.built, "no runner may be built on a usage error")
	assert.Contains(t, h.stderr.String(), `required flag(s) "database", "host" not set`)
	assert.Contains(t, h.stderr.String(), "Usage: tsquery")
}

func TestUnknownFlagExitsWithUsage(t *testing.T) {
	h := newHarness()

	code := h.app.Execute([]string{"--database", "sampleDB", "--host", "myhost", "--bogus"})

	assert.Equal(t, ExitUsage, code)
	assert.Zero(t, h.built)
	assert.Contains(t, h.stderr.String(), "unknown flag: --bogus")
}

func TestEndpointFlagBeforeValues(t *testing.T) {
	h := newHarness()

	code := h.app.Execute([]string{"--endpoint", "--database", "sampleDB", "--host", "myhost"})

	assert.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, 1, h.runner.endpoint)
}

func TestHelpExitsZero(t *testing.T) {
	h := newHarness()

	code := h.app.Execute([]string{"--help"})

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, h.stdout.String(), "--database")
	assert.Zero(t, h.built)
}

func TestRunnerErrorExitsNonZero(t *testing.T) {
	h := newHarness()
	h.runner.err = errors.New("query latest-rows: AccessDeniedException:\n  not authorized")

	code := h.app.Execute([]string{"--database", "sampleDB", "--host", "myhost"})

	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "query latest-rows: AccessDeniedException: not authorized\n", h.stderr.String())
}

func TestSettingsFileIsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsquery.toml")
	require.NoError(t, os.WriteFile(path, []byte("[query]\ntable = \"cpu\"\n"), 0o600))
	h := newHarness()

	code := h.app.Execute([]string{"-d", "sampleDB", "--host", "myhost", "-c", path})

	assert.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, "cpu", h.settings.Query.Table)
}

func TestInvalidSettingsExitWithUsageCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tsquery.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nformat = \"xml\"\n"), 0o600))
	h := newHarness()

	code := h.app.Execute([]string{"-d", "sampleDB", "--host", "myhost", "-c", path})

	assert.Equal(t, ExitUsage, code)
	assert.Zero(t, h.built)
	assert.True(t, strings.HasPrefix(h.stderr.String(), "settings:"), h.stderr.String())
}

type countingWriter struct{ records int }

func (c *countingWriter) WriteRecords(_ context.Context, in *timestreamwrite.WriteRecordsInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error) {
	c.records += len(in.Records)
	return &timestreamwrite.WriteRecordsOutput{}, nil
}

func TestIngestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.txt")
	body := "cpu_utilization{hostname=\"host-1\"} 10 1754335979103\ncpu_utilization{hostname=\"host-2\"} 20 1754335979103\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	h := newHarness()
	w := &countingWriter{}
	var gotHost string
	h.app.NewWriter = func(_ context.Context, _ config.AWS, host string) (ingester.WriteAPI, error) {
		gotHost = host
		return w, nil
	}

	code := h.app.Execute([]string{"ingest", "-d", "sampleDB", "-t", "host_metrics", "--src", path, "--host", "ingest-cell1.timestream.us-east-1.amazonaws.com"})

	assert.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, 2, w.records)
	assert.Equal(t, "ingest-cell1.timestream.us-east-1.amazonaws.com", gotHost)
}

func TestIngestUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"no table", []string{"ingest", "-d", "sampleDB", "--src", "m.txt"}, `"table"`},
		{"no source", []string{"ingest", "-d", "sampleDB", "-t", "t"}, "no sample source"},
		{"two sources", []string{"ingest", "-d", "sampleDB", "-t", "t", "--src", "m.txt", "--target", "localhost:9100"}, "mutually exclusive"},
		{"bucket without key", []string{"ingest", "-d", "sampleDB", "-t", "t", "--bucket", "b"}, "--key"},
		{"batch too large", []string{"ingest", "-d", "sampleDB", "-t", "t", "--src", "m.txt", "--batch-size", "500"}, "--batch-size"},
		{"unknown flag", []string{"ingest", "--nope"}, "unknown flag: --nope"},
		{"stray argument", []string{"ingest", "extra"}, `unexpected argument "extra"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.app.NewWriter = func(context.Context, config.AWS, string) (ingester.WriteAPI, error) {
				t.Fatal("writer must not be built on a usage error")
				return nil, nil
			}

			code := h.app.Execute(tt.args)

			assert.Equal(t, ExitUsage, code)
			assert.Contains(t, h.stderr.String(), tt.wantMsg)
			assert.Contains(t, h.stderr.String(), "Usage:")
		})
	}
}
