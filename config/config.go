// Package config resolves the settings tsquery reads besides its command line
// flags: AWS region and credentials, query tuning, result export and logging.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// environment variables prefixed with TSQUERY_ where a double underscore
// separates levels (TSQUERY_AWS__REGION sets aws.region).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "TSQUERY_"

// MaxRowsLimit is the largest page size the Timestream Query API accepts.
const MaxRowsLimit = 1000

// AWS holds the region and optional static credentials.
type AWS struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// HasStaticCredentials reports whether a key pair was configured. When it
// wasn't, the SDK default credential chain is used.
func (a AWS) HasStaticCredentials() bool {
	return a.AccessKeyID != "" || a.SecretAccessKey != ""
}

// Query tunes how the sample queries are issued.
type Query struct {
	Table   string
	MaxRows int32
	Timeout time.Duration
}

// Export controls uploading rendered results to S3.
type Export struct {
	Bucket   string
	Prefix   string
	Endpoint string
}

// Enabled reports whether results should be uploaded.
func (e Export) Enabled() bool {
	return e.Bucket != ""
}

// Log selects the logger level and encoding.
type Log struct {
	Level  string
	Format string
}

// Settings is the resolved, validated configuration.
type Settings struct {
	AWS    AWS
	Query  Query
	Export Export
	Log    Log
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"aws.region":    "us-east-1",
		"query.table":   "host_metrics",
		"query.timeout": "0s",
		"export.prefix": "tsquery/",
		"log.level":     "info",
		"log.format":    "console",
	}
}

// Default returns the built-in settings, ignoring files and the environment.
func Default() Settings {
	k, err := withDefaults()
	if err == nil {
		var s Settings
		if s, err = fromKoanf(k); err == nil {
			return s
		}
	}
	// Built-in defaults always load and validate.
	panic(err)
}

func withDefaults() (*koanf.Koanf, error) {
	var k = koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}
	return k, nil
}

// Load resolves settings from defaults, the TOML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Settings, error) {
	k, err := withDefaults()
	if err != nil {
		return Settings{}, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("error loading config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Settings{}, fmt.Errorf("error loading environment: %w", err)
	}

	return fromKoanf(k)
}

// envKey maps TSQUERY_QUERY__MAX_ROWS to query.max_rows.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func fromKoanf(k *koanf.Koanf) (Settings, error) {
	var result *multierror.Error

	s := Settings{
		AWS: AWS{
			Region:          k.String("aws.region"),
			AccessKeyID:     k.String("aws.access_key_id"),
			SecretAccessKey: k.String("aws.secret_access_key"),
			SessionToken:    k.String("aws.session_token"),
		},
		Query: Query{
			Table: k.String("query.table"),
		},
		Export: Export{
			Bucket:   k.String("export.bucket"),
			Prefix:   k.String("export.prefix"),
			Endpoint: k.String("export.endpoint"),
		},
		Log: Log{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if s.AWS.Region == "" {
		result = multierror.Append(result, fmt.Errorf("aws.region must not be empty"))
	}
	if (s.AWS.AccessKeyID == "") != (s.AWS.SecretAccessKey == "") {
		result = multierror.Append(result, fmt.Errorf("aws.access_key_id and aws.secret_access_key must be set together"))
	}
	if s.Query.Table == "" {
		result = multierror.Append(result, fmt.Errorf("query.table must not be empty"))
	}

	if raw := strings.TrimSpace(k.String("query.max_rows")); raw != "" {
		maxRows, err := strconv.ParseInt(raw, 10, 64)
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("query.max_rows: %w", err))
		case maxRows < 0 || maxRows > MaxRowsLimit:
			result = multierror.Append(result, fmt.Errorf("query.max_rows must be between 0 and %d, got %d", MaxRowsLimit, maxRows))
		default:
			s.Query.MaxRows = int32(maxRows)
		}
	}

	timeout, err := time.ParseDuration(k.String("query.timeout"))
	switch {
	case err != nil:
		result = multierror.Append(result, fmt.Errorf("query.timeout: %w", err))
	case timeout < 0:
		result = multierror.Append(result, fmt.Errorf("query.timeout must not be negative"))
	default:
		s.Query.Timeout = timeout
	}

	if _, err := zapcore.ParseLevel(s.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(s.Log.Format) {
	case "console", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format must be console or json, got %q", s.Log.Format))
	}

	if err := result.ErrorOrNil(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
