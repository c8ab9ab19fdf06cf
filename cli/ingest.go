package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jcosta/tsquery/config"
	"jcosta/tsquery/ingester"
	"jcosta/tsquery/logging"
	"jcosta/tsquery/storage"
)

type ingestFlags struct {
	database   string
	table      string
	host       string
	configPath string
	batchSize  int

	src      string
	bucket   string
	key      string
	target   string
	interval time.Duration
	duration time.Duration
}

func (a *App) ingestCmd() *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load Prometheus exposition samples into a Timestream table",
		Long: `Load Prometheus exposition samples into a Timestream table.

Samples come from exactly one source: a local file (--src), an S3 object
(--bucket and --key) or a scrape target polled every --interval for
--duration (--target). Only samples carrying a timestamp are written;
scraped samples are stamped with their scrape time.`,
		Args: func(c *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &UsageError{Err: fmt.Errorf("unexpected argument %q", args[0]), usage: c.UsageString()}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runIngest(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.database, "database", "d", "", "Timestream database (required)")
	cmd.Flags().StringVarP(&f.table, "table", "t", "", "Timestream table (required)")
	cmd.Flags().StringVar(&f.host, "host", "", "fixed write endpoint; discovered when empty")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "TOML settings file")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", ingester.MaxBatchSize, "records per WriteRecords call")
	cmd.Flags().StringVar(&f.src, "src", "", "exposition file to load")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "S3 bucket holding the exposition file")
	cmd.Flags().StringVar(&f.key, "key", "", "S3 key of the exposition file")
	cmd.Flags().StringVar(&f.target, "target", "", "host:port to scrape /metrics from")
	cmd.Flags().DurationVar(&f.interval, "interval", 7*time.Second, "scrape interval")
	cmd.Flags().DurationVar(&f.duration, "duration", 30*time.Second, "how long to scrape for")
	return cmd
}

func (f ingestFlags) validate() error {
	switch {
	case f.database == "" || f.table == "":
		return errors.New(`required flag(s) "database", "table" not set`)
	case f.batchSize < 1 || f.batchSize > ingester.MaxBatchSize:
		return fmt.Errorf("--batch-size must be between 1 and %d", ingester.MaxBatchSize)
	case (f.bucket == "") != (f.key == ""):
		return errors.New("--bucket and --key must be given together")
	}

	sources := 0
	for _, set := range []bool{f.src != "", f.bucket != "", f.target != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return fmt.Errorf("%w: give one of --src, --bucket/--key or --target", ingester.ErrNoSource)
	case sources > 1:
		return errors.New("--src, --bucket/--key and --target are mutually exclusive")
	case f.target != "" && (f.interval <= 0 || f.duration <= 0):
		return errors.New("--interval and --duration must be positive")
	}
	return nil
}

func (a *App) runIngest(cmd *cobra.Command, f ingestFlags) error {
	if err := f.validate(); err != nil {
		return &UsageError{Err: err, usage: cmd.UsageString()}
	}

	settings, log, err := a.setup(f.configPath)
	if err != nil {
		return err
	}
	defer logging.Sync(log)

	ctx := cmd.Context()
	source, err := a.ingestSource(ctx, settings, f)
	if err != nil {
		return err
	}

	newWriter := a.NewWriter
	if newWriter == nil {
		newWriter = func(ctx context.Context, s config.AWS, host string) (ingester.WriteAPI, error) {
			return ingester.NewWriteClient(ctx, s, host)
		}
	}
	writer, err := newWriter(ctx, settings.AWS, f.host)
	if err != nil {
		return err
	}

	ing, err := ingester.New(ingester.Options{
		Database:  f.database,
		Table:     f.table,
		BatchSize: f.batchSize,
		Source:    source,
		Writer:    writer,
		Log:       log,
	})
	if err != nil {
		return err
	}
	_, err = ing.Run(ctx)
	return err
}

func (a *App) ingestSource(ctx context.Context, settings config.Settings, f ingestFlags) (ingester.Source, error) {
	switch {
	case f.src != "":
		return ingester.FileSource{Path: f.src}, nil

	case f.bucket != "":
		newStore := a.NewStore
		if newStore == nil {
			newStore = func(ctx context.Context, s config.Settings) (ingester.Downloader, error) {
				return storage.NewClient(ctx, storage.Options{
					Region:          s.AWS.Region,
					AccessKeyID:     s.AWS.AccessKeyID,
					SecretAccessKey: s.AWS.SecretAccessKey,
					SessionToken:    s.AWS.SessionToken,
					Endpoint:        s.Export.Endpoint,
				})
			}
		}
		store, err := newStore(ctx, settings)
		if err != nil {
			return nil, err
		}
		return ingester.ObjectSource{Bucket: f.bucket, Key: f.key, Store: store}, nil

	default:
		return ingester.ScrapeSource{Target: f.target, Interval: f.interval, Duration: f.duration}, nil
	}
}
