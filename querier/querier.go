// Package querier runs a fixed battery of sample queries against a Timestream
// database, either through a client bound directly to a host or through one
// bound to an endpoint discovered from that host.
package querier

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"jcosta/tsquery/config"
	"jcosta/tsquery/storage"
)

// ErrNoEndpoints is returned when endpoint discovery answers with an empty
// endpoint list.
var ErrNoEndpoints = errors.New("no query endpoints discovered")

// Uploader stores rendered results.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, content []byte) error
}

// QueryExample runs the sample queries for one database. Building it does
// no I/O; clients, output files and uploads are set up by the Run methods.
type QueryExample struct {
	database string
	host     string

	log        *zap.Logger
	settings   config.Settings
	outputPath string
	writer     io.Writer
	custom     string
	connect    Connector
	uploader   Uploader
}

// Option customises a QueryExample.
type Option func(*QueryExample)

// WithLogger sets the logger. Rendered rows are logged at info level.
func WithLogger(log *zap.Logger) Option {
	return func(q *QueryExample) { q.log = log }
}

// WithSettings replaces the default settings.
func WithSettings(s config.Settings) Option {
	return func(q *QueryExample) { q.settings = s }
}

// WithOutputFile additionally writes rendered results to path.
func WithOutputFile(path string) Option {
	return func(q *QueryExample) { q.outputPath = path }
}

// WithWriter additionally writes rendered results to w.
func WithWriter(w io.Writer) Option {
	return func(q *QueryExample) { q.writer = w }
}

// WithQuery replaces the battery with a single query.
func WithQuery(sql string) Option {
	return func(q *QueryExample) { q.custom = sql }
}

// WithConnector overrides how query clients are built.
func WithConnector(c Connector) Option {
	return func(q *QueryExample) { q.connect = c }
}

// WithUploader overrides the result exporter.
func WithUploader(u Uploader) Option {
	return func(q *QueryExample) { q.uploader = u }
}

// New returns a runner for database reachable through host.
func New(database, host string, opts ...Option) *QueryExample {
	q := &QueryExample{
		database: database,
		host:     host,
		log:      zap.NewNop(),
		settings: config.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	if q.connect == nil {
		q.connect = NewConnector(q.settings.AWS)
	}
	return q
}

// Queries returns the queries a run will execute, in order.
func (q *QueryExample) Queries() []NamedQuery {
	if q.custom != "" {
		return []NamedQuery{{Name: "custom", SQL: q.custom}}
	}
	return SampleQueries(q.database, q.settings.Query.Table)
}

// RunAllQueriesWithSimpleConnection runs the battery through a client bound
// directly to the host.
func (q *QueryExample) RunAllQueriesWithSimpleConnection(ctx context.Context) error {
	client, err := q.connect(ctx, config.EndpointURL(q.host))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", q.host, err)
	}
	q.log.Info("connected", zap.String("mode", "simple"), zap.String("endpoint", config.EndpointURL(q.host)))
	return q.runAll(ctx, client)
}

// RunAllQueriesWithEndpointConnection asks the host for the query endpoint
// to use, then runs the battery through a client bound to it.
func (q *QueryExample) RunAllQueriesWithEndpointConnection(ctx context.Context) error {
	client, err := q.discover(ctx)
	if err != nil {
		return err
	}
	return q.runAll(ctx, client)
}

func (q *QueryExample) discover(ctx context.Context) (Client, error) {
	seed, err := q.connect(ctx, config.EndpointURL(q.host))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", q.host, err)
	}

	out, err := seed.DescribeEndpoints(ctx, &timestreamquery.DescribeEndpointsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe endpoints via %s: %w", q.host, err)
	}
	if len(out.Endpoints) == 0 {
		return nil, fmt.Errorf("%w via %s", ErrNoEndpoints, q.host)
	}

	ep := out.Endpoints[0]
	address := config.EndpointURL(aws.ToString(ep.Address))
	q.log.Info("discovered query endpoint",
		zap.String("host", q.host),
		zap.String("endpoint", address),
		zap.Any("cachePeriodMinutes", ep.CachePeriodInMinutes),
	)

	client, err := q.connect(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connect to discovered endpoint %s: %w", address, err)
	}
	q.log.Info("connected", zap.String("mode", "endpoint"), zap.String("endpoint", address))
	return client, nil
}

func (q *QueryExample) runAll(ctx context.Context, client Client) (err error) {
	out := &output{log: q.log}
	if q.writer != nil {
		out.writers = append(out.writers, q.writer)
	}
	if q.outputPath != "" {
		f, ferr := os.Create(q.outputPath)
		if ferr != nil {
			return fmt.Errorf("create output file: %w", ferr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output file: %w", cerr)
			}
		}()
		out.writers = append(out.writers, f)
	}
	var exported bytes.Buffer
	if q.settings.Export.Enabled() {
		out.writers = append(out.writers, &exported)
	}

	start := time.Now()
	for _, nq := range q.Queries() {
		if err := q.runQuery(ctx, client, nq, out); err != nil {
			return err
		}
	}
	q.log.Info("all queries complete", zap.Duration("elapsed", time.Since(start)))

	if q.settings.Export.Enabled() {
		return q.export(ctx, exported.Bytes())
	}
	return nil
}

func (q *QueryExample) runQuery(ctx context.Context, client Client, nq NamedQuery, out *output) error {
	if q.settings.Query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.settings.Query.Timeout)
		defer cancel()
	}

	input := &timestreamquery.QueryInput{
		QueryString: aws.String(nq.SQL),
	}
	if q.settings.Query.MaxRows > 0 {
		input.MaxRows = aws.Int32(q.settings.Query.MaxRows)
	}

	log := q.log.With(zap.String("query", nq.Name))
	log.Debug("running query", zap.String("sql", nq.SQL))
	if err := out.line("-- " + nq.Name); err != nil {
		return err
	}

	paginator := timestreamquery.NewQueryPaginator(client, input)
	header := false
	rows := 0
	var queryID string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query %s: %w", nq.Name, err)
		}
		queryID = aws.ToString(page.QueryId)
		if page.QueryStatus != nil {
			log.Debug("query status", zap.Any("status", page.QueryStatus))
		}

		if !header && len(page.ColumnInfo) > 0 {
			if err := out.line(RenderHeader(page.ColumnInfo)); err != nil {
				return err
			}
			header = true
		}
		for _, row := range page.Rows {
			line, err := RenderRow(row.Data, page.ColumnInfo)
			if err != nil {
				return fmt.Errorf("query %s: %w", nq.Name, err)
			}
			if err := out.line(line); err != nil {
				return err
			}
		}
		rows += len(page.Rows)
	}

	log.Info("query complete", zap.String("queryId", queryID), zap.Int("rows", rows))
	return nil
}

func (q *QueryExample) export(ctx context.Context, content []byte) error {
	uploader := q.uploader
	if uploader == nil {
		c, err := storage.NewClient(ctx, storage.Options{
			Region:          q.settings.AWS.Region,
			AccessKeyID:     q.settings.AWS.AccessKeyID,
			SecretAccessKey: q.settings.AWS.SecretAccessKey,
			SessionToken:    q.settings.AWS.SessionToken,
			Endpoint:        q.settings.Export.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		uploader = c
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	key := q.settings.Export.Prefix + q.database + "/" + id + ".txt"
	if err := uploader.Upload(ctx, q.settings.Export.Bucket, key, content); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	q.log.Info("exported results", zap.String("bucket", q.settings.Export.Bucket), zap.String("key", key))
	return nil
}

// output fans rendered lines out to the log and any extra writers.
type output struct {
	log     *zap.Logger
	writers []io.Writer
}

func (o *output) line(s string) error {
	o.log.Info(s)
	for _, w := range o.writers {
		if _, err := io.WriteString(w, s+"\n"); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}
	return nil
}
