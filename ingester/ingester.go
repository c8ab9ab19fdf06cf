// Package ingester loads Prometheus exposition samples into a Timestream
// table so the sample queries have data to work on. Samples come from a
// local file, an S3 object or a live scrape target.
package ingester

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/prometheus/model/labels"
	"go.uber.org/zap"

	"jcosta/tsquery/config"
)

// MaxBatchSize is the most records WriteRecords accepts per call.
const MaxBatchSize = 100

// WriteAPI is the part of the Timestream Write API the ingester uses.
type WriteAPI interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
}

// NewWriteClient builds a Timestream Write client. With an empty host the
// SDK discovers the write endpoint itself; otherwise every request goes to
// host, which defaults to https when given without a scheme.
func NewWriteClient(ctx context.Context, settings config.AWS, host string) (*timestreamwrite.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.Region),
	}
	if settings.HasStaticCredentials() {
		creds := credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, settings.SessionToken)
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return timestreamwrite.NewFromConfig(cfg, func(o *timestreamwrite.Options) {
		if host != "" {
			o.BaseEndpoint = aws.String(config.EndpointURL(host))
			o.EndpointDiscovery.EnableEndpointDiscovery = aws.EndpointDiscoveryDisabled
		}
	}), nil
}

// Options configures an Ingester.
type Options struct {
	Database  string
	Table     string
	BatchSize int
	Source    Source
	Writer    WriteAPI
	Log       *zap.Logger
}

// Result summarises an ingest run.
type Result struct {
	JobID    string
	Samples  int
	Skipped  int
	Written  int
	Rejected int
}

// Ingester moves samples from a Source into Timestream.
type Ingester struct {
	opts Options
}

// New validates opts and returns an Ingester.
func New(opts Options) (*Ingester, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Writer == nil {
		return nil, errors.New("no Timestream writer")
	}
	if opts.Database == "" || opts.Table == "" {
		return nil, errors.New("database and table are required")
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = MaxBatchSize
	}
	if opts.BatchSize < 1 || opts.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("batch size must be between 1 and %d, got %d", MaxBatchSize, opts.BatchSize)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Ingester{opts: opts}, nil
}

// Run collects, parses and writes one job's worth of samples.
func (in *Ingester) Run(ctx context.Context) (Result, error) {
	res := Result{JobID: ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()}
	log := in.opts.Log.With(zap.String("job", res.JobID))
	log.Info("ingest started",
		zap.String("source", in.opts.Source.String()),
		zap.String("database", in.opts.Database),
		zap.String("table", in.opts.Table),
	)

	data, err := in.opts.Source.Collect(ctx, log)
	if err != nil {
		return res, fmt.Errorf("collect from %s: %w", in.opts.Source, err)
	}

	samples, skipped, err := ParseSamples(bytes.NewReader(data))
	if err != nil {
		return res, err
	}
	res.Samples = len(samples)
	res.Skipped = skipped
	if skipped > 0 {
		log.Info("skipped samples without timestamp or finite value", zap.Int("count", skipped))
	}

	for start := 0; start < len(samples); start += in.opts.BatchSize {
		end := start + in.opts.BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		written, rejected, err := in.writeBatch(ctx, log, samples[start:end])
		if err != nil {
			return res, err
		}
		res.Written += written
		res.Rejected += rejected
	}

	log.Info("ingest complete",
		zap.Int("samples", res.Samples),
		zap.Int("written", res.Written),
		zap.Int("rejected", res.Rejected),
	)
	return res, nil
}

func (in *Ingester) writeBatch(ctx context.Context, log *zap.Logger, batch []Sample) (written, rejected int, err error) {
	records := make([]types.Record, len(batch))
	for i, s := range batch {
		records[i] = ToRecord(s)
	}

	_, err = in.opts.Writer.WriteRecords(ctx, &timestreamwrite.WriteRecordsInput{
		DatabaseName: aws.String(in.opts.Database),
		TableName:    aws.String(in.opts.Table),
		Records:      records,
	})

	var rre *types.RejectedRecordsException
	switch {
	case err == nil:
		return len(records), 0, nil
	case errors.As(err, &rre):
		for _, r := range rre.RejectedRecords {
			log.Warn("record rejected", zap.Any("index", r.RecordIndex), zap.String("reason", aws.ToString(r.Reason)))
		}
		return len(records) - len(rre.RejectedRecords), len(rre.RejectedRecords), nil
	default:
		return 0, 0, fmt.Errorf("write records to %s.%s: %w", in.opts.Database, in.opts.Table, err)
	}
}

// ToRecord maps a sample onto a Timestream record: the metric name becomes
// the measure name and every other non empty label a dimension.
func ToRecord(s Sample) types.Record {
	var dims []types.Dimension
	s.Labels.Range(func(l labels.Label) {
		if l.Name == labels.MetricName || l.Value == "" {
			return
		}
		dims = append(dims, types.Dimension{
			Name:               aws.String(l.Name),
			Value:              aws.String(l.Value),
			DimensionValueType: types.DimensionValueTypeVarchar,
		})
	})

	return types.Record{
		Dimensions:       dims,
		MeasureName:      aws.String(s.Labels.Get(labels.MetricName)),
		MeasureValue:     aws.String(strconv.FormatFloat(s.Value, 'f', -1, 64)),
		MeasureValueType: types.MeasureValueTypeDouble,
		Time:             aws.String(strconv.FormatInt(s.TimestampMs, 10)),
		TimeUnit:         types.TimeUnitMilliseconds,
	}
}
