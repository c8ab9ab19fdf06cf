package ingester

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoSource is returned when an ingest run has no sample source.
var ErrNoSource = errors.New("no sample source")

// Source yields exposition text to ingest.
type Source interface {
	Collect(ctx context.Context, log *zap.Logger) ([]byte, error)
	String() string
}

// FileSource reads a local exposition file.
type FileSource struct {
	Path string
}

// Collect reads the whole file.
func (s FileSource) Collect(_ context.Context, _ *zap.Logger) ([]byte, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening metrics file: %w", err)
	}
	return b, nil
}

// String names the file.
func (s FileSource) String() string { return "file " + s.Path }

// Downloader fetches an object body.
type Downloader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// ObjectSource reads an exposition file stored in S3.
type ObjectSource struct {
	Bucket string
	Key    string
	Store  Downloader
}

// Collect downloads the object.
func (s ObjectSource) Collect(ctx context.Context, _ *zap.Logger) ([]byte, error) {
	return s.Store.Download(ctx, s.Bucket, s.Key)
}

// String returns the object URL.
func (s ObjectSource) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// ScrapeSource polls a /metrics endpoint every Interval until Duration has
// elapsed, stamping each scrape with the time it was taken.
type ScrapeSource struct {
	Target   string
	Interval time.Duration
	Duration time.Duration

	// Optional; default to http.DefaultClient and time.Now.
	HTTPClient *http.Client
	Now        func() time.Time
}

// String names the scrape URL.
func (s ScrapeSource) String() string { return "scrape " + s.url() }

func (s ScrapeSource) url() string {
	if strings.Contains(s.Target, "://") {
		return strings.TrimRight(s.Target, "/") + "/metrics"
	}
	return fmt.Sprintf("http://%s/metrics", s.Target)
}

// Collect scrapes until Duration elapses or ctx is done and returns the
// concatenated, timestamped scrapes.
func (s ScrapeSource) Collect(ctx context.Context, log *zap.Logger) ([]byte, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	done := time.NewTimer(s.Duration)
	defer done.Stop()

	var buffer bytes.Buffer
	scrapes := 0
	for {
		log.Debug("next scrape", zap.Duration("in", s.Interval))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done.C:
			log.Info("scraping complete", zap.Int("scrapes", scrapes), zap.Int("bytes", buffer.Len()))
			return buffer.Bytes(), nil
		case <-ticker.C:
			raw, err := s.scrape(ctx)
			if err != nil {
				log.Warn("scrape failed", zap.String("target", s.Target), zap.Error(err))
				continue
			}
			buffer.Write(AddTimestamp(raw, now()))
			scrapes++
		}
	}
}

func (s ScrapeSource) scrape(ctx context.Context) ([]byte, error) {
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
