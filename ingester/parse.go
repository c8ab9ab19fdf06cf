package ingester

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/prometheus/model/labels"
)

// Sample is one timestamped value of a labelled series.
type Sample struct {
	Labels      labels.Labels
	TimestampMs int64
	Value       float64
}

// AddTimestamp appends now (in milliseconds) to every metric line of an
// exposition payload and drops comment and blank lines.
func AddTimestamp(metrics []byte, now time.Time) []byte {
	var buffer bytes.Buffer
	nowMillis := now.UnixMilli()

	reader := bufio.NewReader(bytes.NewReader(metrics))
	for {
		line, err := reader.ReadString('\n')

		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			fmt.Fprintf(&buffer, "%s %d\n", trimmed, nowMillis)
		}

		if err != nil {
			// bytes.Reader only ever fails with io.EOF
			break
		}
	}

	return buffer.Bytes()
}

// CleanupScrapeBytes normalises line endings and removes comment lines so
// that several concatenated scrapes parse as one payload.
func CleanupScrapeBytes(data []byte) []byte {
	// Normalize Windows CRLF → LF
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	var cleaned []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		cleaned = append(cleaned, line...)
		cleaned = append(cleaned, '\n')
	}
	return cleaned
}

// ParseSamples parses exposition text into samples ordered by metric name.
// Metrics without an explicit timestamp and non finite values cannot be
// stored and are counted in skipped.
func ParseSamples(r io.Reader) (samples []Sample, skipped int, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}

	var parser expfmt.TextParser
	metricFamilies, err := parser.TextToMetricFamilies(bytes.NewReader(CleanupScrapeBytes(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("error parsing metrics: %w", err)
	}

	names := make([]string, 0, len(metricFamilies))
	for name := range metricFamilies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mf := metricFamilies[name]
		for _, m := range mf.Metric {
			if m.TimestampMs == nil {
				skipped++
				continue
			}

			var value float64
			switch mf.GetType() {
			case io_prometheus_client.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case io_prometheus_client.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
			case io_prometheus_client.MetricType_UNTYPED:
				value = m.GetUntyped().GetValue()
			case io_prometheus_client.MetricType_SUMMARY:
				value = m.GetSummary().GetSampleSum()
			case io_prometheus_client.MetricType_HISTOGRAM:
				value = m.GetHistogram().GetSampleSum()
			default:
				skipped++
				continue
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				skipped++
				continue
			}

			b := labels.NewBuilder(labels.EmptyLabels()).Set(labels.MetricName, name)
			for _, lp := range m.Label {
				b.Set(lp.GetName(), lp.GetValue())
			}

			samples = append(samples, Sample{
				Labels:      b.Labels(),
				TimestampMs: m.GetTimestampMs(),
				Value:       value,
			})
		}
	}

	return samples, skipped, nil
}
