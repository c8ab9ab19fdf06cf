package querier

import (
	"fmt"
	"strings"
)

// NamedQuery is one entry of the query battery.
type NamedQuery struct {
	Name string
	SQL  string
}

// quoteIdent quotes a Timestream identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SampleQueries returns the fixed battery run against database.table. The
// queries assume the host metrics layout: region, az and hostname
// dimensions with cpu_utilization and memory_utilization measures.
func SampleQueries(database, table string) []NamedQuery {
	t := quoteIdent(database) + "." + quoteIdent(table)

	return []NamedQuery{
		{
			Name: "latest-rows",
			SQL:  fmt.Sprintf(`SELECT * FROM %s ORDER BY time DESC LIMIT 10`, t),
		},
		{
			Name: "cpu-avg-p90-by-host",
			SQL: fmt.Sprintf(`
SELECT region, az, hostname, BIN(time, 15s) AS binned_timestamp,
    ROUND(AVG(measure_value::double), 2) AS avg_cpu_utilization,
    ROUND(APPROX_PERCENTILE(measure_value::double, 0.9), 2) AS p90_cpu_utilization
FROM %s
WHERE measure_name = 'cpu_utilization'
    AND time > ago(2h)
GROUP BY region, hostname, az, BIN(time, 15s)
ORDER BY binned_timestamp ASC`, t),
		},
		{
			Name: "hosts-above-fleet-average",
			SQL: fmt.Sprintf(`
WITH avg_fleet_utilization AS (
    SELECT COUNT(DISTINCT hostname) AS total_host_count,
        AVG(measure_value::double) AS fleet_avg_cpu_utilization
    FROM %[1]s
    WHERE measure_name = 'cpu_utilization'
        AND time > ago(2h)
), avg_per_host_cpu AS (
    SELECT region, az, hostname, AVG(measure_value::double) AS avg_cpu_utilization
    FROM %[1]s
    WHERE measure_name = 'cpu_utilization'
        AND time > ago(2h)
    GROUP BY region, az, hostname
)
SELECT region, az, hostname, avg_cpu_utilization, fleet_avg_cpu_utilization
FROM avg_fleet_utilization, avg_per_host_cpu
WHERE avg_cpu_utilization > 1.1 * fleet_avg_cpu_utilization
ORDER BY avg_cpu_utilization DESC`, t),
		},
		{
			Name: "interpolated-cpu-series",
			SQL: fmt.Sprintf(`
WITH binned_timeseries AS (
    SELECT hostname, BIN(time, 30s) AS binned_timestamp,
        ROUND(AVG(measure_value::double), 2) AS avg_cpu_utilization
    FROM %s
    WHERE measure_name = 'cpu_utilization'
        AND time > ago(2h)
    GROUP BY hostname, BIN(time, 30s)
), interpolated_timeseries AS (
    SELECT hostname,
        INTERPOLATE_LINEAR(
            CREATE_TIME_SERIES(binned_timestamp, avg_cpu_utilization),
            SEQUENCE(min(binned_timestamp), max(binned_timestamp), 15s)) AS interpolated_avg_cpu_utilization
    FROM binned_timeseries
    GROUP BY hostname
)
SELECT hostname, interpolated_avg_cpu_utilization
FROM interpolated_timeseries`, t),
		},
		{
			Name: "row-count",
			SQL:  fmt.Sprintf(`SELECT COUNT(*) AS row_count FROM %s WHERE time > ago(2h)`, t),
		},
		{
			Name: "last-value-per-host",
			SQL: fmt.Sprintf(`
SELECT hostname, measure_name, MAX(time) AS last_reported,
    MAX_BY(measure_value::double, time) AS last_value
FROM %s
WHERE time > ago(2h)
GROUP BY hostname, measure_name
ORDER BY hostname, measure_name`, t),
		},
	}
}
