package main

import (
	"os"

	"jcosta/tsquery/cli"
)

// go run . --database sampleDB --host query.timestream.us-east-1.amazonaws.com
// go run . --database sampleDB --host query.timestream.us-east-1.amazonaws.com --endpoint
// go run . ingest --database sampleDB --table host_metrics --target localhost:9182 --duration 1m
func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
