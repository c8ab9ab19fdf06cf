package config

import "strings"

// EndpointURL turns a bare host, as given on the command line or returned by
// DescribeEndpoints, into an https URL. Values that already carry a scheme
// are kept.
func EndpointURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}
