// Package redact keeps secret values out of logs.
package redact

import "net/url"

const redactedValue = "***REDACTED***"

// Secret hides a configured secret; an empty value stays empty so logs still
// show whether it was set.
func Secret(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

// URL reduces raw to scheme and host. Incoming-webhook URLs carry their
// credential in the path or query.
func URL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redactedValue
	}
	return u.Scheme + "://" + u.Host + "/" + redactedValue
}
