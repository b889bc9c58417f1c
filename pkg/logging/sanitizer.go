package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength caps how much of an enrichment or profiling query
	// makes it into the log.
	MaxQueryLogLength = 120
	// RedactedText replaces credentials in logged values.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... in keyword DSNs.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URL-style DSNs.
	credentialPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
)

// SanitizeDSN strips credentials out of a connection string so it can be
// logged. Both URL-style and keyword-style strings are handled; the host
// and database stay visible for troubleshooting.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	s := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return credentialPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// SanitizeQuery truncates a SQL statement for logging and redacts anything
// that looks like an embedded credential.
func SanitizeQuery(query string) string {
	if len(query) > MaxQueryLogLength {
		query = query[:MaxQueryLogLength] + "..."
	}
	return passwordPattern.ReplaceAllString(query, "${1}="+RedactedText)
}
