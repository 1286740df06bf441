package logging

import (
	"regexp"
	"unicode/utf8"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens of any shape (JWTs, opaque provider keys)
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`)

	// api_key=..., key=..., x-api-key: ...
	apiKeyPattern = regexp.MustCompile(`(?i)(x-api-key|x-goog-api-key|api[_-]?key|apikey|key)([=:]\s*)[A-Za-z0-9._-]{16,}`)

	// Bare vendor keys that leak into SDK error messages
	vendorKeyPattern = regexp.MustCompile(`\b(sk-ant-[A-Za-z0-9_-]{8,}|sk-[A-Za-z0-9_-]{16,}|AIza[A-Za-z0-9_-]{20,})`)

	// user:pass@host connection strings
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// Encrypted credential tokens: hex(nonce):hex(ciphertext):hex(tag)
	credentialTokenPattern = regexp.MustCompile(`\b[0-9a-f]{24}:[0-9a-f]*:[0-9a-f]{32}\b`)
)

// SanitizeConnectionString removes credentials from a connection string before logging.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError strips credentials from an error message.
// Provider SDK errors can echo request headers, so every provider error
// passes through here before it is logged.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText applies every redaction pattern to s.
func SanitizeText(s string) string {
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}${2}"+RedactedText)
	sanitized = vendorKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = credentialTokenPattern.ReplaceAllString(sanitized, RedactedText)
	return sanitized
}

// TruncateString shortens s to at most maxLen runes, adding an ellipsis when cut.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
