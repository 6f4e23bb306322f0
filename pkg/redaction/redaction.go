// Package redaction masks secret-shaped values in strings and structured
// maps before they reach a log line or telemetry payload. It backs the
// license pipeline's privacy requirement (§4.4: "Machine id and license key
// are redacted in any local logs") and the daemon's request-logging path.
package redaction

import (
	"regexp"
	"strings"
)

var logPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(secret|token|auth)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)Bearer\s+([a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)password["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(private[_-]?key|privkey)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(license[_-]?key|machine[_-]?id)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
}

// Config controls which fields get fully redacted vs pattern-scanned.
type Config struct {
	Enabled         bool
	RedactionText   string
	BlockedFields   []string
}

// DefaultConfig redacts the license/machine-id fields the license pipeline
// carries plus the usual credential-shaped field names.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		RedactionText: "***REDACTED***",
		BlockedFields: []string{
			"password", "secret", "token", "apikey",
			"private_key", "credential", "license_key", "machine_id",
		},
	}
}

// Redactor applies Config to strings and structured maps.
type Redactor struct {
	config Config
}

// NewRedactor creates a Redactor.
func NewRedactor(cfg Config) *Redactor {
	if cfg.RedactionText == "" {
		cfg.RedactionText = "***REDACTED***"
	}
	return &Redactor{config: cfg}
}

// RedactString masks secret-shaped substrings of s.
func (r *Redactor) RedactString(s string) string {
	if !r.config.Enabled {
		return s
	}
	result := s
	for _, pattern := range logPatterns {
		result = pattern.ReplaceAllString(result, "${1}: "+r.config.RedactionText)
	}
	return result
}

// RedactMap recursively redacts blocked field names and scans remaining
// string values for secret-shaped substrings.
func (r *Redactor) RedactMap(m map[string]interface{}) map[string]interface{} {
	if !r.config.Enabled {
		return m
	}

	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch {
		case r.isBlockedField(k):
			result[k] = r.config.RedactionText
		case v == nil:
			result[k] = v
		default:
			switch val := v.(type) {
			case string:
				result[k] = r.RedactString(val)
			case map[string]interface{}:
				result[k] = r.RedactMap(val)
			case []interface{}:
				result[k] = r.redactSlice(val)
			default:
				result[k] = v
			}
		}
	}
	return result
}

func (r *Redactor) redactSlice(s []interface{}) []interface{} {
	result := make([]interface{}, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case string:
			result[i] = r.RedactString(val)
		case map[string]interface{}:
			result[i] = r.RedactMap(val)
		default:
			result[i] = val
		}
	}
	return result
}

func (r *Redactor) isBlockedField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, blocked := range r.config.BlockedFields {
		if strings.Contains(lower, blocked) {
			return true
		}
	}
	return false
}

// FindingRedact formats a secret-scan match the way §4.3 requires: first 4
// chars, up to 10 asterisks, last 4 chars. Matches shorter than 9 characters
// are fully masked since there's no safe middle to preserve.
func FindingRedact(match string) string {
	const headTail = 4
	if len(match) <= headTail*2 {
		return strings.Repeat("*", len(match))
	}
	stars := len(match) - headTail*2
	if stars > 10 {
		stars = 10
	}
	return match[:headTail] + strings.Repeat("*", stars) + match[len(match)-headTail:]
}

var defaultRedactor = NewRedactor(DefaultConfig())

// String redacts s using the package default configuration.
func String(s string) string { return defaultRedactor.RedactString(s) }

// Map redacts m using the package default configuration.
func Map(m map[string]interface{}) map[string]interface{} { return defaultRedactor.RedactMap(m) }
