package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)

// Redactor masks credentials before they reach the log output.
type Redactor struct {
	sensitiveKeys []string
}

// DefaultRedactor masks passwords, tokens, secrets and auth headers.
func DefaultRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: []string{"password", "token", "secret", "authorization", "cookie", "key"},
	}
}

func (r *Redactor) isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactFields returns a copy of fields with sensitive values masked.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case r.isSensitive(k):
			out[k] = redacted
		default:
			if s, ok := v.(string); ok {
				out[k] = r.Redact(s)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// Redact masks anything shaped like a JWT inside s.
func (r *Redactor) Redact(s string) string {
	return jwtPattern.ReplaceAllString(s, redacted)
}

// RedactQuery masks sensitive parameters of a raw query string.
func (r *Redactor) RedactQuery(query string) string {
	if query == "" {
		return ""
	}

	parts := strings.Split(query, "&")
	for i, part := range parts {
		keyVal := strings.SplitN(part, "=", 2)
		if len(keyVal) == 2 && r.isSensitive(keyVal[0]) {
			parts[i] = keyVal[0] + "=" + redacted
		}
	}
	return strings.Join(parts, "&")
}
