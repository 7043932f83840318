package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder substituted for credential material in
// logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys lists attribute names whose values must never reach a log
// line: bearer tokens, signing secrets and raw signatures.
var sensitiveKeys = map[string]struct{}{
	"token":     {},
	"secret":    {},
	"signature": {},
	"jwt":       {},
}

// Sensitive reports whether values logged under the key must be masked.
func Sensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr with the value replaced by the redaction
// placeholder when the key is sensitive. Empty values pass through so absent
// fields stay visibly absent.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !Sensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
