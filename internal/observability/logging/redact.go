package logging

import "strings"

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"pan":            {},
	"aadhaar":        {},
	"gstin":          {},
	"account_number": {},
	"bank_account":   {},
	"dob":            {},
	"phone":          {},
	"email":          {},
	"ocr_text":       {},
}

// IsSensitiveKey reports whether a log attribute key carries borrower PII and
// must be masked before the record is written.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns the canonical redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}
