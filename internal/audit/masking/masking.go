// Package masking redacts sensitive strings (bank account numbers, check
// payees) before they land in audit metadata.
package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskJSON returns a copy of the input with values under sensitive keys masked.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if sensitive(trimmedKey) {
			if s, ok := value.(string); ok {
				masked[trimmedKey] = MaskSecret(s)
				continue
			}
		}
		masked[trimmedKey] = value
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func sensitive(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "account_number") ||
		strings.Contains(key, "routing_number") ||
		strings.Contains(key, "secret")
}
