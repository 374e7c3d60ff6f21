package masking

import "strings"

const maskToken = "****"

// MaskSecret keeps the last four characters of a value so support can match
// it against what a user typed.
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

// MaskEmail keeps the first letter of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskJSON returns a copy of the input with string values masked. Keys listed
// in Plain are copied as is.
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
		if Plain[trimmedKey] {
			masked[trimmedKey] = value
			continue
		}
		masked[trimmedKey] = maskValue(value)
	}
	if len(masked) == 0 {
		return nil
	}
	return masked
}

// Plain lists metadata keys that never carry personal data.
var Plain = map[string]bool{
	"result": true,
	"reason": true,
	"role":   true,
	"object": true,
	"action": true,
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		if strings.Contains(cast, "@") {
			return MaskEmail(cast)
		}
		return MaskSecret(cast)
	case map[string]any:
		return MaskJSON(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
		}
		return out
	default:
		return value
	}
}
