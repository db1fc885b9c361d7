package httpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var validResourceID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateResourceID validates interview, question and job path ids.
func ValidateResourceID(field, id string) ValidationResult {
	if id == "" {
		return ValidationResult{Valid: false, Errors: []ValidationError{{
			Field: field, Code: "REQUIRED", Message: field + " is required",
		}}}
	}
	if len(id) > 100 {
		return ValidationResult{Valid: false, Errors: []ValidationError{{
			Field: field, Code: "TOO_LONG", Message: field + " is too long (max 100 characters)",
		}}}
	}
	if !validResourceID.MatchString(id) {
		return ValidationResult{Valid: false, Errors: []ValidationError{{
			Field: field, Code: "INVALID_FORMAT", Message: field + " contains invalid characters",
		}}}
	}
	return ValidationResult{Valid: true}
}

// SanitizeString strips control characters, trims whitespace, bounds length
// and guarantees valid UTF-8 for free-text request fields.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
