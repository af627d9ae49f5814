package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxIDTypeLength matches the width of the govt_id_type column
const MaxIDTypeLength = 50

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+'-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	unsafeNameRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid: true,
		Errors:  []ValidationError{},
	}
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.IsValid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// FirstMessage returns the first error message, or "" when valid
func (vr *ValidationResult) FirstMessage() string {
	if len(vr.Errors) == 0 {
		return ""
	}
	return vr.Errors[0].Message
}

// NormalizeEmail returns the canonical form used as the participant key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether email looks like an address
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateIDDocument checks the identity document fields sent with a photo
func ValidateIDDocument(idType, idNumber string, minLength int) *ValidationResult {
	result := NewValidationResult()

	switch t := SanitizeString(idType); {
	case t == "":
		result.AddError("idType", "idType required")
	case utf8.RuneCountInString(t) > MaxIDTypeLength:
		result.AddError("idType", fmt.Sprintf("idType must be at most %d characters", MaxIDTypeLength))
	}

	n := utf8.RuneCountInString(SanitizeString(idNumber))
	if n == 0 {
		result.AddError("idNumber", "idNumber required")
	} else if n < minLength {
		result.AddError("idNumber", fmt.Sprintf("idNumber must be at least %d characters", minLength))
	}

	return result
}

// SanitizeString removes leading/trailing whitespace and normalizes string
func SanitizeString(s string) string {
	return strings.TrimSpace(s)
}

// SafeFilenamePart reduces s to characters safe inside a file name,
// falling back when nothing usable remains.
func SafeFilenamePart(s, fallback string) string {
	cleaned := strings.Trim(unsafeNameRun.ReplaceAllString(SanitizeString(s), "_"), "_")
	if cleaned == "" {
		return fallback
	}
	if len(cleaned) > 64 {
		cleaned = cleaned[:64]
	}
	return cleaned
}
