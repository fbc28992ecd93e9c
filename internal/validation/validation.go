// Package validation checks inbound webhook fields before they reach
// the conversation pipeline.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// WhatsApp caps text messages at 4096 characters; anything longer is a
// malformed payload, not a real message.
const (
	MaxBodyLength = 4096
	MaxNameLength = 256
)

// Error codes for validation failures.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeTooLong       = "too_long"
	CodeMalicious     = "malicious_content"
)

// FieldError is a single validation failure with field context.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors is a collection of validation failures.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any validation failed.
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator accumulates field errors across checks.
type Validator struct {
	errors FieldErrors
}

// New creates an empty validator.
func New() *Validator {
	return &Validator{}
}

// Errors returns all accumulated errors.
func (v *Validator) Errors() FieldErrors {
	return v.errors
}

// IsValid returns true if no check failed.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// AddError records a validation failure.
func (v *Validator) AddError(field, message, code string) {
	v.errors = append(v.errors, FieldError{
		Field:   field,
		Message: message,
		Code:    code,
	})
}

// Required checks that a string field is not blank.
func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required", CodeRequired)
		return false
	}
	return true
}

// MaxLength checks the rune count against a maximum.
func (v *Validator) MaxLength(field, value string, maxLen int) bool {
	if utf8.RuneCountInString(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", maxLen), CodeTooLong)
		return false
	}
	return true
}

var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// PhoneNumber checks E.164 format. Empty values pass; combine with
// Required when the field is mandatory.
func (v *Validator) PhoneNumber(field, value string) bool {
	if value == "" {
		return true
	}
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(value)
	if !phoneRegex.MatchString(cleaned) {
		v.AddError(field, "must be a valid phone number in E.164 format", CodeInvalidFormat)
		return false
	}
	return true
}

// SafeString rejects control characters other than newlines and tabs.
func (v *Validator) SafeString(field, value string) bool {
	for _, r := range value {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			v.AddError(field, "contains invalid control characters", CodeMalicious)
			return false
		}
	}
	return true
}

// InboundMessage holds the Twilio webhook fields worth checking.
type InboundMessage struct {
	From        string
	Body        string
	ProfileName string
}

// ValidateInbound checks an inbound WhatsApp message payload.
func ValidateInbound(msg InboundMessage) FieldErrors {
	v := New()
	if v.Required("From", msg.From) {
		v.PhoneNumber("From", strings.TrimPrefix(msg.From, "whatsapp:"))
	}
	if v.Required("Body", msg.Body) {
		v.MaxLength("Body", msg.Body, MaxBodyLength)
		v.SafeString("Body", msg.Body)
	}
	v.MaxLength("ProfileName", msg.ProfileName, MaxNameLength)
	return v.Errors()
}

// SanitizeString strips null bytes, replaces stray control characters
// with spaces and trims the result.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	var builder strings.Builder
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			builder.WriteRune(' ')
		} else {
			builder.WriteRune(r)
		}
	}
	return strings.TrimSpace(builder.String())
}

// SanitizePhoneNumber keeps digits and a leading plus sign, dropping
// separators and formatting characters.
func SanitizePhoneNumber(phone string) string {
	hasPlus := strings.HasPrefix(phone, "+")
	digits := strings.Builder{}
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	result := digits.String()
	if hasPlus && result != "" {
		return "+" + result
	}
	return result
}
