// Package sanitize scrubs secrets and contact details out of text that
// leaves the service boundary, such as alert messages posted to team
// chat webhooks. Error strings from upstream APIs can echo request
// headers or URLs, so everything is masked before it is forwarded.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[\w.-]+`)
	secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token|password|auth)[=:\s"']*([\w-]{16,})`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[1-9]\d{6,14}`)
)

// String masks bearer tokens, key=value secrets, email addresses and
// phone numbers in the input.
func String(input string) string {
	out := bearerPattern.ReplaceAllString(input, "Bearer [REDACTED]")
	out = secretPattern.ReplaceAllStringFunc(out, maskSecret)
	out = emailPattern.ReplaceAllStringFunc(out, maskEmail)
	out = phonePattern.ReplaceAllStringFunc(out, maskPhone)
	return out
}

// Error masks the error text. Returns "" for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// maskSecret keeps the key name and replaces the value.
func maskSecret(match string) string {
	parts := secretPattern.FindStringSubmatch(match)
	if len(parts) == 3 {
		return strings.TrimSuffix(match, parts[2]) + "[REDACTED]"
	}
	return "[REDACTED]"
}

func maskEmail(email string) string {
	at := strings.Index(email, "@")
	switch {
	case at <= 0:
		return "[email]"
	case at <= 2:
		return email[:1] + "***" + email[at:]
	default:
		return email[:2] + "***" + email[at:]
	}
}

// maskPhone keeps the prefix and the last two digits so the team can
// still correlate an alert with a lead without exposing the number.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}
