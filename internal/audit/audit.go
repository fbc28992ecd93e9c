// Package audit emits structured security events for forensics. Events
// go through the regular log pipeline under the "audit" logger name so
// they can be filtered and shipped to a separate sink.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies the kind of security event.
type EventType string

const (
	EventAuthFailure          EventType = "auth.apikey.failure"
	EventRateLimitExceeded    EventType = "authz.ratelimit.exceeded"
	EventWebhookSignatureFail EventType = "webhook.signature.failed"
	EventWebhookRejected      EventType = "webhook.payload.rejected"
	EventServiceStarted       EventType = "system.started"
	EventServiceStopping      EventType = "system.stopping"
)

// Severity is the event severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is one audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`

	SourceIP  string `json:"source_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Logger writes audit events.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates an audit logger on top of the base logger.
func NewLogger(baseLogger *zap.Logger) *Logger {
	return &Logger{
		logger: baseLogger.Named("audit"),
	}
}

// Log records an audit event, filling in the ID and timestamp when the
// caller left them empty.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError, SeverityCritical:
		level = zap.ErrorLevel
	}

	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			metadataJSON = []byte(`{"error":"failed to marshal metadata"}`)
		}
	}

	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("action", event.Action),
		zap.String("outcome", event.Outcome),
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(metadataJSON) > 0 {
		fields = append(fields, zap.ByteString("metadata", metadataJSON))
	}

	if ce := l.logger.Check(level, "security audit event"); ce != nil {
		ce.Write(fields...)
	}
}

// AuthFailure logs a rejected admin API key.
func (l *Logger) AuthFailure(ctx context.Context, ip, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventAuthFailure,
		Severity:  SeverityWarning,
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "admin api authentication",
		Outcome:   "failure",
		Reason:    reason,
	})
}

// RateLimitExceeded logs a rate limit violation.
func (l *Logger) RateLimitExceeded(ctx context.Context, identifier, ip, requestID, limiterType string) {
	l.Log(ctx, &Event{
		Type:      EventRateLimitExceeded,
		Severity:  SeverityWarning,
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "request rate limited",
		Outcome:   "denied",
		Reason:    "rate limit exceeded",
		Metadata: map[string]interface{}{
			"identifier":   identifier,
			"limiter_type": limiterType,
		},
	})
}

// WebhookSignatureFailed logs an inbound webhook with a bad signature.
func (l *Logger) WebhookSignatureFailed(ctx context.Context, ip, requestID string) {
	l.Log(ctx, &Event{
		Type:      EventWebhookSignatureFail,
		Severity:  SeverityWarning,
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "webhook signature validation",
		Outcome:   "failure",
		Reason:    "invalid or missing signature",
	})
}

// WebhookRejected logs an inbound webhook with an invalid payload.
func (l *Logger) WebhookRejected(ctx context.Context, ip, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventWebhookRejected,
		Severity:  SeverityWarning,
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "webhook payload validation",
		Outcome:   "failure",
		Reason:    reason,
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, environment string) {
	l.Log(ctx, &Event{
		Type:     EventServiceStarted,
		Severity: SeverityInfo,
		Action:   "service started",
		Outcome:  "success",
		Metadata: map[string]interface{}{
			"environment": environment,
		},
	})
}

// ServiceStopping logs shutdown initiation.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:     EventServiceStopping,
		Severity: SeverityInfo,
		Action:   "service stopping",
		Outcome:  "success",
		Reason:   reason,
	})
}
