// Package metrics provides metrics collection including funnel event logging.
package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FunnelEventLogger provides structured logging for funnel events.
// This complements Prometheus metrics by providing detailed, searchable logs
// for sales analysis and debugging.
type FunnelEventLogger struct {
	logger *zap.Logger
}

// NewFunnelEventLogger creates a new funnel event logger.
func NewFunnelEventLogger(logger *zap.Logger) *FunnelEventLogger {
	return &FunnelEventLogger{
		logger: logger.Named("funnel_events"),
	}
}

// LeadCreated logs when a new lead enters the funnel.
func (l *FunnelEventLogger) LeadCreated(ctx context.Context, leadID uuid.UUID, channel, phone string) {
	l.logger.Info("lead_created",
		zap.String("event_type", "lead.created"),
		zap.String("lead_id", leadID.String()),
		zap.String("channel", channel),
		zap.String("phone", MaskPhoneNumber(phone)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// StageChanged logs a funnel stage transition.
func (l *FunnelEventLogger) StageChanged(ctx context.Context, leadID uuid.UUID, from, to string, score int) {
	l.logger.Info("stage_changed",
		zap.String("event_type", "lead.stage_changed"),
		zap.String("lead_id", leadID.String()),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("score", score),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// QualificationCompleted logs when all qualification slots are filled.
func (l *FunnelEventLogger) QualificationCompleted(ctx context.Context, leadID uuid.UUID, score int, temperature string) {
	l.logger.Info("qualification_completed",
		zap.String("event_type", "lead.qualified"),
		zap.String("lead_id", leadID.String()),
		zap.Int("score", score),
		zap.String("temperature", temperature),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// AppointmentBooked logs a booked showroom visit.
func (l *FunnelEventLogger) AppointmentBooked(ctx context.Context, leadID uuid.UUID, start time.Time) {
	l.logger.Info("appointment_booked",
		zap.String("event_type", "appointment.booked"),
		zap.String("lead_id", leadID.String()),
		zap.Time("start", start),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// FollowUpSent logs a delivered follow-up message.
func (l *FunnelEventLogger) FollowUpSent(ctx context.Context, leadID uuid.UUID, followUpType string) {
	l.logger.Info("followup_sent",
		zap.String("event_type", "followup.sent"),
		zap.String("lead_id", leadID.String()),
		zap.String("type", followUpType),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// MaskPhoneNumber hides the middle digits of a phone number for logs.
// "+5215512345678" becomes "+521*******678".
func MaskPhoneNumber(phone string) string {
	if len(phone) < 7 {
		return "***"
	}
	masked := []byte(phone)
	for i := 4; i < len(masked)-3; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
