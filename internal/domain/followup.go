package domain

import (
	"time"

	"github.com/google/uuid"
)

// FollowUpStatus is the delivery state of a scheduled follow-up.
type FollowUpStatus string

const (
	FollowUpPending FollowUpStatus = "pendiente"
	FollowUpSent    FollowUpStatus = "enviado"
	FollowUpFailed  FollowUpStatus = "fallido"
)

// FollowUpType selects the message template used when the follow-up fires.
type FollowUpType string

const (
	FollowUpFirst            FollowUpType = "primer_seguimiento"
	FollowUpPostQualification FollowUpType = "post_calificacion"
	FollowUpPostQuote        FollowUpType = "post_cotizacion"
	FollowUpReminder         FollowUpType = "recordatorio"
	FollowUpNoResponse       FollowUpType = "sin_respuesta"
)

// FollowUp is a message scheduled to be sent to a lead at a future time.
type FollowUp struct {
	ID          uuid.UUID      `json:"id"`
	LeadID      uuid.UUID      `json:"lead_id"`
	Type        FollowUpType   `json:"type"`
	Status      FollowUpStatus `json:"status"`
	Priority    int            `json:"priority"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewFollowUp schedules a follow-up of the given type for the lead.
func NewFollowUp(leadID uuid.UUID, t FollowUpType, priority int, scheduledAt time.Time) *FollowUp {
	return &FollowUp{
		ID:          uuid.New(),
		LeadID:      leadID,
		Type:        t,
		Status:      FollowUpPending,
		Priority:    priority,
		ScheduledAt: scheduledAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
}

// FollowUpInterval returns how long to wait before the next follow-up and
// its priority, based on the lead's temperature. Hotter leads get shorter
// intervals and higher priority.
func FollowUpInterval(t Temperature) (time.Duration, int) {
	switch t {
	case TemperatureHot:
		return 24 * time.Hour, 3
	case TemperatureWarm:
		return 48 * time.Hour, 2
	default:
		return 72 * time.Hour, 1
	}
}

// NextFollowUpForStage returns the follow-up type and delay appropriate for
// a lead sitting in the given stage, or false for terminal stages.
func NextFollowUpForStage(s Stage) (FollowUpType, time.Duration, bool) {
	if s.IsTerminal() {
		return "", 0, false
	}
	switch s {
	case StageInitialContact:
		return FollowUpFirst, 24 * time.Hour, true
	case StageQualified:
		return FollowUpPostQualification, 48 * time.Hour, true
	case StageQuoted:
		return FollowUpPostQuote, 24 * time.Hour, true
	default:
		return FollowUpReminder, 72 * time.Hour, true
	}
}
