package domain

import (
	"time"

	"github.com/google/uuid"
)

// InteractionKind classifies a logged touchpoint with a lead.
type InteractionKind string

const (
	InteractionInboundMessage     InteractionKind = "mensaje_entrante"
	InteractionBotReply           InteractionKind = "respuesta_bot"
	InteractionOutboundCall       InteractionKind = "llamada_saliente"
	InteractionInboundCall        InteractionKind = "llamada_entrante"
	InteractionOutboundWhatsApp   InteractionKind = "whatsapp_saliente"
	InteractionEmailSent          InteractionKind = "email_enviado"
	InteractionAppointmentSet     InteractionKind = "cita_agendada"
	InteractionAppointmentDone    InteractionKind = "cita_completada"
	InteractionAppointmentMissed  InteractionKind = "cita_perdida"
	InteractionQuoteSent          InteractionKind = "cotizacion_enviada"
	InteractionDocumentSent       InteractionKind = "documento_enviado"
	InteractionFollowUpScheduled  InteractionKind = "seguimiento_programado"
	InteractionStageChange        InteractionKind = "cambio_estado"
)

// Actor identifies who produced an interaction.
type Actor string

const (
	ActorCustomer Actor = "cliente"
	ActorBot      Actor = "bot"
	ActorSystem   Actor = "sistema"
)

// Interaction is one entry in a lead's conversation and activity history.
type Interaction struct {
	ID        uuid.UUID         `json:"id"`
	LeadID    uuid.UUID         `json:"lead_id"`
	Kind      InteractionKind   `json:"kind"`
	Actor     Actor             `json:"actor"`
	Content   string            `json:"content"`
	Outcome   *string           `json:"outcome,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// actorFor derives the actor from the interaction kind: inbound traffic is
// the customer, bot replies are the bot, everything else is bookkeeping.
func actorFor(kind InteractionKind) Actor {
	switch kind {
	case InteractionInboundMessage, InteractionInboundCall:
		return ActorCustomer
	case InteractionBotReply:
		return ActorBot
	default:
		return ActorSystem
	}
}

// NewInteraction creates an interaction stamped with the current UTC time.
func NewInteraction(leadID uuid.UUID, kind InteractionKind, content string) *Interaction {
	return &Interaction{
		ID:        uuid.New(),
		LeadID:    leadID,
		Kind:      kind,
		Actor:     actorFor(kind),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewStageChange records a funnel transition in the interaction log so the
// history shows when and why a lead moved.
func NewStageChange(leadID uuid.UUID, from, to Stage) *Interaction {
	i := NewInteraction(leadID, InteractionStageChange, string(from)+" -> "+string(to))
	i.Metadata = map[string]string{
		"from": string(from),
		"to":   string(to),
	}
	return i
}

// IsMessage reports whether the interaction is part of the chat transcript
// (as opposed to calls, documents or bookkeeping entries).
func (i *Interaction) IsMessage() bool {
	return i.Kind == InteractionInboundMessage || i.Kind == InteractionBotReply
}
