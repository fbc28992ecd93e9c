package domain

// Action is what the bot should do next in a conversation. It is a closed
// set: every policy outcome maps to exactly one of these.
type Action string

const (
	// Qualification flow.
	ActionAskVehicleUse  Action = "solicitar_uso_vehiculo"
	ActionAskIncomeProof Action = "solicitar_ingresos"
	ActionAskDownPayment Action = "solicitar_enganche"
	ActionAskCredit      Action = "solicitar_credito"
	ActionFinishQualify  Action = "finalizar_calificacion"

	// Post-qualification moves.
	ActionScheduleCall  Action = "agendar_llamada"
	ActionRequestQuote  Action = "solicitar_cotizacion"
	ActionQuoteModel    Action = "cotizar_modelo"
	ActionKeepInterest  Action = "mantener_interes"
	ActionBookVisit     Action = "agendar_cita"
	ActionOfferSlots    Action = "ofrecer_horarios"
	ActionConfirmSlot   Action = "confirmar_horario"
	ActionClarifySlot   Action = "aclarar_seleccion"
	ActionDeclineSlots  Action = "rechazar_horarios"

	// Generic conversation.
	ActionAnswerModelQuestion Action = "responder_duda_modelo"
	ActionSmallTalk           Action = "conversacion_ligera"
	ActionContinue            Action = "continuar_conversacion"
)

// Decision is the policy's verdict for one inbound message: the action to
// take plus the data that action needs. Only the fields relevant to the
// action are set.
type Decision struct {
	Action Action

	// NextStage is non-empty when the lead should transition.
	NextStage Stage

	// Model is the vehicle model to quote, for ActionQuoteModel.
	Model string

	// SlotIndex is the 1-based appointment slot the lead picked, for
	// ActionConfirmSlot.
	SlotIndex int

	// SlotLabel is the human-readable label of the picked slot, for
	// ActionConfirmSlot.
	SlotLabel string

	// OfferSlots carries the slots to present, for ActionOfferSlots.
	OfferSlots []AppointmentSlot
}

// Transitions reports whether the decision moves the lead to a new stage.
func (d Decision) Transitions() bool {
	return d.NextStage != ""
}
