// Package policy decides what the bot should do with each inbound message.
// Decide is a pure function of the lead and the message text, so every
// transition in the funnel state machine is unit testable without I/O.
package policy

import (
	"strconv"
	"strings"

	"github.com/dinamicamotors/leadflow/internal/domain"
	"github.com/dinamicamotors/leadflow/internal/qualify"
)

var (
	greetingWords = []string{"hola", "info", "información", "precio", "cotizar"}

	topicalWords = []string{
		"precio", "cotización", "cotizacion", "modelo", "plan",
		"financiamiento", "duda", "consulta", "versión", "version",
	}

	priceWords = []string{"precio", "cotiza", "cuanto", "cuánto", "costo", "cuesta"}

	affirmativeWords   = []string{"si", "sí", "claro", "dale", "órale", "va", "llamame", "llama", "márcame", "marca"}
	negativeWords      = []string{"no", "luego", "después", "despues"}
	negativePhrases    = []string{"ahorita no"}
	appointmentWords   = []string{"cita", "visita", "agencia", "ver", "cuando", "cuándo"}

	slotDeclineWords   = []string{"no", "luego", "ninguno", "ninguna", "imposible"}
	slotDeclinePhrases = []string{"otro día", "otro dia", "otra fecha", "otra hora", "no puedo", "no me acomoda"}
)

// Decide maps one inbound message to the next bot action. It never mutates
// the lead; stage transitions are returned in the decision and applied by
// the caller after persistence succeeds.
func Decide(lead *domain.Lead, message string) domain.Decision {
	msg := strings.ToLower(strings.TrimSpace(message))

	// A pending appointment offer takes precedence over everything else:
	// the lead is mid-selection and any other reading of the message would
	// lose the booking.
	if len(lead.PendingSlotOffer) > 0 {
		return decideSlotSelection(lead, msg)
	}

	// Appointment intent outranks the stage table: a lead asking to come
	// in gets the booking flow no matter where the funnel left them.
	// Terminal leads stay put, so the intent is ignored there.
	if !lead.Stage.IsTerminal() && containsAnyWord(msg, appointmentWords) {
		return domain.Decision{Action: domain.ActionBookVisit}
	}

	switch lead.Stage {
	case domain.StageInitialContact:
		return decideInitialContact(msg)
	case domain.StageQualifying:
		return decideQualifying(lead)
	case domain.StageQualified:
		return decideQualified(msg)
	case domain.StageHighInterest:
		return decideHighInterest(msg)
	default:
		// Later funnel stages get a lighter touch: answer product
		// questions, otherwise keep the conversation alive.
		if containsAnyWord(msg, topicalWords) {
			return domain.Decision{Action: domain.ActionAnswerModelQuestion}
		}
		return domain.Decision{Action: domain.ActionSmallTalk}
	}
}

func decideSlotSelection(lead *domain.Lead, msg string) domain.Decision {
	n, err := strconv.Atoi(strings.TrimSpace(msg))
	if err == nil && n >= 1 && n <= len(lead.PendingSlotOffer) {
		return domain.Decision{
			Action:    domain.ActionConfirmSlot,
			NextStage: domain.StageAppointmentSet,
			SlotIndex: n,
			SlotLabel: lead.PendingSlotOffer[n-1].Label,
		}
	}
	// None of the offered times work for the lead; the offer is dropped so
	// the conversation does not wedge on a selection nobody wants.
	if containsAnyWord(msg, slotDeclineWords) || containsAnyPhrase(msg, slotDeclinePhrases) {
		return domain.Decision{Action: domain.ActionDeclineSlots}
	}
	return domain.Decision{Action: domain.ActionClarifySlot}
}

func decideInitialContact(msg string) domain.Decision {
	if containsAnyWord(msg, greetingWords) {
		return domain.Decision{
			Action:    domain.ActionAskVehicleUse,
			NextStage: domain.StageQualifying,
		}
	}
	return domain.Decision{Action: domain.ActionContinue}
}

// decideQualifying asks for the first unfilled slot, in a fixed order, and
// closes qualification once all four are present. Extraction has already
// run by the time this is called.
func decideQualifying(lead *domain.Lead) domain.Decision {
	q := lead.Qualification
	switch {
	case q.VehicleUse == nil:
		return domain.Decision{Action: domain.ActionAskVehicleUse}
	case q.IncomeProof == nil:
		return domain.Decision{Action: domain.ActionAskIncomeProof}
	case q.DownPayment == nil:
		return domain.Decision{Action: domain.ActionAskDownPayment}
	case q.CreditHistory == nil:
		return domain.Decision{Action: domain.ActionAskCredit}
	default:
		return domain.Decision{
			Action:    domain.ActionFinishQualify,
			NextStage: domain.StageQualified,
		}
	}
}

func decideQualified(msg string) domain.Decision {
	switch {
	case containsAnyWord(msg, affirmativeWords):
		return domain.Decision{
			Action:    domain.ActionScheduleCall,
			NextStage: domain.StageHighInterest,
		}
	case containsAnyWord(msg, priceWords):
		return domain.Decision{
			Action:    domain.ActionRequestQuote,
			NextStage: domain.StageHighInterest,
		}
	case containsAnyWord(msg, negativeWords) || containsAnyPhrase(msg, negativePhrases):
		return domain.Decision{Action: domain.ActionKeepInterest}
	default:
		return domain.Decision{Action: domain.ActionContinue}
	}
}

func decideHighInterest(msg string) domain.Decision {
	if model, ok := qualify.ExtractModel(msg); ok {
		return domain.Decision{
			Action: domain.ActionQuoteModel,
			Model:  model,
		}
	}
	return domain.Decision{Action: domain.ActionContinue}
}

// containsAnyWord matches single keywords against whole words and longer
// keywords as substrings. Whole-word matching keeps short tokens like "si"
// or "no" from firing inside unrelated words.
func containsAnyWord(msg string, words []string) bool {
	tokens := tokenize(msg)
	for _, w := range words {
		if len([]rune(w)) <= 4 {
			if _, ok := tokens[w]; ok {
				return true
			}
			continue
		}
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

func containsAnyPhrase(msg string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func tokenize(msg string) map[string]struct{} {
	fields := strings.FieldsFunc(msg, func(r rune) bool {
		switch r {
		case ' ', ',', '.', ';', ':', '!', '?', '¿', '¡', '\n', '\t':
			return true
		}
		return false
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
