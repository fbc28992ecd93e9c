package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/domain"
)

// FallbackReply is sent when the model call fails. The conversation must
// never go silent because of an upstream outage.
const FallbackReply = "Disculpa, tuve un problema para procesar tu mensaje. ¿Me lo puedes repetir, por favor?"

// historyTurns is how many recent chat turns are included in the prompt.
const historyTurns = 6

// Completer is the LLM surface the responder needs.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Responder turns policy decisions into natural-language WhatsApp replies.
type Responder struct {
	client    Completer
	dealer    config.DealerConfig
	knowledge Retriever
	logger    *zap.Logger
}

// NewResponder creates a Responder.
func NewResponder(client Completer, dealer config.DealerConfig, knowledge Retriever, logger *zap.Logger) *Responder {
	return &Responder{
		client:    client,
		dealer:    dealer,
		knowledge: knowledge,
		logger:    logger,
	}
}

// GenerateReply builds the prompt for the decided action and asks the
// model for a reply. Appointment slot exchanges are rendered as fixed
// templates instead, so the numbered options the lead must answer with are
// always stated verbatim. On any model failure it returns FallbackReply
// with the error so the caller can log and keep going.
func (r *Responder) GenerateReply(ctx context.Context, lead *domain.Lead, history []*domain.Interaction, decision domain.Decision, strategy string, now time.Time) (string, error) {
	if reply, ok := ScriptedReply(lead, decision); ok {
		return reply, nil
	}

	messages := r.buildMessages(ctx, lead, history, decision, strategy, now)

	reply, err := r.client.Complete(ctx, messages)
	if err != nil {
		r.logger.Warn("reply generation failed, using fallback",
			zap.String("phone", lead.Phone),
			zap.String("action", string(decision.Action)),
			zap.Error(err),
		)
		return FallbackReply, err
	}
	return strings.TrimSpace(reply), nil
}

// ScriptedReply renders the fixed appointment-flow messages. It reports
// false for every action that should go through the model.
func ScriptedReply(lead *domain.Lead, decision domain.Decision) (string, bool) {
	switch decision.Action {
	case domain.ActionOfferSlots:
		if len(decision.OfferSlots) == 0 {
			return "", false
		}
		var sb strings.Builder
		sb.WriteString("¡Con gusto! Tengo estos horarios disponibles para tu visita:\n")
		for i, slot := range decision.OfferSlots {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, slot.Label)
		}
		sb.WriteString("Respóndeme con el número del horario que te acomode.")
		return sb.String(), true
	case domain.ActionConfirmSlot:
		if decision.SlotLabel == "" {
			return "", false
		}
		return fmt.Sprintf("¡Listo! Tu cita quedó agendada para el %s. Te esperamos en la agencia, cualquier cambio me avisas por aquí.", decision.SlotLabel), true
	case domain.ActionClarifySlot:
		n := len(lead.PendingSlotOffer)
		if n == 0 {
			return "", false
		}
		if n == 1 {
			return "No te entendí bien. Respóndeme con el número 1 si te acomoda el horario que te propuse.", true
		}
		return fmt.Sprintf("No te entendí bien. Respóndeme solo con el número de la opción que te acomode, del 1 al %d.", n), true
	}
	return "", false
}

func (r *Responder) buildMessages(ctx context.Context, lead *domain.Lead, history []*domain.Interaction, decision domain.Decision, strategy string, now time.Time) []ChatMessage {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Eres %s, asesora de ventas de %s, distribuidor %s. ", r.dealer.AgentName, r.dealer.Name, r.dealer.Brand)
	sb.WriteString("Atiendes por WhatsApp con mensajes breves, calidos y naturales, como una persona real. ")
	sb.WriteString("Nunca inventes precios exactos ni promociones que no conozcas. Maximo dos oraciones por mensaje.\n\n")

	sb.WriteString("Datos del cliente:\n")
	fmt.Fprintf(&sb, "- Nombre: %s\n", orDash(lead.Name))
	fmt.Fprintf(&sb, "- Etapa: %s\n", lead.Stage)
	fmt.Fprintf(&sb, "- Temperatura: %s\n", lead.Temperature)
	fmt.Fprintf(&sb, "- Score: %d\n", lead.Score)
	fmt.Fprintf(&sb, "- Dias sin contacto: %d\n", lead.DaysWithoutContact(now))
	if lead.Qualification.InterestedModel != nil {
		fmt.Fprintf(&sb, "- Modelo de interes: %s\n", *lead.Qualification.InterestedModel)
	}
	if lead.Qualification.DownPayment != nil {
		fmt.Fprintf(&sb, "- Enganche disponible: $%.0f\n", *lead.Qualification.DownPayment)
	}
	if lead.Qualification.VehicleUse != nil {
		fmt.Fprintf(&sb, "- Uso del vehiculo: %s\n", *lead.Qualification.VehicleUse)
	}
	if lead.Qualification.IncomeProof != nil {
		fmt.Fprintf(&sb, "- Comprobacion de ingresos: %s\n", *lead.Qualification.IncomeProof)
	}
	if lead.Qualification.CreditHistory != nil {
		fmt.Fprintf(&sb, "- Historial de credito: %s\n", *lead.Qualification.CreditHistory)
	}

	if summary := summarizeHistory(history); summary != "" {
		sb.WriteString("\nResumen de la conversacion:\n")
		sb.WriteString(summary)
	}

	sb.WriteString("\nInstruccion para este mensaje: ")
	sb.WriteString(instructionFor(decision))
	if strategy != "" {
		sb.WriteString(" ")
		sb.WriteString(strategy)
	}

	if needsFinancingContext(decision.Action) {
		sb.WriteString("\n\nInformacion de financiamiento disponible:\n")
		sb.WriteString(r.financingContext(ctx, history))
	}

	sb.WriteString("\nNunca repitas una pregunta que el cliente ya respondio.")

	messages := []ChatMessage{{Role: "system", Content: sb.String()}}
	messages = append(messages, historyMessages(history)...)
	return messages
}

// historyMessages converts the newest chat turns to chat-completion
// messages, oldest first.
func historyMessages(history []*domain.Interaction) []ChatMessage {
	var turns []*domain.Interaction
	for _, h := range history {
		if h.IsMessage() {
			turns = append(turns, h)
		}
	}
	if len(turns) > historyTurns {
		turns = turns[:historyTurns]
	}

	// History arrives newest first; the API wants oldest first.
	messages := make([]ChatMessage, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		role := "user"
		if turns[i].Kind == domain.InteractionBotReply {
			role = "assistant"
		}
		messages = append(messages, ChatMessage{Role: role, Content: turns[i].Content})
	}
	return messages
}

// summarizeHistory condenses non-chat activity so the model knows what
// already happened without replaying the whole log.
func summarizeHistory(history []*domain.Interaction) string {
	var quotes, appointments int
	for _, h := range history {
		switch h.Kind {
		case domain.InteractionQuoteSent:
			quotes++
		case domain.InteractionAppointmentSet:
			appointments++
		}
	}

	var parts []string
	if quotes > 0 {
		parts = append(parts, fmt.Sprintf("- Cotizaciones enviadas: %d", quotes))
	}
	if appointments > 0 {
		parts = append(parts, fmt.Sprintf("- Citas agendadas: %d", appointments))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + "\n"
}

func instructionFor(d domain.Decision) string {
	switch d.Action {
	case domain.ActionAskVehicleUse:
		return "Saluda brevemente y pregunta de forma casual si el auto seria para uso personal o para trabajar."
	case domain.ActionAskIncomeProof:
		return "Pregunta con tacto como comprueba sus ingresos (nomina, negocio propio, etc.)."
	case domain.ActionAskDownPayment:
		return "Pregunta de forma natural con cuanto enganche contaria para arrancar."
	case domain.ActionAskCredit:
		return "Pregunta con tacto como anda su historial de credito."
	case domain.ActionFinishQualify:
		return "Agradece la informacion, resume en una linea lo que entendiste y ofrece una llamada con un asesor."
	case domain.ActionScheduleCall:
		return "Confirma que un asesor le llamara pronto y pregunta en que horario le acomoda."
	case domain.ActionRequestQuote, domain.ActionQuoteModel:
		if d.Model != "" {
			return fmt.Sprintf("Ofrece preparar una cotizacion del %s con su enganche y pregunta si la quiere recibir por aqui.", d.Model)
		}
		return "Ofrece preparar una cotizacion con su enganche y pregunta que modelo le interesa."
	case domain.ActionKeepInterest:
		return "Responde sin presionar, deja la puerta abierta y ofrece mandarle informacion util."
	case domain.ActionBookVisit:
		return "Propon agendar una visita a la agencia esta semana."
	case domain.ActionDeclineSlots:
		return "Ninguno de los horarios propuestos le acomodo al cliente. Responde con flexibilidad y ofrece buscar otra fecha que le quede mejor."
	case domain.ActionAnswerModelQuestion:
		return "Responde la duda del cliente de forma util y concreta."
	case domain.ActionSmallTalk:
		return "Responde de forma ligera y amable, manteniendo viva la conversacion."
	default:
		return "Continua la conversacion de forma natural y util."
	}
}

// financingContext asks the knowledge base for context matching the lead's
// latest question. A retrieval failure falls back to the built-in notes so
// the prompt is never missing financing grounding.
func (r *Responder) financingContext(ctx context.Context, history []*domain.Interaction) string {
	query := latestInbound(history)
	text, err := r.knowledge.Retrieve(ctx, query)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			r.logger.Warn("knowledge retrieval failed, using static notes", zap.Error(err))
		}
		return FinancingKnowledge
	}
	return text
}

// latestInbound returns the newest customer message in the history, which
// arrives newest first.
func latestInbound(history []*domain.Interaction) string {
	for _, h := range history {
		if h.Kind == domain.InteractionInboundMessage {
			return h.Content
		}
	}
	return ""
}

func needsFinancingContext(a domain.Action) bool {
	switch a {
	case domain.ActionRequestQuote, domain.ActionQuoteModel, domain.ActionAnswerModelQuestion:
		return true
	}
	return false
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
