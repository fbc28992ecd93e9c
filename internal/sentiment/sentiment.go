// Package sentiment classifies inbound messages with keyword heuristics so
// the response generator and the notifier can adjust tone without an extra
// model call.
package sentiment

import "strings"

// Signal is an emotional marker detected in a message.
type Signal string

const (
	SignalFrustration    Signal = "frustracion"
	SignalEnthusiasm     Signal = "entusiasmo"
	SignalUrgency        Signal = "urgencia"
	SignalDoubt          Signal = "dudas"
	SignalPriceSensitive Signal = "precio_sensible"
)

// MessageType is a coarse classification of what the lead is asking for.
type MessageType string

const (
	TypePriceInquiry       MessageType = "consulta_precio"
	TypeAppointmentRequest MessageType = "solicitud_cita"
	TypeInfoRequest        MessageType = "solicitud_info"
	TypeGreeting           MessageType = "saludo"
	TypeConfirmation       MessageType = "confirmacion"
	TypeGeneral            MessageType = "conversacion_general"
)

// Analysis is the result of scanning one message.
type Analysis struct {
	Signals  []Signal
	Type     MessageType
	Strategy string
}

var signalWords = map[Signal][]string{
	SignalFrustration: {
		"molesto", "enojado", "harto", "nadie me contesta", "llevo esperando",
		"pesimo", "pésimo", "queja", "mal servicio",
	},
	SignalEnthusiasm: {
		"me encanta", "excelente", "perfecto", "genial", "me urge verlo",
		"que buena", "qué buena", "increible", "increíble",
	},
	SignalUrgency: {
		"urgente", "ya", "hoy mismo", "lo antes posible", "ahorita", "rapido", "rápido",
	},
	SignalDoubt: {
		"no se", "no sé", "no estoy seguro", "dejame pensarlo", "déjame pensarlo",
		"tengo que consultarlo", "duda",
	},
	SignalPriceSensitive: {
		"muy caro", "carisimo", "carísimo", "descuento", "mas barato", "más barato",
		"promocion", "promoción", "rebaja", "no me alcanza",
	},
}

var typeWords = map[MessageType][]string{
	TypePriceInquiry:       {"precio", "cuanto cuesta", "cuánto cuesta", "costo", "mensualidad", "cotiza"},
	TypeAppointmentRequest: {"cita", "visita", "agencia", "cuando puedo ir", "cuándo puedo ir", "horario"},
	TypeInfoRequest:        {"informacion", "información", "detalles", "caracteristicas", "características", "ficha"},
	TypeGreeting:           {"hola", "buenas", "buenos dias", "buenos días", "buenas tardes", "que tal", "qué tal"},
	TypeConfirmation:       {"si", "sí", "claro", "de acuerdo", "perfecto", "va"},
}

// typeOrder fixes classification precedence: a price question that opens
// with "hola" is still a price question.
var typeOrder = []MessageType{
	TypePriceInquiry,
	TypeAppointmentRequest,
	TypeInfoRequest,
	TypeGreeting,
	TypeConfirmation,
}

// Analyze scans a message for emotional signals and classifies it.
func Analyze(message string) Analysis {
	msg := strings.ToLower(strings.TrimSpace(message))

	var signals []Signal
	for _, s := range []Signal{SignalFrustration, SignalEnthusiasm, SignalUrgency, SignalDoubt, SignalPriceSensitive} {
		if matches(msg, signalWords[s]) {
			signals = append(signals, s)
		}
	}

	mt := TypeGeneral
	for _, candidate := range typeOrder {
		if matches(msg, typeWords[candidate]) {
			mt = candidate
			break
		}
	}

	return Analysis{
		Signals:  signals,
		Type:     mt,
		Strategy: strategyFor(signals, mt),
	}
}

// Has reports whether the analysis detected the given signal.
func (a Analysis) Has(s Signal) bool {
	for _, x := range a.Signals {
		if x == s {
			return true
		}
	}
	return false
}

// strategyFor picks a short tone instruction for the response generator.
// Frustration outranks everything; price sensitivity outranks enthusiasm.
func strategyFor(signals []Signal, mt MessageType) string {
	has := func(s Signal) bool {
		for _, x := range signals {
			if x == s {
				return true
			}
		}
		return false
	}

	switch {
	case has(SignalFrustration):
		return "Disculpate brevemente y resuelve de inmediato, sin rodeos ni ventas."
	case has(SignalPriceSensitive):
		return "Enfatiza planes de financiamiento y enganches accesibles antes que el precio de lista."
	case has(SignalUrgency):
		return "Responde directo y ofrece el siguiente paso concreto hoy mismo."
	case has(SignalDoubt):
		return "Da seguridad con datos concretos y una sola pregunta sencilla."
	case has(SignalEnthusiasm):
		return "Aprovecha el entusiasmo y propon agendar una visita."
	case mt == TypePriceInquiry:
		return "Da un rango de precio util y ofrece cotizacion formal."
	default:
		return "Manten un tono calido y conversacional."
	}
}

func matches(msg string, words []string) bool {
	tokens := strings.Fields(msg)
	for _, w := range words {
		if strings.ContainsRune(w, ' ') || len([]rune(w)) > 4 {
			if strings.Contains(msg, w) {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if strings.Trim(tok, ".,!?¿¡") == w {
				return true
			}
		}
	}
	return false
}
