// Package qualify extracts qualification data from raw WhatsApp messages
// using keyword heuristics. Extraction is intentionally conservative: a slot
// that is already filled is never overwritten, and ambiguous amounts are
// ignored rather than guessed.
package qualify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dinamicamotors/leadflow/internal/domain"
)

// Slot names a qualification field the extractor can fill.
type Slot string

const (
	SlotVehicleUse    Slot = "uso_vehiculo"
	SlotIncomeProof   Slot = "comprobacion_ingresos"
	SlotDownPayment   Slot = "enganche"
	SlotCreditHistory Slot = "historial_credito"
	SlotModel         Slot = "modelo_interes"
	SlotUrgency       Slot = "urgencia"
)

var (
	personalUseWords = []string{"particular", "personal", "familia", "casa", "diario"}
	workUseWords     = []string{"trabajo", "uber", "didi", "taxi", "negocio", "comercial", "chambear", "chamba"}

	formalIncomeWords   = []string{"nomina", "nómina", "formal", "empresa", "empleado", "recibo", "comprobante"}
	informalIncomeWords = []string{"informal", "negocio", "independiente", "sin recibos", "propio", "no tengo comprobantes"}
	noIncomeWords       = []string{"no tengo", "sin ingresos", "no compruebo", "no puedo comprobar"}

	goodCreditWords    = []string{"bueno", "bien", "excelente", "sin problemas", "limpio", "al corriente"}
	regularCreditWords = []string{"regular", "mas o menos", "más o menos", "normal", "algunos problemas", "algún problema"}
	badCreditWords     = []string{"malo", "mal", "problemas", "buro", "buró", "deudas", "atrasado"}

	immediateWords   = []string{"ya", "pronto", "inmediato", "rapido", "rápido", "urgente", "ahorita"}
	threeMonthWords  = []string{"mes", "meses", "3 meses", "proximamente", "próximamente"}
	longTermWords    = []string{"año", "tiempo", "pensando", "futuro"}
)

// Models the dealership sells, matched as substrings of the message.
var knownModels = []string{
	"sentra", "versa", "march", "frontier", "kicks",
	"x-trail", "pathfinder", "altima", "murano", "rogue",
}

var (
	amountPattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d{2})?`)
	milPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*mil\b`)
)

// Extract scans a message and returns a copy of the qualification with any
// newly found slots filled, plus the list of slots that changed. Filled
// slots are left untouched.
func Extract(current domain.Qualification, message string) (domain.Qualification, []Slot) {
	msg := strings.ToLower(strings.TrimSpace(message))
	q := current
	var found []Slot

	if q.VehicleUse == nil {
		if use, ok := extractVehicleUse(msg); ok {
			q.VehicleUse = &use
			found = append(found, SlotVehicleUse)
		}
	}

	if q.IncomeProof == nil {
		if proof, ok := extractIncomeProof(msg); ok {
			q.IncomeProof = &proof
			found = append(found, SlotIncomeProof)
		}
	}

	if q.DownPayment == nil {
		if amount, ok := extractDownPayment(msg); ok {
			q.DownPayment = &amount
			found = append(found, SlotDownPayment)
		}
	}

	if q.CreditHistory == nil {
		if credit, ok := extractCreditHistory(msg); ok {
			q.CreditHistory = &credit
			found = append(found, SlotCreditHistory)
		}
	}

	if q.InterestedModel == nil {
		if model, ok := ExtractModel(msg); ok {
			q.InterestedModel = &model
			found = append(found, SlotModel)
		}
	}

	if q.Urgency == nil {
		if urgency, ok := extractUrgency(msg); ok {
			q.Urgency = &urgency
			found = append(found, SlotUrgency)
		}
	}

	return q, found
}

func containsAny(msg string, words []string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

func extractVehicleUse(msg string) (domain.VehicleUse, bool) {
	switch {
	case containsAny(msg, workUseWords):
		return domain.UseWork, true
	case containsAny(msg, personalUseWords):
		return domain.UsePersonal, true
	}
	return "", false
}

func extractIncomeProof(msg string) (domain.IncomeProof, bool) {
	// Order matters: "no tengo comprobantes" must classify as informal
	// before the bare "no tengo" negation, and both before the generic
	// formal keywords.
	switch {
	case containsAny(msg, informalIncomeWords):
		return domain.IncomeInformal, true
	case containsAny(msg, noIncomeWords):
		return domain.IncomeNone, true
	case containsAny(msg, formalIncomeWords):
		return domain.IncomeFormal, true
	}
	return "", false
}

// extractDownPayment finds the first plausible peso amount in the message.
// "N mil" phrasings are read as thousands ("20 mil" is $20,000), as are bare
// numbers from 100 to 999. Amounts outside 5,000-500,000 are rejected.
func extractDownPayment(msg string) (float64, bool) {
	for _, match := range milPattern.FindAllStringSubmatch(msg, -1) {
		n, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		n *= 1000
		if n >= 5000 && n <= 500000 {
			return n, true
		}
	}

	compact := strings.ReplaceAll(msg, " ", "")
	for _, match := range amountPattern.FindAllString(compact, -1) {
		digits := strings.NewReplacer(",", "", ".", "").Replace(match)
		n, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			continue
		}
		if n >= 100 && n <= 999 {
			n *= 1000
		}
		if n >= 5000 && n <= 500000 {
			return n, true
		}
	}
	return 0, false
}

func extractCreditHistory(msg string) (domain.CreditHistory, bool) {
	// "sin problemas" must classify as good before "problemas" matches
	// the bad list.
	switch {
	case containsAny(msg, goodCreditWords):
		return domain.CreditGood, true
	case containsAny(msg, regularCreditWords):
		return domain.CreditRegular, true
	case containsAny(msg, badCreditWords):
		return domain.CreditBad, true
	}
	return "", false
}

// ExtractModel returns the first known model mentioned in the message,
// title-cased for display.
func ExtractModel(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, m := range knownModels {
		if strings.Contains(lower, m) {
			return titleCase(m), true
		}
	}
	return "", false
}

func extractUrgency(msg string) (domain.Urgency, bool) {
	switch {
	case containsAny(msg, immediateWords):
		return domain.UrgencyImmediate, true
	case containsAny(msg, threeMonthWords):
		return domain.UrgencyThreeMonths, true
	case containsAny(msg, longTermWords):
		return domain.UrgencySixMonths, true
	}
	return "", false
}

// titleCase uppercases the first letter of each hyphen or space separated
// part ("x-trail" -> "X-Trail").
func titleCase(s string) string {
	out := []rune(s)
	upperNext := true
	for i, r := range out {
		if upperNext && r >= 'a' && r <= 'z' {
			out[i] = r - 'a' + 'A'
		}
		upperNext = r == ' ' || r == '-'
	}
	return string(out)
}
