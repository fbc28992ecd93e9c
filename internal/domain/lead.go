// Package domain contains the core business entities for the lead
// qualification funnel.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage represents a lead's position in the sales funnel.
type Stage string

// Funnel stages. The Spanish names match the values the sales team sees in
// the dashboard and in the database.
const (
	StageInitialContact  Stage = "contacto_inicial"
	StageQualifying      Stage = "calificando"
	StageQualified       Stage = "calificado"
	StageHighInterest    Stage = "interesado_alto"
	StageQuoted          Stage = "cotizado"
	StageActiveFollowUp  Stage = "seguimiento_activo"
	StageAppointmentSet  Stage = "cita_agendada"
	StageAtDealership    Stage = "en_agencia"
	StageTestDrive       Stage = "prueba_manejo"
	StageNegotiating     Stage = "negociando"
	StageSold            Stage = "vendido"
	StageLostPrice       Stage = "perdido_precio"
	StageLostCredit      Stage = "perdido_credito"
	StageLostInterest    Stage = "perdido_interes"
	StageDisqualified    Stage = "descalificado"
)

// Stages returns all funnel stages in funnel order, terminal stages last.
func Stages() []Stage {
	return []Stage{
		StageInitialContact,
		StageQualifying,
		StageQualified,
		StageHighInterest,
		StageQuoted,
		StageActiveFollowUp,
		StageAppointmentSet,
		StageAtDealership,
		StageTestDrive,
		StageNegotiating,
		StageSold,
		StageLostPrice,
		StageLostCredit,
		StageLostInterest,
		StageDisqualified,
	}
}

// IsTerminal reports whether the stage ends the funnel. Terminal leads are
// excluded from follow-up scheduling.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageSold, StageLostPrice, StageLostCredit, StageLostInterest, StageDisqualified:
		return true
	}
	return false
}

// IsValid reports whether s is a known funnel stage.
func (s Stage) IsValid() bool {
	_, ok := closingProbability[s]
	return ok
}

// closingProbability maps each stage to the historical probability that a
// lead in that stage ends up buying.
var closingProbability = map[Stage]float64{
	StageInitialContact: 0.1,
	StageQualifying:     0.2,
	StageQualified:      0.3,
	StageHighInterest:   0.5,
	StageQuoted:         0.6,
	StageActiveFollowUp: 0.7,
	StageAppointmentSet: 0.8,
	StageAtDealership:   0.85,
	StageTestDrive:      0.9,
	StageNegotiating:    0.95,
	StageSold:           1.0,
	StageLostPrice:      0.0,
	StageLostCredit:     0.0,
	StageLostInterest:   0.0,
	StageDisqualified:   0.0,
}

// ClosingProbability returns the stage's closing probability, or 0 for
// unknown stages.
func (s Stage) ClosingProbability() float64 {
	return closingProbability[s]
}

// Temperature classifies how engaged a lead currently is.
type Temperature string

const (
	TemperatureHot  Temperature = "caliente"
	TemperatureWarm Temperature = "tibio"
	TemperatureCold Temperature = "frio"
)

// Channel identifies where the lead came from.
type Channel string

const (
	ChannelFacebookAds    Channel = "facebook_ads"
	ChannelInstagramAds   Channel = "instagram_ads"
	ChannelGoogleAds      Channel = "google_ads"
	ChannelWhatsAppDirect Channel = "whatsapp_directo"
	ChannelReferral       Channel = "referencia"
	ChannelWebsite        Channel = "pagina_web"
	ChannelDirectCall     Channel = "llamada_directa"
)

// VehicleUse is the declared use for the vehicle.
type VehicleUse string

const (
	UsePersonal VehicleUse = "particular"
	UseWork     VehicleUse = "trabajo"
)

// IncomeProof is the kind of income documentation the lead can provide.
type IncomeProof string

const (
	IncomeFormal   IncomeProof = "formal"
	IncomeInformal IncomeProof = "informal"
	IncomeNone     IncomeProof = "ninguna"
)

// CreditHistory is the lead's self-reported credit standing.
type CreditHistory string

const (
	CreditGood    CreditHistory = "bueno"
	CreditRegular CreditHistory = "regular"
	CreditBad     CreditHistory = "malo"
)

// Urgency is the declared purchase timeframe.
type Urgency string

const (
	UrgencyImmediate   Urgency = "inmediata"
	UrgencyThreeMonths Urgency = "3meses"
	UrgencySixMonths   Urgency = "6meses"
	UrgencyExploring   Urgency = "explorando"
)

// Qualification holds the slots the bot tries to fill during the
// qualifying conversation. All fields are nil until extracted.
type Qualification struct {
	VehicleUse      *VehicleUse    `json:"vehicle_use,omitempty"`
	IncomeProof     *IncomeProof   `json:"income_proof,omitempty"`
	DownPayment     *float64       `json:"down_payment,omitempty"`
	CreditHistory   *CreditHistory `json:"credit_history,omitempty"`
	InterestedModel *string        `json:"interested_model,omitempty"`
	Urgency         *Urgency       `json:"urgency,omitempty"`

	// Profile details agents capture by hand; the bot persists them but
	// does not try to extract them from chat.
	MonthlyIncome *float64 `json:"monthly_income,omitempty"`
	City          *string  `json:"city,omitempty"`
	Occupation    *string  `json:"occupation,omitempty"`
	AgeEstimate   *int     `json:"age_estimate,omitempty"`
	OwnsVehicle   *bool    `json:"owns_vehicle,omitempty"`
	MaxBudget     *float64 `json:"max_budget,omitempty"`
}

// Complete reports whether the four slots required to finish qualification
// are filled. Model and urgency are nice to have but not required.
func (q Qualification) Complete() bool {
	return q.VehicleUse != nil && q.IncomeProof != nil && q.DownPayment != nil && q.CreditHistory != nil
}

// Lead is a prospective buyer identified by their WhatsApp phone number.
type Lead struct {
	ID      uuid.UUID `json:"id"`
	Phone   string    `json:"phone"`
	Name    string    `json:"name"`
	Email   *string   `json:"email,omitempty"`
	Stage   Stage     `json:"stage"`
	Channel Channel   `json:"channel"`

	Qualification Qualification `json:"qualification"`

	Score       int         `json:"score"`
	Temperature Temperature `json:"temperature"`

	MessagesReceived      int `json:"messages_received"`
	MessagesSent          int `json:"messages_sent"`
	CallsMade             int `json:"calls_made"`
	AppointmentsScheduled int `json:"appointments_scheduled"`
	AppointmentsCompleted int `json:"appointments_completed"`
	QuotesSent            int `json:"quotes_sent"`

	// EstimatedValue is the projected sale amount in MXN, set by agents
	// once a deal takes shape.
	EstimatedValue float64 `json:"estimated_value"`

	// PendingSlotOffer holds appointment slots offered to the lead and not
	// yet chosen. Empty when no offer is outstanding.
	PendingSlotOffer []AppointmentSlot `json:"pending_slot_offer,omitempty"`

	AssignedAgent *string `json:"assigned_agent,omitempty"`
	Notes         string  `json:"notes,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	LastContactAt time.Time `json:"last_contact_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AppointmentSlot is one bookable showroom visit option.
type AppointmentSlot struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
}

// NewLead creates a lead in the initial funnel stage. Timestamps are UTC.
func NewLead(phone, name string, channel Channel) *Lead {
	now := time.Now().UTC()
	return &Lead{
		ID:            uuid.New(),
		Phone:         phone,
		Name:          name,
		Stage:         StageInitialContact,
		Channel:       channel,
		Score:         0,
		Temperature:   TemperatureCold,
		CreatedAt:     now,
		LastContactAt: now,
		UpdatedAt:     now,
	}
}

// DaysWithoutContact returns whole days elapsed since the last contact,
// measured against the given UTC instant.
func (l *Lead) DaysWithoutContact(now time.Time) int {
	d := int(now.UTC().Sub(l.LastContactAt.UTC()).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// RecomputeScore recalculates the qualification score from the lead's
// current data. The result is clamped to [0, 100].
func (l *Lead) RecomputeScore() {
	score := 0

	if l.Phone != "" {
		score += 5
	}
	if l.Email != nil && *l.Email != "" {
		score += 5
	}

	if l.Qualification.IncomeProof != nil {
		switch *l.Qualification.IncomeProof {
		case IncomeFormal:
			score += 20
		case IncomeInformal:
			score += 10
		}
	}

	if l.Qualification.DownPayment != nil {
		switch dp := *l.Qualification.DownPayment; {
		case dp >= 50000:
			score += 20
		case dp >= 30000:
			score += 15
		case dp >= 15000:
			score += 10
		default:
			score += 5
		}
	}

	if l.Qualification.CreditHistory != nil {
		switch *l.Qualification.CreditHistory {
		case CreditGood:
			score += 20
		case CreditRegular:
			score += 10
		case CreditBad:
			score += 5
		}
	}

	switch {
	case l.MessagesReceived >= 5:
		score += 10
	case l.MessagesReceived >= 2:
		score += 5
	}

	if l.AppointmentsScheduled > 0 {
		score += 10
	}

	if l.Qualification.Urgency != nil {
		switch *l.Qualification.Urgency {
		case UrgencyImmediate:
			score += 10
		case UrgencyThreeMonths:
			score += 7
		case UrgencySixMonths:
			score += 5
		}
	}

	if score > 100 {
		score = 100
	}
	l.Score = score
}

// RecomputeTemperature reclassifies the lead from message volume, urgency
// and score. Call after RecomputeScore.
func (l *Lead) RecomputeTemperature() {
	urgent := l.Qualification.Urgency != nil && *l.Qualification.Urgency == UrgencyImmediate
	switch {
	case l.MessagesReceived >= 3 && urgent && l.Score >= 70:
		l.Temperature = TemperatureHot
	case l.MessagesReceived >= 2 && l.Score >= 40:
		l.Temperature = TemperatureWarm
	default:
		l.Temperature = TemperatureCold
	}
}

// Touch records an inbound contact at the given UTC instant.
func (l *Lead) Touch(now time.Time) {
	l.LastContactAt = now.UTC()
	l.UpdatedAt = now.UTC()
}
