package policy

import (
	"testing"
	"time"

	"github.com/dinamicamotors/leadflow/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func leadInStage(s domain.Stage) *domain.Lead {
	l := domain.NewLead("+5215512345678", "Ana", domain.ChannelWhatsAppDirect)
	l.Stage = s
	return l
}

func TestDecideInitialContactGreeting(t *testing.T) {
	tests := []string{
		"Hola, quiero información",
		"hola",
		"me pasan el precio del versa",
		"quiero cotizar un auto",
	}
	for _, msg := range tests {
		d := Decide(leadInStage(domain.StageInitialContact), msg)
		if d.Action != domain.ActionAskVehicleUse {
			t.Errorf("Decide(%q) action = %s, want %s", msg, d.Action, domain.ActionAskVehicleUse)
		}
		if d.NextStage != domain.StageQualifying {
			t.Errorf("Decide(%q) next stage = %s, want %s", msg, d.NextStage, domain.StageQualifying)
		}
	}
}

func TestDecideInitialContactNonGreeting(t *testing.T) {
	d := Decide(leadInStage(domain.StageInitialContact), "???")
	if d.Action != domain.ActionContinue {
		t.Errorf("action = %s, want %s", d.Action, domain.ActionContinue)
	}
	if d.Transitions() {
		t.Error("should not transition on unrecognized first message")
	}
}

func TestDecideQualifyingWalksSlots(t *testing.T) {
	lead := leadInStage(domain.StageQualifying)

	d := Decide(lead, "hola")
	if d.Action != domain.ActionAskVehicleUse {
		t.Fatalf("empty slots: action = %s, want ask vehicle use", d.Action)
	}

	lead.Qualification.VehicleUse = ptr(domain.UsePersonal)
	if d := Decide(lead, "ok"); d.Action != domain.ActionAskIncomeProof {
		t.Fatalf("after use: action = %s, want ask income", d.Action)
	}

	lead.Qualification.IncomeProof = ptr(domain.IncomeFormal)
	if d := Decide(lead, "ok"); d.Action != domain.ActionAskDownPayment {
		t.Fatalf("after income: action = %s, want ask down payment", d.Action)
	}

	lead.Qualification.DownPayment = ptr(30000.0)
	if d := Decide(lead, "ok"); d.Action != domain.ActionAskCredit {
		t.Fatalf("after down payment: action = %s, want ask credit", d.Action)
	}

	lead.Qualification.CreditHistory = ptr(domain.CreditGood)
	d = Decide(lead, "ok")
	if d.Action != domain.ActionFinishQualify {
		t.Fatalf("all slots: action = %s, want finish", d.Action)
	}
	if d.NextStage != domain.StageQualified {
		t.Fatalf("all slots: next stage = %s, want %s", d.NextStage, domain.StageQualified)
	}
}

func TestDecideQualified(t *testing.T) {
	tests := []struct {
		msg       string
		action    domain.Action
		nextStage domain.Stage
	}{
		{"sí, claro", domain.ActionScheduleCall, domain.StageHighInterest},
		{"llamame mañana", domain.ActionScheduleCall, domain.StageHighInterest},
		{"cuanto cuesta?", domain.ActionRequestQuote, domain.StageHighInterest},
		{"el precio porfa", domain.ActionRequestQuote, domain.StageHighInterest},
		{"no gracias, luego", domain.ActionKeepInterest, ""},
		{"ahorita no puedo", domain.ActionKeepInterest, ""},
		{"mmm dejame pensarlo", domain.ActionContinue, ""},
	}
	for _, tt := range tests {
		d := Decide(leadInStage(domain.StageQualified), tt.msg)
		if d.Action != tt.action {
			t.Errorf("Decide(%q) action = %s, want %s", tt.msg, d.Action, tt.action)
		}
		if d.NextStage != tt.nextStage {
			t.Errorf("Decide(%q) next stage = %q, want %q", tt.msg, d.NextStage, tt.nextStage)
		}
	}
}

func TestDecideHighInterest(t *testing.T) {
	d := Decide(leadInStage(domain.StageHighInterest), "puedo hacer una visita a la agencia?")
	if d.Action != domain.ActionBookVisit {
		t.Errorf("visit request: action = %s, want %s", d.Action, domain.ActionBookVisit)
	}

	d = Decide(leadInStage(domain.StageHighInterest), "me interesa el kicks")
	if d.Action != domain.ActionQuoteModel || d.Model != "Kicks" {
		t.Errorf("model mention: got (%s,%q), want (%s,Kicks)", d.Action, d.Model, domain.ActionQuoteModel)
	}

	d = Decide(leadInStage(domain.StageHighInterest), "dejame ver con mi esposa")
	if d.Action != domain.ActionBookVisit {
		t.Errorf("ver keyword: action = %s, want %s", d.Action, domain.ActionBookVisit)
	}

	d = Decide(leadInStage(domain.StageHighInterest), "gracias")
	if d.Action != domain.ActionContinue {
		t.Errorf("fallthrough: action = %s, want %s", d.Action, domain.ActionContinue)
	}
}

func TestDecideLateStageTopical(t *testing.T) {
	for _, s := range []domain.Stage{domain.StageQuoted, domain.StageAppointmentSet, domain.StageNegotiating} {
		d := Decide(leadInStage(s), "tengo una duda del financiamiento")
		if d.Action != domain.ActionAnswerModelQuestion {
			t.Errorf("stage %s topical: action = %s, want %s", s, d.Action, domain.ActionAnswerModelQuestion)
		}
		d = Decide(leadInStage(s), "jajaja ok")
		if d.Action != domain.ActionSmallTalk {
			t.Errorf("stage %s chatter: action = %s, want %s", s, d.Action, domain.ActionSmallTalk)
		}
	}
}

func TestDecideSlotSelection(t *testing.T) {
	lead := leadInStage(domain.StageHighInterest)
	lead.PendingSlotOffer = []domain.AppointmentSlot{
		{Start: time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC), Label: "martes 10:00"},
		{Start: time.Date(2025, 6, 11, 16, 0, 0, 0, time.UTC), Label: "miércoles 10:00"},
	}

	d := Decide(lead, " 2 ")
	if d.Action != domain.ActionConfirmSlot || d.SlotIndex != 2 {
		t.Errorf("numeric pick: got (%s,%d), want (%s,2)", d.Action, d.SlotIndex, domain.ActionConfirmSlot)
	}
	if d.SlotLabel != "miércoles 10:00" {
		t.Errorf("numeric pick: slot label = %q, want %q", d.SlotLabel, "miércoles 10:00")
	}
	if d.NextStage != domain.StageAppointmentSet {
		t.Errorf("numeric pick: next stage = %s, want %s", d.NextStage, domain.StageAppointmentSet)
	}

	for _, msg := range []string{"0", "9", "el martes", "si"} {
		d := Decide(lead, msg)
		if d.Action != domain.ActionClarifySlot {
			t.Errorf("Decide(%q) action = %s, want %s", msg, d.Action, domain.ActionClarifySlot)
		}
	}
}

func TestDecideSlotSelectionDecline(t *testing.T) {
	tests := []string{
		"mejor otro día",
		"no puedo esa semana",
		"ninguno me queda",
		"mejor otra hora porfa",
	}
	for _, msg := range tests {
		lead := leadInStage(domain.StageHighInterest)
		lead.PendingSlotOffer = []domain.AppointmentSlot{
			{Start: time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC), Label: "martes 10:00"},
		}
		d := Decide(lead, msg)
		if d.Action != domain.ActionDeclineSlots {
			t.Errorf("Decide(%q) action = %s, want %s", msg, d.Action, domain.ActionDeclineSlots)
		}
		if d.Transitions() {
			t.Errorf("Decide(%q) should not transition", msg)
		}
	}
}

func TestAppointmentIntentAtAnyStage(t *testing.T) {
	stages := []domain.Stage{
		domain.StageQualified,
		domain.StageQuoted,
		domain.StageActiveFollowUp,
		domain.StageNegotiating,
	}
	for _, s := range stages {
		d := Decide(leadInStage(s), "quiero una cita para ir a verlo")
		if d.Action != domain.ActionBookVisit {
			t.Errorf("stage %s: action = %s, want %s", s, d.Action, domain.ActionBookVisit)
		}
	}
}

func TestTerminalStagesNeverTransition(t *testing.T) {
	terminal := []domain.Stage{
		domain.StageSold,
		domain.StageLostPrice,
		domain.StageLostCredit,
		domain.StageLostInterest,
		domain.StageDisqualified,
	}
	messages := []string{
		"quiero una cita en la agencia",
		"tengo una duda del financiamiento",
		"hola, sí",
	}
	for _, s := range terminal {
		for _, msg := range messages {
			d := Decide(leadInStage(s), msg)
			if d.Transitions() {
				t.Errorf("stage %s, Decide(%q) transitions to %s", s, msg, d.NextStage)
			}
			if d.Action == domain.ActionBookVisit {
				t.Errorf("stage %s, Decide(%q) started the booking flow", s, msg)
			}
		}
	}
}

func TestPendingOfferTakesPrecedence(t *testing.T) {
	lead := leadInStage(domain.StageQualified)
	lead.PendingSlotOffer = []domain.AppointmentSlot{{Label: "lunes 12:00"}}

	// "si" would normally advance a qualified lead; with an offer pending
	// it must be treated as an unclear slot selection.
	d := Decide(lead, "si")
	if d.Action != domain.ActionClarifySlot {
		t.Errorf("action = %s, want %s", d.Action, domain.ActionClarifySlot)
	}
}
