package domain

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestRecomputeScore(t *testing.T) {
	tests := []struct {
		name string
		lead Lead
		want int
	}{
		{
			name: "phone only",
			lead: Lead{Phone: "+5215512345678"},
			want: 5,
		},
		{
			name: "fully qualified formal buyer",
			lead: Lead{
				Phone: "+5215512345678",
				Email: ptr("ana@example.com"),
				Qualification: Qualification{
					IncomeProof:   ptr(IncomeFormal),
					DownPayment:   ptr(60000.0),
					CreditHistory: ptr(CreditGood),
					Urgency:       ptr(UrgencyImmediate),
				},
				MessagesReceived:      6,
				AppointmentsScheduled: 1,
			},
			// 5+5+20+20+20+10+10+10 = 100
			want: 100,
		},
		{
			name: "informal income small down payment",
			lead: Lead{
				Phone: "+5215512345678",
				Qualification: Qualification{
					IncomeProof: ptr(IncomeInformal),
					DownPayment: ptr(10000.0),
				},
			},
			// 5+10+5
			want: 20,
		},
		{
			name: "down payment tier 30k",
			lead: Lead{
				Phone:         "+5215512345678",
				Qualification: Qualification{DownPayment: ptr(30000.0)},
			},
			want: 20,
		},
		{
			name: "down payment tier 15k",
			lead: Lead{
				Phone:         "+5215512345678",
				Qualification: Qualification{DownPayment: ptr(15000.0)},
			},
			want: 15,
		},
		{
			name: "two messages",
			lead: Lead{Phone: "+52155", MessagesReceived: 2},
			want: 10,
		},
		{
			name: "urgency three months",
			lead: Lead{
				Phone:         "+52155",
				Qualification: Qualification{Urgency: ptr(UrgencyThreeMonths)},
			},
			want: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.lead.RecomputeScore()
			if tt.lead.Score != tt.want {
				t.Errorf("score = %d, want %d", tt.lead.Score, tt.want)
			}
		})
	}
}

func TestRecomputeScoreClamped(t *testing.T) {
	lead := Lead{
		Phone: "+52155",
		Email: ptr("x@y.com"),
		Qualification: Qualification{
			IncomeProof:   ptr(IncomeFormal),
			DownPayment:   ptr(100000.0),
			CreditHistory: ptr(CreditGood),
			Urgency:       ptr(UrgencyImmediate),
		},
		MessagesReceived:      10,
		AppointmentsScheduled: 3,
	}
	lead.RecomputeScore()
	if lead.Score < 0 || lead.Score > 100 {
		t.Fatalf("score %d outside [0,100]", lead.Score)
	}
}

func TestRecomputeTemperature(t *testing.T) {
	tests := []struct {
		name     string
		messages int
		urgency  *Urgency
		score    int
		want     Temperature
	}{
		{"hot when engaged urgent high score", 3, ptr(UrgencyImmediate), 70, TemperatureHot},
		{"not hot without urgency", 3, nil, 90, TemperatureWarm},
		{"not hot below score threshold", 5, ptr(UrgencyImmediate), 69, TemperatureWarm},
		{"warm at two messages score 40", 2, nil, 40, TemperatureWarm},
		{"cold single message", 1, nil, 90, TemperatureCold},
		{"cold low score", 4, nil, 39, TemperatureCold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := Lead{
				MessagesReceived: tt.messages,
				Score:            tt.score,
				Qualification:    Qualification{Urgency: tt.urgency},
			}
			lead.RecomputeTemperature()
			if lead.Temperature != tt.want {
				t.Errorf("temperature = %s, want %s", lead.Temperature, tt.want)
			}
		})
	}
}

func TestStageTerminal(t *testing.T) {
	terminal := []Stage{StageSold, StageLostPrice, StageLostCredit, StageLostInterest, StageDisqualified}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []Stage{StageInitialContact, StageQualifying, StageQualified, StageHighInterest, StageQuoted, StageAppointmentSet, StageNegotiating}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestClosingProbability(t *testing.T) {
	if p := StageSold.ClosingProbability(); p != 1.0 {
		t.Errorf("sold probability = %v, want 1.0", p)
	}
	if p := StageLostCredit.ClosingProbability(); p != 0.0 {
		t.Errorf("lost probability = %v, want 0", p)
	}
	if p := StageNegotiating.ClosingProbability(); p != 0.95 {
		t.Errorf("negotiating probability = %v, want 0.95", p)
	}
	if p := Stage("nope").ClosingProbability(); p != 0.0 {
		t.Errorf("unknown stage probability = %v, want 0", p)
	}
}

func TestQualificationComplete(t *testing.T) {
	q := Qualification{}
	if q.Complete() {
		t.Fatal("empty qualification should not be complete")
	}
	q = Qualification{
		VehicleUse:    ptr(UsePersonal),
		IncomeProof:   ptr(IncomeFormal),
		DownPayment:   ptr(20000.0),
		CreditHistory: ptr(CreditGood),
	}
	if !q.Complete() {
		t.Fatal("all four slots set, should be complete")
	}
}

func TestDaysWithoutContact(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	lead := Lead{LastContactAt: now.Add(-49 * time.Hour)}
	if d := lead.DaysWithoutContact(now); d != 2 {
		t.Errorf("days = %d, want 2", d)
	}
	lead.LastContactAt = now.Add(time.Hour)
	if d := lead.DaysWithoutContact(now); d != 0 {
		t.Errorf("future contact days = %d, want 0", d)
	}
}

func TestFollowUpInterval(t *testing.T) {
	d, p := FollowUpInterval(TemperatureHot)
	if d != 24*time.Hour || p != 3 {
		t.Errorf("hot = (%v,%d), want (24h,3)", d, p)
	}
	d, p = FollowUpInterval(TemperatureWarm)
	if d != 48*time.Hour || p != 2 {
		t.Errorf("warm = (%v,%d), want (48h,2)", d, p)
	}
	d, p = FollowUpInterval(TemperatureCold)
	if d != 72*time.Hour || p != 1 {
		t.Errorf("cold = (%v,%d), want (72h,1)", d, p)
	}
}

func TestNextFollowUpForStage(t *testing.T) {
	if _, _, ok := NextFollowUpForStage(StageSold); ok {
		t.Error("terminal stage should not schedule follow-ups")
	}
	ft, d, ok := NextFollowUpForStage(StageInitialContact)
	if !ok || ft != FollowUpFirst || d != 24*time.Hour {
		t.Errorf("initial contact = (%s,%v,%v)", ft, d, ok)
	}
	ft, d, ok = NextFollowUpForStage(StageQuoted)
	if !ok || ft != FollowUpPostQuote || d != 24*time.Hour {
		t.Errorf("quoted = (%s,%v,%v)", ft, d, ok)
	}
	ft, _, ok = NextFollowUpForStage(StageHighInterest)
	if !ok || ft != FollowUpReminder {
		t.Errorf("default = (%s,%v)", ft, ok)
	}
}
