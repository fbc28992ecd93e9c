package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/clock"
	"github.com/dinamicamotors/leadflow/internal/domain"
	"github.com/dinamicamotors/leadflow/internal/metrics"
)

const testPhone = "+5215512345678"

type serviceFixture struct {
	svc          *LeadService
	leads        *mockLeadRepository
	interactions *mockInteractionRepository
	followUps    *mockFollowUpRepository
	tx           *mockTxRunner
	sender       *mockSender
	responder    *mockResponder
	booker       *mockBooker
	notifier     *mockNotifier
	clock        *clock.Mock
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		leads:        newMockLeadRepository(),
		interactions: newMockInteractionRepository(),
		followUps:    newMockFollowUpRepository(),
		tx:           &mockTxRunner{},
		sender:       &mockSender{},
		responder:    &mockResponder{reply: "¡Hola! ¿El auto sería para uso particular o de trabajo?"},
		booker:       &mockBooker{},
		notifier:     &mockNotifier{},
		clock:        clock.NewMock(time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)),
	}
	f.svc = NewLeadService(
		f.leads, f.interactions, f.followUps, f.tx,
		f.sender, f.responder, f.booker, f.notifier,
		metrics.NewMetricsWithRegistry(prometheus.NewRegistry()),
		f.clock, zap.NewNop(),
	)
	return f
}

func (f *serviceFixture) process(t *testing.T, body string) string {
	t.Helper()
	reply, err := f.svc.ProcessInboundMessage(context.Background(), testPhone, "Ana", body)
	if err != nil {
		t.Fatalf("ProcessInboundMessage(%q) error = %v", body, err)
	}
	return reply
}

func TestFirstMessageCreatesLead(t *testing.T) {
	f := newFixture(t)

	reply := f.process(t, "Hola, quiero información del Versa")
	if reply == "" {
		t.Fatal("expected a reply")
	}

	lead := f.leads.byPhoneNumber(testPhone)
	if lead == nil {
		t.Fatal("lead was not created")
	}
	if lead.Stage != domain.StageQualifying {
		t.Errorf("stage = %s, want %s", lead.Stage, domain.StageQualifying)
	}
	if lead.MessagesReceived != 1 {
		t.Errorf("messages received = %d, want 1", lead.MessagesReceived)
	}
	if lead.Qualification.InterestedModel == nil || *lead.Qualification.InterestedModel != "Versa" {
		t.Errorf("interested model = %v, want Versa", lead.Qualification.InterestedModel)
	}

	msgs := f.sender.sent()
	if len(msgs) != 1 || msgs[0].to != testPhone {
		t.Errorf("sent = %+v, want one message to the lead", msgs)
	}
}

func TestQualificationWalk(t *testing.T) {
	f := newFixture(t)

	f.process(t, "Hola, me interesa el Sentra")
	f.process(t, "Sería para uso particular")
	f.process(t, "Tengo recibos de nómina")
	f.process(t, "Puedo dar 50,000 de enganche")
	f.process(t, "Mi crédito está bien, sin problemas")

	lead := f.leads.byPhoneNumber(testPhone)
	if lead.Stage != domain.StageQualified {
		t.Fatalf("stage = %s, want %s", lead.Stage, domain.StageQualified)
	}
	if !lead.Qualification.Complete() {
		t.Error("qualification should be complete")
	}
	if got := f.responder.lastDecision().Action; got != domain.ActionFinishQualify {
		t.Errorf("last action = %s, want %s", got, domain.ActionFinishQualify)
	}
	// phone 5 + formal 20 + enganche>=50k 20 + credito bueno 20 + msgs>=5 10
	if lead.Score != 75 {
		t.Errorf("score = %d, want 75", lead.Score)
	}

	changes := f.interactions.ofKind(domain.InteractionStageChange)
	if len(changes) != 2 {
		t.Errorf("stage changes logged = %d, want 2", len(changes))
	}
}

func TestQualifiedAffirmativeMovesToHighInterest(t *testing.T) {
	f := newFixture(t)
	seedQualifiedLead(t, f)

	f.process(t, "sí, márcame por favor")

	lead := f.leads.byPhoneNumber(testPhone)
	if lead.Stage != domain.StageHighInterest {
		t.Errorf("stage = %s, want %s", lead.Stage, domain.StageHighInterest)
	}
	if got := f.responder.lastDecision().Action; got != domain.ActionScheduleCall {
		t.Errorf("action = %s, want %s", got, domain.ActionScheduleCall)
	}
}

func TestAppointmentOfferAndConfirm(t *testing.T) {
	f := newFixture(t)
	seedQualifiedLead(t, f)
	f.process(t, "sí, claro")

	f.booker.slots = []domain.AppointmentSlot{
		{Start: f.clock.NowUTC().Add(24 * time.Hour), Label: "martes 3 de junio, 10:00"},
		{Start: f.clock.NowUTC().Add(26 * time.Hour), Label: "martes 3 de junio, 12:00"},
	}

	f.process(t, "me gustaría una cita en la agencia")

	lead := f.leads.byPhoneNumber(testPhone)
	if len(lead.PendingSlotOffer) != 2 {
		t.Fatalf("pending offer = %d slots, want 2", len(lead.PendingSlotOffer))
	}
	if got := f.responder.lastDecision().Action; got != domain.ActionOfferSlots {
		t.Errorf("action = %s, want %s", got, domain.ActionOfferSlots)
	}

	f.process(t, "2")

	lead = f.leads.byPhoneNumber(testPhone)
	if lead.Stage != domain.StageAppointmentSet {
		t.Errorf("stage = %s, want %s", lead.Stage, domain.StageAppointmentSet)
	}
	if len(lead.PendingSlotOffer) != 0 {
		t.Error("offer should be cleared after confirmation")
	}
	if lead.AppointmentsScheduled != 1 {
		t.Errorf("appointments = %d, want 1", lead.AppointmentsScheduled)
	}
	if len(f.booker.booked) != 1 || f.booker.booked[0].Label != "martes 3 de junio, 12:00" {
		t.Errorf("booked = %+v, want the second slot", f.booker.booked)
	}
}

func TestSlotOfferUnparsableReplyAsksAgain(t *testing.T) {
	f := newFixture(t)
	seedQualifiedLead(t, f)
	f.process(t, "va")
	f.booker.slots = []domain.AppointmentSlot{
		{Start: f.clock.NowUTC().Add(24 * time.Hour), Label: "martes 3 de junio, 10:00"},
	}
	f.process(t, "quiero visitarlos, cuándo puedo ir")

	f.process(t, "el que sea está bien")

	lead := f.leads.byPhoneNumber(testPhone)
	if got := f.responder.lastDecision().Action; got != domain.ActionClarifySlot {
		t.Errorf("action = %s, want %s", got, domain.ActionClarifySlot)
	}
	if len(lead.PendingSlotOffer) != 1 {
		t.Error("offer should remain open after a clarification")
	}
	if len(f.booker.booked) != 0 {
		t.Error("nothing should be booked yet")
	}
}

func TestBookingFailureReoffersSlots(t *testing.T) {
	f := newFixture(t)
	seedQualifiedLead(t, f)
	f.process(t, "dale")
	f.booker.slots = []domain.AppointmentSlot{
		{Start: f.clock.NowUTC().Add(24 * time.Hour), Label: "martes 3 de junio, 10:00"},
	}
	f.process(t, "quiero una cita")

	f.booker.bookErr = errors.New("slot already taken")
	f.process(t, "1")

	lead := f.leads.byPhoneNumber(testPhone)
	if lead.Stage == domain.StageAppointmentSet {
		t.Error("stage should not advance when booking fails")
	}
	if lead.AppointmentsScheduled != 0 {
		t.Errorf("appointments = %d, want 0", lead.AppointmentsScheduled)
	}
	// A fresh offer replaces the spent one.
	if len(lead.PendingSlotOffer) != 1 {
		t.Errorf("pending offer = %d slots, want a fresh offer", len(lead.PendingSlotOffer))
	}
}

func TestReplyGenerationFailureSendsFallback(t *testing.T) {
	f := newFixture(t)
	f.responder.err = errors.New("circuit breaker is open")

	reply := f.process(t, "hola")
	if !strings.Contains(reply, "Disculpa") {
		t.Errorf("reply = %q, want apology fallback", reply)
	}
	if len(f.sender.sent()) != 1 {
		t.Error("fallback should still be sent to the lead")
	}
}

func TestFollowUpScheduledOnce(t *testing.T) {
	f := newFixture(t)

	f.process(t, "hola")
	lead := f.leads.byPhoneNumber(testPhone)

	if got := len(f.followUps.pending(lead.ID)); got != 1 {
		t.Fatalf("pending follow-ups = %d, want 1", got)
	}

	f.process(t, "quiero un auto para trabajo")
	if got := len(f.followUps.pending(lead.ID)); got != 1 {
		t.Errorf("pending follow-ups after second message = %d, want still 1", got)
	}
}

func TestHotLeadNotification(t *testing.T) {
	f := newFixture(t)
	seedQualifiedLead(t, f)

	// Urgency pushes the score over the hot threshold.
	f.process(t, "lo necesito urgente, esta semana si se puede")

	lead := f.leads.byPhoneNumber(testPhone)
	if lead.Temperature != domain.TemperatureHot {
		t.Fatalf("temperature = %s, want %s (score %d, msgs %d)",
			lead.Temperature, domain.TemperatureHot, lead.Score, lead.MessagesReceived)
	}
	f.notifier.mu.Lock()
	hot := len(f.notifier.hotLeads)
	f.notifier.mu.Unlock()
	if hot != 1 {
		t.Errorf("hot lead notifications = %d, want 1", hot)
	}
}

func TestInvalidPhoneRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessInboundMessage(context.Background(), "not-a-phone", "", "hola")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(f.sender.sent()) != 0 {
		t.Error("nothing should be sent for an invalid phone")
	}
}

func TestSamePhoneProcessedSerially(t *testing.T) {
	f := newFixture(t)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = f.svc.ProcessInboundMessage(context.Background(), testPhone, "Ana", "hola")
		}()
	}
	wg.Wait()

	lead := f.leads.byPhoneNumber(testPhone)
	if lead == nil {
		t.Fatal("lead missing")
	}
	// Serialized processing means no lost updates on the counter.
	if lead.MessagesReceived != n {
		t.Errorf("messages received = %d, want %d", lead.MessagesReceived, n)
	}
	if f.leads.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", f.leads.createCalls)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
	unlockA()

	km.mu.Lock()
	remaining := len(km.locks)
	km.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock table has %d entries after release, want 0", remaining)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"whatsapp:+5215512345678", "+5215512345678", false},
		{"+5215512345678", "+5215512345678", false},
		{"5215512345678", "+5215512345678", false},
		{"+52 155 1234 5678", "+5215512345678", false},
		{"", "", true},
		{"12345", "", true},
		{"abc1234567890", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReplyAndLeadStatePersistInOneTransaction(t *testing.T) {
	f := newFixture(t)

	f.process(t, "Hola, quiero información del Versa")

	if f.tx.calls != 1 {
		t.Errorf("transaction calls = %d, want 1", f.tx.calls)
	}
}

func TestTransactionFailureSurfacesAsError(t *testing.T) {
	f := newFixture(t)
	f.tx.err = errors.New("connection reset")

	reply, err := f.svc.ProcessInboundMessage(context.Background(), testPhone, "Ana", "hola")
	if err == nil {
		t.Fatal("expected error when the persist transaction fails")
	}
	// The customer is still answered from the in-memory state.
	if reply == "" {
		t.Error("reply should not be empty when only persistence failed")
	}
	if got := len(f.sender.sent()); got != 1 {
		t.Errorf("messages sent = %d, want 1", got)
	}
	f.notifier.mu.Lock()
	alerts := len(f.notifier.errors)
	f.notifier.mu.Unlock()
	if alerts != 1 {
		t.Errorf("system error alerts = %d, want 1", alerts)
	}
}

func TestLeadStoreFailureSendsApology(t *testing.T) {
	f := newFixture(t)
	f.leads.getErr = errors.New("database is down")

	_, err := f.svc.ProcessInboundMessage(context.Background(), testPhone, "Ana", "hola")
	if err == nil {
		t.Fatal("expected error when the lead cannot be loaded")
	}
	msgs := f.sender.sent()
	if len(msgs) != 1 {
		t.Fatalf("messages sent = %d, want the apology", len(msgs))
	}
	if !strings.Contains(msgs[0].body, "Disculpa") {
		t.Errorf("sent %q, want the apology text", msgs[0].body)
	}
	if msgs[0].to != testPhone {
		t.Errorf("sent to %s, want %s", msgs[0].to, testPhone)
	}
}

func TestInboundLogFailureStillReplies(t *testing.T) {
	f := newFixture(t)
	f.interactions.createErr = errors.New("disk full")

	reply, _ := f.svc.ProcessInboundMessage(context.Background(), testPhone, "Ana", "hola")
	if reply == "" {
		t.Error("reply should not be empty when history writes fail")
	}
	if got := len(f.sender.sent()); got != 1 {
		t.Errorf("messages sent = %d, want 1", got)
	}
}

func TestSlotDeclineClearsOffer(t *testing.T) {
	f := newFixture(t)
	seedQualifiedLead(t, f)
	f.process(t, "va")
	f.booker.slots = []domain.AppointmentSlot{
		{Start: f.clock.NowUTC().Add(24 * time.Hour), Label: "martes 3 de junio, 10:00"},
	}
	f.process(t, "quiero una cita")

	f.process(t, "mejor otro día, esa semana no puedo")

	lead := f.leads.byPhoneNumber(testPhone)
	if len(lead.PendingSlotOffer) != 0 {
		t.Error("declined offer should be cleared")
	}
	if got := f.responder.lastDecision().Action; got != domain.ActionDeclineSlots {
		t.Errorf("action = %s, want %s", got, domain.ActionDeclineSlots)
	}
	if len(f.booker.booked) != 0 {
		t.Error("nothing should be booked")
	}
	if lead.Stage == domain.StageAppointmentSet {
		t.Errorf("stage = %s, decline must not set an appointment", lead.Stage)
	}
}

// seedQualifiedLead walks a lead through qualification so tests can start
// from the calificado stage.
func seedQualifiedLead(t *testing.T, f *serviceFixture) {
	t.Helper()
	f.process(t, "hola, me interesa el Versa")
	f.process(t, "para uso particular")
	f.process(t, "tengo comprobante de nómina")
	f.process(t, "50,000 de enganche")
	f.process(t, "mi historial está limpio, sin problemas")

	if lead := f.leads.byPhoneNumber(testPhone); lead.Stage != domain.StageQualified {
		t.Fatalf("seed failed: stage = %s", lead.Stage)
	}
}
