package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dinamicamotors/leadflow/internal/domain"
	"github.com/dinamicamotors/leadflow/internal/repository"
)

// mockLeadRepository is an in-memory LeadRepository.
type mockLeadRepository struct {
	mu      sync.RWMutex
	leads   map[uuid.UUID]*domain.Lead
	byPhone map[string]uuid.UUID

	createCalls int
	updateCalls int

	createErr error
	getErr    error
	updateErr error
}

func newMockLeadRepository() *mockLeadRepository {
	return &mockLeadRepository{
		leads:   make(map[uuid.UUID]*domain.Lead),
		byPhone: make(map[string]uuid.UUID),
	}
}

func (m *mockLeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	cp := *lead
	m.leads[lead.ID] = &cp
	m.byPhone[lead.Phone] = lead.ID
	return nil
}

func (m *mockLeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	lead, ok := m.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *lead
	return &cp, nil
}

func (m *mockLeadRepository) GetByPhone(ctx context.Context, phone string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m.leads[id]
	return &cp, nil
}

func (m *mockLeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.leads[lead.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *lead
	m.leads[lead.ID] = &cp
	m.byPhone[lead.Phone] = lead.ID
	return nil
}

func (m *mockLeadRepository) ListByStage(ctx context.Context, stage domain.Stage, limit int) ([]*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Lead
	for _, lead := range m.leads {
		if lead.Stage == stage && len(out) < limit {
			cp := *lead
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLeadRepository) ListByTemperature(ctx context.Context, t domain.Temperature, limit int) ([]*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Lead
	for _, lead := range m.leads {
		if lead.Temperature == t && len(out) < limit {
			cp := *lead
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLeadRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Lead
	for _, lead := range m.leads {
		if !lead.Stage.IsTerminal() && lead.LastContactAt.Before(before) && len(out) < limit {
			cp := *lead
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLeadRepository) FunnelCounts(ctx context.Context) (map[domain.Stage]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.Stage]int)
	for _, lead := range m.leads {
		counts[lead.Stage]++
	}
	return counts, nil
}

func (m *mockLeadRepository) get(id uuid.UUID) *domain.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leads[id]
}

func (m *mockLeadRepository) byPhoneNumber(phone string) *domain.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return nil
	}
	return m.leads[id]
}

// mockInteractionRepository is an in-memory InteractionRepository.
type mockInteractionRepository struct {
	mu           sync.RWMutex
	interactions []*domain.Interaction
	createErr    error
}

func newMockInteractionRepository() *mockInteractionRepository {
	return &mockInteractionRepository{}
}

func (m *mockInteractionRepository) Create(ctx context.Context, interaction *domain.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.interactions = append(m.interactions, interaction)
	return nil
}

func (m *mockInteractionRepository) ListRecent(ctx context.Context, leadID uuid.UUID, limit int) ([]*domain.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Interaction
	for i := len(m.interactions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.interactions[i].LeadID == leadID {
			out = append(out, m.interactions[i])
		}
	}
	return out, nil
}

func (m *mockInteractionRepository) CountByKind(ctx context.Context, leadID uuid.UUID, kind domain.InteractionKind) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, i := range m.interactions {
		if i.LeadID == leadID && i.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (m *mockInteractionRepository) ofKind(kind domain.InteractionKind) []*domain.Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Interaction
	for _, i := range m.interactions {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// mockFollowUpRepository is an in-memory FollowUpRepository.
type mockFollowUpRepository struct {
	mu        sync.RWMutex
	followUps map[uuid.UUID]*domain.FollowUp
	createErr error
}

func newMockFollowUpRepository() *mockFollowUpRepository {
	return &mockFollowUpRepository{followUps: make(map[uuid.UUID]*domain.FollowUp)}
}

func (m *mockFollowUpRepository) Create(ctx context.Context, followUp *domain.FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *followUp
	m.followUps[followUp.ID] = &cp
	return nil
}

func (m *mockFollowUpRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.FollowUp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.FollowUp
	for _, f := range m.followUps {
		if f.Status == domain.FollowUpPending && !f.ScheduledAt.After(now) && len(out) < limit {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockFollowUpRepository) HasPending(ctx context.Context, leadID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.followUps {
		if f.LeadID == leadID && f.Status == domain.FollowUpPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockFollowUpRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.followUps[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.Status = domain.FollowUpSent
	f.SentAt = &sentAt
	return nil
}

func (m *mockFollowUpRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.followUps[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.Status = domain.FollowUpFailed
	f.LastError = reason
	return nil
}

func (m *mockFollowUpRepository) pending(leadID uuid.UUID) []*domain.FollowUp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.FollowUp
	for _, f := range m.followUps {
		if f.LeadID == leadID && f.Status == domain.FollowUpPending {
			out = append(out, f)
		}
	}
	return out
}

// mockTxRunner runs the function directly; the mock repositories have no
// transaction concept.
type mockTxRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockTxRunner) WithTransactionContext(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx)
}

// mockSender records outbound messages.
type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	err      error
}

type sentMessage struct {
	to   string
	body string
}

func (m *mockSender) Send(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, sentMessage{to: to, body: body})
	return nil
}

func (m *mockSender) sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.messages...)
}

// mockResponder returns a canned reply and records the decisions it saw.
type mockResponder struct {
	mu        sync.Mutex
	reply     string
	err       error
	decisions []domain.Decision
}

func (m *mockResponder) GenerateReply(ctx context.Context, lead *domain.Lead, history []*domain.Interaction, decision domain.Decision, strategy string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, decision)
	if m.err != nil {
		return "Disculpa, tuve un problema para procesar tu mensaje. ¿Me lo puedes repetir, por favor?", m.err
	}
	return m.reply, nil
}

func (m *mockResponder) lastDecision() domain.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.decisions) == 0 {
		return domain.Decision{}
	}
	return m.decisions[len(m.decisions)-1]
}

// mockBooker serves canned slots and records bookings.
type mockBooker struct {
	mu       sync.Mutex
	slots    []domain.AppointmentSlot
	slotsErr error
	bookErr  error
	booked   []domain.AppointmentSlot
}

func (m *mockBooker) AvailableSlots(ctx context.Context, from time.Time) ([]domain.AppointmentSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotsErr != nil {
		return nil, m.slotsErr
	}
	return append([]domain.AppointmentSlot(nil), m.slots...), nil
}

func (m *mockBooker) Book(ctx context.Context, lead *domain.Lead, slot domain.AppointmentSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bookErr != nil {
		return m.bookErr
	}
	m.booked = append(m.booked, slot)
	return nil
}

// mockNotifier records alert calls.
type mockNotifier struct {
	mu        sync.Mutex
	hotLeads  []*domain.Lead
	stale     []*domain.Lead
	summaries int
	errors    []string
}

func (m *mockNotifier) HotLead(ctx context.Context, lead *domain.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotLeads = append(m.hotLeads, lead)
}

func (m *mockNotifier) StaleLead(ctx context.Context, lead *domain.Lead, daysSilent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = append(m.stale, lead)
}

func (m *mockNotifier) DailySummary(ctx context.Context, counts map[domain.Stage]int, hotLeads []*domain.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries++
}

func (m *mockNotifier) SystemError(ctx context.Context, component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, component)
}
