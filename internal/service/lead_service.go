// Package service contains the business logic that ties the funnel state
// machine, the extractor, the reply generator and the external channels
// together.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/ai"
	"github.com/dinamicamotors/leadflow/internal/calendar"
	"github.com/dinamicamotors/leadflow/internal/clock"
	"github.com/dinamicamotors/leadflow/internal/domain"
	apperrors "github.com/dinamicamotors/leadflow/internal/errors"
	"github.com/dinamicamotors/leadflow/internal/metrics"
	"github.com/dinamicamotors/leadflow/internal/notify"
	"github.com/dinamicamotors/leadflow/internal/policy"
	"github.com/dinamicamotors/leadflow/internal/qualify"
	"github.com/dinamicamotors/leadflow/internal/repository"
	"github.com/dinamicamotors/leadflow/internal/sentiment"
)

// historyLimit is how many recent interactions are loaded for reply
// generation.
const historyLimit = 20

// MessageSender delivers outbound WhatsApp messages.
type MessageSender interface {
	Send(ctx context.Context, to, body string) error
}

// ReplyGenerator produces the bot's reply text for a decided action.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, lead *domain.Lead, history []*domain.Interaction, decision domain.Decision, strategy string, now time.Time) (string, error)
}

// TxRunner groups repository calls into one database transaction.
type TxRunner interface {
	WithTransactionContext(ctx context.Context, fn func(ctx context.Context) error) error
}

// LeadService processes inbound messages and drives leads through the
// funnel.
type LeadService struct {
	leads        domain.LeadRepository
	interactions domain.InteractionRepository
	followUps    domain.FollowUpRepository
	tx           TxRunner
	sender       MessageSender
	responder    ReplyGenerator
	booker       calendar.Booker
	notifier     notify.Notifier
	metrics      *metrics.Metrics
	events       *metrics.FunnelEventLogger
	clock        clock.Clock
	logger       *zap.Logger

	phoneLocks *keyedMutex
}

// NewLeadService creates the message processing service.
func NewLeadService(
	leads domain.LeadRepository,
	interactions domain.InteractionRepository,
	followUps domain.FollowUpRepository,
	tx TxRunner,
	sender MessageSender,
	responder ReplyGenerator,
	booker calendar.Booker,
	notifier notify.Notifier,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zap.Logger,
) *LeadService {
	return &LeadService{
		leads:        leads,
		interactions: interactions,
		followUps:    followUps,
		tx:           tx,
		sender:       sender,
		responder:    responder,
		booker:       booker,
		notifier:     notifier,
		metrics:      m,
		events:       metrics.NewFunnelEventLogger(logger),
		clock:        clk,
		logger:       logger,
		phoneLocks:   newKeyedMutex(),
	}
}

// ProcessInboundMessage handles one WhatsApp message end to end: load or
// create the lead, update qualification, decide the next action, generate
// and send the reply, and schedule the next follow-up. Messages from the
// same phone number are processed strictly one at a time; different numbers
// proceed concurrently.
func (s *LeadService) ProcessInboundMessage(ctx context.Context, phone, name, body string) (string, error) {
	const op = "LeadService.ProcessInboundMessage"
	start := s.clock.Now()

	normalized, err := NormalizePhone(phone)
	if err != nil {
		s.metrics.RecordMessageProcessed(false, s.clock.Since(start))
		return "", err
	}

	unlock := s.phoneLocks.Lock(normalized)
	defer unlock()

	reply, err := s.processLocked(ctx, op, normalized, name, body)
	s.metrics.RecordMessageProcessed(err == nil, s.clock.Since(start))
	return reply, err
}

func (s *LeadService) processLocked(ctx context.Context, op, phone, name, body string) (string, error) {
	now := s.clock.NowUTC()

	lead, err := s.loadOrCreateLead(ctx, op, phone, name)
	if err != nil {
		// Without a lead there is nothing to decide from, but the customer
		// must never get silence: send the apology and surface the error.
		s.notifier.SystemError(ctx, "database", err)
		if sendErr := s.sender.Send(ctx, phone, ai.FallbackReply); sendErr != nil {
			s.metrics.RecordWhatsAppSend(false)
			s.logger.Error("failed to send apology reply", zap.Error(sendErr))
		} else {
			s.metrics.RecordWhatsAppSend(true)
		}
		return "", err
	}

	wasHot := lead.Temperature == domain.TemperatureHot

	lead.MessagesReceived++
	lead.Touch(now)

	// A failure to log the inbound message loses one history row, not the
	// conversation: processing continues from the in-memory lead.
	inbound := domain.NewInteraction(lead.ID, domain.InteractionInboundMessage, body)
	if err := s.interactions.Create(ctx, inbound); err != nil {
		s.logger.Error("failed to log inbound message", zap.Error(err))
		s.notifier.SystemError(ctx, "database", err)
	}

	updated, extracted := qualify.Extract(lead.Qualification, body)
	lead.Qualification = updated
	if len(extracted) > 0 {
		s.logger.Debug("qualification slots extracted",
			zap.String("phone", metrics.MaskPhoneNumber(phone)),
			zap.Int("slots", len(extracted)),
		)
	}

	analysis := sentiment.Analyze(body)
	decision := policy.Decide(lead, body)
	decision = s.applyCalendarActions(ctx, lead, decision, now)

	s.applyTransition(ctx, lead, &decision)

	lead.RecomputeScore()
	lead.RecomputeTemperature()

	if decision.Action == domain.ActionFinishQualify {
		s.events.QualificationCompleted(ctx, lead.ID, lead.Score, string(lead.Temperature))
	}
	if !wasHot && lead.Temperature == domain.TemperatureHot {
		s.notifier.HotLead(ctx, lead)
	}

	history, err := s.interactions.ListRecent(ctx, lead.ID, historyLimit)
	if err != nil {
		s.logger.Warn("failed to load history, replying without context", zap.Error(err))
		history = nil
	}

	aiStart := s.clock.Now()
	reply, genErr := s.responder.GenerateReply(ctx, lead, history, decision, analysis.Strategy, now)
	s.metrics.RecordAICall(genErr == nil, s.clock.Since(aiStart))
	if genErr != nil {
		// The responder already substituted the apology fallback; the
		// conversation continues with it.
		s.logger.Error("reply generation failed", zap.Error(genErr))
	}

	lead.MessagesSent++
	outbound := domain.NewInteraction(lead.ID, domain.InteractionBotReply, reply)

	s.scheduleFollowUp(ctx, lead, now)

	// The reply record and the lead state land together or not at all, so
	// a crash between them cannot leave the history out of sync. When the
	// write fails the reply still goes out from the in-memory state; the
	// store may lag but the customer is answered.
	persistErr := s.tx.WithTransactionContext(ctx, func(ctx context.Context) error {
		if err := s.interactions.Create(ctx, outbound); err != nil {
			return err
		}
		return s.leads.Update(ctx, lead)
	})
	if persistErr != nil {
		s.logger.Error("failed to persist reply and lead state", zap.Error(persistErr))
		s.notifier.SystemError(ctx, "database", persistErr)
	}

	if err := s.sender.Send(ctx, lead.Phone, reply); err != nil {
		s.metrics.RecordWhatsAppSend(false)
		return reply, apperrors.ExternalServiceError(op, apperrors.CodeWhatsAppService, err)
	}
	s.metrics.RecordWhatsAppSend(true)

	if persistErr != nil {
		return reply, apperrors.DatabaseError(op, persistErr)
	}
	return reply, nil
}

func (s *LeadService) loadOrCreateLead(ctx context.Context, op, phone, name string) (*domain.Lead, error) {
	lead, err := s.leads.GetByPhone(ctx, phone)
	if err == nil {
		if lead.Name == "" && name != "" {
			lead.Name = name
		}
		return lead, nil
	}
	if err != repository.ErrNotFound {
		return nil, apperrors.DatabaseError(op, err)
	}

	lead = domain.NewLead(phone, name, domain.ChannelWhatsAppDirect)
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, apperrors.DatabaseError(op, err)
	}

	s.metrics.RecordLeadCreated(string(lead.Channel))
	s.events.LeadCreated(ctx, lead.ID, string(lead.Channel), phone)
	s.logger.Info("new lead created",
		zap.String("lead_id", lead.ID.String()),
		zap.String("phone", metrics.MaskPhoneNumber(phone)),
	)
	return lead, nil
}

// applyCalendarActions resolves the decisions that need the booking API:
// offering visit slots and confirming the lead's pick.
func (s *LeadService) applyCalendarActions(ctx context.Context, lead *domain.Lead, decision domain.Decision, now time.Time) domain.Decision {
	switch decision.Action {
	case domain.ActionBookVisit:
		slots, err := s.booker.AvailableSlots(ctx, now)
		s.metrics.RecordCalendarCall("slots", err == nil)
		if err != nil || len(slots) == 0 {
			if err != nil {
				s.logger.Error("failed to fetch appointment slots", zap.Error(err))
				s.notifier.SystemError(ctx, "calendar", err)
			}
			// No slots to offer; keep the conversation going and let the
			// team book manually.
			return domain.Decision{Action: domain.ActionContinue}
		}
		lead.PendingSlotOffer = slots
		decision.Action = domain.ActionOfferSlots
		decision.OfferSlots = slots
		return decision

	case domain.ActionConfirmSlot:
		slot := lead.PendingSlotOffer[decision.SlotIndex-1]
		err := s.booker.Book(ctx, lead, slot)
		s.metrics.RecordCalendarCall("book", err == nil)
		// The offer is spent either way: on failure the slots may no
		// longer be free, so a fresh set is offered next time.
		lead.PendingSlotOffer = nil
		if err != nil {
			s.logger.Error("booking failed", zap.Error(err))
			decision = domain.Decision{Action: domain.ActionBookVisit}
			return s.applyCalendarActions(ctx, lead, decision, now)
		}

		lead.AppointmentsScheduled++
		s.metrics.RecordAppointmentBooked()
		s.events.AppointmentBooked(ctx, lead.ID, slot.Start)
		appt := domain.NewInteraction(lead.ID, domain.InteractionAppointmentSet, slot.Label)
		if err := s.interactions.Create(ctx, appt); err != nil {
			s.logger.Warn("failed to log appointment", zap.Error(err))
		}
		return decision

	case domain.ActionDeclineSlots:
		// The lead passed on every offered time; drop the offer so the next
		// message is read normally again.
		lead.PendingSlotOffer = nil
		return decision
	}
	return decision
}

func (s *LeadService) applyTransition(ctx context.Context, lead *domain.Lead, decision *domain.Decision) {
	if !decision.Transitions() || decision.NextStage == lead.Stage {
		return
	}

	from := lead.Stage
	lead.Stage = decision.NextStage
	// An unanswered slot offer does not survive a stage change.
	if decision.Action != domain.ActionConfirmSlot {
		lead.PendingSlotOffer = nil
	}

	change := domain.NewStageChange(lead.ID, from, lead.Stage)
	if err := s.interactions.Create(ctx, change); err != nil {
		s.logger.Warn("failed to log stage change", zap.Error(err))
	}

	s.metrics.RecordStageTransition(string(from), string(lead.Stage))
	s.events.StageChanged(ctx, lead.ID, string(from), string(lead.Stage), lead.Score)
}

// scheduleFollowUp queues the next automated touch for the lead unless one
// is already pending or the lead left the funnel.
func (s *LeadService) scheduleFollowUp(ctx context.Context, lead *domain.Lead, now time.Time) {
	followUpType, delay, ok := domain.NextFollowUpForStage(lead.Stage)
	if !ok {
		return
	}

	pending, err := s.followUps.HasPending(ctx, lead.ID)
	if err != nil {
		s.logger.Warn("failed to check pending follow-ups", zap.Error(err))
		return
	}
	if pending {
		return
	}

	_, priority := domain.FollowUpInterval(lead.Temperature)
	followUp := domain.NewFollowUp(lead.ID, followUpType, priority, now.Add(delay))
	if err := s.followUps.Create(ctx, followUp); err != nil {
		s.logger.Warn("failed to schedule follow-up", zap.Error(err))
		return
	}

	note := domain.NewInteraction(lead.ID, domain.InteractionFollowUpScheduled, string(followUpType))
	if err := s.interactions.Create(ctx, note); err != nil {
		s.logger.Warn("failed to log follow-up", zap.Error(err))
	}
}

// GetLead returns a lead with its recent interaction history.
func (s *LeadService) GetLead(ctx context.Context, id uuid.UUID) (*domain.Lead, []*domain.Interaction, error) {
	const op = "LeadService.GetLead"

	lead, err := s.leads.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, nil, apperrors.LeadNotFound(op, err)
		}
		return nil, nil, apperrors.DatabaseError(op, err)
	}

	history, err := s.interactions.ListRecent(ctx, id, historyLimit)
	if err != nil {
		return nil, nil, apperrors.DatabaseError(op, err)
	}
	return lead, history, nil
}

// FunnelSummary returns the lead count per stage.
func (s *LeadService) FunnelSummary(ctx context.Context) (map[domain.Stage]int, error) {
	const op = "LeadService.FunnelSummary"

	counts, err := s.leads.FunnelCounts(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(op, err)
	}
	return counts, nil
}

// HotLeads returns the current hot leads, for the dashboard and the daily
// summary.
func (s *LeadService) HotLeads(ctx context.Context, limit int) ([]*domain.Lead, error) {
	const op = "LeadService.HotLeads"

	leads, err := s.leads.ListByTemperature(ctx, domain.TemperatureHot, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(op, err)
	}
	return leads, nil
}

// NormalizePhone strips the whatsapp: prefix and validates the number. The
// result is the bare E.164 form used as the serialization key.
func NormalizePhone(phone string) (string, error) {
	const op = "service.NormalizePhone"

	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "whatsapp:")
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")

	if p == "" {
		return "", apperrors.ValidationFailed(op, "phone number is empty")
	}

	digits := p
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	if len(digits) < 10 || len(digits) > 15 {
		return "", apperrors.ValidationFailed(op, "phone number must have 10 to 15 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", apperrors.ValidationFailed(op, "phone number contains invalid characters")
		}
	}

	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p, nil
}

// keyedMutex serializes work per key while letting different keys run
// concurrently. Entries are reference counted and removed when the last
// holder releases, so the map does not grow with the lead base.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for the key and returns the release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
