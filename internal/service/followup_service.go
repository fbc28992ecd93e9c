package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/clock"
	"github.com/dinamicamotors/leadflow/internal/config"
	"github.com/dinamicamotors/leadflow/internal/domain"
	"github.com/dinamicamotors/leadflow/internal/metrics"
	"github.com/dinamicamotors/leadflow/internal/notify"
	"github.com/dinamicamotors/leadflow/internal/repository"
)

// followUpTemplates are the messages sent when a follow-up fires. The
// placeholders {nombre}, {modelo} and {agente} are substituted per lead.
var followUpTemplates = map[domain.FollowUpType]string{
	domain.FollowUpFirst:             "¡Hola {nombre}! Soy {agente} de Dinamica Motors. ¿Sigues interesado en conocer nuestras opciones de Nissan? Con gusto te ayudo. 🚗",
	domain.FollowUpPostQualification: "Hola {nombre}, ya tengo tu perfil completo. ¿Te gustaría que te prepare una cotización de {modelo}?",
	domain.FollowUpPostQuote:         "Hola {nombre}, ¿qué te pareció la cotización de {modelo}? Si tienes dudas sobre el financiamiento, aquí estoy para resolverlas.",
	domain.FollowUpReminder:          "Hola {nombre}, solo para recordarte que seguimos a tus órdenes. ¿Hay algo en lo que te pueda ayudar con tu {modelo}?",
	domain.FollowUpNoResponse:        "Hola {nombre}, hace unos días platicamos sobre tu próximo auto. ¿Sigues buscando? Tenemos promociones vigentes que te pueden interesar.",
}

// FollowUpService runs the background sweeps: sending due follow-ups,
// flagging stale leads, and posting the daily funnel summary.
type FollowUpService struct {
	leads        domain.LeadRepository
	interactions domain.InteractionRepository
	followUps    domain.FollowUpRepository
	sender       MessageSender
	notifier     notify.Notifier
	metrics      *metrics.Metrics
	events       *metrics.FunnelEventLogger
	clock        clock.Clock
	cfg          config.FollowUpConfig
	dealer       config.DealerConfig
	logger       *zap.Logger

	lastSummaryDay string
}

// NewFollowUpService creates the follow-up scheduler.
func NewFollowUpService(
	leads domain.LeadRepository,
	interactions domain.InteractionRepository,
	followUps domain.FollowUpRepository,
	sender MessageSender,
	notifier notify.Notifier,
	m *metrics.Metrics,
	clk clock.Clock,
	cfg config.FollowUpConfig,
	dealer config.DealerConfig,
	logger *zap.Logger,
) *FollowUpService {
	return &FollowUpService{
		leads:        leads,
		interactions: interactions,
		followUps:    followUps,
		sender:       sender,
		notifier:     notifier,
		metrics:      m,
		events:       metrics.NewFunnelEventLogger(logger),
		clock:        clk,
		cfg:          cfg,
		dealer:       dealer,
		logger:       logger,
	}
}

// Run executes the sweep loop until the context is cancelled.
func (s *FollowUpService) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("follow-up scheduler started",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("follow-up scheduler stopped")
			return
		case <-ticker.C():
			s.Sweep(ctx)
			s.SweepStaleLeads(ctx)
			s.maybeSendDailySummary(ctx)
		}
	}
}

// Sweep sends every follow-up whose scheduled time has arrived.
func (s *FollowUpService) Sweep(ctx context.Context) {
	now := s.clock.NowUTC()

	due, err := s.followUps.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list due follow-ups", zap.Error(err))
		return
	}
	s.metrics.SetFollowUpsDue(len(due))
	if len(due) == 0 {
		return
	}

	s.logger.Info("processing due follow-ups", zap.Int("count", len(due)))
	for _, followUp := range due {
		s.deliver(ctx, followUp, now)
	}
}

func (s *FollowUpService) deliver(ctx context.Context, followUp *domain.FollowUp, now time.Time) {
	lead, err := s.leads.GetByID(ctx, followUp.LeadID)
	if err != nil {
		if err == repository.ErrNotFound {
			s.markFailed(ctx, followUp, "lead no longer exists")
			return
		}
		s.logger.Error("failed to load lead for follow-up", zap.Error(err))
		return
	}

	// Leads that converted or dropped after scheduling are skipped.
	if lead.Stage.IsTerminal() {
		s.markFailed(ctx, followUp, "lead left the funnel")
		return
	}

	message := s.renderTemplate(followUp.Type, lead)
	if err := s.sender.Send(ctx, lead.Phone, message); err != nil {
		s.logger.Error("follow-up send failed",
			zap.String("lead_id", lead.ID.String()),
			zap.Error(err),
		)
		s.metrics.RecordFollowUpSent(string(followUp.Type), false)
		s.markFailed(ctx, followUp, err.Error())
		return
	}

	if err := s.followUps.MarkSent(ctx, followUp.ID, now); err != nil {
		s.logger.Error("failed to mark follow-up sent", zap.Error(err))
	}

	lead.MessagesSent++
	lead.UpdatedAt = now
	if err := s.leads.Update(ctx, lead); err != nil {
		s.logger.Warn("failed to update lead after follow-up", zap.Error(err))
	}

	note := domain.NewInteraction(lead.ID, domain.InteractionOutboundWhatsApp, message)
	if err := s.interactions.Create(ctx, note); err != nil {
		s.logger.Warn("failed to log follow-up message", zap.Error(err))
	}

	s.metrics.RecordFollowUpSent(string(followUp.Type), true)
	s.events.FollowUpSent(ctx, lead.ID, string(followUp.Type))
}

func (s *FollowUpService) markFailed(ctx context.Context, followUp *domain.FollowUp, reason string) {
	if err := s.followUps.MarkFailed(ctx, followUp.ID, reason); err != nil {
		s.logger.Error("failed to mark follow-up failed", zap.Error(err))
	}
}

// SweepStaleLeads alerts the team about engaged leads that stopped
// answering and queues a re-engagement message for them.
func (s *FollowUpService) SweepStaleLeads(ctx context.Context) {
	now := s.clock.NowUTC()
	cutoff := now.Add(-s.cfg.StaleAfter)

	stale, err := s.leads.ListStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list stale leads", zap.Error(err))
		return
	}

	for _, lead := range stale {
		// Cold leads going quiet is expected; only alert on leads the
		// team was actively working.
		if lead.Temperature == domain.TemperatureCold {
			continue
		}

		s.notifier.StaleLead(ctx, lead, lead.DaysWithoutContact(now))

		pending, err := s.followUps.HasPending(ctx, lead.ID)
		if err != nil || pending {
			continue
		}
		_, priority := domain.FollowUpInterval(lead.Temperature)
		followUp := domain.NewFollowUp(lead.ID, domain.FollowUpNoResponse, priority, now)
		if err := s.followUps.Create(ctx, followUp); err != nil {
			s.logger.Warn("failed to schedule re-engagement", zap.Error(err))
		}
	}
}

// maybeSendDailySummary posts the funnel summary once per UTC day.
func (s *FollowUpService) maybeSendDailySummary(ctx context.Context) {
	day := s.clock.NowUTC().Format("2006-01-02")
	if day == s.lastSummaryDay {
		return
	}
	s.lastSummaryDay = day

	counts, err := s.leads.FunnelCounts(ctx)
	if err != nil {
		s.logger.Error("failed to load funnel counts", zap.Error(err))
		return
	}
	hot, err := s.leads.ListByTemperature(ctx, domain.TemperatureHot, 20)
	if err != nil {
		s.logger.Error("failed to load hot leads", zap.Error(err))
		hot = nil
	}

	s.notifier.DailySummary(ctx, counts, hot)
	s.metrics.SetLeadsByTemperature(string(domain.TemperatureHot), len(hot))
}

// renderTemplate fills the follow-up template for the lead.
func (s *FollowUpService) renderTemplate(t domain.FollowUpType, lead *domain.Lead) string {
	template, ok := followUpTemplates[t]
	if !ok {
		template = followUpTemplates[domain.FollowUpReminder]
	}

	name := lead.Name
	if name == "" {
		name = "qué tal"
	}
	model := "Nissan"
	if lead.Qualification.InterestedModel != nil {
		model = *lead.Qualification.InterestedModel
	}

	r := strings.NewReplacer(
		"{nombre}", name,
		"{modelo}", model,
		"{agente}", s.dealer.AgentName,
	)
	return r.Replace(template)
}
