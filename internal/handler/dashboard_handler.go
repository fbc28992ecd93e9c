package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/clock"
	"github.com/dinamicamotors/leadflow/internal/domain"
	apperrors "github.com/dinamicamotors/leadflow/internal/errors"
)

// defaultHotLeadLimit caps the hot lead listing when the caller does not
// pass a limit.
const defaultHotLeadLimit = 20

// LeadReader is the query side of the lead service used by the dashboard.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (*domain.Lead, []*domain.Interaction, error)
	FunnelSummary(ctx context.Context) (map[domain.Stage]int, error)
	HotLeads(ctx context.Context, limit int) ([]*domain.Lead, error)
}

// DashboardHandler serves the sales-team API: funnel summary, lead detail
// and the follow-up queue.
type DashboardHandler struct {
	leads     LeadReader
	followUps domain.FollowUpRepository
	clock     clock.Clock
	logger    *zap.Logger
}

// DashboardHandlerConfig holds the dashboard handler dependencies.
type DashboardHandlerConfig struct {
	Leads     LeadReader
	FollowUps domain.FollowUpRepository
	Clock     clock.Clock
	Logger    *zap.Logger
}

// NewDashboardHandler creates the dashboard handler.
func NewDashboardHandler(cfg DashboardHandlerConfig) *DashboardHandler {
	return &DashboardHandler{
		leads:     cfg.Leads,
		followUps: cfg.FollowUps,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// RegisterRoutes registers the dashboard API endpoints. The router is
// expected to already carry the admin auth middleware.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/dashboard", h.Dashboard)
	r.Get("/api/leads/hot", h.HotLeads)
	r.Get("/api/leads/{id}", h.LeadDetail)
	r.Get("/api/followups/due", h.DueFollowUps)
}

// StageSummary is one funnel stage row in the dashboard response.
type StageSummary struct {
	Stage              domain.Stage `json:"stage"`
	Leads              int          `json:"leads"`
	ClosingProbability float64      `json:"closing_probability"`
}

// DashboardResponse is the funnel overview.
type DashboardResponse struct {
	Funnel     []StageSummary `json:"funnel"`
	TotalLeads int            `json:"total_leads"`
	HotLeads   []*domain.Lead `json:"hot_leads"`
}

// Dashboard returns the funnel overview: per-stage counts plus the current
// hot leads.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.leads.FunnelSummary(r.Context())
	if err != nil {
		APIError(w, r, h.logger, err)
		return
	}

	hot, err := h.leads.HotLeads(r.Context(), defaultHotLeadLimit)
	if err != nil {
		APIError(w, r, h.logger, err)
		return
	}

	resp := DashboardResponse{HotLeads: hot}
	for _, stage := range domain.Stages() {
		resp.Funnel = append(resp.Funnel, StageSummary{
			Stage:              stage,
			Leads:              counts[stage],
			ClosingProbability: stage.ClosingProbability(),
		})
		resp.TotalLeads += counts[stage]
	}

	JSON(w, http.StatusOK, resp)
}

// HotLeads returns the current hot leads. The limit query parameter caps
// the result.
func (h *DashboardHandler) HotLeads(w http.ResponseWriter, r *http.Request) {
	limit := defaultHotLeadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			APIError(w, r, h.logger, apperrors.ValidationFailed("DashboardHandler.HotLeads", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	hot, err := h.leads.HotLeads(r.Context(), limit)
	if err != nil {
		APIError(w, r, h.logger, err)
		return
	}
	if hot == nil {
		hot = []*domain.Lead{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"leads": hot})
}

// LeadDetailResponse is a lead with its recent interaction history.
type LeadDetailResponse struct {
	Lead    *domain.Lead          `json:"lead"`
	History []*domain.Interaction `json:"history"`
}

// LeadDetail returns one lead with its recent interactions.
func (h *DashboardHandler) LeadDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		APIError(w, r, h.logger, apperrors.ValidationFailed("DashboardHandler.LeadDetail", "invalid lead id"))
		return
	}

	lead, history, err := h.leads.GetLead(r.Context(), id)
	if err != nil {
		APIError(w, r, h.logger, err)
		return
	}
	if history == nil {
		history = []*domain.Interaction{}
	}

	JSON(w, http.StatusOK, LeadDetailResponse{Lead: lead, History: history})
}

// DueFollowUps returns the follow-ups that are due right now, the same set
// the next scheduler sweep will send.
func (h *DashboardHandler) DueFollowUps(w http.ResponseWriter, r *http.Request) {
	due, err := h.followUps.ListDue(r.Context(), h.clock.NowUTC(), 100)
	if err != nil {
		APIError(w, r, h.logger, apperrors.DatabaseError("DashboardHandler.DueFollowUps", err))
		return
	}
	if due == nil {
		due = []*domain.FollowUp{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"followups": due})
}
