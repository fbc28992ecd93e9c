package ai

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/domain"
	"github.com/dinamicamotors/leadflow/internal/ratelimit"
)

// BudgetedResponder wraps a Responder with an AI call budget. When the
// budget is exhausted the lead still gets the fallback reply instead of
// silence, and the model is not called.
type BudgetedResponder struct {
	inner  *Responder
	budget *ratelimit.AIBudget
	logger *zap.Logger
}

// NewBudgetedResponder creates a budget-enforcing responder.
func NewBudgetedResponder(inner *Responder, budget *ratelimit.AIBudget, logger *zap.Logger) *BudgetedResponder {
	return &BudgetedResponder{
		inner:  inner,
		budget: budget,
		logger: logger,
	}
}

// GenerateReply reserves budget for one model call and delegates. Scripted
// appointment replies never reach the model, so they skip the budget.
func (b *BudgetedResponder) GenerateReply(ctx context.Context, lead *domain.Lead, history []*domain.Interaction, decision domain.Decision, strategy string, now time.Time) (string, error) {
	if reply, ok := ScriptedReply(lead, decision); ok {
		return reply, nil
	}

	if err := b.budget.Acquire(ctx); err != nil {
		b.logger.Warn("AI budget exhausted, using fallback reply",
			zap.String("action", string(decision.Action)),
			zap.Error(err),
		)
		return FallbackReply, err
	}
	defer b.budget.Release()

	return b.inner.GenerateReply(ctx, lead, history, decision, strategy, now)
}
