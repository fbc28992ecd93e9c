package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeadRepository persists leads.
type LeadRepository interface {
	Create(ctx context.Context, lead *Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lead, error)
	GetByPhone(ctx context.Context, phone string) (*Lead, error)
	Update(ctx context.Context, lead *Lead) error
	ListByStage(ctx context.Context, stage Stage, limit int) ([]*Lead, error)
	ListByTemperature(ctx context.Context, t Temperature, limit int) ([]*Lead, error)
	// ListStale returns non-terminal leads whose last contact is before the
	// cutoff instant.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*Lead, error)
	// FunnelCounts returns the number of leads per stage.
	FunnelCounts(ctx context.Context) (map[Stage]int, error)
}

// InteractionRepository persists the per-lead activity log.
type InteractionRepository interface {
	Create(ctx context.Context, interaction *Interaction) error
	// ListRecent returns the newest interactions for a lead, newest first.
	ListRecent(ctx context.Context, leadID uuid.UUID, limit int) ([]*Interaction, error)
	CountByKind(ctx context.Context, leadID uuid.UUID, kind InteractionKind) (int, error)
}

// FollowUpRepository persists scheduled follow-ups.
type FollowUpRepository interface {
	Create(ctx context.Context, followUp *FollowUp) error
	// ListDue returns pending follow-ups scheduled at or before now,
	// highest priority first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*FollowUp, error)
	HasPending(ctx context.Context, leadID uuid.UUID) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
