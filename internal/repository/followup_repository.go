package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinamicamotors/leadflow/internal/domain"
)

// FollowUpRepository persists scheduled follow-ups in PostgreSQL.
type FollowUpRepository struct {
	pool *pgxpool.Pool
}

// NewFollowUpRepository creates a new FollowUpRepository.
func NewFollowUpRepository(pool *pgxpool.Pool) *FollowUpRepository {
	return &FollowUpRepository{pool: pool}
}

// Create inserts a new scheduled follow-up.
func (r *FollowUpRepository) Create(ctx context.Context, followUp *domain.FollowUp) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO follow_ups (id, lead_id, type, status, priority, scheduled_at, sent_at, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := querier(ctx, r.pool).Exec(ctx, query,
		followUp.ID, followUp.LeadID, followUp.Type, followUp.Status,
		followUp.Priority, followUp.ScheduledAt, followUp.SentAt,
		followUp.LastError, followUp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create follow-up: %w", err)
	}
	return nil
}

// ListDue returns pending follow-ups scheduled at or before now, highest
// priority first.
func (r *FollowUpRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.FollowUp, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, lead_id, type, status, priority, scheduled_at, sent_at, last_error, created_at
		FROM follow_ups
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $3
	`
	rows, err := querier(ctx, r.pool).Query(ctx, query, domain.FollowUpPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due follow-ups: %w", err)
	}
	defer rows.Close()

	var followUps []*domain.FollowUp
	for rows.Next() {
		fu, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		followUps = append(followUps, fu)
	}
	return followUps, rows.Err()
}

// HasPending reports whether a lead already has an unsent follow-up, so
// sweeps do not pile up duplicates.
func (r *FollowUpRepository) HasPending(ctx context.Context, leadID uuid.UUID) (bool, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	var exists bool
	err := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM follow_ups WHERE lead_id = $1 AND status = $2)`,
		leadID, domain.FollowUpPending,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending follow-ups: %w", err)
	}
	return exists, nil
}

// MarkSent records a successful delivery.
func (r *FollowUpRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return r.setStatus(ctx, id, domain.FollowUpSent, &sentAt, "")
}

// MarkFailed records a delivery failure with its reason.
func (r *FollowUpRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.setStatus(ctx, id, domain.FollowUpFailed, nil, reason)
}

func (r *FollowUpRepository) setStatus(ctx context.Context, id uuid.UUID, status domain.FollowUpStatus, sentAt *time.Time, lastError string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE follow_ups SET status = $2, sent_at = $3, last_error = $4 WHERE id = $1`,
		id, status, sentAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to update follow-up status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFollowUp(row pgx.Row) (*domain.FollowUp, error) {
	var fu domain.FollowUp
	err := row.Scan(
		&fu.ID, &fu.LeadID, &fu.Type, &fu.Status, &fu.Priority,
		&fu.ScheduledAt, &fu.SentAt, &fu.LastError, &fu.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan follow-up: %w", err)
	}
	return &fu, nil
}
