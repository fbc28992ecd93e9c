package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinamicamotors/leadflow/internal/domain"
)

// InteractionRepository persists lead activity history in PostgreSQL.
type InteractionRepository struct {
	pool *pgxpool.Pool
}

// NewInteractionRepository creates a new InteractionRepository.
func NewInteractionRepository(pool *pgxpool.Pool) *InteractionRepository {
	return &InteractionRepository{pool: pool}
}

// Create inserts a new interaction.
func (r *InteractionRepository) Create(ctx context.Context, interaction *domain.Interaction) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	var metadata []byte
	if len(interaction.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(interaction.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal interaction metadata: %w", err)
		}
	}

	query := `
		INSERT INTO interactions (id, lead_id, kind, actor, content, outcome, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := querier(ctx, r.pool).Exec(ctx, query,
		interaction.ID, interaction.LeadID, interaction.Kind, interaction.Actor,
		interaction.Content, interaction.Outcome, metadata, interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}
	return nil
}

// ListRecent returns the newest interactions for a lead, newest first.
func (r *InteractionRepository) ListRecent(ctx context.Context, leadID uuid.UUID, limit int) ([]*domain.Interaction, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, lead_id, kind, actor, content, outcome, metadata, created_at
		FROM interactions
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := querier(ctx, r.pool).Query(ctx, query, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*domain.Interaction
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		interactions = append(interactions, interaction)
	}
	return interactions, rows.Err()
}

// CountByKind returns how many interactions of the given kind a lead has.
func (r *InteractionRepository) CountByKind(ctx context.Context, leadID uuid.UUID, kind domain.InteractionKind) (int, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	var n int
	err := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM interactions WHERE lead_id = $1 AND kind = $2`,
		leadID, kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return n, nil
}

func scanInteraction(row pgx.Row) (*domain.Interaction, error) {
	var interaction domain.Interaction
	var metadata []byte

	err := row.Scan(
		&interaction.ID, &interaction.LeadID, &interaction.Kind, &interaction.Actor,
		&interaction.Content, &interaction.Outcome, &metadata, &interaction.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan interaction: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &interaction.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interaction metadata: %w", err)
		}
	}
	return &interaction, nil
}
