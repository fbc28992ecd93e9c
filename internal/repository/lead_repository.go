// Package repository implements PostgreSQL persistence for leads,
// interactions and follow-ups.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinamicamotors/leadflow/internal/domain"
)

const leadColumns = `id, phone, name, email, stage, channel, qualification, score, temperature,
	messages_received, messages_sent, calls_made, appointments_scheduled, appointments_completed,
	quotes_sent, estimated_value, pending_slot_offer, assigned_agent, notes,
	created_at, last_contact_at, updated_at`

// LeadRepository persists leads in PostgreSQL.
type LeadRepository struct {
	pool *pgxpool.Pool
}

// NewLeadRepository creates a new LeadRepository.
func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

// Create inserts a new lead.
func (r *LeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	qualification, err := json.Marshal(lead.Qualification)
	if err != nil {
		return fmt.Errorf("failed to marshal qualification: %w", err)
	}
	slotOffer, err := marshalSlotOffer(lead.PendingSlotOffer)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = querier(ctx, r.pool).Exec(ctx, query,
		lead.ID, lead.Phone, lead.Name, lead.Email, lead.Stage, lead.Channel,
		qualification, lead.Score, lead.Temperature,
		lead.MessagesReceived, lead.MessagesSent, lead.CallsMade,
		lead.AppointmentsScheduled, lead.AppointmentsCompleted, lead.QuotesSent, lead.EstimatedValue,
		slotOffer, lead.AssignedAgent, lead.Notes,
		lead.CreatedAt, lead.LastContactAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// GetByID fetches a lead by its internal ID.
func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(querier(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByPhone fetches a lead by normalized phone number.
func (r *LeadRepository) GetByPhone(ctx context.Context, phone string) (*domain.Lead, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + leadColumns + ` FROM leads WHERE phone = $1`
	return scanLead(querier(ctx, r.pool).QueryRow(ctx, query, phone))
}

// Update persists all mutable fields of a lead.
func (r *LeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	qualification, err := json.Marshal(lead.Qualification)
	if err != nil {
		return fmt.Errorf("failed to marshal qualification: %w", err)
	}
	slotOffer, err := marshalSlotOffer(lead.PendingSlotOffer)
	if err != nil {
		return err
	}

	query := `
		UPDATE leads SET
			name = $2, email = $3, stage = $4, channel = $5, qualification = $6,
			score = $7, temperature = $8, messages_received = $9, messages_sent = $10,
			calls_made = $11, appointments_scheduled = $12, appointments_completed = $13,
			quotes_sent = $14, estimated_value = $15, pending_slot_offer = $16,
			assigned_agent = $17, notes = $18, last_contact_at = $19, updated_at = $20
		WHERE id = $1
	`
	tag, err := querier(ctx, r.pool).Exec(ctx, query,
		lead.ID, lead.Name, lead.Email, lead.Stage, lead.Channel, qualification,
		lead.Score, lead.Temperature, lead.MessagesReceived, lead.MessagesSent,
		lead.CallsMade, lead.AppointmentsScheduled, lead.AppointmentsCompleted,
		lead.QuotesSent, lead.EstimatedValue, slotOffer,
		lead.AssignedAgent, lead.Notes, lead.LastContactAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStage returns leads in the given funnel stage, most recently
// contacted first.
func (r *LeadRepository) ListByStage(ctx context.Context, stage domain.Stage, limit int) ([]*domain.Lead, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE stage = $1
		ORDER BY last_contact_at DESC
		LIMIT $2
	`
	rows, err := querier(ctx, r.pool).Query(ctx, query, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads by stage: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// ListByTemperature returns leads with the given temperature, highest score
// first.
func (r *LeadRepository) ListByTemperature(ctx context.Context, t domain.Temperature, limit int) ([]*domain.Lead, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE temperature = $1
		ORDER BY score DESC, last_contact_at DESC
		LIMIT $2
	`
	rows, err := querier(ctx, r.pool).Query(ctx, query, t, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads by temperature: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// ListStale returns non-terminal leads last contacted before the cutoff.
func (r *LeadRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*domain.Lead, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE last_contact_at < $1
		  AND stage NOT IN ('vendido', 'perdido_precio', 'perdido_credito', 'perdido_interes', 'descalificado')
		ORDER BY score DESC, last_contact_at ASC
		LIMIT $2
	`
	rows, err := querier(ctx, r.pool).Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

// FunnelCounts returns the number of leads in each stage.
func (r *LeadRepository) FunnelCounts(ctx context.Context) (map[domain.Stage]int, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	rows, err := querier(ctx, r.pool).Query(ctx, `SELECT stage, COUNT(*) FROM leads GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("failed to count funnel stages: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Stage]int)
	for rows.Next() {
		var stage domain.Stage
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("failed to scan funnel count: %w", err)
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

func marshalSlotOffer(slots []domain.AppointmentSlot) ([]byte, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal slot offer: %w", err)
	}
	return b, nil
}

// scanLead scans a single lead row, mapping pgx.ErrNoRows to ErrNotFound.
func scanLead(row pgx.Row) (*domain.Lead, error) {
	var lead domain.Lead
	var qualification []byte
	var slotOffer []byte

	err := row.Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.Email, &lead.Stage, &lead.Channel,
		&qualification, &lead.Score, &lead.Temperature,
		&lead.MessagesReceived, &lead.MessagesSent, &lead.CallsMade,
		&lead.AppointmentsScheduled, &lead.AppointmentsCompleted, &lead.QuotesSent, &lead.EstimatedValue,
		&slotOffer, &lead.AssignedAgent, &lead.Notes,
		&lead.CreatedAt, &lead.LastContactAt, &lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}

	if len(qualification) > 0 {
		if err := json.Unmarshal(qualification, &lead.Qualification); err != nil {
			return nil, fmt.Errorf("failed to unmarshal qualification: %w", err)
		}
	}
	if len(slotOffer) > 0 {
		if err := json.Unmarshal(slotOffer, &lead.PendingSlotOffer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal slot offer: %w", err)
		}
	}
	return &lead, nil
}

func scanLeads(rows pgx.Rows) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}
