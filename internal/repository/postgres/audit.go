package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) CreateWithOutbox(ctx context.Context, event *model.AuditEvent, outbox *model.OutboxEvent) error {
	query := `
        INSERT INTO audit_events (
            id, action, entity_type, record_id, actor_id, actor_email,
            prior_value, new_value, reason, ip_address, user_agent, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			event.ID,
			event.Action,
			event.EntityType,
			event.RecordID,
			event.ActorID,
			event.ActorEmail,
			jsonValue(event.PriorValue),
			jsonValue(event.NewValue),
			event.Reason,
			event.IPAddress,
			event.UserAgent,
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create audit event: %w", err)
		}
		if outbox == nil {
			return nil
		}
		return insertOutbox(ctx, tx, outbox)
	})
}

func (r *auditRepository) List(ctx context.Context, filters model.AuditFilters) ([]*model.AuditEvent, int64, error) {
	w := &where{}
	if filters.RecordID != "" {
		w.add("record_id = $%d", filters.RecordID)
	}
	if filters.Action != "" {
		w.add("action = $%d", filters.Action)
	}
	if !filters.StartDate.IsZero() {
		w.add("created_at >= $%d", filters.StartDate)
	}
	if !filters.EndDate.IsZero() {
		w.add("created_at < $%d", filters.EndDate.AddDate(0, 0, 1))
	}
	baseQuery := " FROM audit_events" + w.String()

	// Get total count
	var total int64
	if err := r.GetDB().GetContext(ctx, &total, "SELECT COUNT(*)"+baseQuery, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = model.DefaultPageSize
	}
	query := "SELECT *" + baseQuery +
		" ORDER BY created_at DESC LIMIT " + w.next(limit) + " OFFSET " + w.next(filters.Offset)

	var events []*model.AuditEvent
	if err := r.GetDB().SelectContext(ctx, &events, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, total, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
        DELETE FROM audit_events
        WHERE created_at < $1
    `

	result, err := r.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit events: %w", err)
	}

	return result.RowsAffected()
}

// jsonValue stores absent values as a JSON null.
func jsonValue(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
