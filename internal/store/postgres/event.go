package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/wardline/internal/domain"
)

type AuditEventRepo struct {
	pool *pgxpool.Pool
}

func NewAuditEventRepo(pool *pgxpool.Pool) *AuditEventRepo {
	return &AuditEventRepo{pool: pool}
}

func (r *AuditEventRepo) ListInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]*domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, encounter_id, update_id, actor_id, actor_name, action, description, occurred_at
		 FROM audit_events
		 WHERE tenant_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		 ORDER BY occurred_at ASC, id ASC`,
		tenantID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("auditEventRepo.ListInRange: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows, "auditEventRepo.ListInRange")
}

// DeleteOlderThan runs with the tenant pinned on the transaction so row-level
// policies on audit_events apply to the delete.
func (r *AuditEventRepo) DeleteOlderThan(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	var deleted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID.String()); err != nil {
			return fmt.Errorf("set tenant: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM audit_events WHERE tenant_id = $1 AND occurred_at < $2`,
			tenantID, cutoff.UTC(),
		)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("auditEventRepo.DeleteOlderThan: %w", err)
	}

	return deleted, nil
}

func scanAuditEvents(rows pgx.Rows, caller string) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.EncounterID, &e.UpdateID, &e.ActorID,
			&e.ActorName, &e.Action, &e.Description, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return events, nil
}
