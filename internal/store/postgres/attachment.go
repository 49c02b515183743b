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

const attachmentColumns = `a.id, a.tenant_id, a.encounter_id, a.update_id, a.original_filename, a.content_type, a.created_at`

type AttachmentRepo struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepo(pool *pgxpool.Pool) *AttachmentRepo {
	return &AttachmentRepo{pool: pool}
}

// ListPhotosForEvents returns the image attachments posted on the encounter
// updates referenced by the given events.
func (r *AttachmentRepo) ListPhotosForEvents(ctx context.Context, tenantID uuid.UUID, eventIDs []uuid.UUID) ([]*domain.AuditAttachment, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT `+attachmentColumns+`
		 FROM attachments a
		 JOIN audit_events e ON e.update_id = a.update_id AND e.tenant_id = a.tenant_id
		 WHERE a.tenant_id = $1 AND e.id = ANY($2) AND a.content_type LIKE 'image/%'
		 ORDER BY a.created_at ASC, a.id ASC`,
		tenantID, eventIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("attachmentRepo.ListPhotosForEvents: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows, "attachmentRepo.ListPhotosForEvents")
}

func (r *AttachmentRepo) ListForClosedEncountersBefore(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) ([]*domain.AuditAttachment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attachmentColumns+`
		 FROM attachments a
		 JOIN encounters enc ON enc.id = a.encounter_id AND enc.tenant_id = a.tenant_id
		 WHERE a.tenant_id = $1 AND enc.closed_at IS NOT NULL AND enc.closed_at < $2
		 ORDER BY a.created_at ASC`,
		tenantID, cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("attachmentRepo.ListForClosedEncountersBefore: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows, "attachmentRepo.ListForClosedEncountersBefore")
}

func (r *AttachmentRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM attachments WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("attachmentRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attachmentRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

func scanAttachments(rows pgx.Rows, caller string) ([]*domain.AuditAttachment, error) {
	var attachments []*domain.AuditAttachment
	for rows.Next() {
		var a domain.AuditAttachment
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.EncounterID, &a.UpdateID,
			&a.OriginalFilename, &a.ContentType, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		attachments = append(attachments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return attachments, nil
}
