package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAttachment is a file posted on an encounter update. Its blobs live at
// {encounterID}/{updateID}/{filename}, with the thumbnail filename prefixed.
type AuditAttachment struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	EncounterID      uuid.UUID
	UpdateID         uuid.UUID
	OriginalFilename string
	ContentType      string
	CreatedAt        time.Time
}

func (a *AuditAttachment) BlobPath() string {
	return a.EncounterID.String() + "/" + a.UpdateID.String() + "/" + a.OriginalFilename
}

func (a *AuditAttachment) ThumbnailPath(prefix string) string {
	return a.EncounterID.String() + "/" + a.UpdateID.String() + "/" + prefix + a.OriginalFilename
}

type AttachmentRepository interface {
	ListPhotosForEvents(ctx context.Context, tenantID uuid.UUID, eventIDs []uuid.UUID) ([]*AuditAttachment, error)
	// ListForClosedEncountersBefore returns attachments whose encounter closed before cutoff.
	ListForClosedEncountersBefore(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) ([]*AuditAttachment, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
