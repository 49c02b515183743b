package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one audited action inside a tenant, optionally tied to an
// encounter update (a message posted on a patient encounter).
type AuditEvent struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	EncounterID *uuid.UUID
	UpdateID    *uuid.UUID
	ActorID     *uuid.UUID
	ActorName   string
	Action      string
	Description string
	OccurredAt  time.Time
}

type AuditEventRepository interface {
	// ListInRange returns events with start <= occurred_at < end, oldest first.
	ListInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]*AuditEvent, error)
	// DeleteOlderThan prunes the tenant's events in a single transaction.
	DeleteOlderThan(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error)
}
