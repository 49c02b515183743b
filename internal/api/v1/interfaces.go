package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/wardline/internal/domain"
)

// ReportService abstracts report operations for handler testing.
// *report.Service satisfies this interface.
type ReportService interface {
	Request(ctx context.Context, req domain.ReportRequest) (*domain.AuditReport, error)
	List(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.AuditReport, error)
	Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error)
	Cancel(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error)
	ResourceURLs(ctx context.Context, tenantID, userID, id uuid.UUID) ([]string, error)
}
