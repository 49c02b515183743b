package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/wardline/internal/domain"
	"github.com/gosuda/wardline/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject tenant/user into context for DoCtx
// ---------------------------------------------------------------------------

func identityCtx(tenantID, userID uuid.UUID) context.Context {
	return middleware.WithIdentity(context.Background(), tenantID, userID)
}

// ---------------------------------------------------------------------------
// Mock ReportService
// ---------------------------------------------------------------------------

type mockReportService struct {
	requestFunc      func(ctx context.Context, req domain.ReportRequest) (*domain.AuditReport, error)
	listFunc         func(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.AuditReport, error)
	getFunc          func(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error)
	cancelFunc       func(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error)
	resourceURLsFunc func(ctx context.Context, tenantID, userID, id uuid.UUID) ([]string, error)
}

func (m *mockReportService) Request(ctx context.Context, req domain.ReportRequest) (*domain.AuditReport, error) {
	return m.requestFunc(ctx, req)
}

func (m *mockReportService) List(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.AuditReport, error) {
	return m.listFunc(ctx, tenantID, userID)
}

func (m *mockReportService) Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error) {
	return m.getFunc(ctx, tenantID, userID, id)
}

func (m *mockReportService) Cancel(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error) {
	return m.cancelFunc(ctx, tenantID, userID, id)
}

func (m *mockReportService) ResourceURLs(ctx context.Context, tenantID, userID, id uuid.UUID) ([]string, error) {
	return m.resourceURLsFunc(ctx, tenantID, userID, id)
}
