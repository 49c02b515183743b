package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "PENDING"
	ReportStatusComplete  ReportStatus = "COMPLETE"
	ReportStatusFailed    ReportStatus = "FAILED"
	ReportStatusCancelled ReportStatus = "CANCELLED"
)

// Terminal reports whether no further job work can change the status.
func (s ReportStatus) Terminal() bool {
	switch s {
	case ReportStatusComplete, ReportStatusFailed, ReportStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known report statuses.
func (s ReportStatus) Valid() bool {
	return s == ReportStatusPending || s.Terminal()
}

const (
	ReportKindAuditLog      = "audit_log"
	ReportKindAuditLogMedia = "audit_log_media"
)

const (
	reportDateLayout    = "2006.01.02"
	reportInstantLayout = "2006-01-02T15:04:05.000Z"
)

// AssetDescriptor identifies one uploaded artifact of a completed report.
// FilePath is the durable blob key; URL is recorded for convenience only.
type AssetDescriptor struct {
	URL      string `json:"url"`
	FilePath string `json:"filePath"`
	Filename string `json:"filename"`
}

// AuditReport is one export request and, once COMPLETE, its result.
// Metadata is non-nil exactly when Status is COMPLETE.
type AuditReport struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Status       ReportStatus
	StatusDate   time.Time
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	IncludeMedia bool
	GeneratedAt  time.Time
	Metadata     []AssetDescriptor
}

// ReportRequest carries the caller-supplied parameters of a new report.
type ReportRequest struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	StartDate    time.Time
	EndDate      time.Time
	IncludeMedia bool
}

// Kind returns the report kind encoded in the report name.
func (r ReportRequest) Kind() string {
	if r.IncludeMedia {
		return ReportKindAuditLogMedia
	}
	return ReportKindAuditLog
}

// ReportName builds the deterministic identity of a report:
// {appName}_{kind}_{start:yyyy.MM.dd}_{end:yyyy.MM.dd}_{createdAt:ISO8601}.
// Together with tenant and user it is the natural key of the report row.
func ReportName(appName string, req ReportRequest, createdAt time.Time) string {
	return strings.Join([]string{
		appName,
		req.Kind(),
		req.StartDate.UTC().Format(reportDateLayout),
		req.EndDate.UTC().Format(reportDateLayout),
		createdAt.UTC().Format(reportInstantLayout),
	}, "_")
}

// SafeFileName replaces characters that are illegal in file paths or blob keys.
func SafeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
}

// AuditReportRepository is the single source of truth for report state.
type AuditReportRepository interface {
	// Create upserts by (tenant, user, name). An existing row is reset to PENDING
	// with a fresh ID and nil metadata.
	Create(ctx context.Context, req ReportRequest) (*AuditReport, error)
	// Get returns ErrNotFound when no row matches.
	Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*AuditReport, error)
	ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]*AuditReport, error)
	CountByUser(ctx context.Context, tenantID, userID uuid.UUID) (int, error)
	// UpdateStatus is an unconditional write. It returns (nil, nil) when no row matched.
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status ReportStatus, metadata []AssetDescriptor) (*AuditReport, error)
	// ReplaceOldest deletes the user's oldest report and creates a new one in one transaction.
	ReplaceOldest(ctx context.Context, req ReportRequest) (*AuditReport, error)
	ListCompletedAssetPaths(ctx context.Context) ([]string, error)
}
