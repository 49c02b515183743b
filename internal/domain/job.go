package domain

import "github.com/google/uuid"

// CurrentJobVersion is the payload version produced by this build.
const CurrentJobVersion = 2

// ReportJob is the queue payload that triggers one report build.
type ReportJob struct {
	AuditReportID uuid.UUID `json:"auditReportId"`
	TenantID      uuid.UUID `json:"tenantId"`
	UserID        uuid.UUID `json:"userId"`
	Version       int       `json:"version"`
	IncludeMedia  bool      `json:"includeMedia"`
}
