package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/domain"
)

// JobPublisher enqueues report jobs.
type JobPublisher interface {
	Publish(ctx context.Context, job domain.ReportJob) error
}

// Service is the request-side API over reports: it creates reports, enqueues
// their jobs, cancels them and mints download URLs.
type Service struct {
	reports    domain.AuditReportRepository
	jobs       JobPublisher
	archives   blob.Store
	publisher  StatusPublisher
	maxPerUser int
	urlTTL     time.Duration
}

func NewService(reports domain.AuditReportRepository, jobs JobPublisher, archives blob.Store, publisher StatusPublisher, maxPerUser int, urlTTL time.Duration) *Service {
	return &Service{
		reports:    reports,
		jobs:       jobs,
		archives:   archives,
		publisher:  publisher,
		maxPerUser: maxPerUser,
		urlTTL:     urlTTL,
	}
}

// Request creates a PENDING report and enqueues its job. At the per-user cap
// the oldest report is replaced.
func (s *Service) Request(ctx context.Context, req domain.ReportRequest) (*domain.AuditReport, error) {
	if req.TenantID == uuid.Nil || req.UserID == uuid.Nil {
		return nil, fmt.Errorf("report.Service.Request: missing owner: %w", domain.ErrInvalidRequest)
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || req.EndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("report.Service.Request: invalid date range: %w", domain.ErrInvalidRequest)
	}

	count, err := s.reports.CountByUser(ctx, req.TenantID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("report.Service.Request: %w", err)
	}

	var report *domain.AuditReport
	if s.maxPerUser > 0 && count >= s.maxPerUser {
		report, err = s.reports.ReplaceOldest(ctx, req)
	} else {
		report, err = s.reports.Create(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("report.Service.Request: %w", err)
	}

	job := domain.ReportJob{
		AuditReportID: report.ID,
		TenantID:      report.TenantID,
		UserID:        report.UserID,
		Version:       domain.CurrentJobVersion,
		IncludeMedia:  req.IncludeMedia,
	}
	if err := s.jobs.Publish(ctx, job); err != nil {
		if _, uerr := s.reports.UpdateStatus(ctx, report.TenantID, report.ID, domain.ReportStatusFailed, nil); uerr != nil {
			log.Error().Err(uerr).Str("report_id", report.ID.String()).Msg("report.Service.Request: mark unqueued report failed")
		}
		return nil, fmt.Errorf("report.Service.Request: enqueue: %w", err)
	}

	return report, nil
}

func (s *Service) List(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.AuditReport, error) {
	reports, err := s.reports.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("report.Service.List: %w", err)
	}
	return reports, nil
}

func (s *Service) Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error) {
	report, err := s.reports.Get(ctx, tenantID, userID, id)
	if err != nil {
		return nil, fmt.Errorf("report.Service.Get: %w", err)
	}
	return report, nil
}

// Cancel marks a PENDING report CANCELLED. A running job observes this
// through its watcher and its finalize step.
func (s *Service) Cancel(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error) {
	report, err := s.reports.Get(ctx, tenantID, userID, id)
	if err != nil {
		return nil, fmt.Errorf("report.Service.Cancel: %w", err)
	}
	if report.Status != domain.ReportStatusPending {
		return nil, fmt.Errorf("report.Service.Cancel: report is %s: %w", report.Status, domain.ErrConflict)
	}

	updated, err := s.reports.UpdateStatus(ctx, tenantID, id, domain.ReportStatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("report.Service.Cancel: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("report.Service.Cancel: %w", domain.ErrNotFound)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReportStatus(ctx, tenantID, userID, id, domain.ReportStatusCancelled); err != nil {
			log.Warn().Err(err).Str("report_id", id.String()).Msg("report.Service.Cancel: publish status event")
		}
	}

	return updated, nil
}

// ResourceURLs mints fresh read URLs for each asset of a COMPLETE report.
// Stored URLs are never returned since they may have expired.
func (s *Service) ResourceURLs(ctx context.Context, tenantID, userID, id uuid.UUID) ([]string, error) {
	report, err := s.reports.Get(ctx, tenantID, userID, id)
	if err != nil {
		return nil, fmt.Errorf("report.Service.ResourceURLs: %w", err)
	}
	if report.Status != domain.ReportStatusComplete {
		return []string{}, nil
	}

	urls := make([]string, 0, len(report.Metadata))
	for _, asset := range report.Metadata {
		url, err := s.archives.SignedURL(ctx, asset.FilePath, s.urlTTL)
		if errors.Is(err, blob.ErrObjectNotFound) {
			log.Warn().Str("report_id", id.String()).Str("key", asset.FilePath).Msg("report.Service.ResourceURLs: asset missing")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("report.Service.ResourceURLs: sign %s: %w", asset.FilePath, err)
		}
		urls = append(urls, url)
	}

	return urls, nil
}
