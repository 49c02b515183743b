package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/domain"
	"github.com/gosuda/wardline/internal/metrics"
)

// Outcome is the result of one job run.
type Outcome int

const (
	// OutcomeRejected: unsupported version or unknown report; nothing was touched.
	OutcomeRejected Outcome = iota
	// OutcomeSkipped: the report was already terminal.
	OutcomeSkipped
	// OutcomeFailed: building the CSV or archive failed and the report is FAILED.
	OutcomeFailed
	// OutcomeCompleted: the report is COMPLETE with its assets.
	OutcomeCompleted
	// OutcomeCancelled: the report stopped being PENDING before finalize.
	OutcomeCancelled
	// OutcomeError: an unexpected infrastructure failure; the job should be retried.
	OutcomeError
)

// Success reports whether the queue should consider the job done.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeSkipped, OutcomeCompleted, OutcomeCancelled:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return metrics.OutcomeRejected
	case OutcomeSkipped:
		return metrics.OutcomeSkipped
	case OutcomeFailed:
		return metrics.OutcomeFailed
	case OutcomeCompleted:
		return metrics.OutcomeCompleted
	case OutcomeCancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeInfraFailed
	}
}

// StatusPublisher announces report status changes. Delivery is best-effort.
type StatusPublisher interface {
	PublishReportStatus(ctx context.Context, tenantID, userID, reportID uuid.UUID, status domain.ReportStatus) error
}

const archiveContentType = "application/zip"

// RunnerConfig holds the job tunables.
type RunnerConfig struct {
	MinJobVersion int
	PollInterval  time.Duration
	ScratchDir    string
	MaxPartBytes  int64
	SignedURLTTL  time.Duration
}

// Runner executes report jobs end to end.
type Runner struct {
	reports     domain.AuditReportRepository
	events      domain.AuditEventRepository
	attachments domain.AttachmentRepository
	archives    blob.Store
	csv         CSVBuilder
	packager    *Packager
	publisher   StatusPublisher
	metrics     *metrics.ReportMetrics
	cfg         RunnerConfig
	now         func() time.Time
}

// NewRunner wires a Runner. archives receives report parts; photos is read
// for media attachments. publisher and m may be nil.
func NewRunner(
	reports domain.AuditReportRepository,
	events domain.AuditEventRepository,
	attachments domain.AttachmentRepository,
	archives blob.Store,
	photos blob.Store,
	publisher StatusPublisher,
	m *metrics.ReportMetrics,
	cfg RunnerConfig,
) *Runner {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 7 * 24 * time.Hour
	}

	return &Runner{
		reports:     reports,
		events:      events,
		attachments: attachments,
		archives:    archives,
		csv:         FileCSVBuilder{},
		packager:    NewPackager(photos, cfg.MaxPartBytes),
		publisher:   publisher,
		metrics:     m,
		cfg:         cfg,
		now:         time.Now,
	}
}

// WithCSVBuilder replaces the CSV builder.
func (r *Runner) WithCSVBuilder(b CSVBuilder) *Runner {
	r.csv = b
	return r
}

// HandleJob runs the job and reports whether the queue may drop it.
func (r *Runner) HandleJob(ctx context.Context, job domain.ReportJob) (bool, error) {
	outcome, err := r.Run(ctx, job)
	return outcome.Success(), err
}

// Run executes one job. Only unexpected infrastructure failures return an error.
func (r *Runner) Run(ctx context.Context, job domain.ReportJob) (Outcome, error) {
	start := r.now()
	outcome, err := r.run(ctx, job)
	r.metrics.ObserveJob(outcome.String(), r.now().Sub(start))

	logger := log.With().
		Str("report_id", job.AuditReportID.String()).
		Str("tenant_id", job.TenantID.String()).
		Str("outcome", outcome.String()).
		Logger()
	if err != nil {
		logger.Error().Err(err).Msg("report.Runner.Run: job failed")
	} else {
		logger.Info().Dur("elapsed", r.now().Sub(start)).Msg("report.Runner.Run: job finished")
	}

	return outcome, err
}

func (r *Runner) run(ctx context.Context, job domain.ReportJob) (Outcome, error) {
	if job.Version < r.cfg.MinJobVersion {
		log.Warn().
			Err(domain.ErrUnsupportedVersion).
			Int("version", job.Version).
			Int("min_version", r.cfg.MinJobVersion).
			Str("report_id", job.AuditReportID.String()).
			Msg("report.Runner: unsupported job version")
		return OutcomeRejected, nil
	}

	report, err := r.reports.Get(ctx, job.TenantID, job.UserID, job.AuditReportID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("report_id", job.AuditReportID.String()).Msg("report.Runner: report not found")
		return OutcomeRejected, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("report.Runner: get report: %w", err)
	}

	if report.Status.Terminal() {
		log.Info().
			Str("report_id", report.ID.String()).
			Str("status", string(report.Status)).
			Msg("report.Runner: report already terminal, skipping")
		return OutcomeSkipped, nil
	}

	watcher := StartWatcher(ctx, r.reports, report, r.cfg.PollInterval, r.metrics.RecordWatcherCancellation)
	defer watcher.Stop()

	assets, aborted, err := r.produce(ctx, watcher, report, job.IncludeMedia)
	watcher.Stop()

	var be *buildError
	if errors.As(err, &be) {
		log.Error().Err(be.err).Str("report_id", report.ID.String()).Msg("report.Runner: build failed")
		if _, err := r.reports.UpdateStatus(ctx, report.TenantID, report.ID, domain.ReportStatusFailed, nil); err != nil {
			return OutcomeError, fmt.Errorf("report.Runner: mark failed: %w", err)
		}
		r.publish(ctx, report, domain.ReportStatusFailed)
		return OutcomeFailed, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	return r.finalize(ctx, report, assets, aborted)
}

// buildError marks a failure that fails the report instead of being retried.
type buildError struct{ err error }

func (e *buildError) Error() string { return "report: build: " + e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

// produce builds and uploads the archive inside a per-job scratch directory
// that is always removed before it returns. aborted is true when cancellation
// by request interrupted packaging or upload.
func (r *Runner) produce(ctx context.Context, watcher *CancellationWatcher, report *domain.AuditReport, includeMedia bool) (assets []domain.AssetDescriptor, aborted bool, err error) {
	events, err := r.events.ListInRange(ctx, report.TenantID, report.StartDate, report.EndDate.AddDate(0, 0, 1))
	if err != nil {
		return nil, false, fmt.Errorf("report.Runner: list events: %w", err)
	}

	eventIDs := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		eventIDs = append(eventIDs, e.ID)
	}
	photos, err := r.attachments.ListPhotosForEvents(ctx, report.TenantID, eventIDs)
	if err != nil {
		return nil, false, fmt.Errorf("report.Runner: list photos: %w", err)
	}

	if err := os.MkdirAll(r.cfg.ScratchDir, 0o700); err != nil {
		return nil, false, fmt.Errorf("report.Runner: scratch dir: %w", err)
	}
	dir, err := os.MkdirTemp(r.cfg.ScratchDir, "report-*")
	if err != nil {
		return nil, false, fmt.Errorf("report.Runner: scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", dir).Msg("report.Runner: remove scratch dir")
		}
	}()

	baseName := domain.SafeFileName(report.Name)
	csvPath := filepath.Join(dir, baseName+".csv")
	if err := r.csv.Build(csvPath, events, photos); err != nil {
		return nil, false, &buildError{err: err}
	}

	if !includeMedia {
		photos = nil
	}

	wctx := watcher.Context()
	parts, err := r.packager.Package(wctx, dir, baseName, csvPath, photos)
	if err != nil {
		if wctx.Err() != nil {
			return nil, true, r.interrupted(ctx, watcher, err)
		}
		return nil, false, &buildError{err: err}
	}

	prefix := report.TenantID.String() + "/" + report.UserID.String() + "/"
	assets = make([]domain.AssetDescriptor, 0, len(parts))
	for _, part := range parts {
		key := prefix + part.Filename
		if err := r.upload(wctx, key, part); err != nil {
			if wctx.Err() != nil {
				return nil, true, r.interrupted(ctx, watcher, err)
			}
			return nil, false, fmt.Errorf("report.Runner: upload %s: %w", key, err)
		}
		r.metrics.AddUploadBytes(part.Size)

		url, err := r.archives.SignedURL(ctx, key, r.cfg.SignedURLTTL)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("report.Runner: sign asset url")
		}
		assets = append(assets, domain.AssetDescriptor{URL: url, FilePath: key, Filename: part.Filename})
	}

	return assets, false, nil
}

// interrupted returns nil when the interruption was a cancel request, which
// finalize resolves. Any other interruption is returned for retry.
func (r *Runner) interrupted(ctx context.Context, watcher *CancellationWatcher, cause error) error {
	if watcher.Cancelled() {
		log.Info().Err(cause).Msg("report.Runner: aborted by cancellation")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("report.Runner: interrupted: %w", err)
	}
	return fmt.Errorf("report.Runner: interrupted: %w", cause)
}

func (r *Runner) upload(ctx context.Context, key string, part ArchivePart) error {
	f, err := os.Open(part.Path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.archives.Put(ctx, key, f, part.Size, archiveContentType)
}

// finalize commits COMPLETE only if the report is still PENDING, so a
// cancellation written at any point before this read wins over completion.
func (r *Runner) finalize(ctx context.Context, report *domain.AuditReport, assets []domain.AssetDescriptor, aborted bool) (Outcome, error) {
	current, err := r.reports.Get(ctx, report.TenantID, report.UserID, report.ID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info().Str("report_id", report.ID.String()).Msg("report.Runner: report gone before finalize")
		return OutcomeCancelled, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("report.Runner: finalize: %w", err)
	}

	if current.Status != domain.ReportStatusPending {
		log.Info().
			Str("report_id", report.ID.String()).
			Str("status", string(current.Status)).
			Msg("report.Runner: report no longer pending, not completing")
		return OutcomeCancelled, nil
	}
	if aborted {
		return OutcomeError, fmt.Errorf("report.Runner: finalize: upload aborted but report %s is still pending", report.ID)
	}

	updated, err := r.reports.UpdateStatus(ctx, report.TenantID, report.ID, domain.ReportStatusComplete, assets)
	if err != nil {
		return OutcomeError, fmt.Errorf("report.Runner: mark complete: %w", err)
	}
	if updated == nil {
		return OutcomeCancelled, nil
	}

	r.publish(ctx, report, domain.ReportStatusComplete)
	return OutcomeCompleted, nil
}

func (r *Runner) publish(ctx context.Context, report *domain.AuditReport, status domain.ReportStatus) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishReportStatus(ctx, report.TenantID, report.UserID, report.ID, status); err != nil {
		log.Warn().Err(err).Str("report_id", report.ID.String()).Msg("report.Runner: publish status event")
	}
}
