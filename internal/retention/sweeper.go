package retention

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/domain"
	"github.com/gosuda/wardline/internal/metrics"
)

// DefaultThumbnailPrefix is prepended to an attachment filename to name its thumbnail blob.
const DefaultThumbnailPrefix = "thumb_"

// Config holds sweep tunables.
type Config struct {
	ThumbnailPrefix string
	// Concurrency bounds in-flight attachment deletions per tenant.
	Concurrency int
	// DeletesPerSecond paces attachment deletions across the whole sweep. Zero disables pacing.
	DeletesPerSecond float64
}

// Result summarises one sweep.
type Result struct {
	TenantsSwept       int
	TenantsSkipped     int
	AttachmentsDeleted int
	EventsDeleted      int64
	Errors             int
}

// Sweeper deletes expired attachments, their blobs and old audit events for
// every tenant with a retention policy.
//
// Blob deletion and row deletion are not atomic. A crash between them leaves
// blobs gone while rows remain (or the reverse); the next sweep finishes the
// job since missing blobs count as deleted.
type Sweeper struct {
	settings    domain.RetentionSettingRepository
	attachments domain.AttachmentRepository
	events      domain.AuditEventRepository
	blobs       blob.Store
	metrics     *metrics.RetentionMetrics
	cfg         Config
	limiter     *rate.Limiter
	now         func() time.Time
}

// NewSweeper wires a Sweeper. m may be nil.
func NewSweeper(
	settings domain.RetentionSettingRepository,
	attachments domain.AttachmentRepository,
	events domain.AuditEventRepository,
	blobs blob.Store,
	m *metrics.RetentionMetrics,
	cfg Config,
) *Sweeper {
	if cfg.ThumbnailPrefix == "" {
		cfg.ThumbnailPrefix = DefaultThumbnailPrefix
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	limit := rate.Inf
	if cfg.DeletesPerSecond > 0 {
		limit = rate.Limit(cfg.DeletesPerSecond)
	}

	return &Sweeper{
		settings:    settings,
		attachments: attachments,
		events:      events,
		blobs:       blobs,
		metrics:     m,
		cfg:         cfg,
		limiter:     rate.NewLimiter(limit, cfg.Concurrency),
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep runs one pass over all tenants. A failing tenant is logged and
// counted in Result.Errors; only failing to read the settings aborts the pass.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	settings, err := s.settings.ListRetentionSettings(ctx)
	if err != nil {
		s.metrics.RecordError(metrics.StageSettings)
		return nil, fmt.Errorf("retention.Sweeper.Sweep: %w", err)
	}

	res := &Result{}
	for _, setting := range settings {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("retention.Sweeper.Sweep: %w", err)
		}
		if setting.RetentionDays == nil {
			res.TenantsSkipped++
			continue
		}

		tr, err := s.sweepTenant(ctx, setting.TenantID, *setting.RetentionDays)
		res.AttachmentsDeleted += tr.attachments
		res.EventsDeleted += tr.events
		res.Errors += tr.failures
		if err != nil {
			res.Errors++
			log.Error().Err(err).Str("tenant_id", setting.TenantID.String()).Msg("retention.Sweeper.Sweep: tenant sweep failed")
			continue
		}
		res.TenantsSwept++
	}

	finished := s.now()
	s.metrics.MarkRun(finished)
	log.Info().
		Int("tenants_swept", res.TenantsSwept).
		Int("tenants_skipped", res.TenantsSkipped).
		Int("attachments_deleted", res.AttachmentsDeleted).
		Int64("events_deleted", res.EventsDeleted).
		Int("errors", res.Errors).
		Msg("retention.Sweeper.Sweep: pass finished")

	return res, nil
}

type tenantResult struct {
	attachments int
	events      int64
	failures    int
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenantID uuid.UUID, days int) (tenantResult, error) {
	var tr tenantResult
	cutoff := s.now().AddDate(0, 0, -days)

	expired, err := s.attachments.ListForClosedEncountersBefore(ctx, tenantID, cutoff)
	if err != nil {
		s.metrics.RecordError(metrics.StageList)
		return tr, fmt.Errorf("list attachments: %w", err)
	}

	var deleted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, a := range expired {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			if s.deleteAttachment(gctx, a) {
				deleted.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	waitErr := g.Wait()
	tr.attachments = int(deleted.Load())
	tr.failures = int(failed.Load())
	if waitErr != nil {
		return tr, fmt.Errorf("delete attachments: %w", waitErr)
	}

	n, err := s.events.DeleteOlderThan(ctx, tenantID, cutoff)
	if err != nil {
		s.metrics.RecordError(metrics.StageEvents)
		return tr, fmt.Errorf("delete events: %w", err)
	}
	tr.events = n
	s.metrics.AddDeleted(metrics.KindEvent, n)

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Time("cutoff", cutoff).
		Int("attachments_deleted", tr.attachments).
		Int64("events_deleted", n).
		Msg("retention.Sweeper: tenant swept")

	return tr, nil
}

// deleteAttachment removes both blobs and then the row. Failures are logged
// and leave the row in place for the next sweep.
func (s *Sweeper) deleteAttachment(ctx context.Context, a *domain.AuditAttachment) bool {
	logger := log.With().
		Str("tenant_id", a.TenantID.String()).
		Str("attachment_id", a.ID.String()).
		Logger()

	for _, key := range []string{a.BlobPath(), a.ThumbnailPath(s.cfg.ThumbnailPrefix)} {
		err := s.blobs.Delete(ctx, key)
		if err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
			s.metrics.RecordError(metrics.StageBlob)
			logger.Error().Err(err).Str("key", key).Msg("retention.Sweeper: delete blob")
			return false
		}
		s.metrics.AddDeleted(metrics.KindBlob, 1)
	}

	if err := s.attachments.Delete(ctx, a.TenantID, a.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.metrics.RecordError(metrics.StageRow)
		logger.Error().Err(err).Msg("retention.Sweeper: delete attachment row")
		return false
	}
	s.metrics.AddDeleted(metrics.KindAttachment, 1)
	return true
}
