package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/domain"
)

// ErrReportCancelled is the cancellation cause set when a cancel request is observed.
var ErrReportCancelled = errors.New("report: cancellation requested")

var errWatcherStopped = errors.New("report: watcher stopped")

// StatusReader is the part of the report repository the watcher needs.
type StatusReader interface {
	Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error)
}

// CancellationWatcher polls one report and cancels its context once the
// report is seen CANCELLED. It is the only writer of that signal; the job
// reads it through Context and Cancelled. Stop must be called on every exit
// path; it is safe to call more than once.
type CancellationWatcher struct {
	reports  StatusReader
	tenantID uuid.UUID
	userID   uuid.UUID
	reportID uuid.UUID
	interval time.Duration
	onCancel func()

	ctx      context.Context
	cancel   context.CancelCauseFunc
	done     chan struct{}
	stopOnce sync.Once
}

// StartWatcher begins polling. The returned watcher's context is derived from parent.
func StartWatcher(parent context.Context, reports StatusReader, report *domain.AuditReport, interval time.Duration, onCancel func()) *CancellationWatcher {
	ctx, cancel := context.WithCancelCause(parent)
	w := &CancellationWatcher{
		reports:  reports,
		tenantID: report.TenantID,
		userID:   report.UserID,
		reportID: report.ID,
		interval: interval,
		onCancel: onCancel,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go w.poll()
	return w
}

// Context is cancelled with ErrReportCancelled when cancellation is observed,
// and with another cause when the watcher stops or the parent ends.
func (w *CancellationWatcher) Context() context.Context {
	return w.ctx
}

// Cancelled reports whether a cancel request was observed.
func (w *CancellationWatcher) Cancelled() bool {
	return errors.Is(context.Cause(w.ctx), ErrReportCancelled)
}

// Stop ends polling and waits for the poll goroutine to exit.
func (w *CancellationWatcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel(errWatcherStopped)
		<-w.done
	})
}

func (w *CancellationWatcher) poll() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			report, err := w.reports.Get(w.ctx, w.tenantID, w.userID, w.reportID)
			if err != nil {
				if w.ctx.Err() == nil && !errors.Is(err, domain.ErrNotFound) {
					log.Warn().Err(err).Str("report_id", w.reportID.String()).Msg("report.CancellationWatcher: status check failed")
				}
				continue
			}

			if report.Status == domain.ReportStatusCancelled {
				log.Info().Str("report_id", w.reportID.String()).Msg("report.CancellationWatcher: cancellation observed")
				w.cancel(ErrReportCancelled)
				if w.onCancel != nil {
					w.onCancel()
				}
				return
			}
		}
	}
}
