package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/domain"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Referenced int
	Stored     int
	Orphans    []string
	Deleted    int
}

// Reconciler finds archive blobs no COMPLETE report references, such as
// parts uploaded by jobs that were cancelled mid-flight.
type Reconciler struct {
	reports  domain.AuditReportRepository
	archives blob.Store
}

func NewReconciler(reports domain.AuditReportRepository, archives blob.Store) *Reconciler {
	return &Reconciler{reports: reports, archives: archives}
}

// Run lists orphans and, when deleteOrphans is set, removes them. Jobs still
// uploading also look orphaned, so deletion belongs in a quiet window.
func (r *Reconciler) Run(ctx context.Context, deleteOrphans bool) (*ReconcileResult, error) {
	paths, err := r.reports.ListCompletedAssetPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("report.Reconciler.Run: %w", err)
	}
	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[p] = struct{}{}
	}

	keys, err := r.archives.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("report.Reconciler.Run: %w", err)
	}

	res := &ReconcileResult{Referenced: len(referenced), Stored: len(keys)}
	for _, key := range keys {
		if _, ok := referenced[key]; ok {
			continue
		}
		res.Orphans = append(res.Orphans, key)

		if !deleteOrphans {
			continue
		}
		if err := r.archives.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
			log.Error().Err(err).Str("key", key).Msg("report.Reconciler.Run: delete orphan")
			continue
		}
		res.Deleted++
	}

	return res, nil
}
