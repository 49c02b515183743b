package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/wardline/internal/domain"
)

const reportColumns = `id, tenant_id, user_id, status, status_date, name, start_date, end_date,
		        include_media, generated_at, metadata`

// identityRetries bounds how often a create is retried after losing an insert
// race on (tenant_id, user_id, name) to a concurrent request.
const identityRetries = 3

type AuditReportRepo struct {
	pool    *pgxpool.Pool
	appName string
	now     func() time.Time
}

func NewAuditReportRepo(pool *pgxpool.Pool, appName string, now func() time.Time) *AuditReportRepo {
	return &AuditReportRepo{pool: pool, appName: appName, now: now}
}

// Create inserts a PENDING report, or resets the row that already carries the
// same (tenant, user, name) identity: status PENDING, metadata NULL, a new ID.
// The creation instant is taken once so retries keep the same identity.
func (r *AuditReportRepo) Create(ctx context.Context, req domain.ReportRequest) (*domain.AuditReport, error) {
	now := r.now().UTC()

	var report *domain.AuditReport
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		report, txErr = r.createTx(ctx, tx, req, now)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.Create: %w", err)
	}

	return report, nil
}

func (r *AuditReportRepo) Get(ctx context.Context, tenantID, userID, id uuid.UUID) (*domain.AuditReport, error) {
	report, err := scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+`
		 FROM audit_reports WHERE tenant_id = $1 AND user_id = $2 AND id = $3`,
		tenantID, userID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auditReportRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.Get: %w", err)
	}

	return report, nil
}

func (r *AuditReportRepo) ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.AuditReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reportColumns+`
		 FROM audit_reports WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY generated_at DESC`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.ListByUser: %w", err)
	}
	defer rows.Close()

	return scanReports(rows, "auditReportRepo.ListByUser")
}

func (r *AuditReportRepo) CountByUser(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM audit_reports WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("auditReportRepo.CountByUser: %w", err)
	}

	return n, nil
}

// UpdateStatus overwrites status, metadata and status_date without looking at
// the current state. Metadata is stored only for COMPLETE reports.
func (r *AuditReportRepo) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.ReportStatus, metadata []domain.AssetDescriptor) (*domain.AuditReport, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("auditReportRepo.UpdateStatus: status %q: %w", status, domain.ErrInvalidRequest)
	}

	meta, err := marshalMetadata(status, metadata)
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.UpdateStatus: %w", err)
	}

	report, err := scanReport(r.pool.QueryRow(ctx,
		`UPDATE audit_reports SET status = $1, metadata = $2, status_date = $3
		 WHERE tenant_id = $4 AND id = $5
		 RETURNING `+reportColumns,
		status, meta, r.now().UTC(), tenantID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.UpdateStatus: %w", err)
	}

	return report, nil
}

// ReplaceOldest evicts the user's report with the smallest generated_at and
// creates the requested one in the same transaction. The caller decides when
// the user is at capacity.
func (r *AuditReportRepo) ReplaceOldest(ctx context.Context, req domain.ReportRequest) (*domain.AuditReport, error) {
	now := r.now().UTC()

	var report *domain.AuditReport
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM audit_reports WHERE id = (
			     SELECT id FROM audit_reports WHERE tenant_id = $1 AND user_id = $2
			     ORDER BY generated_at ASC, id ASC
			     LIMIT 1
			     FOR UPDATE
			 )`,
			req.TenantID, req.UserID,
		)
		if err != nil {
			return fmt.Errorf("delete oldest: %w", err)
		}

		report, err = r.createTx(ctx, tx, req, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.ReplaceOldest: %w", err)
	}

	return report, nil
}

// ListCompletedAssetPaths flattens metadata[].filePath over every COMPLETE report.
func (r *AuditReportRepo) ListCompletedAssetPaths(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT asset->>'filePath'
		 FROM audit_reports, jsonb_array_elements(metadata) AS asset
		 WHERE status = $1 AND metadata IS NOT NULL`,
		domain.ReportStatusComplete,
	)
	if err != nil {
		return nil, fmt.Errorf("auditReportRepo.ListCompletedAssetPaths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p *string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("auditReportRepo.ListCompletedAssetPaths: scan: %w", err)
		}
		if p != nil && *p != "" {
			paths = append(paths, *p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditReportRepo.ListCompletedAssetPaths: rows: %w", err)
	}

	return paths, nil
}

func (r *AuditReportRepo) createTx(ctx context.Context, q querier, req domain.ReportRequest, now time.Time) (*domain.AuditReport, error) {
	name := domain.ReportName(r.appName, req, now)

	var existingID uuid.UUID
	err := q.QueryRow(ctx,
		`SELECT id FROM audit_reports
		 WHERE tenant_id = $1 AND user_id = $2 AND name = $3
		 FOR UPDATE`,
		req.TenantID, req.UserID, name,
	).Scan(&existingID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		report, insErr := scanReport(q.QueryRow(ctx,
			`INSERT INTO audit_reports (id, tenant_id, user_id, status, status_date, name, start_date, end_date, include_media, generated_at, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
			 RETURNING `+reportColumns,
			uuid.New(), req.TenantID, req.UserID, domain.ReportStatusPending, now, name,
			req.StartDate, req.EndDate, req.IncludeMedia, now,
		))
		if insErr != nil {
			return nil, fmt.Errorf("insert: %w", insErr)
		}
		return report, nil
	case err != nil:
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	report, err := scanReport(q.QueryRow(ctx,
		`UPDATE audit_reports SET id = $1, status = $2, status_date = $3, metadata = NULL
		 WHERE id = $4
		 RETURNING `+reportColumns,
		uuid.New(), domain.ReportStatusPending, now, existingID,
	))
	if err != nil {
		return nil, fmt.Errorf("reset existing: %w", err)
	}

	return report, nil
}

// inTx runs fn in a transaction and retries when a concurrent create won the
// insert race on the report identity; the retry then takes the reset path.
func (r *AuditReportRepo) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for range identityRetries {
		err = pgx.BeginFunc(ctx, r.pool, fn)
		if !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshalMetadata(status domain.ReportStatus, metadata []domain.AssetDescriptor) ([]byte, error) {
	if status != domain.ReportStatusComplete {
		return nil, nil
	}
	if metadata == nil {
		metadata = []domain.AssetDescriptor{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func scanReport(row pgx.Row) (*domain.AuditReport, error) {
	var rp domain.AuditReport
	var meta []byte

	if err := row.Scan(
		&rp.ID, &rp.TenantID, &rp.UserID, &rp.Status, &rp.StatusDate, &rp.Name,
		&rp.StartDate, &rp.EndDate, &rp.IncludeMedia, &rp.GeneratedAt, &meta,
	); err != nil {
		return nil, err
	}
	if meta != nil {
		if err := json.Unmarshal(meta, &rp.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &rp, nil
}

func scanReports(rows pgx.Rows, caller string) ([]*domain.AuditReport, error) {
	var reports []*domain.AuditReport
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		reports = append(reports, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return reports, nil
}
