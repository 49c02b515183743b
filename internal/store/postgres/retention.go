package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/wardline/internal/domain"
)

type RetentionRepo struct {
	pool *pgxpool.Pool
}

func NewRetentionRepo(pool *pgxpool.Pool) *RetentionRepo {
	return &RetentionRepo{pool: pool}
}

// ListRetentionSettings returns one row per tenant. Tenants without a
// settings row or with a NULL retention_days come back with nil RetentionDays.
func (r *RetentionRepo) ListRetentionSettings(ctx context.Context) ([]*domain.TenantRetentionSetting, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, s.retention_days
		 FROM tenants t
		 LEFT JOIN tenant_settings s ON s.tenant_id = t.id
		 ORDER BY t.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("retentionRepo.ListRetentionSettings: %w", err)
	}
	defer rows.Close()

	var settings []*domain.TenantRetentionSetting
	for rows.Next() {
		var s domain.TenantRetentionSetting
		if err := rows.Scan(&s.TenantID, &s.RetentionDays); err != nil {
			return nil, fmt.Errorf("retentionRepo.ListRetentionSettings: scan: %w", err)
		}
		settings = append(settings, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retentionRepo.ListRetentionSettings: rows: %w", err)
	}

	return settings, nil
}
