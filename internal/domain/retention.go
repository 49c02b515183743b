package domain

import (
	"context"

	"github.com/google/uuid"
)

// TenantRetentionSetting is read-only to this service. A nil RetentionDays
// means the tenant has no retention policy and is never swept.
type TenantRetentionSetting struct {
	TenantID      uuid.UUID
	RetentionDays *int
}

type RetentionSettingRepository interface {
	ListRetentionSettings(ctx context.Context) ([]*TenantRetentionSetting, error)
}
