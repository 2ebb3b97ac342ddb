package models

import "time"

const ProviderGarmin = "garmin"

// ProviderLink is the per-user connection state for an external fitness
// platform. The orchestrator reads last_successful_sync_date to seed an
// incremental window and advances it when a job completes.
type ProviderLink struct {
	ID                     string     `gorm:"column:id;primaryKey"`
	UserID                 string     `gorm:"column:user_id;uniqueIndex:uq_provider_links_user_provider"`
	Provider               string     `gorm:"column:provider;uniqueIndex:uq_provider_links_user_provider"`
	AccessToken            *string    `gorm:"column:access_token"`
	RefreshToken           *string    `gorm:"column:refresh_token"`
	AccessTokenExpiresAt   *time.Time `gorm:"column:access_token_expires_at"`
	LastSuccessfulSyncDate *time.Time `gorm:"column:last_successful_sync_date"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ProviderLink) TableName() string {
	return "provider_links"
}
