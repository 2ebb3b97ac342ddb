package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitsync/fitsync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrProviderLinkNotFound = errors.New("provider link not found")

type ProviderLinkRepository struct {
	db *gorm.DB
}

func NewProviderLinkRepository(db *gorm.DB) *ProviderLinkRepository {
	return &ProviderLinkRepository{db: db}
}

// GetByUserAndProvider retrieves the user's connection for one provider
func (r *ProviderLinkRepository) GetByUserAndProvider(ctx context.Context, userID, provider string) (*models.ProviderLink, error) {
	var link models.ProviderLink
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&link)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProviderLinkNotFound
		}
		return nil, fmt.Errorf("failed to get provider link: %w", result.Error)
	}
	return &link, nil
}

// UpdateTokens updates access token, refresh token, and expiry after a refresh
func (r *ProviderLinkRepository) UpdateTokens(ctx context.Context, linkID string, accessToken, refreshToken string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.ProviderLink{}).
		Where("id = ?", linkID).
		Updates(map[string]interface{}{
			"access_token":            accessToken,
			"refresh_token":           refreshToken,
			"access_token_expires_at": expiresAt,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}

// UpdateLastSyncDate advances the provider watermark; it never moves backwards
func (r *ProviderLinkRepository) UpdateLastSyncDate(ctx context.Context, linkID string, syncDate time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.ProviderLink{}).
		Where("id = ?", linkID).
		Updates(map[string]interface{}{
			"last_successful_sync_date": gorm.Expr("GREATEST(COALESCE(last_successful_sync_date, ?::date), ?::date)", syncDate, syncDate),
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update last sync date: %w", result.Error)
	}
	return nil
}
