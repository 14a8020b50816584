package dbhelper

import (
	"context"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"gorm.io/gorm"
)

type LinkDB struct {
	DB *gorm.DB
}

func (r *LinkDB) ByProviderProfile(ctx context.Context, provider, providerProfileID string) (*models.LinkedAccount, error) {
	var link models.LinkedAccount
	result := r.DB.WithContext(ctx).Raw(
		"SELECT * FROM linked_accounts WHERE provider = ? AND provider_profile_id = ? AND deleted_at IS NULL",
		provider,
		providerProfileID,
	).Scan(&link)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &link, nil
}

// Create relies on the (provider, provider_profile_id) unique index to
// serialize concurrent reconciliations; a lost race surfaces as
// utils.ErrConflict and callers retry it as a ByProviderProfile read.
func (r *LinkDB) Create(ctx context.Context, link *models.LinkedAccount) error {
	if err := r.DB.WithContext(ctx).Create(link).Error; err != nil {
		if IsDuplicateKey(err) {
			return utils.ErrConflict
		}
		return err
	}
	return nil
}
