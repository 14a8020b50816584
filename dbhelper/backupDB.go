package dbhelper

import (
	"context"

	"github.com/cloudcanvas/accounts/models"
	"gorm.io/gorm"
)

type BackupDB struct {
	DB *gorm.DB
}

// Replace swaps the full backup-code set in one transaction, so no window
// exists where old and new codes are both valid. An empty hashes slice
// clears the set.
func (r *BackupDB) Replace(ctx context.Context, userID uint, hashes []string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM backup_codes WHERE user_id = ?", userID).Error; err != nil {
			return err
		}
		for _, hash := range hashes {
			code := models.BackupCode{UserID: userID, CodeHash: hash}
			if err := tx.Create(&code).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BackupDB) ByUser(ctx context.Context, userID uint) ([]models.BackupCode, error) {
	var codes []models.BackupCode
	result := r.DB.WithContext(ctx).Raw(
		"SELECT * FROM backup_codes WHERE user_id = ? AND deleted_at IS NULL",
		userID,
	).Scan(&codes)
	if result.Error != nil {
		return nil, result.Error
	}
	return codes, nil
}

// Consume deletes a single code row, enforcing single use.
func (r *BackupDB) Consume(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Exec("DELETE FROM backup_codes WHERE id = ?", id).Error
}
