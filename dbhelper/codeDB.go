package dbhelper

import (
	"context"
	"time"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"gorm.io/gorm"
)

type CodeDB struct {
	DB *gorm.DB
}

// Replace makes the new code the only live one for its destination and
// purpose; resending a code always invalidates the previous one.
func (r *CodeDB) Replace(ctx context.Context, destination, purpose, code string, expiresAt time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM one_time_codes WHERE destination = ? AND purpose = ?", destination, purpose).Error; err != nil {
			return err
		}
		record := models.OneTimeCode{
			Destination: destination,
			Purpose:     purpose,
			Code:        code,
			ExpiresAt:   expiresAt,
		}
		return tx.Create(&record).Error
	})
}

func (r *CodeDB) Find(ctx context.Context, destination, purpose string) (*models.OneTimeCode, error) {
	var record models.OneTimeCode
	result := r.DB.WithContext(ctx).Raw(
		"SELECT * FROM one_time_codes WHERE destination = ? AND purpose = ? AND deleted_at IS NULL",
		destination,
		purpose,
	).Scan(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &record, nil
}

func (r *CodeDB) Delete(ctx context.Context, destination, purpose string) error {
	return r.DB.WithContext(ctx).Exec("DELETE FROM one_time_codes WHERE destination = ? AND purpose = ?", destination, purpose).Error
}
