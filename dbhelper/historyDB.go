package dbhelper

import (
	"context"

	"github.com/cloudcanvas/accounts/models"
	"gorm.io/gorm"
)

type HistoryDB struct {
	DB *gorm.DB
}

// Recent returns up to n history entries, newest first.
func (r *HistoryDB) Recent(ctx context.Context, userID uint, n int) ([]models.PasswordHistoryEntry, error) {
	var entries []models.PasswordHistoryEntry
	result := r.DB.WithContext(ctx).Raw(
		"SELECT * FROM password_history_entries WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID,
		n,
	).Scan(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

// Append is the only write; history rows are never updated or deleted.
func (r *HistoryDB) Append(ctx context.Context, userID uint, passwordHash string) error {
	entry := models.PasswordHistoryEntry{
		UserID:       userID,
		PasswordHash: passwordHash,
	}
	return r.DB.WithContext(ctx).Create(&entry).Error
}
