package dbhelper

import (
	"context"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"gorm.io/gorm"
)

type SessionDB struct {
	DB *gorm.DB
}

func (r *SessionDB) Create(ctx context.Context, session *models.Session) error {
	if err := r.DB.WithContext(ctx).Create(session).Error; err != nil {
		if IsDuplicateKey(err) {
			return utils.ErrConflict
		}
		return err
	}
	return nil
}

func (r *SessionDB) ByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	result := r.DB.WithContext(ctx).Raw("SELECT * FROM sessions WHERE token = ? AND deleted_at IS NULL", token).Scan(&session)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &session, nil
}

// DeleteByToken revokes exactly one session; a user's other sessions stay live.
func (r *SessionDB) DeleteByToken(ctx context.Context, token string) error {
	return r.DB.WithContext(ctx).Exec("DELETE FROM sessions WHERE token = ?", token).Error
}

// DeleteByUserExcept revokes every session of a user except the one presented,
// used after a password change.
func (r *SessionDB) DeleteByUserExcept(ctx context.Context, userID uint, keepToken string) error {
	return r.DB.WithContext(ctx).Exec("DELETE FROM sessions WHERE user_id = ? AND token <> ?", userID, keepToken).Error
}
