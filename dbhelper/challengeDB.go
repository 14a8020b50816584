package dbhelper

import (
	"context"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"gorm.io/gorm"
)

type ChallengeDB struct {
	DB *gorm.DB
}

func (r *ChallengeDB) Create(ctx context.Context, challenge *models.PendingTwoFactorChallenge) error {
	return r.DB.WithContext(ctx).Create(challenge).Error
}

func (r *ChallengeDB) BySessionID(ctx context.Context, sessionID string) (*models.PendingTwoFactorChallenge, error) {
	var challenge models.PendingTwoFactorChallenge
	result := r.DB.WithContext(ctx).Raw(
		"SELECT * FROM pending_two_factor_challenges WHERE session_id = ? AND deleted_at IS NULL",
		sessionID,
	).Scan(&challenge)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &challenge, nil
}

func (r *ChallengeDB) Delete(ctx context.Context, sessionID string) error {
	return r.DB.WithContext(ctx).Exec("DELETE FROM pending_two_factor_challenges WHERE session_id = ?", sessionID).Error
}
