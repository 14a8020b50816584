package dbhelper

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudcanvas/accounts/models"
	"github.com/cloudcanvas/accounts/utils"
	"gorm.io/gorm"
)

// IsDuplicateKey reports whether err is a MySQL unique-constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(fmt.Sprintf("%v", err), utils.GORM_ERR_CODE_DUPLICATE_KEY)
}

type UserDB struct {
	DB *gorm.DB
}

func (r *UserDB) ByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	result := r.DB.WithContext(ctx).Raw("SELECT * FROM users WHERE id = ? AND deleted_at IS NULL", id).Scan(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &user, nil
}

func (r *UserDB) ByPublicID(ctx context.Context, publicID string) (*models.User, error) {
	var user models.User
	result := r.DB.WithContext(ctx).Raw("SELECT * FROM users WHERE public_id = ? AND deleted_at IS NULL", publicID).Scan(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &user, nil
}

// ByEmail expects a case-normalized address.
func (r *UserDB) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := r.DB.WithContext(ctx).Raw("SELECT * FROM users WHERE email = ? AND deleted_at IS NULL", email).Scan(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.ErrNotFound
	}
	return &user, nil
}

func (r *UserDB) Create(ctx context.Context, user *models.User) error {
	if err := r.DB.WithContext(ctx).Create(user).Error; err != nil {
		if IsDuplicateKey(err) {
			return utils.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserDB) Save(ctx context.Context, user *models.User) error {
	return r.DB.WithContext(ctx).Save(user).Error
}
