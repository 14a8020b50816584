package dbhelper

import (
	"fmt"

	"github.com/cloudcanvas/accounts/config"
	"github.com/cloudcanvas/accounts/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenDB connects to MySQL and returns the handle. The handle is injected
// into the per-aggregate repositories below rather than held globally, so
// every service can be unit-tested against fakes.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser,
		cfg.DBPass,
		cfg.DBHost,
		cfg.DBName,
	)
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

func InitDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.LinkedAccount{},
		&models.Session{},
		&models.PasswordHistoryEntry{},
		&models.PendingTwoFactorChallenge{},
		&models.OneTimeCode{},
		&models.BackupCode{},
	)
}
