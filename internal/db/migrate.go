package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"go_niceurl/internal/model"
)

// Migrate runs database migrations for all models
func Migrate(gdb *gorm.DB, logger *logrus.Entry) error {
	logger.Info("Starting database migration...")

	models := []interface{}{
		&model.URLRule{},
	}

	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Infof("Database migration completed successfully (%d tables)", len(models))
	return nil
}
