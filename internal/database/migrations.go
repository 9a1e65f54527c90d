package database

import (
	"errors"
	"time"

	"github.com/pusulahq/pusula/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillSyncedFlags = "2026-06-18_backfill_synced_flags"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSyncedFlags, apply: backfillSyncedFlags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before the synced flag existed carry a natural key but
// synced = false; any record holding an ERP key came from the ERP.
func backfillSyncedFlags(db *gorm.DB) error {
	if err := db.Model(&store.Customer{}).
		Where("current_code <> '' AND synced = ?", false).
		Update("synced", true).Error; err != nil {
		return err
	}
	return db.Model(&store.StockItem{}).
		Where("sku <> '' AND synced = ?", false).
		Update("synced", true).Error
}
