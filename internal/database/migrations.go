package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDedupeReactions = "2024-09-01_dedupe_reactions"

// migrationRecord marks a data migration as applied.
type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type dataMigration struct {
	name  string
	apply func(tx *gorm.DB) error
}

// dataMigrations run once each, in order, before the indexes that depend on them are created.
var dataMigrations = []dataMigration{
	{name: migrationDedupeReactions, apply: dedupeReactions},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range dataMigrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{
				Name:             migration.name,
				AppliedAtSeconds: time.Now().UTC().Unix(),
			}).Error
		})
		if err != nil {
			logger.Error("database migration failed", zap.String("migration", migration.name), zap.Error(err))
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// dedupeReactions keeps one row per (message, user, emoji) triple.
func dedupeReactions(tx *gorm.DB) error {
	if !tx.Migrator().HasTable("reactions") {
		return nil
	}
	return tx.Exec(`DELETE FROM reactions WHERE id NOT IN (
		SELECT MIN(id) FROM reactions GROUP BY message_id, user_id, emoji
	)`).Error
}
