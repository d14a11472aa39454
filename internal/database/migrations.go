package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizePositiveGlyph = "2026-03-14_normalize_positive_glyph"

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
		{name: migrationNormalizePositiveGlyph, apply: normalizePositiveGlyph},
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

// Older spreadsheets stored the white circle U+25CB instead of 〇.
func normalizePositiveGlyph(db *gorm.DB) error {
	return db.Model(&ratings.Record{}).
		Where("rating = ?", "○").
		Update("rating", ratings.RatingPositive).Error
}
