package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationStripViewerProviderPrefix = "2026-09-01_strip_viewer_provider_prefix"
	migrationBackfillCommentAuthors    = "2026-09-15_backfill_comment_author_names"
)

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
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationStripViewerProviderPrefix, apply: stripViewerProviderPrefix},
		{name: migrationBackfillCommentAuthors, apply: backfillCommentAuthors},
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
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			logger.Error("database migration failed", zap.String("migration", migration.name), zap.Error(err))
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// stripViewerProviderPrefix rewrites "provider:subject" viewer ids to the bare
// subject. A prefixed vote that would collide with an existing bare vote on
// the same item is dropped first.
func stripViewerProviderPrefix(db *gorm.DB) error {
	dropShadowedVotes := `DELETE FROM vote_records
		WHERE instr(viewer_id, ':') > 0
		AND EXISTS (
			SELECT 1 FROM vote_records AS bare
			WHERE bare.item_id = vote_records.item_id
			AND bare.viewer_id = substr(vote_records.viewer_id, instr(vote_records.viewer_id, ':') + 1)
		)`
	dropCollidingVotes := `DELETE FROM vote_records
		WHERE instr(viewer_id, ':') > 0
		AND EXISTS (
			SELECT 1 FROM vote_records AS other
			WHERE other.item_id = vote_records.item_id
			AND other.id < vote_records.id
			AND instr(other.viewer_id, ':') > 0
			AND substr(other.viewer_id, instr(other.viewer_id, ':') + 1) = substr(vote_records.viewer_id, instr(vote_records.viewer_id, ':') + 1)
		)`
	for _, statement := range []string{dropShadowedVotes, dropCollidingVotes} {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	for _, table := range []string{"vote_records", "comment_records"} {
		statement := "UPDATE " + table + " SET viewer_id = substr(viewer_id, instr(viewer_id, ':') + 1) WHERE instr(viewer_id, ':') > 0"
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

// backfillCommentAuthors fills empty comment author names from viewer profiles.
func backfillCommentAuthors(db *gorm.DB) error {
	return db.Exec(`UPDATE comment_records
		SET author_name = (
			SELECT display_name FROM viewer_profiles
			WHERE viewer_profiles.viewer_id = comment_records.viewer_id AND display_name <> ''
			LIMIT 1
		)
		WHERE (author_name IS NULL OR author_name = '')
		AND EXISTS (
			SELECT 1 FROM viewer_profiles
			WHERE viewer_profiles.viewer_id = comment_records.viewer_id AND display_name <> ''
		)`).Error
}
