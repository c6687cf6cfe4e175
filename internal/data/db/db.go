package db

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// Open opens the sqlite database with WAL and foreign keys enabled and
// applies the additive migration.
func Open(path string, log *logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	log.Info("database ready", "path", path)
	return gdb, nil
}

// Migrate is additive only: AutoMigrate adds missing tables/columns, then
// older rows get updated_at backfilled from created_at and the singleton
// preference rows are seeded.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&domain.Video{},
		&domain.Job{},
		&domain.VideoIndex{},
		&domain.VideoSummary{},
		&domain.VideoKeyframeIndex{},
		&domain.Keyframe{},
		&domain.Chunk{},
		&domain.LLMPreferences{},
		&domain.RuntimePreferences{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := gdb.Exec(
		"UPDATE jobs SET updated_at = created_at WHERE updated_at IS NULL",
	).Error; err != nil {
		return fmt.Errorf("backfill jobs.updated_at: %w", err)
	}

	if err := seedPrefs(gdb); err != nil {
		return err
	}
	return nil
}

func seedPrefs(gdb *gorm.DB) error {
	defaultLLM, _ := json.Marshal(map[string]any{
		"provider":    "fake",
		"temperature": 0.2,
		"max_tokens":  512,
	})
	llm := domain.LLMPreferences{ID: 1, Prefs: defaultLLM}
	if err := gdb.Where("id = ?", 1).FirstOrCreate(&llm).Error; err != nil {
		return fmt.Errorf("seed llm preferences: %w", err)
	}

	rt := domain.RuntimePreferences{ID: 1, Prefs: []byte(`{}`)}
	if err := gdb.Where("id = ?", 1).FirstOrCreate(&rt).Error; err != nil {
		return fmt.Errorf("seed runtime preferences: %w", err)
	}
	return nil
}
