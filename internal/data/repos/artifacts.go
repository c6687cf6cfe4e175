package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// The three per-artifact repos share the same shape: one row per video,
// full-row upsert on the primary key plus partial field updates for
// status flips.

type VideoIndexRepo interface {
	Upsert(ctx context.Context, row *domain.VideoIndex) error
	Get(ctx context.Context, videoID string) (*domain.VideoIndex, error)
	Update(ctx context.Context, videoID string, fields map[string]any) error
	Delete(ctx context.Context, videoID string) error
}

type videoIndexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoIndexRepo(db *gorm.DB, log *logger.Logger) VideoIndexRepo {
	return &videoIndexRepo{db: db, log: log}
}

var indexUpsertColumns = []string{
	"status", "progress", "message", "error_code", "error_message",
	"embed_model", "embed_dim", "chunk_params", "transcript_hash",
	"chunk_count", "indexed_count", "updated_at",
}

func (r *videoIndexRepo) Upsert(ctx context.Context, row *domain.VideoIndex) error {
	row.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns(indexUpsertColumns),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert video index %s: %w", row.VideoID, err)
	}
	return nil
}

func (r *videoIndexRepo) Get(ctx context.Context, videoID string) (*domain.VideoIndex, error) {
	var row domain.VideoIndex
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get video index %s: %w", videoID, err)
	}
	return &row, nil
}

func (r *videoIndexRepo) Update(ctx context.Context, videoID string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.VideoIndex{}).
		Where("video_id = ?", videoID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update video index %s: %w", videoID, res.Error)
	}
	return nil
}

func (r *videoIndexRepo) Delete(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&domain.VideoIndex{}).Error; err != nil {
		return fmt.Errorf("delete video index %s: %w", videoID, err)
	}
	return nil
}

type VideoSummaryRepo interface {
	Upsert(ctx context.Context, row *domain.VideoSummary) error
	Get(ctx context.Context, videoID string) (*domain.VideoSummary, error)
	Update(ctx context.Context, videoID string, fields map[string]any) error
	Delete(ctx context.Context, videoID string) error
}

type videoSummaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoSummaryRepo(db *gorm.DB, log *logger.Logger) VideoSummaryRepo {
	return &videoSummaryRepo{db: db, log: log}
}

var summaryUpsertColumns = []string{
	"status", "progress", "message", "error_code", "error_message",
	"transcript_hash", "params", "segment_summaries", "summary_markdown",
	"outline", "updated_at",
}

func (r *videoSummaryRepo) Upsert(ctx context.Context, row *domain.VideoSummary) error {
	row.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns(summaryUpsertColumns),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert video summary %s: %w", row.VideoID, err)
	}
	return nil
}

func (r *videoSummaryRepo) Get(ctx context.Context, videoID string) (*domain.VideoSummary, error) {
	var row domain.VideoSummary
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get video summary %s: %w", videoID, err)
	}
	return &row, nil
}

func (r *videoSummaryRepo) Update(ctx context.Context, videoID string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.VideoSummary{}).
		Where("video_id = ?", videoID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update video summary %s: %w", videoID, res.Error)
	}
	return nil
}

func (r *videoSummaryRepo) Delete(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&domain.VideoSummary{}).Error; err != nil {
		return fmt.Errorf("delete video summary %s: %w", videoID, err)
	}
	return nil
}

type KeyframeIndexRepo interface {
	Upsert(ctx context.Context, row *domain.VideoKeyframeIndex) error
	Get(ctx context.Context, videoID string) (*domain.VideoKeyframeIndex, error)
	Update(ctx context.Context, videoID string, fields map[string]any) error
	Delete(ctx context.Context, videoID string) error
}

type keyframeIndexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKeyframeIndexRepo(db *gorm.DB, log *logger.Logger) KeyframeIndexRepo {
	return &keyframeIndexRepo{db: db, log: log}
}

var keyframeIndexUpsertColumns = []string{
	"status", "progress", "message", "error_code", "error_message",
	"params", "frame_count", "updated_at",
}

func (r *keyframeIndexRepo) Upsert(ctx context.Context, row *domain.VideoKeyframeIndex) error {
	row.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns(keyframeIndexUpsertColumns),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert keyframe index %s: %w", row.VideoID, err)
	}
	return nil
}

func (r *keyframeIndexRepo) Get(ctx context.Context, videoID string) (*domain.VideoKeyframeIndex, error) {
	var row domain.VideoKeyframeIndex
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get keyframe index %s: %w", videoID, err)
	}
	return &row, nil
}

func (r *keyframeIndexRepo) Update(ctx context.Context, videoID string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.VideoKeyframeIndex{}).
		Where("video_id = ?", videoID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update keyframe index %s: %w", videoID, res.Error)
	}
	return nil
}

func (r *keyframeIndexRepo) Delete(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&domain.VideoKeyframeIndex{}).Error; err != nil {
		return fmt.Errorf("delete keyframe index %s: %w", videoID, err)
	}
	return nil
}
