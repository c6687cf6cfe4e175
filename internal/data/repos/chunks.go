package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type ChunkRepo interface {
	Upsert(ctx context.Context, ch *domain.Chunk) error
	ListByVideo(ctx context.Context, videoID string, limit, offset int) ([]domain.Chunk, error)
	DeleteForVideo(ctx context.Context, videoID string) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: log}
}

func (r *chunkRepo) Upsert(ctx context.Context, ch *domain.Chunk) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"start_time", "end_time", "text", "content_hash",
		}),
	}).Create(ch).Error
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
	}
	return nil
}

func (r *chunkRepo) ListByVideo(ctx context.Context, videoID string, limit, offset int) ([]domain.Chunk, error) {
	var out []domain.Chunk
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("chunk_index ASC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list chunks for video %s: %w", videoID, err)
	}
	return out, nil
}

func (r *chunkRepo) DeleteForVideo(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&domain.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks for video %s: %w", videoID, err)
	}
	return nil
}
