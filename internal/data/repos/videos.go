package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type VideoRepo interface {
	CreateOrGet(ctx context.Context, filePath, fileHash, title string, duration float64, fileSize int64) (*domain.Video, error)
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	List(ctx context.Context, status string, limit, offset int) ([]domain.Video, error)
	SetStatus(ctx context.Context, id, status string) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, log *logger.Logger) VideoRepo {
	return &videoRepo{db: db, log: log}
}

// CreateOrGet dedups by file hash so re-importing the same file is
// idempotent.
func (r *videoRepo) CreateOrGet(ctx context.Context, filePath, fileHash, title string, duration float64, fileSize int64) (*domain.Video, error) {
	var existing domain.Video
	err := r.db.WithContext(ctx).Where("file_hash = ?", fileHash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup video by hash: %w", err)
	}

	v := domain.Video{
		ID:       uuid.NewString(),
		FilePath: filePath,
		FileHash: fileHash,
		Title:    title,
		Duration: duration,
		FileSize: fileSize,
		Status:   domain.VideoStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(&v).Error; err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	r.log.Info("video imported", "video_id", v.ID, "duration", duration)
	return &v, nil
}

func (r *videoRepo) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return &v, nil
}

func (r *videoRepo) List(ctx context.Context, status string, limit, offset int) ([]domain.Video, error) {
	q := r.db.WithContext(ctx).Model(&domain.Video{}).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Video
	if err := q.Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return out, nil
}

func (r *videoRepo) SetStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set video %s status: %w", id, res.Error)
	}
	return nil
}
