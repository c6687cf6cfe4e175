package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type KeyframeRepo interface {
	Insert(ctx context.Context, kf *domain.Keyframe) error
	GetByID(ctx context.Context, id string) (*domain.Keyframe, error)
	ListByVideo(ctx context.Context, videoID, method string, limit, offset int) ([]domain.Keyframe, error)
	Nearest(ctx context.Context, videoID string, timestampMS int64, method string) (*domain.Keyframe, error)
	DeleteForVideo(ctx context.Context, videoID string) error
}

type keyframeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKeyframeRepo(db *gorm.DB, log *logger.Logger) KeyframeRepo {
	return &keyframeRepo{db: db, log: log}
}

func (r *keyframeRepo) Insert(ctx context.Context, kf *domain.Keyframe) error {
	if err := r.db.WithContext(ctx).Create(kf).Error; err != nil {
		return fmt.Errorf("insert keyframe for video %s: %w", kf.VideoID, err)
	}
	return nil
}

func (r *keyframeRepo) GetByID(ctx context.Context, id string) (*domain.Keyframe, error) {
	var kf domain.Keyframe
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&kf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get keyframe %s: %w", id, err)
	}
	return &kf, nil
}

func (r *keyframeRepo) ListByVideo(ctx context.Context, videoID, method string, limit, offset int) ([]domain.Keyframe, error) {
	q := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("timestamp_ms ASC")
	if method != "" {
		q = q.Where("method = ?", method)
	}
	var out []domain.Keyframe
	if err := q.Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list keyframes for video %s: %w", videoID, err)
	}
	return out, nil
}

// Nearest compares the closest frame at-or-before the timestamp with the
// closest one after it and returns whichever is nearer.
func (r *keyframeRepo) Nearest(ctx context.Context, videoID string, timestampMS int64, method string) (*domain.Keyframe, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Where("video_id = ?", videoID)
		if method != "" {
			q = q.Where("method = ?", method)
		}
		return q
	}

	var before, after domain.Keyframe
	haveBefore, haveAfter := true, true

	err := base().Where("timestamp_ms <= ?", timestampMS).
		Order("timestamp_ms DESC").First(&before).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("nearest keyframe (before): %w", err)
		}
		haveBefore = false
	}
	err = base().Where("timestamp_ms > ?", timestampMS).
		Order("timestamp_ms ASC").First(&after).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("nearest keyframe (after): %w", err)
		}
		haveAfter = false
	}

	switch {
	case haveBefore && haveAfter:
		if timestampMS-before.TimestampMS <= after.TimestampMS-timestampMS {
			return &before, nil
		}
		return &after, nil
	case haveBefore:
		return &before, nil
	case haveAfter:
		return &after, nil
	default:
		return nil, nil
	}
}

func (r *keyframeRepo) DeleteForVideo(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&domain.Keyframe{}).Error; err != nil {
		return fmt.Errorf("delete keyframes for video %s: %w", videoID, err)
	}
	return nil
}
