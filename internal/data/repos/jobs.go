package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type JobFilter struct {
	Status  string
	VideoID string
	JobType string
	Limit   int
	Offset  int
}

type JobRepo interface {
	Create(ctx context.Context, videoID, jobType string, params map[string]any) (*domain.Job, error)
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	Status(ctx context.Context, id string) (string, error)
	FetchNextPending(ctx context.Context) (*domain.Job, error)
	Claim(ctx context.Context, id string) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Reset(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	ActiveForVideo(ctx context.Context, videoID, jobType string) (*domain.Job, error)
	List(ctx context.Context, f JobFilter) ([]domain.Job, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, log *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) Create(ctx context.Context, videoID, jobType string, params map[string]any) (*domain.Job, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}
	j := domain.Job{
		ID:      uuid.NewString(),
		VideoID: videoID,
		JobType: jobType,
		Status:  domain.JobStatusPending,
		Params:  raw,
	}
	if err := r.db.WithContext(ctx).Create(&j).Error; err != nil {
		return nil, fmt.Errorf("create %s job: %w", jobType, err)
	}
	r.log.Info("job created", "job_id", j.ID, "job_type", jobType, "video_id", videoID)
	return &j, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &j, nil
}

func (r *jobRepo) Status(ctx context.Context, id string) (string, error) {
	var status string
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Pluck("status", &status).Error
	if err != nil {
		return "", fmt.Errorf("get job %s status: %w", id, err)
	}
	return status, nil
}

// FetchNextPending returns the oldest pending job (FIFO), nil when the
// queue is empty.
func (r *jobRepo) FetchNextPending(ctx context.Context) (*domain.Job, error) {
	var j domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusPending).
		Order("created_at ASC").
		First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch next pending job: %w", err)
	}
	return &j, nil
}

// Claim is the atomic pending->running handoff. The started_at written
// here is the run's epoch token.
func (r *jobRepo) Claim(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"started_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim job %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) Cancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id, []string{domain.JobStatusPending, domain.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCancelled,
			"message":      "cancelled",
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Reset returns a job to pending from any state, preserving params. The
// next claim then produces a fresh epoch token.
func (r *jobRepo) Reset(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusPending,
			"progress":      0.0,
			"message":       "",
			"result":        nil,
			"error_code":    "",
			"error_message": "",
			"started_at":    nil,
			"completed_at":  nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("reset job %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Update applies a partial update. Setting status to running stamps
// started_at unless the caller provided one; terminal statuses stamp
// completed_at. updated_at always advances.
func (r *jobRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	if status, ok := fields["status"].(string); ok {
		switch status {
		case domain.JobStatusRunning:
			if _, has := updates["started_at"]; !has {
				updates["started_at"] = time.Now()
			}
		case domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled:
			if _, has := updates["completed_at"]; !has {
				updates["completed_at"] = time.Now()
			}
		}
	}
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update job %s: %w", id, res.Error)
	}
	return nil
}

// ActiveForVideo returns the most recent pending-or-running job of the
// given type, used for idempotency gating.
func (r *jobRepo) ActiveForVideo(ctx context.Context, videoID, jobType string) (*domain.Job, error) {
	var j domain.Job
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND job_type = ? AND status IN ?",
			videoID, jobType, []string{domain.JobStatusPending, domain.JobStatusRunning}).
		Order("created_at DESC").
		First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("active %s job for video %s: %w", jobType, videoID, err)
	}
	return &j, nil
}

func (r *jobRepo) List(ctx context.Context, f JobFilter) ([]domain.Job, error) {
	q := r.db.WithContext(ctx).Model(&domain.Job{}).Order("created_at DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.VideoID != "" {
		q = q.Where("video_id = ?", f.VideoID)
	}
	if f.JobType != "" {
		q = q.Where("job_type = ?", f.JobType)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Job
	if err := q.Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}
