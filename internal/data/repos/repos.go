package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

// Repos bundles every repository over the shared database handle.
type Repos struct {
	Videos          VideoRepo
	Jobs            JobRepo
	Indexes         VideoIndexRepo
	Summaries       VideoSummaryRepo
	KeyframeIndexes KeyframeIndexRepo
	Keyframes       KeyframeRepo
	Chunks          ChunkRepo
	Prefs           PrefsRepo

	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, baseLog *logger.Logger) *Repos {
	return &Repos{
		Videos:          NewVideoRepo(db, baseLog.With("repo", "VideoRepo")),
		Jobs:            NewJobRepo(db, baseLog.With("repo", "JobRepo")),
		Indexes:         NewVideoIndexRepo(db, baseLog.With("repo", "VideoIndexRepo")),
		Summaries:       NewVideoSummaryRepo(db, baseLog.With("repo", "VideoSummaryRepo")),
		KeyframeIndexes: NewKeyframeIndexRepo(db, baseLog.With("repo", "KeyframeIndexRepo")),
		Keyframes:       NewKeyframeRepo(db, baseLog.With("repo", "KeyframeRepo")),
		Chunks:          NewChunkRepo(db, baseLog.With("repo", "ChunkRepo")),
		Prefs:           NewPrefsRepo(db, baseLog.With("repo", "PrefsRepo")),
		db:              db,
		log:             baseLog.With("repo", "Repos"),
	}
}

// RecoverIncompleteState is the startup crash-recovery sweep: any row
// left running by a previous process goes back to pending with message
// "recovered", and processing videos return to pending.
func (r *Repos) RecoverIncompleteState(ctx context.Context) error {
	type sweep struct {
		model any
		where string
		name  string
	}
	sweeps := []sweep{
		{&domain.Job{}, "status = ?", "jobs"},
		{&domain.VideoIndex{}, "status = ?", "video_indexes"},
		{&domain.VideoSummary{}, "status = ?", "video_summaries"},
		{&domain.VideoKeyframeIndex{}, "status = ?", "video_keyframe_indexes"},
	}
	for _, s := range sweeps {
		res := r.db.WithContext(ctx).Model(s.model).
			Where(s.where, "running").
			Updates(map[string]interface{}{
				"status":  "pending",
				"message": "recovered",
			})
		if res.Error != nil {
			return fmt.Errorf("recovery sweep on %s: %w", s.name, res.Error)
		}
		if res.RowsAffected > 0 {
			r.log.Info("recovered interrupted rows", "table", s.name, "count", res.RowsAffected)
		}
	}

	res := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("status = ?", domain.VideoStatusProcessing).
		Update("status", domain.VideoStatusPending)
	if res.Error != nil {
		return fmt.Errorf("recovery sweep on videos: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.Info("recovered processing videos", "count", res.RowsAffected)
	}
	return nil
}
