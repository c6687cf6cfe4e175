package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openedge-labs/video-agent-backend/internal/data/db"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

func newTestRepos(t *testing.T) *Repos {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	return New(gdb, log)
}

func seedVideo(t *testing.T, r *Repos, hash string) *domain.Video {
	t.Helper()
	v, err := r.Videos.CreateOrGet(context.Background(), "/videos/"+hash+".mp4", hash, hash, 120, 1024)
	require.NoError(t, err)
	return v
}

func TestJobQueueFIFO(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "fifo")

	first, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeTranscribe, nil)
	require.NoError(t, err)
	// sqlite created_at has sub-second precision; space the inserts so
	// FIFO ordering is unambiguous.
	time.Sleep(5 * time.Millisecond)
	_, err = r.Jobs.Create(ctx, v.ID, domain.JobTypeIndex, map[string]any{"from_scratch": true})
	require.NoError(t, err)

	next, err := r.Jobs.FetchNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, first.ID, next.ID)
}

func TestJobClaimOnce(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "claim")

	j, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeTranscribe, nil)
	require.NoError(t, err)

	ok, err := r.Jobs.Claim(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, ok)

	again, err := r.Jobs.Claim(ctx, j.ID)
	require.NoError(t, err)
	require.False(t, again, "a running job must not be claimable")

	got, err := r.Jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	// The claimed job is no longer in the pending queue.
	next, err := r.Jobs.FetchNextPending(ctx)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestJobCancel(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "cancel")

	j, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeSummarize, nil)
	require.NoError(t, err)

	ok, err := r.Jobs.Cancel(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.Jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCancelled, got.Status)
	require.Equal(t, "cancelled", got.Message)
	require.NotNil(t, got.CompletedAt)

	// Terminal jobs cannot be cancelled again.
	ok, err = r.Jobs.Cancel(ctx, j.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJobResetPreservesParams(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "reset")

	j, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeKeyframes, map[string]any{"mode": "scene"})
	require.NoError(t, err)

	ok, err := r.Jobs.Claim(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Jobs.Update(ctx, j.ID, map[string]any{
		"status":        domain.JobStatusFailed,
		"progress":      0.4,
		"message":       "boom",
		"error_code":    "E_FFMPEG_FAILED",
		"error_message": "exit 1",
	}))

	ok, err = r.Jobs.Reset(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.Jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusPending, got.Status)
	require.Zero(t, got.Progress)
	require.Empty(t, got.Message)
	require.Empty(t, got.ErrorCode)
	require.Empty(t, got.ErrorMessage)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)
	require.JSONEq(t, `{"mode":"scene"}`, string(got.Params))
}

func TestJobUpdateStampsTimestamps(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "stamps")

	j, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeIndex, nil)
	require.NoError(t, err)

	require.NoError(t, r.Jobs.Update(ctx, j.ID, map[string]any{"status": domain.JobStatusRunning}))
	got, err := r.Jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)

	require.NoError(t, r.Jobs.Update(ctx, j.ID, map[string]any{"status": domain.JobStatusCompleted, "progress": 1.0}))
	got, err = r.Jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	require.Equal(t, 1.0, got.Progress)
}

func TestJobActiveForVideo(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "active")

	active, err := r.Jobs.ActiveForVideo(ctx, v.ID, domain.JobTypeIndex)
	require.NoError(t, err)
	require.Nil(t, active)

	j, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeIndex, nil)
	require.NoError(t, err)

	active, err = r.Jobs.ActiveForVideo(ctx, v.ID, domain.JobTypeIndex)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, j.ID, active.ID)

	// A different job type does not match.
	other, err := r.Jobs.ActiveForVideo(ctx, v.ID, domain.JobTypeSummarize)
	require.NoError(t, err)
	require.Nil(t, other)

	// Running still counts as active, terminal does not.
	ok, err := r.Jobs.Claim(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, ok)
	active, err = r.Jobs.ActiveForVideo(ctx, v.ID, domain.JobTypeIndex)
	require.NoError(t, err)
	require.NotNil(t, active)

	require.NoError(t, r.Jobs.Update(ctx, j.ID, map[string]any{"status": domain.JobStatusCompleted}))
	active, err = r.Jobs.ActiveForVideo(ctx, v.ID, domain.JobTypeIndex)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestJobList(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "list")
	other := seedVideo(t, r, "list-other")

	j1, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeTranscribe, nil)
	require.NoError(t, err)
	_, err = r.Jobs.Create(ctx, other.ID, domain.JobTypeTranscribe, nil)
	require.NoError(t, err)

	byVideo, err := r.Jobs.List(ctx, JobFilter{VideoID: v.ID})
	require.NoError(t, err)
	require.Len(t, byVideo, 1)
	require.Equal(t, j1.ID, byVideo[0].ID)

	byStatus, err := r.Jobs.List(ctx, JobFilter{Status: domain.JobStatusCompleted})
	require.NoError(t, err)
	require.Empty(t, byStatus)
}

func TestRecoverIncompleteState(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	v := seedVideo(t, r, "recover")

	j, err := r.Jobs.Create(ctx, v.ID, domain.JobTypeIndex, nil)
	require.NoError(t, err)
	ok, err := r.Jobs.Claim(ctx, j.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.Indexes.Upsert(ctx, &domain.VideoIndex{
		VideoID: v.ID,
		Status:  domain.ArtifactStatusRunning,
	}))
	require.NoError(t, r.Videos.SetStatus(ctx, v.ID, domain.VideoStatusProcessing))

	require.NoError(t, r.RecoverIncompleteState(ctx))

	job, err := r.Jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusPending, job.Status)
	require.Equal(t, "recovered", job.Message)

	idx, err := r.Indexes.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "pending", idx.Status)

	vid, err := r.Videos.GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VideoStatusPending, vid.Status)
}
