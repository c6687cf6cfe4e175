package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/openedge-labs/video-agent-backend/internal/chunking"
	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/chroma"
)

// runIndex chunks the transcript into time windows, persists chunk rows,
// embeds the batch, and upserts vectors into the versioned collection.
func (w *Worker) runIndex(ctx context.Context, r *jobRun) error {
	p := r.params()
	embedModel := paramString(p, "embed_model", w.cfg.DefaultEmbedModel)
	embedDim := paramInt(p, "embed_dim", w.cfg.DefaultEmbedDim)
	fromScratch := paramBool(p, "from_scratch", false)
	cp := chunkParamsFrom(p, w.cfg.IndexWindows)
	videoID := r.job.VideoID

	collection := chroma.CollectionName(embedModel, embedDim)

	if fromScratch {
		if err := w.repos.Chunks.DeleteForVideo(ctx, videoID); err != nil {
			return err
		}
		for _, col := range []string{collection, chroma.LegacyCollection} {
			if err := w.vectors.DeleteWhere(ctx, col, map[string]any{"video_id": videoID}); err != nil {
				// Stale vectors are best-effort cleanup; an unreachable
				// store must not block a fresh index run.
				r.log.Warn("stale vector delete skipped", "collection", col, "error", err)
			}
		}
	}

	segs, hash, err := w.loadTranscript(videoID)
	if err != nil {
		var coded *CodedError
		if errors.As(err, &coded) && coded.Code == "TRANSCRIPT_NOT_FOUND" {
			_ = w.repos.Indexes.Upsert(ctx, &domain.VideoIndex{
				VideoID:      videoID,
				Status:       domain.ArtifactStatusFailed,
				Message:      "failed",
				ErrorCode:    "TRANSCRIPT_NOT_FOUND",
				ErrorMessage: err.Error(),
				EmbedModel:   embedModel,
				EmbedDim:     embedDim,
			})
		}
		return err
	}

	chunkParamsJSON, _ := json.Marshal(cp)
	if err := w.repos.Indexes.Upsert(ctx, &domain.VideoIndex{
		VideoID:        videoID,
		Status:         domain.ArtifactStatusRunning,
		Progress:       0,
		Message:        "chunking",
		EmbedModel:     embedModel,
		EmbedDim:       embedDim,
		ChunkParams:    chunkParamsJSON,
		TranscriptHash: hash,
	}); err != nil {
		return err
	}

	chunks := chunking.TimeChunks(segs, cp)
	if len(chunks) == 0 {
		return Coded("E_CHUNKING_FAILED", "no chunks produced for video %s", videoID)
	}

	var (
		ids   []string
		docs  []string
		metas []map[string]any
	)
	for i, ch := range chunks {
		idx := i + 1
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			continue
		}
		id := fmt.Sprintf("%s:%d", videoID, idx)
		if err := w.repos.Chunks.Upsert(ctx, &domain.Chunk{
			ID:          id,
			VideoID:     videoID,
			ChunkIndex:  idx,
			StartTime:   ch.Start,
			EndTime:     ch.End,
			Text:        text,
			ContentHash: chunking.HashText(text),
		}); err != nil {
			return err
		}
		ids = append(ids, id)
		docs = append(docs, text)
		metas = append(metas, map[string]any{
			"video_id":    videoID,
			"chunk_index": idx,
			"start_time":  ch.Start,
			"end_time":    ch.End,
			"embed_model": embedModel,
		})

		if idx%20 == 0 {
			if err := r.ensureSameRun(ctx); err != nil {
				return err
			}
			prog := math.Min(0.25, float64(idx)/float64(len(chunks))*0.25)
			r.progress(ctx, prog, fmt.Sprintf("chunking %d/%d", idx, len(chunks)))
		}
	}
	if len(ids) == 0 {
		return Coded("E_CHUNKING_FAILED", "all chunks empty for video %s", videoID)
	}

	if err := r.ensureSameRun(ctx); err != nil {
		return err
	}
	r.progress(ctx, 0.3, fmt.Sprintf("embedding 0/%d", len(ids)))

	vectors, err := w.embed(ctx, docs, embedModel, embedDim)
	if err != nil && strings.HasPrefix(embedModel, "fastembed") {
		// Degrade to the hash embedder rather than failing the run.
		r.log.Warn("fastembed unavailable, falling back to hash embedding", "error", err)
		embedModel = "hash"
		collection = chroma.CollectionName(embedModel, embedDim)
		for _, m := range metas {
			m["embed_model"] = embedModel
		}
		if fromScratch {
			if derr := w.vectors.DeleteWhere(ctx, collection, map[string]any{"video_id": videoID}); derr != nil {
				r.log.Warn("stale vector delete skipped", "collection", collection, "error", derr)
			}
		}
		vectors, err = w.embed(ctx, docs, embedModel, embedDim)
	}
	if err != nil {
		return err
	}

	if err := r.ensureSameRun(ctx); err != nil {
		return err
	}
	if err := w.vectors.Upsert(ctx, collection, ids, docs, vectors, metas); err != nil {
		return Coded("E_VECTOR_STORE_UNAVAILABLE", "vector upsert failed: %v", err)
	}

	r.progress(ctx, 0.99, "finalizing")
	return w.repos.Indexes.Upsert(ctx, &domain.VideoIndex{
		VideoID:        videoID,
		Status:         domain.ArtifactStatusCompleted,
		Progress:       1.0,
		Message:        "completed",
		EmbedModel:     embedModel,
		EmbedDim:       embedDim,
		ChunkParams:    chunkParamsJSON,
		TranscriptHash: hash,
		ChunkCount:     len(ids),
		IndexedCount:   len(ids),
	})
}
