package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ArtifactStatusRunning   = "running"
	ArtifactStatusCompleted = "completed"
	ArtifactStatusFailed    = "failed"
	ArtifactStatusCancelled = "cancelled"
)

// VideoIndex tracks the vector-index artifact for one video.
// TranscriptHash is the transcript content hash at completion time;
// staleness is a comparison against the current hash.
type VideoIndex struct {
	VideoID        string         `gorm:"primaryKey" json:"video_id"`
	Status         string         `json:"status"`
	Progress       float64        `json:"progress"`
	Message        string         `json:"message"`
	ErrorCode      string         `json:"error_code"`
	ErrorMessage   string         `json:"error_message"`
	EmbedModel     string         `json:"embed_model"`
	EmbedDim       int            `json:"embed_dim"`
	ChunkParams    datatypes.JSON `json:"chunk_params"`
	TranscriptHash string         `json:"transcript_hash"`
	ChunkCount     int            `json:"chunk_count"`
	IndexedCount   int            `json:"indexed_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Video *Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (VideoIndex) TableName() string { return "video_indexes" }

type VideoSummary struct {
	VideoID          string         `gorm:"primaryKey" json:"video_id"`
	Status           string         `json:"status"`
	Progress         float64        `json:"progress"`
	Message          string         `json:"message"`
	ErrorCode        string         `json:"error_code"`
	ErrorMessage     string         `json:"error_message"`
	TranscriptHash   string         `json:"transcript_hash"`
	Params           datatypes.JSON `json:"params"`
	SegmentSummaries datatypes.JSON `json:"segment_summaries"`
	SummaryMarkdown  string         `json:"summary_markdown"`
	Outline          datatypes.JSON `json:"outline"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Video *Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (VideoSummary) TableName() string { return "video_summaries" }

// VideoKeyframeIndex freshness is exact match of normalized params,
// not transcript hash.
type VideoKeyframeIndex struct {
	VideoID      string         `gorm:"primaryKey" json:"video_id"`
	Status       string         `json:"status"`
	Progress     float64        `json:"progress"`
	Message      string         `json:"message"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	Params       datatypes.JSON `json:"params"`
	FrameCount   int            `json:"frame_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Video *Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (VideoKeyframeIndex) TableName() string { return "video_keyframe_indexes" }

const (
	KeyframeMethodInterval = "interval"
	KeyframeMethodScene    = "scene"
)

type Keyframe struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	VideoID      string         `gorm:"not null;index:idx_keyframes_video_ts,priority:1" json:"video_id"`
	TimestampMS  int64          `gorm:"index:idx_keyframes_video_ts,priority:2" json:"timestamp_ms"`
	ImageRelpath string         `json:"image_relpath"`
	Method       string         `json:"method"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Score        *float64       `json:"score"`
	Metadata     datatypes.JSON `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`

	Video *Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Keyframe) TableName() string { return "video_keyframes" }

// Chunk ids are "<video_id>:<chunk_index>" so an index re-run overwrites
// rather than duplicates.
type Chunk struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	VideoID     string    `gorm:"not null;uniqueIndex:idx_chunks_video_idx,priority:1" json:"video_id"`
	ChunkIndex  int       `gorm:"uniqueIndex:idx_chunks_video_idx,priority:2" json:"chunk_index"`
	StartTime   float64   `json:"start_time"`
	EndTime     float64   `json:"end_time"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`

	Video *Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Chunk) TableName() string { return "chunks" }
