package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	JobTypeTranscribe = "transcribe"
	JobTypeIndex      = "index"
	JobTypeSummarize  = "summarize"
	JobTypeKeyframes  = "keyframes"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Job is one queued unit of pipeline work. StartedAt is set on the
// pending->running claim and acts as the run's epoch token: a cancel or
// retry changes (status, started_at) and the pipeline observes the change
// at its next checkpoint.
type Job struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	VideoID      string         `gorm:"not null;index:idx_jobs_video_type_status,priority:1" json:"video_id"`
	JobType      string         `gorm:"not null;index:idx_jobs_video_type_status,priority:2" json:"job_type"`
	Status       string         `gorm:"default:pending;index:idx_jobs_video_type_status,priority:3" json:"status"`
	Progress     float64        `json:"progress"`
	Message      string         `json:"message"`
	Params       datatypes.JSON `json:"params"`
	Result       datatypes.JSON `json:"result"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`

	Video *Video `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Job) TableName() string { return "jobs" }

func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
