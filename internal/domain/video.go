package domain

import "time"

const (
	VideoStatusPending    = "pending"
	VideoStatusProcessing = "processing"
	VideoStatusComplete   = "complete"
	VideoStatusError      = "error"
)

// Video is unique by content hash; status is mutated only by the
// transcribe pipeline and the startup recovery sweep.
type Video struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	FilePath  string    `gorm:"not null" json:"file_path"`
	FileHash  string    `gorm:"uniqueIndex;not null" json:"file_hash"`
	Title     string    `json:"title"`
	Duration  float64   `json:"duration"`
	FileSize  int64     `json:"file_size"`
	Status    string    `gorm:"default:pending" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Video) TableName() string { return "videos" }
