package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Singleton preference rows, always id=1.

type LLMPreferences struct {
	ID        int            `gorm:"primaryKey" json:"id"`
	Prefs     datatypes.JSON `json:"prefs"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (LLMPreferences) TableName() string { return "llm_preferences" }

type RuntimePreferences struct {
	ID        int            `gorm:"primaryKey" json:"id"`
	Prefs     datatypes.JSON `json:"prefs"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (RuntimePreferences) TableName() string { return "runtime_preferences" }
