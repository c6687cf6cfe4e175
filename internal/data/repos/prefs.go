package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openedge-labs/video-agent-backend/internal/domain"
	"github.com/openedge-labs/video-agent-backend/internal/platform/logger"
)

type PrefsRepo interface {
	GetLLM(ctx context.Context) (map[string]any, error)
	SetLLM(ctx context.Context, prefs map[string]any) error
	GetRuntime(ctx context.Context) (map[string]any, error)
	SetRuntime(ctx context.Context, prefs map[string]any) error
}

type prefsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPrefsRepo(db *gorm.DB, log *logger.Logger) PrefsRepo {
	return &prefsRepo{db: db, log: log}
}

func (r *prefsRepo) GetLLM(ctx context.Context) (map[string]any, error) {
	var row domain.LLMPreferences
	if err := r.db.WithContext(ctx).Where("id = ?", 1).First(&row).Error; err != nil {
		return nil, fmt.Errorf("load llm preferences: %w", err)
	}
	return decodePrefs(row.Prefs)
}

func (r *prefsRepo) SetLLM(ctx context.Context, prefs map[string]any) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal llm preferences: %w", err)
	}
	res := r.db.WithContext(ctx).Model(&domain.LLMPreferences{}).
		Where("id = ?", 1).
		Updates(map[string]interface{}{"prefs": raw, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("save llm preferences: %w", res.Error)
	}
	return nil
}

func (r *prefsRepo) GetRuntime(ctx context.Context) (map[string]any, error) {
	var row domain.RuntimePreferences
	if err := r.db.WithContext(ctx).Where("id = ?", 1).First(&row).Error; err != nil {
		return nil, fmt.Errorf("load runtime preferences: %w", err)
	}
	return decodePrefs(row.Prefs)
}

func (r *prefsRepo) SetRuntime(ctx context.Context, prefs map[string]any) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal runtime preferences: %w", err)
	}
	res := r.db.WithContext(ctx).Model(&domain.RuntimePreferences{}).
		Where("id = ?", 1).
		Updates(map[string]interface{}{"prefs": raw, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("save runtime preferences: %w", res.Error)
	}
	return nil
}

func decodePrefs(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode preferences payload: %w", err)
	}
	return out, nil
}
