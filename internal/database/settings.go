package database

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Settings returns nil without error when the workspace has no automation
// configured.
func (r *SettingsRepository) Settings(ctx context.Context, workspaceID string) (*models.AutomationSettings, error) {
	var s models.AutomationSettings
	err := r.db.WithContext(ctx).First(&s, "workspace_id = ?", workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load automation settings: %w", err)
	}
	return &s, nil
}

// Save upserts the workspace singleton. Callers validate first.
func (r *SettingsRepository) Save(ctx context.Context, s *models.AutomationSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		UpdateAll: true,
	}).Create(s).Error
}
