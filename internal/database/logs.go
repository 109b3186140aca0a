package database

import (
	"context"

	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
)

type AutomationLogRepository struct {
	db *gorm.DB
}

func NewAutomationLogRepository(db *gorm.DB) *AutomationLogRepository {
	return &AutomationLogRepository{db: db}
}

func (r *AutomationLogRepository) Record(ctx context.Context, entry *models.AutomationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AutomationLogRepository) Recent(ctx context.Context, workspaceID string, limit int) ([]models.AutomationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.AutomationLog
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

type Analytics struct {
	TotalExecutions int64 `json:"total_executions"`
	SuccessfulExecs int64 `json:"successful_executions"`
	FailedExecs     int64 `json:"failed_executions"`
}

func (r *AutomationLogRepository) Analytics(ctx context.Context, workspaceID string) (Analytics, error) {
	var stats Analytics
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.AutomationLog{}).Where("workspace_id = ?", workspaceID)
	}
	if err := base().Count(&stats.TotalExecutions).Error; err != nil {
		return stats, err
	}
	if err := base().Where("success = ?", true).Count(&stats.SuccessfulExecs).Error; err != nil {
		return stats, err
	}
	stats.FailedExecs = stats.TotalExecutions - stats.SuccessfulExecs
	return stats, nil
}

type ChannelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// WorkspaceFor resolves the workspace owning a receiving phone number id,
// falling back when the number is not registered.
func (r *ChannelRepository) WorkspaceFor(ctx context.Context, phoneNumberID, fallback string) (string, error) {
	if phoneNumberID == "" {
		return fallback, nil
	}
	var ch models.Channel
	err := r.db.WithContext(ctx).Where("phone_number_id = ?", phoneNumberID).Limit(1).Find(&ch).Error
	if err != nil {
		return "", err
	}
	if ch.WorkspaceID == "" {
		return fallback, nil
	}
	return ch.WorkspaceID, nil
}

func (r *ChannelRepository) Register(ctx context.Context, ch *models.Channel) error {
	return r.db.WithContext(ctx).Save(ch).Error
}
