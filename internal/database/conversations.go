package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository stores conversation state. All state transitions go
// through CompareAndSwap.
type ConversationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db, now: time.Now}
}

func (r *ConversationRepository) Load(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// FindOrCreate returns the conversation for a phone number, creating it on
// the first inbound message. Concurrent first messages converge on one row.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, workspaceID, phone string) (*models.Conversation, error) {
	db := r.db.WithContext(ctx)

	var conv models.Conversation
	err := db.Where("workspace_id = ? AND phone = ?", workspaceID, phone).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = models.Conversation{
		WorkspaceID: workspaceID,
		Phone:       phone,
		Status:      models.ConversationOpen,
		UpdatedAt:   r.now(),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "phone"}},
		DoNothing: true,
	}).Create(&conv).Error
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	var stored models.Conversation
	if err := db.Where("workspace_id = ? AND phone = ?", workspaceID, phone).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload conversation: %w", err)
	}
	return &stored, nil
}

// CompareAndSwap writes next only if the stored version still equals
// expectedVersion. On success next carries the new version.
func (r *ConversationRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *models.Conversation) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"status":          next.Status,
			"assigned":        next.Assigned,
			"member_id":       next.MemberID,
			"chatbot_id":      next.ChatbotID,
			"current_node":    next.CurrentNode,
			"chatbot_timeout": next.ChatbotTimeout,
			"version":         expectedVersion + 1,
			"updated_at":      now,
		})
	if res.Error != nil {
		return fmt.Errorf("update conversation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = now
	return nil
}

// Update applies mutate to the latest state with compare-and-swap, retrying
// on conflicts up to attempts times.
func (r *ConversationRepository) Update(ctx context.Context, id string, attempts int, mutate func(*models.Conversation) error) (*models.Conversation, error) {
	for i := 0; i < attempts; i++ {
		conv, err := r.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := conv.Version
		if err := mutate(conv); err != nil {
			return nil, err
		}
		err = r.CompareAndSwap(ctx, id, expected, conv)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, ErrVersionConflict
}

type ConversationFilter struct {
	WorkspaceID string
	Status      models.ConversationStatus
	Assigned    *bool
	Limit       int
}

func (r *ConversationRepository) List(ctx context.Context, f ConversationFilter) ([]models.Conversation, error) {
	q := r.db.WithContext(ctx).Where("workspace_id = ?", f.WorkspaceID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Assigned != nil {
		q = q.Where("assigned = ?", *f.Assigned)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var convs []models.Conversation
	err := q.Order("updated_at DESC").Find(&convs).Error
	return convs, err
}
