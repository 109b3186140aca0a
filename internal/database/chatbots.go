package database

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
)

// ChatbotRepository is the bot definition store.
type ChatbotRepository struct {
	db *gorm.DB
}

func NewChatbotRepository(db *gorm.DB) *ChatbotRepository {
	return &ChatbotRepository{db: db}
}

// PublishedChatbots returns the published bots of a workspace.
func (r *ChatbotRepository) PublishedChatbots(ctx context.Context, workspaceID string) ([]models.Chatbot, error) {
	var bots []models.Chatbot
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND publish = ?", workspaceID, true).
		Order("created_at ASC").
		Find(&bots).Error
	if err != nil {
		return nil, fmt.Errorf("load published chatbots: %w", err)
	}
	return bots, nil
}

// ChatbotByID returns a bot regardless of its publish state.
func (r *ChatbotRepository) ChatbotByID(ctx context.Context, id string) (*models.Chatbot, error) {
	var bot models.Chatbot
	if err := r.db.WithContext(ctx).First(&bot, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}

func (r *ChatbotRepository) List(ctx context.Context, workspaceID string) ([]models.Chatbot, error) {
	var bots []models.Chatbot
	err := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at DESC").Find(&bots).Error
	return bots, err
}

// Save validates the graph and inserts or updates the bot. The single default
// per workspace and trigger uniqueness are enforced here.
func (r *ChatbotRepository) Save(ctx context.Context, bot *models.Chatbot) error {
	if err := bot.Graph.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		others := func() *gorm.DB {
			q := tx.Model(&models.Chatbot{}).Where("workspace_id = ?", bot.WorkspaceID)
			if bot.ID != "" {
				q = q.Where("id <> ?", bot.ID)
			}
			return q
		}

		if bot.Default {
			var n int64
			if err := others().Where("is_default = ?", true).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDefaultChatbotExists
			}
		}

		if bot.Trigger != "" {
			var n int64
			if err := others().Where("trigger_word = ?", bot.Trigger).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %q", ErrTriggerExists, bot.Trigger)
			}
		}

		if bot.ID == "" {
			return tx.Create(bot).Error
		}

		var existing models.Chatbot
		err := tx.Select("id").First(&existing, "id = ?", bot.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(bot).Error
		}
		if err != nil {
			return err
		}
		return tx.Save(bot).Error
	})
}

func (r *ChatbotRepository) SetPublish(ctx context.Context, id string, publish bool) error {
	res := r.db.WithContext(ctx).Model(&models.Chatbot{}).Where("id = ?", id).Update("publish", publish)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatbotRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Chatbot{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
