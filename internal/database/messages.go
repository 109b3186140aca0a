package database

import (
	"context"
	"fmt"

	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateInbound stores a customer message. A provider message id that was
// already stored yields ErrDuplicateMessage.
func (r *MessageRepository) CreateInbound(ctx context.Context, msg *models.Message) error {
	msg.Direction = models.DirectionInbound
	msg.Author = models.AuthorCustomer
	if msg.Status == "" {
		msg.Status = models.StatusReceived
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return fmt.Errorf("store inbound message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

// Create stores an outbound message before it is handed to the transport.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// MarkSent records the provider id of a delivered message.
func (r *MessageRepository) MarkSent(ctx context.Context, id, providerMessageID string) error {
	updates := map[string]any{"status": models.StatusSent}
	if providerMessageID != "" {
		updates["provider_message_id"] = providerMessageID
	}
	return r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(updates).Error
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id string, sendErr error) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(map[string]any{
		"status": models.StatusFailed,
		"error":  sendErr.Error(),
	}).Error
}

// UpdateStatusByProviderID applies delivery receipts from the webhook.
func (r *MessageRepository) UpdateStatusByProviderID(ctx context.Context, providerMessageID, status string) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("provider_message_id = ?", providerMessageID).
		Update("status", status).Error
}

func (r *MessageRepository) ByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	err := q.Find(&msgs).Error
	return msgs, err
}

// History summarises the conversation's messages other than excludeID.
func (r *MessageRepository) History(ctx context.Context, conversationID, excludeID string) (models.History, error) {
	var h models.History
	db := r.db.WithContext(ctx)

	err := db.Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ? AND id <> ?", conversationID, models.DirectionInbound, excludeID).
		Count(&h.PriorInbound).Error
	if err != nil {
		return h, fmt.Errorf("count inbound messages: %w", err)
	}

	var agentReplies int64
	err = db.Model(&models.Message{}).
		Where("conversation_id = ? AND author = ?", conversationID, models.AuthorAgent).
		Count(&agentReplies).Error
	if err != nil {
		return h, fmt.Errorf("count agent replies: %w", err)
	}
	h.HumanReplied = agentReplies > 0

	var botReplies int64
	err = db.Model(&models.Message{}).
		Where("conversation_id = ? AND author IN ?", conversationID, []models.Author{models.AuthorBot, models.AuthorAutomation}).
		Count(&botReplies).Error
	if err != nil {
		return h, fmt.Errorf("count bot replies: %w", err)
	}
	h.BotReplied = botReplies > 0

	var last models.Message
	err = db.Where("conversation_id = ? AND direction = ?", conversationID, models.DirectionOutbound).
		Order("created_at DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return h, fmt.Errorf("load last outbound message: %w", err)
	}
	if last.ID != "" {
		t := last.CreatedAt
		h.LastOutboundAt = &t
	}
	return h, nil
}
