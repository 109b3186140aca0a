package models

import (
	"time"

	"whatsapp-automation/pkg/botgraph"
)

// Chatbot is a workspace-scoped bot definition
type Chatbot struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WorkspaceID string         `gorm:"index;type:varchar(64);not null" json:"workspace_id"`
	Name        string         `gorm:"type:varchar(255)" json:"name"`
	Trigger     string         `gorm:"column:trigger_word;type:varchar(255);index" json:"trigger"`
	Default     bool           `gorm:"column:is_default;default:false" json:"default"`
	Publish     bool           `gorm:"default:false" json:"publish"`
	Graph       botgraph.Graph `gorm:"type:text;serializer:json" json:"graph"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Chatbot) TableName() string {
	return "chatbots"
}

type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation holds the per-phone automation state. Version is bumped on
// every compare-and-swap write.
type Conversation struct {
	ID             string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WorkspaceID    string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_conversation_phone" json:"workspace_id"`
	Phone          string             `gorm:"type:varchar(50);not null;uniqueIndex:idx_conversation_phone" json:"phone"`
	Status         ConversationStatus `gorm:"type:varchar(20);default:'open'" json:"status"`
	Assigned       bool               `gorm:"default:false" json:"assigned"`
	MemberID       string             `gorm:"type:varchar(64)" json:"member_id,omitempty"`
	ChatbotID      string             `gorm:"type:varchar(64)" json:"chatbot_id,omitempty"`
	CurrentNode    string             `gorm:"type:varchar(255)" json:"current_node,omitempty"`
	ChatbotTimeout *time.Time         `json:"chatbot_timeout,omitempty"`
	Version        int64              `gorm:"not null;default:0" json:"version"`
	CreatedAt      time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// HasSession reports whether a chatbot session is active.
func (c *Conversation) HasSession() bool {
	return c.CurrentNode != "" && c.ChatbotID != ""
}

// ClearSession ends any chatbot session.
func (c *Conversation) ClearSession() {
	c.ChatbotID = ""
	c.CurrentNode = ""
	c.ChatbotTimeout = nil
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Author string

const (
	AuthorCustomer   Author = "customer"
	AuthorBot        Author = "bot"
	AuthorAutomation Author = "automation"
	AuthorAgent      Author = "agent"
)

const (
	StatusReceived = "received"
	StatusPending  = "pending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Message represents a WhatsApp message in either direction
type Message struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WorkspaceID       string    `gorm:"index;type:varchar(64)" json:"workspace_id"`
	ConversationID    string    `gorm:"index;type:varchar(64)" json:"conversation_id"`
	Phone             string    `gorm:"type:varchar(50);not null" json:"phone"`
	Direction         Direction `gorm:"type:varchar(20)" json:"direction"`
	Author            Author    `gorm:"type:varchar(20)" json:"author"`
	ProviderMessageID *string   `gorm:"type:varchar(255);uniqueIndex" json:"provider_message_id,omitempty"`
	Content           string    `gorm:"type:text" json:"content"`
	Link              string    `gorm:"type:text" json:"link,omitempty"`
	FileType          string    `gorm:"type:varchar(50)" json:"file_type,omitempty"`
	Interactive       bool      `json:"interactive"`
	Status            string    `gorm:"type:varchar(20)" json:"status"`
	Error             string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// WorkingDay is one row of the weekly schedule. Times are "HH:MM".
type WorkingDay struct {
	Day       string `json:"day" validate:"required,weekday"`
	Open      bool   `json:"open"`
	StartTime string `json:"start_time" validate:"required_if=Open true,omitempty,hhmm"`
	EndTime   string `json:"end_time" validate:"required_if=Open true,omitempty,hhmm"`
}

type RuleKind string

const (
	RuleOutOfHours RuleKind = "out_of_hours"
	RuleNoAgent    RuleKind = "no_agent"
	RuleWelcome    RuleKind = "welcome"
	RuleThreshold  RuleKind = "threshold"
	RuleFallback   RuleKind = "fallback"
)

const (
	ResponseText = "text"
	ResponseAI   = "ai"
)

// AutomationRule is one entry of the ordered rule list. Kind is optional;
// when empty the rule is classified from its description.
type AutomationRule struct {
	ID           string   `json:"id" validate:"required"`
	Enabled      bool     `json:"enabled"`
	Description  string   `json:"description" validate:"required"`
	Kind         RuleKind `json:"kind,omitempty" validate:"omitempty,oneof=out_of_hours no_agent welcome threshold fallback"`
	ResponseType string   `json:"response_type" validate:"required,oneof=text ai"`
	AIPrompt     string   `json:"ai_prompt" validate:"required"`
	Threshold    *int     `json:"threshold,omitempty" validate:"omitempty,gt=0"`
}

// AutomationSettings is the per-workspace automation singleton
type AutomationSettings struct {
	WorkspaceID     string           `gorm:"primaryKey;type:varchar(64)" json:"workspace_id"`
	HolidayMode     bool             `gorm:"default:false" json:"holiday_mode"`
	TimeZone        string           `gorm:"type:varchar(64)" json:"time_zone" validate:"omitempty,timezone"`
	WorkingHours    []WorkingDay     `gorm:"type:text;serializer:json" json:"working_hours" validate:"len=7,dive"`
	AutomationRules []AutomationRule `gorm:"type:text;serializer:json" json:"automation_rules" validate:"dive"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AutomationSettings) TableName() string {
	return "automation_settings"
}

// AutomationLog represents a log entry for automation execution
type AutomationLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID    string    `gorm:"index;type:varchar(64)" json:"workspace_id"`
	ConversationID string    `gorm:"index;type:varchar(64)" json:"conversation_id"`
	RuleID         string    `gorm:"type:varchar(64)" json:"rule_id"`
	Phone          string    `gorm:"type:varchar(50)" json:"phone"`
	TriggerType    string    `gorm:"type:varchar(50)" json:"trigger_type"`
	ActionTaken    string    `gorm:"type:text" json:"action_taken"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}

// Channel maps a WhatsApp phone number id to the workspace that owns it.
type Channel struct {
	PhoneNumberID string    `gorm:"primaryKey;type:varchar(64)" json:"phone_number_id"`
	WorkspaceID   string    `gorm:"index;type:varchar(64);not null" json:"workspace_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Channel) TableName() string {
	return "channels"
}

// History summarises the message log of a conversation as seen by the
// automation rules, excluding the inbound message being handled.
type History struct {
	PriorInbound   int64
	BotReplied     bool // a bot or automation reply was sent
	HumanReplied   bool // an agent replied
	LastOutboundAt *time.Time
}

// FirstMessage reports whether the customer has not been answered yet by a
// bot, an automation rule or an agent.
func (h History) FirstMessage() bool {
	return !h.BotReplied && !h.HumanReplied
}
