// Package dispatcher decides, once per inbound customer message, whether a
// chatbot, an automation rule or nobody answers it.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/chatbot"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"
)

const DefaultMaxRetries = 5

type ConversationStore interface {
	Load(ctx context.Context, id string) (*models.Conversation, error)
	FindOrCreate(ctx context.Context, workspaceID, phone string) (*models.Conversation, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *models.Conversation) error
}

type MessageStore interface {
	CreateInbound(ctx context.Context, msg *models.Message) error
	Create(ctx context.Context, msg *models.Message) error
	MarkSent(ctx context.Context, id, providerMessageID string) error
	MarkFailed(ctx context.Context, id string, sendErr error) error
	History(ctx context.Context, conversationID, excludeID string) (models.History, error)
}

type SettingsStore interface {
	Settings(ctx context.Context, workspaceID string) (*models.AutomationSettings, error)
}

type ChatbotEngine interface {
	Advance(ctx context.Context, conv *models.Conversation, text string, interactive bool) (chatbot.Result, error)
}

type RuleEngine interface {
	Respond(ctx context.Context, phone, text string, conv *models.Conversation, history models.History, settings *models.AutomationSettings) (*automation.Reply, error)
}

type Transport interface {
	Send(ctx context.Context, out models.Outbound) (string, error)
}

// Notifier pushes updates to connected dashboards.
type Notifier interface {
	NotifyMessage(msg models.Message)
	NotifyConversation(conv models.Conversation)
}

// Inbound is one customer message as delivered by the webhook.
type Inbound struct {
	WorkspaceID       string
	Phone             string
	ProviderMessageID string
	Text              string
	Interactive       bool
}

// Deps are the collaborators of a Dispatcher. Notifier may be nil.
type Deps struct {
	Conversations ConversationStore
	Messages      MessageStore
	Settings      SettingsStore
	Chatbot       ChatbotEngine
	Rules         RuleEngine
	Transport     Transport
	Notifier      Notifier
	MaxRetries    int
}

type Dispatcher struct {
	Deps
	log *logging.Logger
}

func New(deps Deps, log *logging.Logger) *Dispatcher {
	if deps.MaxRetries < 1 {
		deps.MaxRetries = DefaultMaxRetries
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Dispatcher{Deps: deps, log: log.Sub("dispatcher")}
}

// step is the computed outcome for one inbound message.
type step struct {
	conv     *models.Conversation
	handled  bool
	author   models.Author
	messages []models.Outbound
	changed  bool
}

// Handle processes one inbound message. Redelivered messages are ignored.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) error {
	log := d.log.With("phone", in.Phone)

	conv, err := d.Conversations.FindOrCreate(ctx, in.WorkspaceID, in.Phone)
	if err != nil {
		return fmt.Errorf("find conversation: %w", err)
	}

	inbound := &models.Message{
		WorkspaceID:    in.WorkspaceID,
		ConversationID: conv.ID,
		Phone:          in.Phone,
		Content:        in.Text,
		Interactive:    in.Interactive,
	}
	if in.ProviderMessageID != "" {
		id := in.ProviderMessageID
		inbound.ProviderMessageID = &id
	}
	if err := d.Messages.CreateInbound(ctx, inbound); err != nil {
		if errors.Is(err, database.ErrDuplicateMessage) {
			log.Debug().Str("provider_message_id", in.ProviderMessageID).Msg("Ignoring redelivered message")
			return nil
		}
		return err
	}
	d.Notifier.NotifyMessage(*inbound)

	history, err := d.Messages.History(ctx, conv.ID, inbound.ID)
	if err != nil {
		return err
	}
	settings, err := d.Settings.Settings(ctx, in.WorkspaceID)
	if err != nil {
		log.Error().Err(err).Msg("Error loading automation settings, rules disabled for this message")
		settings = nil
	}

	var s *step
	for attempt := 1; ; attempt++ {
		current, err := d.Conversations.Load(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		s = d.advance(ctx, current, in)
		if !s.changed {
			break
		}
		err = d.Conversations.CompareAndSwap(ctx, current.ID, current.Version, s.conv)
		if err == nil {
			d.Notifier.NotifyConversation(*s.conv)
			break
		}
		if !errors.Is(err, database.ErrVersionConflict) {
			return err
		}
		if attempt >= d.MaxRetries {
			return fmt.Errorf("conversation %s: %w after %d attempts", conv.ID, err, attempt)
		}
		log.Debug().Int("attempt", attempt).Msg("Conversation changed concurrently, recomputing")
	}

	if !s.handled {
		reply, err := d.Rules.Respond(ctx, in.Phone, in.Text, s.conv, history, settings)
		if err != nil {
			log.Error().Err(err).Msg("Error evaluating automation rules")
		}
		if reply != nil && reply.Text != "" {
			s.author = models.AuthorAutomation
			s.messages = []models.Outbound{{Phone: in.Phone, Text: reply.Text}}
		}
	}

	if len(s.messages) == 0 {
		log.Debug().Str("conversation_id", conv.ID).Msg("No automated action, leaving message for agents")
		return nil
	}
	return d.deliver(context.WithoutCancel(ctx), s.conv, s.author, s.messages)
}

// advance computes the chatbot step on a fresh conversation snapshot.
func (d *Dispatcher) advance(ctx context.Context, current *models.Conversation, in Inbound) *step {
	base := *current
	if base.Status == models.ConversationClosed {
		base.Status = models.ConversationOpen
	}

	res, err := d.Chatbot.Advance(ctx, &base, in.Text, in.Interactive)
	if err != nil {
		d.log.Warn().Err(err).Str("conversation_id", current.ID).Msg("Chatbot step failed, falling back to automation rules")
	}

	next := &base
	if res.Conversation != nil {
		next = res.Conversation
	}
	if err != nil {
		next.ClearSession()
	}
	s := &step{conv: next, changed: stateChanged(current, next)}
	if err == nil && res.Triggered {
		s.handled = true
		s.author = models.AuthorBot
		s.messages = res.Messages
	}
	return s
}

// Reply sends an agent-authored message on an existing conversation.
func (d *Dispatcher) Reply(ctx context.Context, conversationID string, out models.Outbound) (*models.Conversation, error) {
	conv, err := d.Conversations.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out.Phone = conv.Phone
	return conv, d.deliver(ctx, conv, models.AuthorAgent, []models.Outbound{out})
}

// deliver persists each message before handing it to the transport. Send
// failures are recorded on the message and never undo state. A message that
// cannot be stored is still sent.
func (d *Dispatcher) deliver(ctx context.Context, conv *models.Conversation, author models.Author, outs []models.Outbound) error {
	var errs []error
	for _, out := range outs {
		msg := &models.Message{
			WorkspaceID:    conv.WorkspaceID,
			ConversationID: conv.ID,
			Phone:          out.Phone,
			Direction:      models.DirectionOutbound,
			Author:         author,
			Content:        out.Text,
			Link:           out.Link,
			FileType:       out.FileType,
			Status:         models.StatusPending,
		}
		stored := true
		if err := d.Messages.Create(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("Error storing outbound message, sending unrecorded")
			errs = append(errs, err)
			stored = false
		}

		providerID, err := d.Transport.Send(ctx, out)
		if err != nil {
			d.log.Error().Err(err).Str("message_id", msg.ID).Msg("Error sending message")
			msg.Status, msg.Error = models.StatusFailed, err.Error()
			if stored {
				if err := d.Messages.MarkFailed(ctx, msg.ID, err); err != nil {
					errs = append(errs, err)
				}
			}
		} else {
			msg.Status = models.StatusSent
			msg.ProviderMessageID = &providerID
			if stored {
				if err := d.Messages.MarkSent(ctx, msg.ID, providerID); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if stored {
			d.Notifier.NotifyMessage(*msg)
		}
	}
	return errors.Join(errs...)
}

func stateChanged(a, b *models.Conversation) bool {
	if a.Status != b.Status || a.Assigned != b.Assigned || a.MemberID != b.MemberID ||
		a.ChatbotID != b.ChatbotID || a.CurrentNode != b.CurrentNode {
		return true
	}
	switch {
	case a.ChatbotTimeout == nil && b.ChatbotTimeout == nil:
		return false
	case a.ChatbotTimeout == nil || b.ChatbotTimeout == nil:
		return true
	}
	return !a.ChatbotTimeout.Equal(*b.ChatbotTimeout)
}

type nopNotifier struct{}

func (nopNotifier) NotifyMessage(models.Message)           {}
func (nopNotifier) NotifyConversation(models.Conversation) {}
