package automation

import (
	"context"
	"strings"
	"time"

	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"
)

// Generator produces an AI reply seeded by a rule prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, context string) (string, error)
}

// LogStore records fired rules.
type LogStore interface {
	Record(ctx context.Context, entry *models.AutomationLog) error
}

// Reply is the automated answer chosen for an inbound message.
type Reply struct {
	RuleID string
	Kind   models.RuleKind
	Text   string
}

// Engine picks at most one automation rule per inbound message.
type Engine struct {
	generator   Generator
	logs        LogStore
	log         *logging.Logger
	defaultZone *time.Location
	now         func() time.Time
}

type Option func(*Engine)

// WithDefaultZone sets the zone used when settings carry no time zone.
func WithDefaultZone(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.defaultZone = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a rule engine. generator and logs may be nil.
func NewEngine(generator Generator, logs LogStore, log *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		generator:   generator,
		logs:        logs,
		log:         log.Sub("automation"),
		defaultZone: time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Respond walks the rule cascade and returns the first applicable reply, or
// nil when automation stays silent.
func (e *Engine) Respond(ctx context.Context, phone, text string, conv *models.Conversation, history models.History, settings *models.AutomationSettings) (*Reply, error) {
	if settings == nil {
		return nil, nil
	}

	now := e.now().In(e.zone(settings))
	open := !settings.HolidayMode && IsOpen(settings.WorkingHours, now)
	rules := settings.AutomationRules

	if !open {
		if rule, ok := firstOfKind(rules, models.RuleOutOfHours); ok {
			return e.fire(ctx, rule, models.RuleOutOfHours, phone, text, conv), nil
		}
	}

	if open && !conv.Assigned && !history.HumanReplied {
		if rule, ok := firstOfKind(rules, models.RuleNoAgent); ok {
			return e.fire(ctx, rule, models.RuleNoAgent, phone, text, conv), nil
		}
	}

	if history.FirstMessage() {
		if rule, ok := firstOfKind(rules, models.RuleWelcome); ok {
			return e.fire(ctx, rule, models.RuleWelcome, phone, text, conv), nil
		}
	}

	if since, ok := waitingSince(conv, history); ok {
		waited := now.Sub(since)
		for _, rule := range rules {
			if !rule.Enabled || Classify(rule) != models.RuleThreshold || rule.Threshold == nil {
				continue
			}
			if waited > time.Duration(*rule.Threshold)*time.Minute {
				return e.fire(ctx, rule, models.RuleThreshold, phone, text, conv), nil
			}
		}
	}

	if rule, ok := firstOfKind(rules, models.RuleFallback); ok {
		return e.fire(ctx, rule, models.RuleFallback, phone, text, conv), nil
	}

	return nil, nil
}

func (e *Engine) zone(settings *models.AutomationSettings) *time.Location {
	if settings.TimeZone == "" {
		return e.defaultZone
	}
	loc, err := time.LoadLocation(settings.TimeZone)
	if err != nil {
		e.log.Warn().Err(err).Str("workspace_id", settings.WorkspaceID).Str("time_zone", settings.TimeZone).
			Msg("Unknown time zone, using default")
		return e.defaultZone
	}
	return loc
}

func (e *Engine) fire(ctx context.Context, rule models.AutomationRule, kind models.RuleKind, phone, text string, conv *models.Conversation) *Reply {
	entry := &models.AutomationLog{
		WorkspaceID:    conv.WorkspaceID,
		ConversationID: conv.ID,
		RuleID:         rule.ID,
		Phone:          phone,
		TriggerType:    string(kind),
		ActionTaken:    "text_reply",
		Success:        true,
	}

	reply := render(rule.AIPrompt, phone, text)
	if rule.ResponseType == models.ResponseAI {
		entry.ActionTaken = "ai_reply"
		generated, err := e.generate(ctx, rule.AIPrompt, text)
		if err != nil {
			e.log.Warn().Err(err).Str("rule_id", rule.ID).Msg("AI reply failed, sending rule prompt instead")
			entry.ActionTaken = "ai_fallback"
			entry.Success = false
			entry.ErrorMessage = err.Error()
		} else {
			reply = generated
		}
	}

	e.log.Info().Str("rule_id", rule.ID).Str("kind", string(kind)).Str("phone", phone).Msg("Automation rule matched")

	if e.logs != nil {
		if err := e.logs.Record(ctx, entry); err != nil {
			e.log.Error().Err(err).Str("rule_id", rule.ID).Msg("Error recording automation log")
		}
	}

	return &Reply{RuleID: rule.ID, Kind: kind, Text: reply}
}

func (e *Engine) generate(ctx context.Context, prompt, text string) (string, error) {
	if e.generator == nil {
		return "", ErrNoGenerator
	}
	out, err := e.generator.Generate(ctx, prompt, text)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyGeneration
	}
	return out, nil
}

// render fills the placeholders supported in canned replies.
func render(tmpl, phone, text string) string {
	tmpl = strings.ReplaceAll(tmpl, "{{contact.phone}}", phone)
	return strings.ReplaceAll(tmpl, "{{message}}", text)
}

// waitingSince is the moment the customer started waiting for an answer:
// the last outbound message, or the conversation start when nothing was sent.
func waitingSince(conv *models.Conversation, history models.History) (time.Time, bool) {
	if history.LastOutboundAt != nil {
		return *history.LastOutboundAt, true
	}
	if !conv.CreatedAt.IsZero() {
		return conv.CreatedAt, true
	}
	return time.Time{}, false
}
