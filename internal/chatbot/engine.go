// Package chatbot walks published bot graphs one inbound message at a time.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/pkg/botgraph"
)

var (
	ErrNodeNotFound      = errors.New("chatbot node not found")
	ErrStepLimitExceeded = errors.New("chatbot step limit exceeded")
)

const (
	DefaultMaxSteps = 25
	InvalidOption   = "Please choose a valid option."
)

// BotStore is the read side of the bot definition store.
type BotStore interface {
	PublishedChatbots(ctx context.Context, workspaceID string) ([]models.Chatbot, error)
	ChatbotByID(ctx context.Context, id string) (*models.Chatbot, error)
}

// Result is the outcome of one Advance call. Conversation is always the
// state to persist, even when Triggered is false.
type Result struct {
	Triggered    bool
	Messages     []models.Outbound
	Conversation *models.Conversation
}

type Engine struct {
	bots            BotStore
	log             *logging.Logger
	maxSteps        int
	responseTimeout time.Duration
	now             func() time.Time
}

type Option func(*Engine)

func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithResponseTimeout bounds how long a session waits on a customer reply.
// Zero disables the timeout.
func WithResponseTimeout(d time.Duration) Option {
	return func(e *Engine) { e.responseTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(bots BotStore, log *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		bots:     bots,
		log:      log.Sub("chatbot"),
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Advance computes the chatbot step for one inbound message. It never writes;
// the caller persists Result.Conversation with compare-and-swap. On error the
// returned conversation has its session aborted.
func (e *Engine) Advance(ctx context.Context, conv *models.Conversation, text string, interactive bool) (Result, error) {
	next := *conv
	res := Result{Conversation: &next}

	if next.Assigned {
		if next.HasSession() {
			next.ClearSession()
		}
		return res, nil
	}

	if next.HasSession() && next.ChatbotTimeout != nil && e.now().After(*next.ChatbotTimeout) {
		e.log.Info().Str("conversation_id", next.ID).Str("chatbot_id", next.ChatbotID).
			Msg("Chatbot session expired waiting for a reply")
		next.ClearSession()
	}

	published, err := e.bots.PublishedChatbots(ctx, next.WorkspaceID)
	if err != nil {
		next.ClearSession()
		return res, fmt.Errorf("load published chatbots: %w", err)
	}

	if bot := matchTrigger(published, text); bot != nil {
		return e.start(&next, bot)
	}
	if !next.HasSession() {
		if bot := defaultBot(published); bot != nil {
			return e.start(&next, bot)
		}
		return res, nil
	}

	bot, err := e.bots.ChatbotByID(ctx, next.ChatbotID)
	if errors.Is(err, database.ErrNotFound) {
		e.log.Warn().Str("conversation_id", next.ID).Str("chatbot_id", next.ChatbotID).
			Msg("Chatbot of active session no longer exists, aborting session")
		next.ClearSession()
		return res, nil
	}
	if err != nil {
		chatbotID := next.ChatbotID
		next.ClearSession()
		return res, fmt.Errorf("load chatbot %s: %w", chatbotID, err)
	}

	w := &walk{engine: e, conv: &next, graph: bot.Graph}
	return w.run(next.CurrentNode, &answer{text: text, interactive: interactive})
}

func (e *Engine) start(conv *models.Conversation, bot *models.Chatbot) (Result, error) {
	conv.ClearSession()
	startID, err := bot.Graph.StartID()
	if err != nil {
		e.log.Warn().Err(err).Str("chatbot_id", bot.ID).Msg("Chatbot has no usable START node")
		return Result{Conversation: conv}, nil
	}
	e.log.Debug().Str("conversation_id", conv.ID).Str("chatbot_id", bot.ID).Msg("Starting chatbot session")

	conv.ChatbotID = bot.ID
	w := &walk{engine: e, conv: conv, graph: bot.Graph}
	return w.run(startID, nil)
}

// answer is the inbound message consumed by the node the session waits on.
type answer struct {
	text        string
	interactive bool
}

type walk struct {
	engine *Engine
	conv   *models.Conversation
	graph  botgraph.Graph
	out    []models.Outbound
}

func (w *walk) run(id string, pending *answer) (Result, error) {
	for steps := 0; ; steps++ {
		if id == "" {
			w.conv.ClearSession()
			return w.done(), nil
		}
		if steps >= w.engine.maxSteps {
			w.engine.log.Warn().Str("conversation_id", w.conv.ID).Str("chatbot_id", w.conv.ChatbotID).
				Int("limit", w.engine.maxSteps).Msg("Chatbot step limit exceeded, aborting session")
			w.conv.ClearSession()
			return Result{Conversation: w.conv}, ErrStepLimitExceeded
		}

		node, ok := w.graph.Node(id)
		if !ok {
			w.engine.log.Warn().Err(ErrNodeNotFound).Str("conversation_id", w.conv.ID).
				Str("chatbot_id", w.conv.ChatbotID).Str("node_id", id).Msg("Aborting chatbot session")
			w.conv.ClearSession()
			return Result{Conversation: w.conv}, nil
		}

		in := pending
		pending = nil

		switch n := node.(type) {
		case botgraph.StartNode:
			id = n.Next

		case botgraph.TextMessageNode:
			if id, ok = w.message(n.NodeID, n.Message, "", "", n.Next, n.NeedResponse, in); !ok {
				return w.done(), nil
			}

		case botgraph.ChatbotMessageNode:
			if id, ok = w.message(n.NodeID, n.Message, "", "", n.Next, n.NeedResponse, in); !ok {
				return w.done(), nil
			}

		case botgraph.ImageNode:
			if id, ok = w.message(n.NodeID, n.Message, n.Link, n.FileType, n.Next, n.NeedResponse, in); !ok {
				return w.done(), nil
			}

		case botgraph.OptionMessageNode:
			if in == nil {
				w.emit(models.Outbound{Text: n.Message, Options: n.OptionTitles()})
				w.wait(n.NodeID)
				return w.done(), nil
			}
			child, valid := selectOption(n, in)
			if !valid {
				w.out = append(w.out, models.Outbound{Phone: w.conv.Phone, Text: InvalidOption, Options: n.OptionTitles()})
				return w.done(), nil
			}
			w.emit(models.Outbound{Text: child.Message})
			id = child.Next

		case botgraph.OptionNode:
			w.emit(models.Outbound{Text: n.Message})
			id = n.Next

		case botgraph.ChatWithAgentNode:
			w.engine.log.Info().Str("conversation_id", w.conv.ID).Msg("Chatbot handed conversation to an agent")
			w.conv.Assigned = true
			w.conv.ClearSession()
			return w.done(), nil

		default:
			w.conv.ClearSession()
			return Result{Conversation: w.conv}, fmt.Errorf("%w: node %q has unsupported type %T", botgraph.ErrInvalidGraph, id, node)
		}
	}
}

// message handles the plain message kinds. It returns the next node id, or
// false when the walk stops to wait for a reply.
func (w *walk) message(id, text, link, fileType, next string, needResponse bool, in *answer) (string, bool) {
	if !needResponse {
		w.emit(models.Outbound{Text: text, Link: link, FileType: fileType})
		return next, true
	}
	if in != nil {
		return next, true
	}
	w.emit(models.Outbound{Text: text, Link: link, FileType: fileType})
	w.wait(id)
	return "", false
}

func (w *walk) emit(msg models.Outbound) {
	if msg.Text == "" && msg.Link == "" {
		return
	}
	msg.Phone = w.conv.Phone
	msg.Text = strings.ReplaceAll(msg.Text, "{{contact.phone}}", w.conv.Phone)
	w.out = append(w.out, msg)
}

func (w *walk) wait(id string) {
	w.conv.CurrentNode = id
	w.conv.ChatbotTimeout = nil
	if d := w.engine.responseTimeout; d > 0 {
		t := w.engine.now().Add(d)
		w.conv.ChatbotTimeout = &t
	}
}

func (w *walk) done() Result {
	return Result{Triggered: true, Messages: w.out, Conversation: w.conv}
}

// selectOption resolves a reply to a child by 1-based index. Interactive
// replies may also carry the option title.
func selectOption(n botgraph.OptionMessageNode, in *answer) (botgraph.OptionNode, bool) {
	text := strings.TrimSpace(in.text)
	if idx, err := strconv.Atoi(text); err == nil {
		if idx < 1 || idx > len(n.Children) {
			return botgraph.OptionNode{}, false
		}
		return n.Children[idx-1], true
	}
	if in.interactive {
		for _, c := range n.Children {
			if strings.EqualFold(c.Message, text) {
				return c, true
			}
		}
	}
	return botgraph.OptionNode{}, false
}

func matchTrigger(bots []models.Chatbot, text string) *models.Chatbot {
	for i := range bots {
		if bots[i].Trigger != "" && bots[i].Trigger == text {
			return &bots[i]
		}
	}
	return nil
}

func defaultBot(bots []models.Chatbot) *models.Chatbot {
	for i := range bots {
		if bots[i].Default {
			return &bots[i]
		}
	}
	return nil
}
