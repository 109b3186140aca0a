package chatbot

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/pkg/botgraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBots struct {
	bots map[string]*models.Chatbot
	err  error
}

func newFakeBots(bots ...*models.Chatbot) *fakeBots {
	f := &fakeBots{bots: map[string]*models.Chatbot{}}
	for _, b := range bots {
		f.bots[b.ID] = b
	}
	return f
}

func (f *fakeBots) PublishedChatbots(_ context.Context, workspaceID string) ([]models.Chatbot, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Chatbot
	for _, b := range f.bots {
		if b.Publish && b.WorkspaceID == workspaceID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBots) ChatbotByID(_ context.Context, id string) (*models.Chatbot, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bots[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return b, nil
}

// scenarioGraph is start -> A("Hi") -> B(options Yes->C, No->D).
func scenarioGraph() botgraph.Graph {
	return botgraph.Graph{
		"start": botgraph.StartNode{NodeID: "start", Next: "A"},
		"A":     botgraph.TextMessageNode{NodeID: "A", Message: "Hi", Next: "B"},
		"B": botgraph.OptionMessageNode{NodeID: "B", Children: []botgraph.OptionNode{
			{NodeID: "yes", Message: "Yes", Next: "C"},
			{NodeID: "no", Message: "No", Next: "D"},
		}},
		"C": botgraph.TextMessageNode{NodeID: "C", Message: "Tell us more", NeedResponse: true},
		"D": botgraph.TextMessageNode{NodeID: "D", Message: "Bye"},
	}
}

func scenarioBot() *models.Chatbot {
	return &models.Chatbot{ID: "bot-1", WorkspaceID: "ws1", Trigger: "/start", Publish: true, Graph: scenarioGraph()}
}

func newConv() *models.Conversation {
	return &models.Conversation{ID: "conv-1", WorkspaceID: "ws1", Phone: "15550100", Status: models.ConversationOpen}
}

func texts(msgs []models.Outbound) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func newTestEngine(store BotStore, opts ...Option) *Engine {
	return NewEngine(store, logging.Nop(), opts...)
}

func TestAdvance_StartScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(newFakeBots(scenarioBot()))

	res, err := e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, []string{"Hi"}, texts(res.Messages))
	assert.Equal(t, "15550100", res.Messages[0].Phone)
	assert.Equal(t, "bot-1", res.Conversation.ChatbotID)
	assert.Equal(t, "B", res.Conversation.CurrentNode)

	res, err = e.Advance(ctx, res.Conversation, "1", false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, "C", res.Conversation.CurrentNode)
	assert.Equal(t, []string{"Yes", "Tell us more"}, texts(res.Messages))

	// C has no children: any reply is its answer and next is null.
	res, err = e.Advance(ctx, res.Conversation, "3", false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Empty(t, res.Messages)
	assert.False(t, res.Conversation.HasSession())
	assert.Empty(t, res.Conversation.ChatbotID)
}

func TestAdvance_InvalidOptionReprompts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(newFakeBots(scenarioBot()))

	started, err := e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)

	for _, input := range []string{"0", "3", "-1", "abc", "", "No"} {
		t.Run(input, func(t *testing.T) {
			res, err := e.Advance(ctx, started.Conversation, input, false)
			require.NoError(t, err)
			assert.True(t, res.Triggered)
			require.Len(t, res.Messages, 1)
			assert.Equal(t, InvalidOption, res.Messages[0].Text)
			assert.Equal(t, []string{"Yes", "No"}, res.Messages[0].Options)
			assert.Equal(t, *started.Conversation, *res.Conversation)
		})
	}
}

func TestAdvance_InteractiveTitleSelectsOption(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(newFakeBots(scenarioBot()))

	started, err := e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)

	res, err := e.Advance(ctx, started.Conversation, "no", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"No", "Bye"}, texts(res.Messages))
	assert.False(t, res.Conversation.HasSession())
}

func TestAdvance_OptionPromptCarriesTitles(t *testing.T) {
	bot := scenarioBot()
	b := bot.Graph["B"].(botgraph.OptionMessageNode)
	b.Message = "Continue?"
	bot.Graph["B"] = b

	res, err := newTestEngine(newFakeBots(bot)).Advance(context.Background(), newConv(), "/start", false)
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Continue?", res.Messages[1].Text)
	assert.Equal(t, []string{"Yes", "No"}, res.Messages[1].Options)
}

func TestAdvance_ChatWithAgentIsFinal(t *testing.T) {
	ctx := context.Background()
	bot := &models.Chatbot{ID: "bot-agent", WorkspaceID: "ws1", Default: true, Publish: true, Graph: botgraph.Graph{
		"start": botgraph.StartNode{NodeID: "start", Next: "menu"},
		"menu": botgraph.OptionMessageNode{NodeID: "menu", Message: "How can we help?", Children: []botgraph.OptionNode{
			{NodeID: "human", Message: "Talk to a person", Next: "agent"},
		}},
		"agent": botgraph.ChatWithAgentNode{NodeID: "agent", Message: "never sent"},
	}}
	e := newTestEngine(newFakeBots(bot))

	res, err := e.Advance(ctx, newConv(), "hello", false)
	require.NoError(t, err)
	require.Equal(t, "menu", res.Conversation.CurrentNode)

	res, err = e.Advance(ctx, res.Conversation, "1", false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, []string{"Talk to a person"}, texts(res.Messages))
	assert.True(t, res.Conversation.Assigned)
	assert.False(t, res.Conversation.HasSession())

	again, err := e.Advance(ctx, res.Conversation, "1", false)
	require.NoError(t, err)
	assert.False(t, again.Triggered)
	assert.Empty(t, again.Messages)
	assert.Equal(t, *res.Conversation, *again.Conversation)

	// Triggers do not override a human takeover.
	again, err = e.Advance(ctx, res.Conversation, "/start", false)
	require.NoError(t, err)
	assert.False(t, again.Triggered)
}

func TestAdvance_CycleHitsStepLimit(t *testing.T) {
	bot := &models.Chatbot{ID: "loop", WorkspaceID: "ws1", Trigger: "go", Publish: true, Graph: botgraph.Graph{
		"start": botgraph.StartNode{NodeID: "start", Next: "a"},
		"a":     botgraph.TextMessageNode{NodeID: "a", Message: "ping", Next: "b"},
		"b":     botgraph.ChatbotMessageNode{NodeID: "b", Message: "pong", Next: "a"},
	}}
	e := newTestEngine(newFakeBots(bot), WithMaxSteps(5))

	res, err := e.Advance(context.Background(), newConv(), "go", false)
	assert.ErrorIs(t, err, ErrStepLimitExceeded)
	assert.False(t, res.Triggered)
	assert.Empty(t, res.Messages)
	require.NotNil(t, res.Conversation)
	assert.False(t, res.Conversation.HasSession())
	assert.Empty(t, res.Conversation.ChatbotID)
}

func TestAdvance_AcyclicChainTerminates(t *testing.T) {
	g := botgraph.Graph{"start": botgraph.StartNode{NodeID: "start", Next: "n1"}}
	ids := []string{"n1", "n2", "n3", "n4"}
	for i, id := range ids {
		next := ""
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		g[id] = botgraph.TextMessageNode{NodeID: id, Message: id, Next: next}
	}
	bot := &models.Chatbot{ID: "chain", WorkspaceID: "ws1", Default: true, Publish: true, Graph: g}

	res, err := newTestEngine(newFakeBots(bot), WithMaxSteps(len(g))).Advance(context.Background(), newConv(), "hey", false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, ids, texts(res.Messages))
	assert.False(t, res.Conversation.HasSession())
}

func TestAdvance_MissingNodeAbortsSession(t *testing.T) {
	e := newTestEngine(newFakeBots(scenarioBot()))
	conv := newConv()
	conv.ChatbotID, conv.CurrentNode = "bot-1", "ghost"

	res, err := e.Advance(context.Background(), conv, "1", false)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.Empty(t, res.Messages)
	assert.False(t, res.Conversation.HasSession())
	assert.Empty(t, res.Conversation.ChatbotID)
}

func TestAdvance_DeletedBotAbortsSession(t *testing.T) {
	e := newTestEngine(newFakeBots())
	conv := newConv()
	conv.ChatbotID, conv.CurrentNode = "gone", "B"

	res, err := e.Advance(context.Background(), conv, "1", false)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.False(t, res.Conversation.HasSession())
}

func TestAdvance_ExpiredSessionIsDropped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(newFakeBots(scenarioBot()),
		WithResponseTimeout(time.Hour),
		WithClock(func() time.Time { return now }))

	res, err := e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)
	require.NotNil(t, res.Conversation.ChatbotTimeout)
	assert.Equal(t, now.Add(time.Hour), *res.Conversation.ChatbotTimeout)

	now = now.Add(2 * time.Hour)
	res, err = e.Advance(ctx, res.Conversation, "1", false)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.False(t, res.Conversation.HasSession())
	assert.Nil(t, res.Conversation.ChatbotTimeout)
}

func TestAdvance_TriggerRestartsActiveSession(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(newFakeBots(scenarioBot()))

	res, err := e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)
	res, err = e.Advance(ctx, res.Conversation, "1", false)
	require.NoError(t, err)
	require.Equal(t, "C", res.Conversation.CurrentNode)

	res, err = e.Advance(ctx, res.Conversation, "/start", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, texts(res.Messages))
	assert.Equal(t, "B", res.Conversation.CurrentNode)
}

func TestAdvance_UnpublishedMidSessionIsHonored(t *testing.T) {
	ctx := context.Background()
	bot := scenarioBot()
	e := newTestEngine(newFakeBots(bot))

	res, err := e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)

	bot.Publish = false
	res, err = e.Advance(ctx, res.Conversation, "2", false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, []string{"No", "Bye"}, texts(res.Messages))

	// But it can no longer be started.
	res, err = e.Advance(ctx, newConv(), "/start", false)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
}

func TestAdvance_TriggerIsCaseSensitive(t *testing.T) {
	res, err := newTestEngine(newFakeBots(scenarioBot())).Advance(context.Background(), newConv(), "/START", false)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.Empty(t, res.Messages)
}

func TestAdvance_ImageAndPhonePlaceholder(t *testing.T) {
	bot := &models.Chatbot{ID: "media", WorkspaceID: "ws1", Default: true, Publish: true, Graph: botgraph.Graph{
		"start": botgraph.StartNode{NodeID: "start", Next: "img"},
		"img": botgraph.ImageNode{NodeID: "img", Message: "Menu for {{contact.phone}}",
			Link: "https://example.com/menu.pdf", FileType: "document"},
	}}

	res, err := newTestEngine(newFakeBots(bot)).Advance(context.Background(), newConv(), "hi", false)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, models.Outbound{
		Phone:    "15550100",
		Text:     "Menu for 15550100",
		Link:     "https://example.com/menu.pdf",
		FileType: "document",
	}, res.Messages[0])
}

func TestAdvance_StoreErrorAbortsSession(t *testing.T) {
	store := newFakeBots(scenarioBot())
	store.err = errors.New("connection refused")

	conv := newConv()
	conv.ChatbotID, conv.CurrentNode = "bot-1", "B"
	res, err := newTestEngine(store).Advance(context.Background(), conv, "1", false)
	require.Error(t, err)
	assert.False(t, res.Triggered)
	assert.Empty(t, res.Messages)
	assert.False(t, res.Conversation.HasSession())
	assert.Equal(t, "B", conv.CurrentNode, "input snapshot must not be mutated")
}

func TestAdvance_ChatbotLookupErrorAbortsSession(t *testing.T) {
	store := &failingLookup{fakeBots: newFakeBots(scenarioBot()), err: errors.New("connection reset")}

	conv := newConv()
	conv.ChatbotID, conv.CurrentNode = "bot-1", "B"
	res, err := newTestEngine(store).Advance(context.Background(), conv, "1", false)
	require.ErrorContains(t, err, "connection reset")
	assert.False(t, res.Triggered)
	assert.Empty(t, res.Conversation.ChatbotID)
	assert.Empty(t, res.Conversation.CurrentNode)
	assert.Nil(t, res.Conversation.ChatbotTimeout)
}

// failingLookup serves published bots but fails loading a bot by id.
type failingLookup struct {
	*fakeBots
	err error
}

func (f *failingLookup) ChatbotByID(context.Context, string) (*models.Chatbot, error) {
	return nil, f.err
}
