// Package botgraph holds chatbot node graphs as saved by the flow builder.
//
// Each node kind is its own struct carrying only the fields that kind uses.
// The JSON form stays the flat {nodeId, type, message, link, fileType,
// children, next, needResponse} object the builder produces.
package botgraph

// NodeType discriminates node kinds on the wire.
type NodeType string

const (
	TypeStart          NodeType = "START"
	TypeTextMessage    NodeType = "TEXT_MESSAGE"
	TypeOptionMessage  NodeType = "OPTION_MESSAGE"
	TypeOption         NodeType = "OPTION"
	TypeChatbotMessage NodeType = "CHATBOT_MESSAGE"
	TypeImage          NodeType = "IMAGE"
	TypeChatWithAgent  NodeType = "CHAT_WITH_AGENT"
)

// Node is implemented by every node kind in this package and nothing else.
type Node interface {
	ID() string
	Type() NodeType
	isNode()
}

// StartNode is the entry point of a graph. It sends nothing.
type StartNode struct {
	NodeID string
	Next   string
}

// TextMessageNode sends a text and either moves on or waits for any reply.
type TextMessageNode struct {
	NodeID       string
	Message      string
	Next         string
	NeedResponse bool
}

// ChatbotMessageNode behaves like TextMessageNode; the builder keeps it as a
// separate kind for bot-persona messages.
type ChatbotMessageNode struct {
	NodeID       string
	Message      string
	Next         string
	NeedResponse bool
}

// ImageNode sends media with an optional caption.
type ImageNode struct {
	NodeID       string
	Message      string
	Link         string
	FileType     string
	Next         string
	NeedResponse bool
}

// OptionMessageNode asks a question and always waits for the customer to pick
// one of its children by 1-based index.
type OptionMessageNode struct {
	NodeID   string
	Message  string
	Children []OptionNode
}

// OptionNode is a selectable answer of an OptionMessageNode.
type OptionNode struct {
	NodeID  string
	Message string
	Next    string
}

// ChatWithAgentNode hands the conversation to a human.
type ChatWithAgentNode struct {
	NodeID  string
	Message string
}

func (n StartNode) ID() string          { return n.NodeID }
func (n TextMessageNode) ID() string    { return n.NodeID }
func (n ChatbotMessageNode) ID() string { return n.NodeID }
func (n ImageNode) ID() string          { return n.NodeID }
func (n OptionMessageNode) ID() string  { return n.NodeID }
func (n OptionNode) ID() string         { return n.NodeID }
func (n ChatWithAgentNode) ID() string  { return n.NodeID }

func (StartNode) Type() NodeType          { return TypeStart }
func (TextMessageNode) Type() NodeType    { return TypeTextMessage }
func (ChatbotMessageNode) Type() NodeType { return TypeChatbotMessage }
func (ImageNode) Type() NodeType          { return TypeImage }
func (OptionMessageNode) Type() NodeType  { return TypeOptionMessage }
func (OptionNode) Type() NodeType         { return TypeOption }
func (ChatWithAgentNode) Type() NodeType  { return TypeChatWithAgent }

func (StartNode) isNode()          {}
func (TextMessageNode) isNode()    {}
func (ChatbotMessageNode) isNode() {}
func (ImageNode) isNode()          {}
func (OptionMessageNode) isNode()  {}
func (OptionNode) isNode()         {}
func (ChatWithAgentNode) isNode()  {}

// OptionTitles returns the children's messages in order.
func (n OptionMessageNode) OptionTitles() []string {
	titles := make([]string, len(n.Children))
	for i, c := range n.Children {
		titles[i] = c.Message
	}
	return titles
}
