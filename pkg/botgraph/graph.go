package botgraph

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidGraph = errors.New("invalid bot graph")
	ErrNoStartNode  = errors.New("graph has no START node")
)

// Graph maps node ids to nodes. Children of option messages live inside
// their parent and are not keys of the map.
type Graph map[string]Node

// StartID returns the id of the graph's single START node.
func (g Graph) StartID() (string, error) {
	found := ""
	for id, n := range g {
		if n.Type() != TypeStart {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: more than one START node (%s, %s)", ErrInvalidGraph, found, id)
		}
		found = id
	}
	if found == "" {
		return "", ErrNoStartNode
	}
	return found, nil
}

// Node looks a node up by id.
func (g Graph) Node(id string) (Node, bool) {
	n, ok := g[id]
	return n, ok
}

// Validate checks that there is exactly one START node, that map keys match
// node ids and that every next reference resolves inside the graph.
func (g Graph) Validate() error {
	var errs []error

	if _, err := g.StartID(); err != nil {
		errs = append(errs, err)
	}

	ref := func(from, next string) {
		if next == "" {
			return
		}
		if _, ok := g[next]; !ok {
			errs = append(errs, fmt.Errorf("node %q: next %q does not exist", from, next))
		}
	}

	for key, n := range g {
		if n == nil {
			errs = append(errs, fmt.Errorf("node %q is empty", key))
			continue
		}
		if n.ID() != key {
			errs = append(errs, fmt.Errorf("node key %q does not match nodeId %q", key, n.ID()))
		}
		switch node := n.(type) {
		case StartNode:
			ref(key, node.Next)
		case TextMessageNode:
			ref(key, node.Next)
		case ChatbotMessageNode:
			ref(key, node.Next)
		case ImageNode:
			if node.Link == "" {
				errs = append(errs, fmt.Errorf("image node %q has no link", key))
			}
			ref(key, node.Next)
		case OptionMessageNode:
			if len(node.Children) == 0 {
				errs = append(errs, fmt.Errorf("option message %q has no options", key))
			}
			for _, c := range node.Children {
				ref(key+"/"+c.NodeID, c.Next)
			}
		case OptionNode:
			ref(key, node.Next)
		case ChatWithAgentNode:
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}
	return nil
}

// wireNode is the flat JSON shape shared by all node kinds.
type wireNode struct {
	NodeID       string     `json:"nodeId"`
	Type         NodeType   `json:"type"`
	Message      string     `json:"message,omitempty"`
	Link         string     `json:"link,omitempty"`
	FileType     string     `json:"fileType,omitempty"`
	Children     []wireNode `json:"children,omitempty"`
	Next         *string    `json:"next"`
	NeedResponse bool       `json:"needResponse"`
}

func nextPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toWire(n Node) wireNode {
	switch node := n.(type) {
	case StartNode:
		return wireNode{NodeID: node.NodeID, Type: TypeStart, Next: nextPtr(node.Next)}
	case TextMessageNode:
		return wireNode{NodeID: node.NodeID, Type: TypeTextMessage, Message: node.Message,
			Next: nextPtr(node.Next), NeedResponse: node.NeedResponse}
	case ChatbotMessageNode:
		return wireNode{NodeID: node.NodeID, Type: TypeChatbotMessage, Message: node.Message,
			Next: nextPtr(node.Next), NeedResponse: node.NeedResponse}
	case ImageNode:
		return wireNode{NodeID: node.NodeID, Type: TypeImage, Message: node.Message, Link: node.Link,
			FileType: node.FileType, Next: nextPtr(node.Next), NeedResponse: node.NeedResponse}
	case OptionMessageNode:
		children := make([]wireNode, len(node.Children))
		for i, c := range node.Children {
			children[i] = toWire(c)
		}
		return wireNode{NodeID: node.NodeID, Type: TypeOptionMessage, Message: node.Message,
			Children: children, NeedResponse: true}
	case OptionNode:
		return wireNode{NodeID: node.NodeID, Type: TypeOption, Message: node.Message, Next: nextPtr(node.Next)}
	case ChatWithAgentNode:
		return wireNode{NodeID: node.NodeID, Type: TypeChatWithAgent, Message: node.Message}
	}
	return wireNode{}
}

// checkFields rejects wire fields the node kind cannot hold, so decoding
// never drops data.
func checkFields(w wireNode) error {
	if w.Type != TypeImage && (w.Link != "" || w.FileType != "") {
		return fmt.Errorf("%w: node %q of type %s cannot carry link or fileType", ErrInvalidGraph, w.NodeID, w.Type)
	}
	if w.Type != TypeOptionMessage && len(w.Children) > 0 {
		return fmt.Errorf("%w: node %q of type %s cannot have children", ErrInvalidGraph, w.NodeID, w.Type)
	}
	return nil
}

func fromWire(w wireNode) (Node, error) {
	if err := checkFields(w); err != nil {
		return nil, err
	}
	switch w.Type {
	case TypeStart:
		return StartNode{NodeID: w.NodeID, Next: deref(w.Next)}, nil
	case TypeTextMessage:
		return TextMessageNode{NodeID: w.NodeID, Message: w.Message, Next: deref(w.Next), NeedResponse: w.NeedResponse}, nil
	case TypeChatbotMessage:
		return ChatbotMessageNode{NodeID: w.NodeID, Message: w.Message, Next: deref(w.Next), NeedResponse: w.NeedResponse}, nil
	case TypeImage:
		return ImageNode{NodeID: w.NodeID, Message: w.Message, Link: w.Link, FileType: w.FileType,
			Next: deref(w.Next), NeedResponse: w.NeedResponse}, nil
	case TypeOptionMessage:
		node := OptionMessageNode{NodeID: w.NodeID, Message: w.Message, Children: make([]OptionNode, 0, len(w.Children))}
		for _, c := range w.Children {
			if c.Type != TypeOption {
				return nil, fmt.Errorf("%w: option message %q has child %q of type %s", ErrInvalidGraph, w.NodeID, c.NodeID, c.Type)
			}
			if err := checkFields(c); err != nil {
				return nil, err
			}
			node.Children = append(node.Children, OptionNode{NodeID: c.NodeID, Message: c.Message, Next: deref(c.Next)})
		}
		return node, nil
	case TypeOption:
		return OptionNode{NodeID: w.NodeID, Message: w.Message, Next: deref(w.Next)}, nil
	case TypeChatWithAgent:
		return ChatWithAgentNode{NodeID: w.NodeID, Message: w.Message}, nil
	}
	return nil, fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidGraph, w.NodeID, w.Type)
}

func (g Graph) MarshalJSON() ([]byte, error) {
	wire := make(map[string]wireNode, len(g))
	for id, n := range g {
		wire[id] = toWire(n)
	}
	return json.Marshal(wire)
}

func (g *Graph) UnmarshalJSON(data []byte) error {
	var wire map[string]wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Graph, len(wire))
	for id, w := range wire {
		if w.NodeID == "" {
			w.NodeID = id
		}
		n, err := fromWire(w)
		if err != nil {
			return err
		}
		out[id] = n
	}
	*g = out
	return nil
}
