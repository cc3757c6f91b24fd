// Package ir defines the vendor-neutral intermediate representation shared
// by every frontend dialect and backend provider in the gateway.
package ir

import "encoding/json"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is a tagged variant of the pieces a message's content can be
// made of. Concrete block types implement Type() for JSON (de)serialization
// and isContentBlock() to keep the variant closed to this package.
type ContentBlock interface {
	Type() string
	isContentBlock()
}

// TextBlock is plain text content.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) Type() string { return "text" }
func (TextBlock) isContentBlock() {}

// ImageSourceKind distinguishes how image bytes are referenced.
type ImageSourceKind string

const (
	ImageSourceURL    ImageSourceKind = "url"
	ImageSourceBase64 ImageSourceKind = "base64"
)

// ImageBlock references image content either by URL or inline base64 data.
type ImageBlock struct {
	Kind      ImageSourceKind `json:"kind"`
	URL       string          `json:"url,omitempty"`
	MediaType string          `json:"mediaType,omitempty"`
	Data      string          `json:"data,omitempty"`
}

func (ImageBlock) Type() string { return "image" }
func (ImageBlock) isContentBlock() {}

// ToolUseBlock represents an assistant-issued tool invocation.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) Type() string { return "tool_use" }
func (ToolUseBlock) isContentBlock() {}

// ToolResultBlock carries the result of executing a prior ToolUseBlock.
type ToolResultBlock struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError,omitempty"`
}

func (ToolResultBlock) Type() string { return "tool_result" }
func (ToolResultBlock) isContentBlock() {}

// Message is one turn in the conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
	Name    string         `json:"name,omitempty"`
}

// Text concatenates every TextBlock in the message, ignoring other block
// kinds. Most frontends only ever populate a single TextBlock.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// NewTextMessage builds a single-block text message, the common case.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock{Text: text}}}
}

type messageWire struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
	Name    string            `json:"name,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	wire := messageWire{Role: m.Role, Name: m.Name}
	for _, b := range m.Content {
		raw, err := marshalContentBlock(b)
		if err != nil {
			return nil, err
		}
		wire.Content = append(wire.Content, raw)
	}
	return json.Marshal(wire)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Role = wire.Role
	m.Name = wire.Name
	m.Content = make([]ContentBlock, 0, len(wire.Content))
	for _, raw := range wire.Content {
		block, err := unmarshalContentBlock(raw)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, block)
	}
	return nil
}

func marshalContentBlock(b ContentBlock) (json.RawMessage, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	typ, err := json.Marshal(b.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

func unmarshalContentBlock(raw json.RawMessage) (ContentBlock, error) {
	var discriminator struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &discriminator); err != nil {
		return nil, err
	}
	switch discriminator.Type {
	case "text":
		var b TextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "image":
		var b ImageBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_use":
		var b ToolUseBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_result":
		var b ToolResultBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		// Unknown variants pass through as text so streaming inputs from a
		// newer dialect don't hard-fail; callers should log a warning.
		var b TextBlock
		_ = json.Unmarshal(raw, &b)
		return b, nil
	}
}
