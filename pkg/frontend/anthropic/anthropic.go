// Package anthropic implements the Frontend contract for Anthropic's
// messages-shaped dialect: inbound/outbound JSON bit-compatible with the
// public /v1/messages contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/google/uuid"
)

// Frontend converts between Anthropic's messages dialect and IR.
type Frontend struct{}

// New returns a ready-to-use Anthropic Frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Metadata() ir.AdapterMetadata {
	return ir.AdapterMetadata{Name: "anthropic", Version: "2023-06-01", Provider: "anthropic"}
}

// MessagesRequest is the inbound dialect shape for /v1/messages.
type MessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one inbound message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesResponse is the outbound dialect shape for a unary completion.
type MessagesResponse struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Role       string  `json:"role"`
	Model      string  `json:"model"`
	Content    []Block `json:"content"`
	StopReason string  `json:"stop_reason"`
	Usage      Usage   `json:"usage"`
}

// Block is one outbound content block.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage reports token accounting in Anthropic's field names.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent is one outbound named SSE payload.
type StreamEvent struct {
	Type    string       `json:"type"`
	Message *EventMessage `json:"message,omitempty"`
	Delta   *EventDelta   `json:"delta,omitempty"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// EventMessage is the message object on a message_start event.
type EventMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Role  string `json:"role"`
}

// EventDelta carries incremental text or the terminal stop reason.
type EventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (f *Frontend) ToIR(ctx context.Context, inboundRequest interface{}) (ir.ChatRequest, error) {
	req, ok := inboundRequest.(MessagesRequest)
	if !ok {
		return ir.ChatRequest{}, &ir.ValidationError{Message: "anthropic frontend requires an anthropic.MessagesRequest"}
	}
	if req.Model == "" {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "messages", Message: "at least one message is required"}
	}

	out := ir.ChatRequest{
		Parameters: ir.Parameters{
			Model:       req.Model,
			MaxTokens:   &req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
		},
		Stream:   req.Stream,
		Metadata: ir.Metadata{RequestID: uuid.NewString()},
	}

	if req.System != "" {
		out.Messages = append(out.Messages, ir.NewTextMessage(ir.RoleSystem, req.System))
	}
	for _, msg := range req.Messages {
		role := ir.Role(msg.Role)
		if role != ir.RoleUser && role != ir.RoleAssistant {
			return ir.ChatRequest{}, &ir.ValidationError{Field: "messages.role", Message: fmt.Sprintf("unsupported role %q", msg.Role)}
		}
		out.Messages = append(out.Messages, ir.NewTextMessage(role, msg.Content))
	}

	return out, nil
}

func (f *Frontend) FromIR(ctx context.Context, resp ir.ChatResponse, original interface{}) (interface{}, error) {
	return MessagesResponse{
		ID:         resp.Metadata.RequestID,
		Type:       "message",
		Role:       string(ir.RoleAssistant),
		Model:      resp.Metadata.Provenance.Backend,
		Content:    []Block{{Type: "text", Text: resp.Message.Text()}},
		StopReason: stopReasonFromIR(resp.FinishReason),
		Usage:      usageFromIR(resp.Usage),
	}, nil
}

func stopReasonFromIR(reason ir.FinishReason) string {
	switch reason {
	case ir.FinishLength:
		return "max_tokens"
	case ir.FinishToolCalls:
		return "tool_use"
	default:
		return "end_turn"
	}
}

func usageFromIR(u *ir.Usage) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}

func (f *Frontend) StreamFromIR(ctx context.Context, chunks <-chan ir.StreamChunk, original interface{}) (<-chan interface{}, error) {
	out := make(chan interface{})
	go func() {
		defer close(out)
		var requestID, model string
		if req, ok := original.(MessagesRequest); ok {
			model = req.Model
		}

		send := func(v interface{}) bool {
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for c := range chunks {
			switch c.Type {
			case ir.ChunkStart:
				if c.Metadata != nil {
					requestID = c.Metadata.RequestID
				}
				if !send(StreamEvent{
					Type:    "message_start",
					Message: &EventMessage{ID: requestID, Model: model, Role: string(ir.RoleAssistant)},
				}) {
					return
				}
			case ir.ChunkContent:
				if !send(StreamEvent{Type: "content_block_delta", Delta: &EventDelta{Type: "text_delta", Text: c.Delta}}) {
					return
				}
			case ir.ChunkDone:
				if !send(StreamEvent{Delta: &EventDelta{StopReason: stopReasonFromIR(c.FinishReason)}, Type: "message_delta", Usage: usagePtrFromIR(c.Usage)}) {
					return
				}
				send(StreamEvent{Type: "message_stop"})
			case ir.ChunkError:
				send(StreamEvent{Type: "error", Delta: &EventDelta{StopReason: c.Code}})
				return
			}
		}
	}()
	return out, nil
}

func usagePtrFromIR(u *ir.Usage) *Usage {
	if u == nil {
		return nil
	}
	v := usageFromIR(u)
	return &v
}

var _ adapter.Frontend = (*Frontend)(nil)

// DecodeRequest unmarshals a raw JSON body into a MessagesRequest, the
// shape ToIR expects as inboundRequest.
func DecodeRequest(body []byte) (MessagesRequest, error) {
	var req MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return MessagesRequest{}, &ir.ValidationError{Message: err.Error(), Cause: err}
	}
	return req, nil
}
