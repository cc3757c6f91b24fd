// Package openai implements the Frontend contract for OpenAI's
// chat-completions dialect: inbound/outbound JSON shapes bit-compatible
// with OpenAI's public /v1/chat/completions contract.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/google/uuid"
)

// Frontend converts between OpenAI's chat-completions dialect and IR.
type Frontend struct{}

// New returns a ready-to-use OpenAI Frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Metadata() ir.AdapterMetadata {
	return ir.AdapterMetadata{Name: "openai", Version: "v1", Provider: "openai"}
}

// ChatRequest is the inbound dialect shape for /v1/chat/completions.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	User        string          `json:"user,omitempty"`
}

// Message is one inbound chat-completions message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Tool is an inbound function-tool definition.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function tool.
type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters"`
}

// ChatResponse is the outbound dialect shape for a unary completion.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one generated completion.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token accounting in OpenAI's field names.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one outbound SSE data payload.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string          `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice is one streamed delta.
type StreamChoice struct {
	Index        int           `json:"index"`
	Delta        StreamDelta   `json:"delta"`
	FinishReason *string       `json:"finish_reason"`
}

// StreamDelta carries the incremental content of a streamed choice.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

func (f *Frontend) ToIR(ctx context.Context, inboundRequest interface{}) (ir.ChatRequest, error) {
	req, ok := inboundRequest.(ChatRequest)
	if !ok {
		return ir.ChatRequest{}, &ir.ValidationError{Message: "openai frontend requires an openai.ChatRequest"}
	}
	if req.Model == "" {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "messages", Message: "at least one message is required"}
	}

	out := ir.ChatRequest{
		Parameters: ir.Parameters{
			Model:            req.Model,
			Temperature:      req.Temperature,
			TopP:             req.TopP,
			MaxTokens:        req.MaxTokens,
			StopSequences:    req.Stop,
		},
		Stream:   req.Stream,
		Metadata: ir.Metadata{RequestID: uuid.NewString()},
	}

	for _, msg := range req.Messages {
		role := ir.Role(msg.Role)
		switch role {
		case ir.RoleSystem, ir.RoleUser, ir.RoleAssistant, ir.RoleTool:
		default:
			return ir.ChatRequest{}, &ir.ValidationError{Field: "messages.role", Message: fmt.Sprintf("unsupported role %q", msg.Role)}
		}
		out.Messages = append(out.Messages, ir.Message{
			Role:    role,
			Name:    msg.Name,
			Content: []ir.ContentBlock{ir.TextBlock{Text: msg.Content}},
		})
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ir.ToolDef{
			Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters,
		})
	}

	return out, nil
}

func (f *Frontend) FromIR(ctx context.Context, resp ir.ChatResponse, original interface{}) (interface{}, error) {
	return ChatResponse{
		ID:     resp.Metadata.RequestID,
		Object: "chat.completion",
		Model:  resp.Metadata.Provenance.Backend,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: string(resp.Message.Role), Content: resp.Message.Text()},
			FinishReason: string(resp.FinishReason),
		}},
		Usage: usageFromIR(resp.Usage),
	}, nil
}

func usageFromIR(u *ir.Usage) *Usage {
	if u == nil {
		return nil
	}
	return &Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

func (f *Frontend) StreamFromIR(ctx context.Context, chunks <-chan ir.StreamChunk, original interface{}) (<-chan interface{}, error) {
	out := make(chan interface{})
	go func() {
		defer close(out)
		var requestID, model string
		if req, ok := original.(ChatRequest); ok {
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
				if !send(StreamChunk{
					ID: requestID, Object: "chat.completion.chunk", Model: model,
					Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{Role: string(ir.RoleAssistant)}}},
				}) {
					return
				}
			case ir.ChunkContent:
				if !send(StreamChunk{
					ID: requestID, Object: "chat.completion.chunk", Model: model,
					Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{Content: c.Delta}}},
				}) {
					return
				}
			case ir.ChunkDone:
				reason := string(c.FinishReason)
				if !send(StreamChunk{
					ID: requestID, Object: "chat.completion.chunk", Model: model,
					Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{}, FinishReason: &reason}},
				}) {
					return
				}
				send("[DONE]")
			case ir.ChunkError:
				send(map[string]interface{}{"error": map[string]string{"message": c.ErrorText, "code": c.Code}})
				return
			}
		}
	}()
	return out, nil
}

var _ adapter.Frontend = (*Frontend)(nil)

// DecodeRequest unmarshals a raw JSON body into a ChatRequest, the shape
// ToIR expects as inboundRequest.
func DecodeRequest(body []byte) (ChatRequest, error) {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ChatRequest{}, &ir.ValidationError{Message: err.Error(), Cause: err}
	}
	return req, nil
}
