// Package gemini implements the Frontend contract for Google's
// generateContent-shaped dialect: inbound/outbound JSON bit-compatible
// with the public models/{model}:generateContent contract. The model name
// rides in the URL rather than the body, so GenerateRequest carries it as
// an out-of-band field the HTTP layer fills from the path.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/google/uuid"
)

// Frontend converts between Gemini's generate-content dialect and IR.
type Frontend struct{}

// New returns a ready-to-use Gemini Frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Metadata() ir.AdapterMetadata {
	return ir.AdapterMetadata{Name: "gemini", Version: "v1beta", Provider: "gemini"}
}

// GenerateRequest is the inbound dialect shape for
// models/{model}:generateContent. Model and Stream never appear in the
// JSON body; the URL path and action suffix supply them.
type GenerateRequest struct {
	Model             string            `json:"-"`
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Stream            bool              `json:"-"`
}

// Content is one conversation turn, role "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of a turn's content.
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig holds the dialect's sampling controls.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// GenerateResponse is the outbound dialect shape, both for unary responses
// and for each streamed chunk.
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// Candidate is one generated completion.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// UsageMetadata reports token accounting in Gemini's field names.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (f *Frontend) ToIR(ctx context.Context, inboundRequest interface{}) (ir.ChatRequest, error) {
	req, ok := inboundRequest.(GenerateRequest)
	if !ok {
		return ir.ChatRequest{}, &ir.ValidationError{Message: "gemini frontend requires a gemini.GenerateRequest"}
	}
	if req.Model == "" {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Contents) == 0 {
		return ir.ChatRequest{}, &ir.ValidationError{Field: "contents", Message: "at least one content is required"}
	}

	out := ir.ChatRequest{
		Parameters: ir.Parameters{Model: req.Model},
		Stream:     req.Stream,
		Metadata:   ir.Metadata{RequestID: uuid.NewString()},
	}
	if cfg := req.GenerationConfig; cfg != nil {
		out.Parameters.Temperature = cfg.Temperature
		out.Parameters.TopP = cfg.TopP
		out.Parameters.TopK = cfg.TopK
		out.Parameters.StopSequences = cfg.StopSequences
		if cfg.MaxOutputTokens > 0 {
			maxTokens := cfg.MaxOutputTokens
			out.Parameters.MaxTokens = &maxTokens
		}
	}

	if req.SystemInstruction != nil {
		out.Messages = append(out.Messages, ir.NewTextMessage(ir.RoleSystem, joinParts(req.SystemInstruction.Parts)))
	}
	for _, c := range req.Contents {
		var role ir.Role
		switch c.Role {
		case "user", "":
			role = ir.RoleUser
		case "model":
			role = ir.RoleAssistant
		default:
			return ir.ChatRequest{}, &ir.ValidationError{Field: "contents.role", Message: fmt.Sprintf("unsupported role %q", c.Role)}
		}
		msg := ir.Message{Role: role}
		for _, p := range c.Parts {
			msg.Content = append(msg.Content, ir.TextBlock{Text: p.Text})
		}
		out.Messages = append(out.Messages, msg)
	}

	return out, nil
}

func joinParts(parts []Part) string {
	var texts []string
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n")
}

func (f *Frontend) FromIR(ctx context.Context, resp ir.ChatResponse, original interface{}) (interface{}, error) {
	return GenerateResponse{
		Candidates: []Candidate{{
			Content:      Content{Role: "model", Parts: []Part{{Text: resp.Message.Text()}}},
			FinishReason: finishReasonToWire(resp.FinishReason),
		}},
		UsageMetadata: usageFromIR(resp.Usage),
		ModelVersion:  resp.Metadata.Provenance.Backend,
	}, nil
}

func finishReasonToWire(reason ir.FinishReason) string {
	switch reason {
	case ir.FinishLength:
		return "MAX_TOKENS"
	case ir.FinishContentFilter:
		return "SAFETY"
	case ir.FinishError:
		return "OTHER"
	default:
		return "STOP"
	}
}

func usageFromIR(u *ir.Usage) *UsageMetadata {
	if u == nil {
		return nil
	}
	return &UsageMetadata{
		PromptTokenCount:     u.PromptTokens,
		CandidatesTokenCount: u.CompletionTokens,
		TotalTokenCount:      u.TotalTokens,
	}
}

// StreamFromIR re-emits IR chunks as GenerateResponse values, the same
// shape Gemini's alt=sse stream sends: each content delta is a candidate
// with partial text, the terminal chunk carries finishReason and usage.
// The dialect has no explicit start event, so the start chunk produces no
// output.
func (f *Frontend) StreamFromIR(ctx context.Context, chunks <-chan ir.StreamChunk, original interface{}) (<-chan interface{}, error) {
	out := make(chan interface{})
	go func() {
		defer close(out)

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
			case ir.ChunkContent:
				if !send(GenerateResponse{
					Candidates: []Candidate{{Content: Content{Role: "model", Parts: []Part{{Text: c.Delta}}}}},
				}) {
					return
				}
			case ir.ChunkDone:
				send(GenerateResponse{
					Candidates: []Candidate{{
						Content:      Content{Role: "model", Parts: []Part{}},
						FinishReason: finishReasonToWire(c.FinishReason),
					}},
					UsageMetadata: usageFromIR(c.Usage),
				})
			case ir.ChunkError:
				send(map[string]interface{}{
					"error": map[string]interface{}{"code": 500, "message": c.ErrorText, "status": c.Code},
				})
				return
			}
		}
	}()
	return out, nil
}

var _ adapter.Frontend = (*Frontend)(nil)

// DecodeRequest unmarshals a raw JSON body into a GenerateRequest, the
// shape ToIR expects as inboundRequest. Model and Stream come from the URL,
// not the body, so the caller sets them afterwards.
func DecodeRequest(body []byte) (GenerateRequest, error) {
	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GenerateRequest{}, &ir.ValidationError{Message: err.Error(), Cause: err}
	}
	return req, nil
}
