// Package openai implements the Backend contract against OpenAI's chat
// completions API: translate, POST, decode, translate back. Streaming is
// one JSON object per SSE data line, terminated by a literal "[DONE]".
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corebridge/llmgateway/pkg/adapter"
	"github.com/corebridge/llmgateway/pkg/ir"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Backend implements adapter.Backend against OpenAI's /v1/chat/completions.
type Backend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Config configures a Backend.
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// New builds an OpenAI Backend.
func New(cfg Config) *Backend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{apiKey: cfg.APIKey, baseURL: baseURL, client: client}
}

func (b *Backend) Metadata() ir.AdapterMetadata {
	return ir.AdapterMetadata{
		Name:     "openai",
		Version:  "v1",
		Provider: "openai",
		Capabilities: ir.Capabilities{
			Streaming:                      true,
			MultiModal:                     true,
			Tools:                          true,
			MaxContextTokens:               128000,
			SystemMessageStrategy:          ir.SystemInMessages,
			SupportsMultipleSystemMessages: true,
			SupportsTemperature:            true,
			SupportsTopP:                   true,
			SupportsFrequencyPenalty:       true,
			SupportsPresencePenalty:        true,
			SupportsSeed:                   true,
			MaxStopSequences:               4,
		},
	}
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFuncSpec `json:"function"`
}

type wireToolFuncSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters"`
}

type wireRequest struct {
	Model            string          `json:"model"`
	Messages         []wireMessage   `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Seed             *int64          `json:"seed,omitempty"`
	Tools            []wireTool      `json:"tools,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type wireStreamChoiceDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireStreamChoice struct {
	Index        int                   `json:"index"`
	Delta        wireStreamChoiceDelta `json:"delta"`
	FinishReason *string               `json:"finish_reason"`
}

type wireStreamChunk struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage"`
}

func toWireRequest(req ir.ChatRequest) wireRequest {
	wr := wireRequest{Model: req.Parameters.Model}
	for _, msg := range req.Messages {
		wr.Messages = append(wr.Messages, toWireMessage(msg))
	}
	wr.Temperature = req.Parameters.Temperature
	wr.TopP = req.Parameters.TopP
	wr.MaxTokens = req.Parameters.MaxTokens
	wr.FrequencyPenalty = req.Parameters.FrequencyPenalty
	wr.PresencePenalty = req.Parameters.PresencePenalty
	wr.Stop = req.Parameters.StopSequences
	wr.Seed = req.Parameters.Seed

	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Type: "function", Function: wireToolFuncSpec{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	return wr
}

func toWireMessage(msg ir.Message) wireMessage {
	wm := wireMessage{Role: string(msg.Role), Name: msg.Name}
	for _, b := range msg.Content {
		switch v := b.(type) {
		case ir.TextBlock:
			wm.Content += v.Text
		case ir.ToolUseBlock:
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID: v.ID, Type: "function",
				Function: wireToolFunction{Name: v.Name, Arguments: string(v.Input)},
			})
		case ir.ToolResultBlock:
			wm.ToolCallID = v.ToolCallID
			wm.Content = v.Content
		case ir.ImageBlock:
			wm.Content += fmt.Sprintf("[image: %s]", v.URL)
		}
	}
	return wm
}

func finishReasonFromWire(reason string) ir.FinishReason {
	switch reason {
	case "stop":
		return ir.FinishStop
	case "length":
		return ir.FinishLength
	case "tool_calls", "function_call":
		return ir.FinishToolCalls
	case "content_filter":
		return ir.FinishContentFilter
	default:
		return ir.FinishStop
	}
}

func fromWireResponse(wr wireResponse) ir.ChatResponse {
	var msg ir.Message
	finish := ir.FinishStop
	if len(wr.Choices) > 0 {
		choice := wr.Choices[0]
		finish = finishReasonFromWire(choice.FinishReason)
		msg.Role = ir.RoleAssistant
		if choice.Message.Content != "" {
			msg.Content = append(msg.Content, ir.TextBlock{Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.Content = append(msg.Content, ir.ToolUseBlock{
				ID: tc.ID, Name: tc.Function.Name, Input: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	return ir.ChatResponse{
		Message:      msg,
		FinishReason: finish,
		Usage: &ir.Usage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		},
		Raw: wr,
	}
}

func (b *Backend) provenance() ir.Provenance { return ir.Provenance{Backend: "openai"} }

func (b *Backend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
}

func decodeErrorMessage(body []byte) string {
	var env wireErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return string(body)
}

func retryAfterFrom(h http.Header) *time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return nil
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return &secs
	}
	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func (b *Backend) Execute(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
	wr := toWireRequest(req)
	body, err := json.Marshal(wr)
	if err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ir.ChatResponse{}, ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ir.ChatResponse{}, ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	if resp.StatusCode != http.StatusOK {
		return ir.ChatResponse{}, ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, decodeErrorMessage(respBody), retryAfterFrom(resp.Header), nil)
	}

	var wresp wireResponse
	if err := json.Unmarshal(respBody, &wresp); err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	out := fromWireResponse(wresp)
	out.Metadata = req.Metadata
	out.Metadata.Provenance.Backend = "openai"
	return out, nil
}

func (b *Backend) ExecuteStream(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
	wr := toWireRequest(req)
	wr.Stream = true
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	b.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(resp.Body)
		return nil, ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, decodeErrorMessage(errBody), retryAfterFrom(resp.Header), nil)
	}

	ch := make(chan ir.StreamChunk)
	var seq ir.Sequencer

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var accumulated strings.Builder
		var usage *ir.Usage
		finish := ir.FinishStop

		emit := func(c ir.StreamChunk) bool {
			c.Sequence = seq.Next()
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		emit(ir.StreamChunk{Type: ir.ChunkStart, Metadata: &req.Metadata})

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				emit(ir.StreamChunk{
					Type:         ir.ChunkDone,
					FinishReason: finish,
					Usage:        usage,
					Message:      &ir.Message{Role: ir.RoleAssistant, Content: []ir.ContentBlock{ir.TextBlock{Text: accumulated.String()}}},
				})
				return
			}

			var chunk wireStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				emit(ir.StreamChunk{Type: ir.ChunkError, Code: "decode_error", ErrorText: err.Error()})
				return
			}
			if chunk.Usage != nil {
				usage = &ir.Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != nil {
				finish = finishReasonFromWire(*choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				accumulated.WriteString(choice.Delta.Content)
				out := ir.StreamChunk{Type: ir.ChunkContent, Delta: choice.Delta.Content}
				if req.StreamMode == ir.StreamModeAccumulated {
					out.Accumulated = accumulated.String()
				}
				if !emit(out) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				if !emit(ir.StreamChunk{
					Type:       ir.ChunkToolCallDelta,
					ToolCallID: tc.ID,
					ToolName:   tc.Function.Name,
					InputDelta: tc.Function.Arguments,
				}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			emit(ir.StreamChunk{Type: ir.ChunkError, Code: "stream_read_error", ErrorText: err.Error()})
		} else {
			emit(ir.StreamChunk{Type: ir.ChunkError, Code: "unexpected_eof", ErrorText: "stream ended without a terminal event"})
		}
	}()

	return ch, nil
}

func (b *Backend) ListModels(ctx context.Context, filter adapter.ListModelsFilter) (adapter.ListModelsResult, error) {
	models := []adapter.ModelInfo{
		{ID: "gpt-4o", DisplayName: "GPT-4o"},
		{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini"},
		{ID: "o3", DisplayName: "o3"},
	}
	if filter.Prefix != "" {
		var filtered []adapter.ModelInfo
		for _, m := range models {
			if strings.HasPrefix(m.ID, filter.Prefix) {
				filtered = append(filtered, m)
			}
		}
		models = filtered
	}
	return adapter.ListModelsResult{Models: models, Source: adapter.ModelSourceStatic}, nil
}

func (b *Backend) EstimateCost(req ir.ChatRequest) (float64, error) {
	tokens := 0
	for _, m := range req.Messages {
		tokens += ir.EstimateTokens(m.Text())
	}
	return float64(tokens) * 0.00001, nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return &ir.NetworkError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, decodeErrorMessage(body), nil, nil)
	}
	return nil
}

var _ adapter.Backend = (*Backend)(nil)
