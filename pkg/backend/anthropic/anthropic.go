// Package anthropic implements the Backend contract against Anthropic's
// Messages API, streaming via named SSE events.
package anthropic

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

const (
	apiVersion       = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultMaxTokens = 1024
)

// Backend implements adapter.Backend against Anthropic's /v1/messages
// endpoint.
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

// New builds an Anthropic Backend. A zero-value BaseURL falls back to the
// public API; a nil Client falls back to http.DefaultClient.
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
		Name:     "anthropic",
		Version:  apiVersion,
		Provider: "anthropic",
		Capabilities: ir.Capabilities{
			Streaming:                      true,
			MultiModal:                     true,
			Tools:                          true,
			MaxContextTokens:               200000,
			SystemMessageStrategy:          ir.SystemSeparateParameter,
			SupportsMultipleSystemMessages: true,
			SupportsTemperature:            true,
			SupportsTopP:                   true,
			SupportsTopK:                   true,
			MaxStopSequences:               4,
		},
	}
}

// --- wire types ---

type wireRequest struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	System        string          `json:"system,omitempty"`
	Messages      []wireMessage   `json:"messages"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []wireTool      `json:"tools,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema interface{} `json:"input_schema"`
}

type wireResponse struct {
	ID         string      `json:"id"`
	Content    []wireBlock `json:"content"`
	Model      string      `json:"model"`
	StopReason string      `json:"stop_reason"`
	Usage      wireUsage   `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func toWireRequest(req ir.ChatRequest) wireRequest {
	wr := wireRequest{Model: req.Parameters.Model}

	var systemParts []string
	for _, msg := range req.Messages {
		if msg.Role == ir.RoleSystem {
			systemParts = append(systemParts, msg.Text())
			continue
		}
		wr.Messages = append(wr.Messages, wireMessage{
			Role:    string(msg.Role),
			Content: toWireBlocks(msg.Content),
		})
	}
	if len(systemParts) > 0 {
		wr.System = strings.Join(systemParts, "\n")
	}

	if req.Parameters.MaxTokens != nil {
		wr.MaxTokens = *req.Parameters.MaxTokens
	} else {
		wr.MaxTokens = defaultMaxTokens
	}
	wr.Temperature = req.Parameters.Temperature
	wr.TopP = req.Parameters.TopP
	wr.TopK = req.Parameters.TopK
	wr.StopSequences = req.Parameters.StopSequences

	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	return wr
}

func toWireBlocks(blocks []ir.ContentBlock) []wireBlock {
	out := make([]wireBlock, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case ir.TextBlock:
			out = append(out, wireBlock{Type: "text", Text: v.Text})
		case ir.ToolUseBlock:
			out = append(out, wireBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: v.Input})
		case ir.ToolResultBlock:
			out = append(out, wireBlock{Type: "tool_result", ToolUseID: v.ToolCallID, Content: v.Content, IsError: v.IsError})
		case ir.ImageBlock:
			out = append(out, wireBlock{Type: "text", Text: fmt.Sprintf("[image: %s]", v.URL)})
		}
	}
	return out
}

func fromWireResponse(wr wireResponse, latency time.Duration) ir.ChatResponse {
	var blocks []ir.ContentBlock
	for _, block := range wr.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, ir.TextBlock{Text: block.Text})
		case "tool_use":
			blocks = append(blocks, ir.ToolUseBlock{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}

	return ir.ChatResponse{
		Message:      ir.Message{Role: ir.RoleAssistant, Content: blocks},
		FinishReason: finishReasonFromStop(wr.StopReason),
		Usage: &ir.Usage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		},
		Raw: wr,
	}
}

func finishReasonFromStop(stop string) ir.FinishReason {
	switch stop {
	case "end_turn", "stop_sequence":
		return ir.FinishStop
	case "max_tokens":
		return ir.FinishLength
	case "tool_use":
		return ir.FinishToolCalls
	default:
		return ir.FinishStop
	}
}

func (b *Backend) provenance() ir.Provenance { return ir.Provenance{Backend: "anthropic"} }

func (b *Backend) Execute(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
	start := time.Now()
	wr := toWireRequest(req)

	body, err := json.Marshal(wr)
	if err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/messages", bytes.NewReader(body))
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

	out := fromWireResponse(wresp, time.Since(start))
	out.Metadata = req.Metadata
	out.Metadata.Provenance.Backend = "anthropic"
	return out, nil
}

func (b *Backend) ExecuteStream(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
	wr := toWireRequest(req)
	wr.Stream = true

	body, err := json.Marshal(wr)
	if err != nil {
		return nil, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	b.setHeaders(httpReq)

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

		var (
			model        string
			inputTokens  int
			outputTokens int
			stopReason   string
			accumulated  strings.Builder
		)

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

			var event wireStreamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				emit(ir.StreamChunk{Type: ir.ChunkError, Code: "decode_error", ErrorText: err.Error()})
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Text == "" {
					continue
				}
				accumulated.WriteString(event.Delta.Text)
				chunk := ir.StreamChunk{Type: ir.ChunkContent, Delta: event.Delta.Text}
				if req.StreamMode == ir.StreamModeAccumulated {
					chunk.Accumulated = accumulated.String()
				}
				if !emit(chunk) {
					return
				}
			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					stopReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				emit(ir.StreamChunk{
					Type:         ir.ChunkDone,
					FinishReason: finishReasonFromStop(stopReason),
					Usage: &ir.Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					},
					Message: &ir.Message{Role: ir.RoleAssistant, Content: []ir.ContentBlock{ir.TextBlock{Text: accumulated.String()}}},
				})
				_ = model
				return
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

type wireStreamEvent struct {
	Type    string              `json:"type"`
	Message *wireStreamMessage  `json:"message,omitempty"`
	Delta   *wireStreamDelta    `json:"delta,omitempty"`
	Usage   *wireUsage          `json:"usage,omitempty"`
}

type wireStreamMessage struct {
	ID    string    `json:"id"`
	Model string    `json:"model"`
	Usage wireUsage `json:"usage"`
}

type wireStreamDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (b *Backend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
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

func (b *Backend) ListModels(ctx context.Context, filter adapter.ListModelsFilter) (adapter.ListModelsResult, error) {
	models := []adapter.ModelInfo{
		{ID: "claude-opus-4-1", DisplayName: "Claude Opus 4.1"},
		{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5"},
		{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5"},
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
	return float64(tokens) * 0.000015, nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/messages", bytes.NewReader([]byte(`{"model":"claude-haiku-4-5","max_tokens":1,"messages":[]}`)))
	if err != nil {
		return &ir.NetworkError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	b.setHeaders(httpReq)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, decodeErrorMessage(body), nil, nil)
	}
	return nil
}

var _ adapter.Backend = (*Backend)(nil)
