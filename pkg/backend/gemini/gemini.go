// Package gemini implements the Backend contract against Google's Gemini
// generateContent/streamGenerateContent API, using the alt=sse streaming
// flavor.
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Backend implements adapter.Backend against Gemini's content-generation API.
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

// New builds a Gemini Backend.
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
		Name:     "gemini",
		Version:  "v1beta",
		Provider: "gemini",
		Capabilities: ir.Capabilities{
			Streaming:             true,
			MultiModal:            true,
			Tools:                 false,
			MaxContextTokens:      1000000,
			SystemMessageStrategy: ir.SystemSeparateParameter,
			SupportsTemperature:   true,
			SupportsTopP:          true,
			SupportsTopK:          true,
			MaxStopSequences:      5,
		},
	}
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text string `json:"text"`
}

type wireGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type wireUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireResponse struct {
	Candidates    []wireCandidate    `json:"candidates"`
	UsageMetadata *wireUsageMetadata `json:"usageMetadata"`
}

func toWireRequest(req ir.ChatRequest) wireRequest {
	wr := wireRequest{}

	for _, msg := range req.Messages {
		text := msg.Text()
		if msg.Role == ir.RoleSystem {
			if wr.SystemInstruction == nil {
				wr.SystemInstruction = &wireContent{Parts: []wirePart{{Text: text}}}
			} else {
				wr.SystemInstruction.Parts = append(wr.SystemInstruction.Parts, wirePart{Text: text})
			}
			continue
		}

		role := string(msg.Role)
		if msg.Role == ir.RoleAssistant {
			role = "model"
		}
		wr.Contents = append(wr.Contents, wireContent{Role: role, Parts: []wirePart{{Text: text}}})
	}

	cfg := &wireGenerationConfig{
		Temperature:   req.Parameters.Temperature,
		TopP:          req.Parameters.TopP,
		TopK:          req.Parameters.TopK,
		StopSequences: req.Parameters.StopSequences,
	}
	if req.Parameters.MaxTokens != nil {
		cfg.MaxOutputTokens = *req.Parameters.MaxTokens
	}
	wr.GenerationConfig = cfg

	return wr
}

func finishReasonFromWire(reason string) ir.FinishReason {
	switch strings.ToUpper(reason) {
	case "STOP":
		return ir.FinishStop
	case "MAX_TOKENS":
		return ir.FinishLength
	case "SAFETY", "RECITATION":
		return ir.FinishContentFilter
	default:
		return ir.FinishStop
	}
}

func (b *Backend) provenance() ir.Provenance { return ir.Provenance{Backend: "gemini"} }

func (b *Backend) url(model, action string, extraQuery string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s%s", b.baseURL, model, action, b.apiKey, extraQuery)
}

func (b *Backend) Execute(ctx context.Context, req ir.ChatRequest) (ir.ChatResponse, error) {
	wr := toWireRequest(req)
	body, err := json.Marshal(wr)
	if err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url(req.Parameters.Model, "generateContent", ""), bytes.NewReader(body))
	if err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		return ir.ChatResponse{}, ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, string(respBody), retryAfterFrom(resp.Header), nil)
	}

	var wresp wireResponse
	if err := json.Unmarshal(respBody, &wresp); err != nil {
		return ir.ChatResponse{}, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	if len(wresp.Candidates) == 0 {
		return ir.ChatResponse{}, &ir.ProviderError{Provenance: b.provenance(), StatusCode: resp.StatusCode, Message: "gemini returned no candidates"}
	}

	candidate := wresp.Candidates[0]
	var text string
	if len(candidate.Content.Parts) > 0 {
		text = candidate.Content.Parts[0].Text
	}

	out := ir.ChatResponse{
		Message:      ir.Message{Role: ir.RoleAssistant, Content: []ir.ContentBlock{ir.TextBlock{Text: text}}},
		FinishReason: finishReasonFromWire(candidate.FinishReason),
		Metadata:     req.Metadata,
		Raw:          wresp,
	}
	out.Metadata.Provenance.Backend = "gemini"
	if wresp.UsageMetadata != nil {
		out.Usage = &ir.Usage{
			PromptTokens:     wresp.UsageMetadata.PromptTokenCount,
			CompletionTokens: wresp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wresp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func (b *Backend) ExecuteStream(ctx context.Context, req ir.ChatRequest) (<-chan ir.StreamChunk, error) {
	wr := toWireRequest(req)
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url(req.Parameters.Model, "streamGenerateContent", "&alt=sse"), bytes.NewReader(body))
	if err != nil {
		return nil, &ir.AdapterConversionError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(resp.Body)
		return nil, ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, string(errBody), retryAfterFrom(resp.Header), nil)
	}

	ch := make(chan ir.StreamChunk)
	var seq ir.Sequencer

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var accumulated strings.Builder

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

			var wresp wireResponse
			if err := json.Unmarshal([]byte(payload), &wresp); err != nil {
				emit(ir.StreamChunk{Type: ir.ChunkError, Code: "decode_error", ErrorText: err.Error()})
				return
			}
			if len(wresp.Candidates) == 0 {
				continue
			}
			candidate := wresp.Candidates[0]

			var delta string
			if len(candidate.Content.Parts) > 0 {
				delta = candidate.Content.Parts[0].Text
			}
			if delta != "" {
				accumulated.WriteString(delta)
				chunk := ir.StreamChunk{Type: ir.ChunkContent, Delta: delta}
				if req.StreamMode == ir.StreamModeAccumulated {
					chunk.Accumulated = accumulated.String()
				}
				if !emit(chunk) {
					return
				}
			}

			if candidate.FinishReason != "" {
				done := ir.StreamChunk{
					Type:         ir.ChunkDone,
					FinishReason: finishReasonFromWire(candidate.FinishReason),
					Message:      &ir.Message{Role: ir.RoleAssistant, Content: []ir.ContentBlock{ir.TextBlock{Text: accumulated.String()}}},
				}
				if wresp.UsageMetadata != nil {
					done.Usage = &ir.Usage{
						PromptTokens:     wresp.UsageMetadata.PromptTokenCount,
						CompletionTokens: wresp.UsageMetadata.CandidatesTokenCount,
						TotalTokens:      wresp.UsageMetadata.TotalTokenCount,
					}
				}
				emit(done)
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
		{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro"},
		{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash"},
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
	return float64(tokens) * 0.0000035, nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/models?key=%s", b.baseURL, b.apiKey), nil)
	if err != nil {
		return &ir.NetworkError{Provenance: b.provenance(), Message: err.Error(), Cause: err}
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ir.ClassifyHTTPError(b.provenance(), 0, "", nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return ir.ClassifyHTTPError(b.provenance(), resp.StatusCode, string(body), nil, nil)
	}
	return nil
}

var _ adapter.Backend = (*Backend)(nil)
