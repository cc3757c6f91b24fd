package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corebridge/llmgateway/pkg/ir"
	"github.com/corebridge/llmgateway/pkg/schema"
)

const defaultToolName = "extract"

// Result is the outcome of a completed (non-streaming) structured-output
// generation: the validated value, the raw text it was extracted from, and
// any warnings accumulated along the way.
type Result struct {
	Data     interface{}
	Raw      string
	Warnings []ir.Warning
}

// PrepareRequest rewrites req so the backend is asked to produce output
// matching spec, applying the mode-specific request strategy.
func PrepareRequest(req ir.ChatRequest, spec ir.SchemaSpec) ir.ChatRequest {
	out := req.Clone()
	out.Schema = &spec

	name := spec.Name
	if name == "" {
		name = defaultToolName
	}

	switch spec.Mode {
	case ir.SchemaModeTools:
		out.Tools = append(out.Tools, ir.ToolDef{
			Name:        name,
			Description: spec.Description,
			Parameters:  spec.JSONSchema,
		})
		out.ToolChoice = &ir.ToolChoice{Mode: ir.ToolChoiceNamed, Name: name}

	case ir.SchemaModeJSON, ir.SchemaModeJSONSchema:
		out = prependSchemaSystemMessage(out, spec, false)
		if spec.Mode == ir.SchemaModeJSONSchema {
			if out.Parameters.Custom == nil {
				out.Parameters.Custom = map[string]interface{}{}
			}
			out.Parameters.Custom["response_format"] = map[string]interface{}{
				"type": "json_schema",
				"json_schema": map[string]interface{}{
					"name":   name,
					"schema": spec.JSONSchema,
				},
			}
		}
		out = zeroDefaultTemperature(out)

	case ir.SchemaModeMarkdownJSON:
		out = prependSchemaSystemMessage(out, spec, true)
		out = zeroDefaultTemperature(out)
	}

	return out
}

func prependSchemaSystemMessage(req ir.ChatRequest, spec ir.SchemaSpec, fenced bool) ir.ChatRequest {
	schemaJSON, _ := json.MarshalIndent(spec.JSONSchema, "", "  ")
	var instruction string
	if fenced {
		instruction = fmt.Sprintf(
			"Respond with a single fenced ```json code block containing a JSON value matching this schema:\n%s",
			schemaJSON)
	} else {
		instruction = fmt.Sprintf(
			"Respond with only a raw JSON value (no prose, no markdown) matching this schema:\n%s",
			schemaJSON)
	}
	sysMsg := ir.NewTextMessage(ir.RoleSystem, instruction)
	req.Messages = append([]ir.Message{sysMsg}, req.Messages...)
	return req
}

func zeroDefaultTemperature(req ir.ChatRequest) ir.ChatRequest {
	if req.Parameters.Temperature == nil {
		zero := 0.0
		req.Parameters.Temperature = &zero
	} else if *req.Parameters.Temperature < 0 {
		zero := 0.0
		req.Parameters.Temperature = &zero
	}
	return req
}

// ExtractRaw pulls the raw JSON text a response carries for spec's mode,
// without parsing or validating it.
func ExtractRaw(resp ir.ChatResponse, spec ir.SchemaSpec) (string, error) {
	name := spec.Name
	if name == "" {
		name = defaultToolName
	}

	switch spec.Mode {
	case ir.SchemaModeTools:
		for _, block := range resp.Message.Content {
			if tu, ok := block.(ir.ToolUseBlock); ok && (tu.Name == name || name == defaultToolName) {
				return string(tu.Input), nil
			}
		}
		return "", &ir.ValidationError{Message: "no matching tool_use block in response"}

	case ir.SchemaModeJSON, ir.SchemaModeJSONSchema:
		return resp.Message.Text(), nil

	case ir.SchemaModeMarkdownJSON:
		text := resp.Message.Text()
		if block, ok := extractFencedJSON(text); ok {
			return block, nil
		}
		if obj, ok := extractBalancedObject(text); ok {
			return obj, nil
		}
		return "", &ir.ValidationError{Message: "no JSON block found in markdown response"}

	default:
		return "", &ir.ValidationError{Message: fmt.Sprintf("unknown schema mode %q", spec.Mode)}
	}
}

func extractFencedJSON(text string) (string, bool) {
	const fence = "```json"
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractBalancedObject returns the first balanced {...} substring of text,
// tracking string/escape state the same way RepairJSON does.
func extractBalancedObject(text string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// Generate runs the complete non-streaming flow: extract the raw value per
// spec's mode, parse it, and validate it against validator.
func Generate(resp ir.ChatResponse, spec ir.SchemaSpec, validator schema.Validator) (Result, error) {
	raw, err := ExtractRaw(resp, spec)
	if err != nil {
		return Result{}, err
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Result{}, &ir.ValidationError{Message: "structured output is not valid JSON: " + err.Error(), Cause: err}
	}

	if validator != nil {
		if err := validator.Validate(value); err != nil {
			return Result{}, &ir.ValidationError{Message: err.Error(), Cause: err}
		}
	}

	return Result{Data: value, Raw: raw, Warnings: resp.Warnings}, nil
}

// PartialResult is one element of the progressive stream StreamPartials
// produces: the best-effort merged value so far, and (only on the final
// element) the validated terminal value or error.
type PartialResult struct {
	Partial interface{}
	Done    bool
	Final   interface{}
	Err     error
}

// StreamPartials accumulates text deltas from chunks, re-parsing and
// deep-merging after every delta so the caller can render an
// increasingly-complete value as it arrives. Only SchemaModeJSON,
// SchemaModeJSONSchema, and SchemaModeMarkdownJSON produce meaningful
// partials mid-stream; SchemaModeTools input typically only becomes valid
// JSON once the tool call completes, so partials there are best-effort.
// On ir.ChunkDone the fully accumulated text is validated against validator;
// on ir.ChunkError no validation runs and Err holds an *ir.StreamError. In
// both cases one final PartialResult with Done set is emitted and the
// channel is closed.
func StreamPartials(chunks <-chan ir.StreamChunk, spec ir.SchemaSpec, validator schema.Validator) <-chan PartialResult {
	out := make(chan PartialResult)

	go func() {
		defer close(out)

		var accumulated string
		var merged interface{}

		for chunk := range chunks {
			switch chunk.Type {
			case ir.ChunkContent:
				accumulated += chunk.Delta
				text := accumulated
				if spec.Mode == ir.SchemaModeMarkdownJSON {
					if block, ok := extractFencedJSON(text); ok {
						text = block
					} else if obj, ok := extractBalancedObject(text); ok {
						text = obj
					} else {
						continue
					}
				}
				r := ParsePartialJSON(text)
				if r.State != ParseSuccessful && r.State != ParseRepaired {
					continue
				}
				merged = DeepMerge(merged, r.Value)
				out <- PartialResult{Partial: merged}

			case ir.ChunkToolCallDelta:
				accumulated += chunk.InputDelta
				r := ParsePartialJSON(accumulated)
				if r.State != ParseSuccessful && r.State != ParseRepaired {
					continue
				}
				merged = DeepMerge(merged, r.Value)
				out <- PartialResult{Partial: merged}

			case ir.ChunkDone:
				final, err := finalizeStream(accumulated, spec, validator)
				out <- PartialResult{Partial: merged, Done: true, Final: final, Err: err}
				return

			case ir.ChunkError:
				out <- PartialResult{Partial: merged, Done: true, Err: &ir.StreamError{Message: chunk.ErrorText}}
				return
			}
		}
	}()

	return out
}

func finalizeStream(accumulated string, spec ir.SchemaSpec, validator schema.Validator) (interface{}, error) {
	text := accumulated
	if spec.Mode == ir.SchemaModeMarkdownJSON {
		if block, ok := extractFencedJSON(text); ok {
			text = block
		} else if obj, ok := extractBalancedObject(text); ok {
			text = obj
		}
	}

	var value interface{}
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, &ir.ValidationError{Message: "structured output is not valid JSON: " + err.Error(), Cause: err}
	}
	if validator != nil {
		if err := validator.Validate(value); err != nil {
			return nil, &ir.ValidationError{Message: err.Error(), Cause: err}
		}
	}
	return value, nil
}
