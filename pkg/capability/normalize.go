// Package capability normalizes an IR request's system messages and
// sampling parameters against a backend's declared Capabilities, so every
// backend shares one policy implementation instead of repeating it inline.
package capability

import (
	"strings"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// SystemParameter is the separate system prompt extracted from the message
// sequence when the backend's strategy calls for it.
type SystemParameter struct {
	// Single is set when the backend accepts only one system string.
	Single string
	// Multiple is set when the backend accepts an ordered list, used
	// instead of Single when SupportsMultipleSystemMessages is true.
	Multiple []string
}

// NormalizeResult is the outcome of normalizing a request for one backend.
type NormalizeResult struct {
	Request  ir.ChatRequest
	System   *SystemParameter
	Warnings []ir.Warning
}

// Normalize applies the system-message strategy and parameter-support
// policy from caps to req, returning a new request (the original is never
// mutated, per the IR's immutability contract) plus any extracted system
// parameter and warnings about dropped/truncated fields.
func Normalize(req ir.ChatRequest, caps ir.Capabilities) NormalizeResult {
	out := req.Clone()
	var warnings []ir.Warning

	systemTexts, rest := extractSystemMessages(out.Messages)

	switch caps.SystemMessageStrategy {
	case ir.SystemInMessages:
		if !caps.SupportsMultipleSystemMessages && len(systemTexts) > 1 {
			merged := ir.NewTextMessage(ir.RoleSystem, strings.Join(systemTexts, "\n\n"))
			out.Messages = append([]ir.Message{merged}, rest...)
		}
		// else: leave messages untouched, system messages stay in place.

	case ir.SystemSeparateParameter:
		out.Messages = rest
		if len(systemTexts) > 0 {
			sys := &SystemParameter{}
			if caps.SupportsMultipleSystemMessages {
				sys.Multiple = systemTexts
			} else {
				sys.Single = strings.Join(systemTexts, "\n\n")
			}
			return finish(out, sys, warnings, rest, caps)
		}

	case ir.SystemPrependedToFirstUser:
		out.Messages = rest
		if len(systemTexts) > 0 {
			joined := strings.Join(systemTexts, "\n\n")
			prependToFirstUser(out.Messages, joined)
		}

	case ir.SystemUnsupported:
		if len(systemTexts) > 0 {
			out.Messages = rest
			warnings = append(warnings, ir.Warning{
				Type:    "system-message-dropped",
				Message: "backend does not support system messages; they were removed",
			})
		}
	}

	out = normalizeParameters(out, caps, &warnings)
	return NormalizeResult{Request: out, Warnings: warnings}
}

func finish(out ir.ChatRequest, sys *SystemParameter, warnings []ir.Warning, rest []ir.Message, caps ir.Capabilities) NormalizeResult {
	out = normalizeParameters(out, caps, &warnings)
	return NormalizeResult{Request: out, System: sys, Warnings: warnings}
}

func extractSystemMessages(messages []ir.Message) (systemTexts []string, rest []ir.Message) {
	for _, m := range messages {
		if m.Role == ir.RoleSystem {
			systemTexts = append(systemTexts, m.Text())
			continue
		}
		rest = append(rest, m)
	}
	return systemTexts, rest
}

func prependToFirstUser(messages []ir.Message, prefix string) {
	for i, m := range messages {
		if m.Role == ir.RoleUser {
			messages[i].Content = append([]ir.ContentBlock{ir.TextBlock{Text: prefix + "\n\n"}}, m.Content...)
			return
		}
	}
}

// normalizeParameters truncates stop sequences to the backend's declared
// limit and records a warning for any sampling parameter the caller set
// that the backend does not support. It does not drop the parameter value
// itself; FromIR implementations are expected to simply ignore fields
// their capabilities say are unsupported.
func normalizeParameters(req ir.ChatRequest, caps ir.Capabilities, warnings *[]ir.Warning) ir.ChatRequest {
	if caps.MaxStopSequences > 0 && len(req.Parameters.StopSequences) > caps.MaxStopSequences {
		req.Parameters.StopSequences = req.Parameters.StopSequences[:caps.MaxStopSequences]
		*warnings = append(*warnings, ir.Warning{
			Type:    "truncated-stop-sequences",
			Message: "stopSequences truncated to backend's maxStopSequences",
		})
	}

	unsupported := func(name string, supported bool, set bool) {
		if set && !supported {
			*warnings = append(*warnings, ir.Warning{
				Type:    "unsupported-parameter",
				Message: name + " is not supported by this backend and was ignored",
			})
		}
	}
	unsupported("temperature", caps.SupportsTemperature, req.Parameters.Temperature != nil)
	unsupported("topP", caps.SupportsTopP, req.Parameters.TopP != nil)
	unsupported("topK", caps.SupportsTopK, req.Parameters.TopK != nil)
	unsupported("seed", caps.SupportsSeed, req.Parameters.Seed != nil)
	unsupported("frequencyPenalty", caps.SupportsFrequencyPenalty, req.Parameters.FrequencyPenalty != nil)
	unsupported("presencePenalty", caps.SupportsPresencePenalty, req.Parameters.PresencePenalty != nil)

	return req
}
