// Package toolloop repeatedly drives a Bridge through a tool-calling
// conversation until the model stops requesting tools or a round ceiling
// is hit.
package toolloop

import (
	"context"
	"encoding/json"

	"github.com/corebridge/llmgateway/pkg/bridge"
	"github.com/corebridge/llmgateway/pkg/ir"
)

// ToolExecutor runs one tool call and returns its result content (or an
// error, which is recorded as an error tool result rather than aborting
// the loop).
type ToolExecutor func(ctx context.Context, call ir.ToolUseBlock) (string, error)

// StepResult captures one round of the loop: the assistant response that
// round produced and the tool results fed back for the next round, if any.
type StepResult struct {
	Response    ir.ChatResponse
	ToolResults []ir.ToolResultBlock
}

// Result is the accumulated outcome of a Run.
type Result struct {
	Steps        []StepResult
	FinalMessage ir.Message
	FinishReason ir.FinishReason
	RoundsUsed   int
	// MaxRoundsHit is true when the loop stopped because it reached
	// maxRounds, not because the model stopped calling tools.
	MaxRoundsHit bool
}

// Run drives req through bridge repeatedly: each round appends the
// assistant's response to the conversation, and if its FinishReason is
// ir.FinishToolCalls, invokes executor for every ir.ToolUseBlock in the
// response and appends a tool message with the results before looping.
// The loop stops when FinishReason != FinishToolCalls or maxRounds rounds
// have run, whichever comes first.
func Run(ctx context.Context, b *bridge.Bridge, req ir.ChatRequest, executor ToolExecutor, maxRounds int) (Result, error) {
	if maxRounds <= 0 {
		maxRounds = 1
	}

	conversation := req.Clone()
	result := Result{}

	for round := 0; round < maxRounds; round++ {
		resp, err := b.ChatIR(ctx, conversation)
		if err != nil {
			return result, err
		}

		conversation.Messages = append(conversation.Messages, resp.Message)
		result.RoundsUsed++
		result.FinalMessage = resp.Message
		result.FinishReason = resp.FinishReason

		if resp.FinishReason != ir.FinishToolCalls {
			result.Steps = append(result.Steps, StepResult{Response: resp})
			return result, nil
		}

		calls := toolCalls(resp.Message)
		if len(calls) == 0 {
			result.Steps = append(result.Steps, StepResult{Response: resp})
			return result, nil
		}

		toolResults := make([]ir.ToolResultBlock, 0, len(calls))
		for _, call := range calls {
			content, err := executor(ctx, call)
			if err != nil {
				toolResults = append(toolResults, ir.ToolResultBlock{ToolCallID: call.ID, Content: err.Error(), IsError: true})
				continue
			}
			toolResults = append(toolResults, ir.ToolResultBlock{ToolCallID: call.ID, Content: content})
		}

		result.Steps = append(result.Steps, StepResult{Response: resp, ToolResults: toolResults})

		toolMsg := ir.Message{Role: ir.RoleTool}
		for _, tr := range toolResults {
			toolMsg.Content = append(toolMsg.Content, tr)
		}
		conversation.Messages = append(conversation.Messages, toolMsg)

		if round == maxRounds-1 {
			result.MaxRoundsHit = true
		}
	}

	return result, nil
}

func toolCalls(msg ir.Message) []ir.ToolUseBlock {
	var calls []ir.ToolUseBlock
	for _, b := range msg.Content {
		if tu, ok := b.(ir.ToolUseBlock); ok {
			calls = append(calls, tu)
		}
	}
	return calls
}

// DecodeArguments is a convenience helper for executors: it unmarshals a
// tool call's raw JSON input into dst.
func DecodeArguments(call ir.ToolUseBlock, dst interface{}) error {
	return json.Unmarshal(call.Input, dst)
}
