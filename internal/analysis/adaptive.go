package analysis

import (
	"context"
	"fmt"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/source"
)

// adaptiveStrategy starts from the shallow structure and lets the service
// read source on demand until it replies without a tool call.
type adaptiveStrategy struct{}

func (adaptiveStrategy) Path() models.ExecutionPath {
	return models.PathAdaptive
}

func (s adaptiveStrategy) Attempt(ctx context.Context, run *Run, reader *source.Reader) Outcome {
	out := Outcome{Path: models.PathAdaptive, StageTokens: map[string]int{}}
	if run.Structure == nil {
		out.Err = errors.ParseErrorf("no structure available for adaptive analysis")
		return out
	}

	minBlocks, maxBlocks := run.Opts.BlockBounds(models.PathAdaptive, run.TotalLines, run.Tokens)
	history := []llm.Turn{{Role: llm.RoleUser, Text: adaptivePrompt(run, minBlocks, maxBlocks)}}
	tools := []llm.ToolSpec{readTool}

	for out.Iterations < run.Opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			out.Err = errorOf(err)
			return out
		}
		out.Iterations++
		ev := IterationEvent{RequestID: run.RequestID, Path: out.Path, Iteration: out.Iterations, ToolCalls: out.ToolCalls}
		run.Observer.IterationStarted(ev)

		reply, err := run.Engine.Exchange(ctx, llm.ExchangeRequest{
			System:  systemPrompt,
			History: history,
			Tools:   tools,
			Stage:   string(models.PathAdaptive),
		})
		if err != nil {
			out.Err = errorOf(err)
			return out
		}
		out.StageTokens[string(models.PathAdaptive)] += reply.Usage.Total()

		if !reply.HasToolCalls() {
			ev.Terminal = true
			run.Observer.IterationFinished(ev)

			raw, err := decodeResult(reply.Text)
			if err != nil {
				out.Err = errorOf(err)
				return out
			}
			out.Raw = raw
			return out
		}

		history = append(history, llm.Turn{Role: llm.RoleAssistant, Text: reply.Text, ToolCalls: reply.ToolCalls})
		results := make([]llm.ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			content, err := s.execute(ctx, run, reader, call, &out.ToolCalls)
			if err != nil {
				out.Err = errorOf(err)
				return out
			}
			results = append(results, llm.ToolResult{CallID: call.ID, Name: call.Name, Content: content})
		}
		history = append(history, llm.Turn{Role: llm.RoleTool, ToolResults: results})

		ev.ToolCalls = out.ToolCalls
		run.Observer.IterationFinished(ev)
	}

	out.Err = errors.ToolBudgetExceeded(out.Iterations, out.ToolCalls)
	return out
}

// execute answers one tool call. Invalid ranges and calls past the budget
// become observations; only context failures abort the run.
func (adaptiveStrategy) execute(ctx context.Context, run *Run, reader *source.Reader, call llm.ToolCall, used *int) (string, error) {
	if call.Name != ReadToolName {
		return fmt.Sprintf("UnknownTool: %q is not available; use %s", call.Name, ReadToolName), nil
	}
	if *used >= run.Opts.MaxToolCalls {
		return fmt.Sprintf("BudgetExhausted: all %d reads are used; reply with the final JSON now", run.Opts.MaxToolCalls), nil
	}
	*used++

	start, okStart := call.IntArg("start_line")
	end, okEnd := call.IntArg("end_line")
	reason := call.StringArg("reason")
	if !okStart || !okEnd {
		// logged as a failed read with whatever arguments parsed
		_, err := reader.ReferToSourceCode(ctx, start, end, reason)
		return fmt.Sprintf("RangeError: start_line and end_line must be integers (%v)", err), nil
	}

	text, err := reader.ReferToSourceCode(ctx, start, end, reason)
	switch {
	case err == nil:
		return source.NumberLines(start, text), nil
	case errors.HasCode(err, errors.CodeRange):
		return fmt.Sprintf("RangeError: %v. Valid lines are 1-%d with start_line <= end_line.", err, reader.TotalLines()), nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		return fmt.Sprintf("ReadError: %v", err), nil
	}
}
