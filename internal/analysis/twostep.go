package analysis

import (
	"context"
	"fmt"

	"github.com/retz8/iris/internal/cache"
	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/source"
)

// Stage names of the two-step path.
const (
	StageIdentify = "identify"
	StageAnalyze  = "analyze"
)

// twoStepStrategy asks for a read plan, performs it, then asks for the
// payload. No tool calling is involved, so the plan can be cached.
type twoStepStrategy struct{}

func (twoStepStrategy) Path() models.ExecutionPath {
	return models.PathTwoStep
}

func (twoStepStrategy) Attempt(ctx context.Context, run *Run, reader *source.Reader) Outcome {
	out := Outcome{Path: models.PathTwoStep, StageTokens: map[string]int{}}
	if run.Structure == nil {
		out.Err = errors.ParseErrorf("no structure available for two-step analysis")
		return out
	}

	// identify
	out.Iterations++
	ev := IterationEvent{RequestID: run.RequestID, Path: out.Path, Iteration: out.Iterations}
	run.Observer.IterationStarted(ev)

	plan, cached := cachedPlan(run)
	if !cached {
		reply, err := run.Engine.Exchange(ctx, llm.ExchangeRequest{
			System:  systemPrompt,
			History: []llm.Turn{{Role: llm.RoleUser, Text: identifyPrompt(run)}},
			JSON:    true,
			Stage:   StageIdentify,
		})
		if err != nil {
			out.Err = errorOf(err)
			return out
		}
		out.StageTokens[StageIdentify] = reply.Usage.Total()

		plan, err = decodePlan(reply.Text)
		if err != nil {
			out.Err = errorOf(err)
			return out
		}
		out.Decision = plan
	} else {
		out.StageTokens[StageIdentify] = 0
	}
	run.Observer.IterationFinished(ev)

	// read
	var reads []plannedRead
	for _, p := range plan.Reads {
		if out.ToolCalls >= run.Opts.MaxToolCalls {
			break
		}
		if err := ctx.Err(); err != nil {
			out.Err = errorOf(err)
			return out
		}
		out.ToolCalls++

		var obs string
		text, err := reader.ReferToSourceCode(ctx, p.StartLine, p.EndLine, p.Reason)
		if err != nil {
			obs = fmt.Sprintf("RangeError: %v", err)
		} else {
			obs = source.NumberLines(p.StartLine, text)
		}
		reads = append(reads, plannedRead{PlannedRange: p, observation: obs})
	}

	// analyze
	out.Iterations++
	ev = IterationEvent{RequestID: run.RequestID, Path: out.Path, Iteration: out.Iterations, ToolCalls: out.ToolCalls}
	run.Observer.IterationStarted(ev)

	minBlocks, maxBlocks := run.Opts.BlockBounds(models.PathTwoStep, run.TotalLines, run.Tokens)
	reply, err := run.Engine.Exchange(ctx, llm.ExchangeRequest{
		System:  systemPrompt,
		History: []llm.Turn{{Role: llm.RoleUser, Text: analyzePrompt(run, reads, minBlocks, maxBlocks)}},
		JSON:    true,
		Stage:   StageAnalyze,
	})
	if err != nil {
		out.Err = errorOf(err)
		return out
	}
	out.StageTokens[StageAnalyze] = reply.Usage.Total()
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

func cachedPlan(run *Run) (*ReadPlan, bool) {
	if run.Decisions == nil {
		return nil, false
	}
	var plan ReadPlan
	if !run.Decisions.Get(cache.StageKey(run.Hash, run.Language, StageIdentify), &plan) {
		return nil, false
	}
	return &plan, true
}
