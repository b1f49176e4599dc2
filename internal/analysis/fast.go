package analysis

import (
	"context"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/source"
)

// fastStrategy is a single exchange over the full numbered source. With
// raw set the structure is left out, which is the only option when the
// parser failed.
type fastStrategy struct {
	raw bool
}

func (s fastStrategy) Path() models.ExecutionPath {
	if s.raw {
		return models.PathFastRaw
	}
	return models.PathFastPath
}

func (s fastStrategy) Attempt(ctx context.Context, run *Run, _ *source.Reader) Outcome {
	path := s.Path()
	minBlocks, maxBlocks := run.Opts.BlockBounds(path, run.TotalLines, run.Tokens)

	run.Observer.IterationStarted(IterationEvent{RequestID: run.RequestID, Path: path, Iteration: 1})
	reply, err := run.Engine.Exchange(ctx, llm.ExchangeRequest{
		System:  systemPrompt,
		History: []llm.Turn{{Role: llm.RoleUser, Text: fastPrompt(run, s.raw, minBlocks, maxBlocks)}},
		JSON:    true,
		Stage:   string(path),
	})
	if err != nil {
		return Outcome{Path: path, Err: errorOf(err), Iterations: 1}
	}
	run.Observer.IterationFinished(IterationEvent{RequestID: run.RequestID, Path: path, Iteration: 1, Terminal: true})

	out := Outcome{
		Path:        path,
		Iterations:  1,
		StageTokens: map[string]int{string(path): reply.Usage.Total()},
	}
	if reply.HasToolCalls() && reply.Text == "" {
		out.Err = errors.MalformedOutput(nil, "fast path reply requested a tool")
		return out
	}

	raw, err := decodeResult(reply.Text)
	if err != nil {
		out.Err = errorOf(err)
		return out
	}
	out.Raw = raw
	return out
}

// errorOf keeps typed errors and leaves the rest for classify.
func errorOf(err error) *errors.Error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e
	}
	return errors.EngineUnavailable(err, "reasoning service failed")
}
