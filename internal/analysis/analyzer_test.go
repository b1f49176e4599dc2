package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retz8/iris/internal/cache"
	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/structure"
	"github.com/retz8/iris/internal/telemetry"
)

// defParser understands just enough Python for these tests: every line
// starting with "def " opens a function that runs until the next one.
type defParser struct {
	err error
}

func (p defParser) Supports(language string) bool {
	return language == structure.LangPython
}

func (p defParser) Parse(ctx context.Context, src []byte, language string) (*structure.SyntaxNode, error) {
	if p.err != nil {
		return nil, p.err
	}

	text := string(src)
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	offsets := make([]int, len(lines)+1)
	for i, l := range lines {
		offsets[i+1] = offsets[i] + len(l) + 1
	}
	lineEnd := func(i int) int { return offsets[i] + len(lines[i]) }

	root := &structure.SyntaxNode{Kind: "module", StartLine: 1, EndLine: len(lines), EndByte: len(text)}
	var starts []int
	for i, l := range lines {
		if strings.HasPrefix(l, "def ") {
			starts = append(starts, i)
		}
	}
	for k, s := range starts {
		last := len(lines) - 1
		if k+1 < len(starts) {
			last = starts[k+1] - 1
		}
		for last > s && strings.TrimSpace(lines[last]) == "" {
			last--
		}
		name := strings.TrimPrefix(lines[s], "def ")
		name = name[:strings.IndexByte(name, '(')]

		fn := &structure.SyntaxNode{Kind: "function_definition", StartLine: s + 1, EndLine: last + 1,
			StartByte: offsets[s], EndByte: lineEnd(last)}
		fn.Children = append(fn.Children, &structure.SyntaxNode{Kind: "identifier", Field: "name",
			StartLine: s + 1, EndLine: s + 1, StartByte: offsets[s] + 4, EndByte: offsets[s] + 4 + len(name)})
		if last > s {
			fn.Children = append(fn.Children, &structure.SyntaxNode{Kind: "block", Field: "body",
				StartLine: s + 2, EndLine: last + 1, StartByte: offsets[s+1] + 4, EndByte: lineEnd(last)})
		}
		root.Children = append(root.Children, fn)
	}
	return root, nil
}

const smallSource = `def add(a, b):
    return a + b

def sub(a, b):
    return a - b
`

// largeSource is three 100-line functions, two of them with generic names.
func largeSource() string {
	var sb strings.Builder
	for _, name := range []string{"process", "temp", "render_report"} {
		fmt.Fprintf(&sb, "def %s(rows):\n", name)
		for i := 0; i < 98; i++ {
			fmt.Fprintf(&sb, "    rows = step_%d(rows)\n", i)
		}
		sb.WriteString("    return rows\n")
	}
	return sb.String()
}

func payload(t *testing.T, intent string, blocks ...models.ResponsibilityBlock) string {
	t.Helper()
	data, err := json.Marshal(models.RawResult{FileIntent: intent, ResponsibilityBlocks: blocks})
	require.NoError(t, err)
	return string(data)
}

func block(id, label string, ranges ...models.Range) models.ResponsibilityBlock {
	return models.ResponsibilityBlock{ID: id, Label: label, Description: label + " for the report.", Ranges: ranges}
}

func smallPayload(t *testing.T) string {
	return payload(t, "Provides integer addition and subtraction",
		block("arith", "Integer arithmetic", models.Range{Start: 1, End: 5}))
}

func largePayload(t *testing.T) string {
	return payload(t, "Normalizes raw rows, scores them and renders a report",
		block("normalize", "Row normalization", models.Range{Start: 1, End: 100}),
		block("score", "Score computation", models.Range{Start: 101, End: 200}),
		block("render", "Report rendering", models.Range{Start: 201, End: 300}))
}

type recordingObserver struct {
	mu        sync.Mutex
	started   []IterationEvent
	finished  []IterationEvent
	fallbacks []FallbackEvent
}

func (o *recordingObserver) IterationStarted(ev IterationEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, ev)
}

func (o *recordingObserver) IterationFinished(ev IterationEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, ev)
}

func (o *recordingObserver) FallbackTriggered(ev FallbackEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, ev)
}

type panickingObserver struct{}

func (panickingObserver) IterationStarted(IterationEvent)  { panic("started") }
func (panickingObserver) IterationFinished(IterationEvent) { panic("finished") }
func (panickingObserver) FallbackTriggered(FallbackEvent)  { panic("fallback") }

type recordingSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *recordingSink) Emit(_ context.Context, ev telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []telemetry.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.EventType
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) last() telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func newTestAnalyzer(engine llm.Engine, opts Options, options ...Option) *Analyzer {
	return New(engine, structure.NewCompressor(defParser{}), opts, options...)
}

func pyRequest(src string) models.Request {
	return models.Request{Filename: "report.py", Language: "python", SourceCode: src}
}

func TestAnalyzeSmallFileTakesFastPath(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep(smallPayload(t)))
	sink := &recordingSink{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithSink(sink))

	res, err := a.Analyze(context.Background(), pyRequest(smallSource))
	require.NoError(t, err)

	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	assert.Nil(t, res.Metadata.ToolCallCount)
	assert.Zero(t, res.Metadata.ReadLogSummary.TotalReads)
	assert.Len(t, res.ResponsibilityBlocks, 1)
	assert.Equal(t, 5, res.Metadata.TotalLines)
	assert.Equal(t, structure.LangPython, res.Metadata.Language)
	assert.Equal(t, 1, engine.Calls())

	req := engine.Requests()[0]
	assert.Empty(t, req.Tools)
	assert.True(t, req.JSON)
	assert.Contains(t, req.History[0].Text, "1 | def add(a, b):")

	assert.Equal(t, []telemetry.EventType{telemetry.EventRequested, telemetry.EventStarted, telemetry.EventCompleted}, sink.types())
	assert.Equal(t, models.PathFastPath, sink.last().Path)
}

func TestAnalyzeLargeFileReadsOnDemand(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.ToolStep(llm.ReadCall(1, 30, "process is generic")),
		llm.ToolStep(llm.ReadCall(101, 130, "temp is generic"), llm.ReadCall(201, 210, "report shape")),
		llm.TextStep(largePayload(t)),
	)
	obs := &recordingObserver{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithObserver(obs))

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)

	meta := res.Metadata
	assert.Equal(t, models.PathAdaptive, meta.ExecutionPath)
	require.NotNil(t, meta.ToolCallCount)
	assert.Equal(t, 3, *meta.ToolCallCount)
	assert.Equal(t, 3, meta.Iterations)
	assert.Equal(t, 3, meta.ReadLogSummary.TotalReads)
	assert.Equal(t, 70, meta.ReadLogSummary.LinesRead)
	assert.Equal(t, []string{"1-30", "101-130", "201-210"}, meta.ReadLogSummary.Ranges)
	assert.GreaterOrEqual(t, len(res.ResponsibilityBlocks), AdaptiveMinBlocks)
	assert.LessOrEqual(t, len(res.ResponsibilityBlocks), AdaptiveMaxBlocks)

	first := engine.Requests()[0]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, ReadToolName, first.Tools[0].Name)
	assert.Contains(t, first.History[0].Text, `"name": "process"`)
	assert.NotContains(t, first.History[0].Text, "step_50(rows)", "the full source is not sent up front")

	second := engine.Requests()[1]
	toolTurn := second.History[len(second.History)-1]
	assert.Equal(t, llm.RoleTool, toolTurn.Role)
	assert.Contains(t, toolTurn.ToolResults[0].Content, " 1 | def process(rows):")

	assert.Len(t, obs.started, 3)
	assert.Len(t, obs.finished, 3)
	assert.True(t, obs.finished[2].Terminal)
	assert.Empty(t, obs.fallbacks)
}

func TestAnalyzeInvalidRangeIsObservation(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.ToolStep(llm.ReadCall(50, 10, "backwards")),
		llm.ToolStep(llm.ReadCall(10, 50, "fixed")),
		llm.TextStep(largePayload(t)),
	)
	a := newTestAnalyzer(engine, DefaultOptions())

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)

	second := engine.Requests()[1]
	obs := second.History[len(second.History)-1].ToolResults[0].Content
	assert.True(t, strings.HasPrefix(obs, "RangeError"), obs)
	assert.Contains(t, obs, "Valid lines are 1-300")

	assert.Equal(t, 2, *res.Metadata.ToolCallCount)
	assert.Equal(t, 2, res.Metadata.ReadLogSummary.TotalReads)
	assert.Equal(t, 1, res.Metadata.ReadLogSummary.FailedReads)
	assert.Equal(t, []string{"10-50"}, res.Metadata.ReadLogSummary.Ranges)
}

func TestAnalyzeReadsPastBudgetAreRefused(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxToolCalls = 2
	engine := llm.NewScriptedEngine(
		llm.ToolStep(llm.ReadCall(1, 5, ""), llm.ReadCall(6, 10, ""), llm.ReadCall(11, 15, "")),
		llm.TextStep(largePayload(t)),
	)
	a := newTestAnalyzer(engine, opts)

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)

	assert.Equal(t, 2, *res.Metadata.ToolCallCount)
	assert.Equal(t, 2, res.Metadata.ReadLogSummary.TotalReads)
	results := engine.Requests()[1].History[2].ToolResults
	require.Len(t, results, 3)
	assert.True(t, strings.HasPrefix(results[2].Content, "BudgetExhausted"))
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep(smallPayload(t)))
	sink := &recordingSink{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithSink(sink))
	ctx := context.Background()

	first, err := a.Analyze(ctx, pyRequest(smallSource))
	require.NoError(t, err)
	second, err := a.Analyze(ctx, pyRequest(smallSource))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, engine.Calls(), "second request is served from cache")
	assert.True(t, sink.last().CacheHit)

	second.ResponsibilityBlocks[0].Label = "changed"
	third, err := a.Analyze(ctx, pyRequest(smallSource))
	require.NoError(t, err)
	assert.Equal(t, "Integer arithmetic", third.ResponsibilityBlocks[0].Label, "cached result is a snapshot")
}

func TestAnalyzeEditInvalidatesCache(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep(smallPayload(t)), llm.TextStep(smallPayload(t)))
	a := newTestAnalyzer(engine, DefaultOptions())
	ctx := context.Background()

	first, err := a.Analyze(ctx, pyRequest(smallSource))
	require.NoError(t, err)

	edited := strings.Replace(smallSource, "a - b", "a + b", 1)
	second, err := a.Analyze(ctx, pyRequest(edited))
	require.NoError(t, err)

	assert.NotEqual(t, first.Metadata.ContentHash, second.Metadata.ContentHash)
	assert.Equal(t, 2, engine.Calls())
}

func TestAnalyzeBudgetExceededFallsBack(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIterations = 2
	engine := llm.NewScriptedEngine(
		llm.ToolStep(llm.ReadCall(1, 10, "")),
		llm.ToolStep(llm.ReadCall(11, 20, "")),
		llm.TextStep(largePayload(t)),
	)
	obs := &recordingObserver{}
	a := newTestAnalyzer(engine, opts, WithObserver(obs))

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)

	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	assert.Equal(t, models.PathAdaptive, res.Metadata.FallbackFrom)
	assert.Contains(t, res.Metadata.FallbackReason, string(errors.CodeToolBudget))
	assert.Zero(t, res.Metadata.ReadLogSummary.TotalReads, "reads of the failed attempt are discarded")

	require.Len(t, obs.fallbacks, 1)
	assert.Equal(t, models.PathAdaptive, obs.fallbacks[0].From)
	assert.Equal(t, models.PathFastPath, obs.fallbacks[0].To)
	assert.Equal(t, errors.CodeToolBudget, obs.fallbacks[0].Code)
}

func TestAnalyzeMalformedOutputFallsBack(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.TextStep("I think this file does several things."),
		llm.TextStep(largePayload(t)),
	)
	a := newTestAnalyzer(engine, DefaultOptions())

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)
	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	assert.Contains(t, res.Metadata.FallbackReason, string(errors.CodeMalformed))
}

// overlappingPayload has one block claiming the whole file, so repair
// drops the other two.
func overlappingPayload(t *testing.T) string {
	return payload(t, "Normalizes raw rows, scores them and renders a report",
		block("all", "Row pipeline", models.Range{Start: 1, End: 300}),
		block("score", "Score computation", models.Range{Start: 101, End: 200}),
		block("render", "Report rendering", models.Range{Start: 201, End: 300}))
}

func TestAnalyzeTooFewBlocksAfterRepairFallsBack(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.ToolStep(llm.ReadCall(1, 10, "")),
		llm.TextStep(overlappingPayload(t)),
		llm.TextStep(largePayload(t)),
	)
	obs := &recordingObserver{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithObserver(obs))

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)

	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	assert.Equal(t, models.PathAdaptive, res.Metadata.FallbackFrom)
	assert.Contains(t, res.Metadata.FallbackReason, string(errors.CodeMalformed))
	assert.Zero(t, res.Metadata.ReadLogSummary.TotalReads)
	assert.Len(t, res.ResponsibilityBlocks, 3)

	require.Len(t, obs.fallbacks, 1)
	assert.Equal(t, errors.CodeMalformed, obs.fallbacks[0].Code)
}

func TestAnalyzeTwoStepTooFewBlocksIsNotCached(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.TextStep(`{"reads": [{"start_line": 1, "end_line": 20}]}`),
		llm.TextStep(overlappingPayload(t)),
		llm.TextStep(overlappingPayload(t)),
	)
	a := newTestAnalyzer(engine, DefaultOptions())

	req := pyRequest(largeSource())
	req.Strategy = models.StrategyTwoStep
	res, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	assert.Equal(t, models.PathTwoStep, res.Metadata.FallbackFrom)
	assert.Len(t, res.ResponsibilityBlocks, 1, "fast path on a large input accepts one block")
	assert.Zero(t, a.Cache().Decision.Stats().Size, "the failed attempt's plan is not cached")
}

func TestAnalyzeSecondFailureIsReturned(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep("not json"), llm.TextStep("{}"))
	sink := &recordingSink{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithSink(sink))

	_, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMalformed))
	assert.Equal(t, 2, engine.Calls(), "only one fallback")

	assert.Equal(t, telemetry.EventFailed, sink.last().Type)
	assert.Equal(t, errors.CodeMalformed, sink.last().Code)
	assert.Zero(t, a.Cache().Result.Stats().Size)
	assert.Equal(t, 1, a.Cache().Structure.Stats().Size, "structure survives a failed analysis")
}

func TestAnalyzeParseErrorUsesRawSource(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep(largePayload(t)))
	a := New(engine, structure.NewCompressor(defParser{err: fmt.Errorf("unexpected indent")}), DefaultOptions())

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)

	assert.Equal(t, models.PathFastRaw, res.Metadata.ExecutionPath)
	assert.Empty(t, res.Metadata.FallbackFrom)
	assert.Zero(t, a.Cache().Structure.Stats().Size)

	prompt := engine.Requests()[0].History[0].Text
	assert.Contains(t, prompt, "150 |     rows = step_48(rows)")
	assert.NotContains(t, prompt, `"line_range"`)
}

func TestAnalyzeUnsupportedLanguageUsesRawSource(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep(smallPayload(t)))
	a := newTestAnalyzer(engine, DefaultOptions())

	req := pyRequest(smallSource)
	req.Language = "cobol"
	res, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.PathFastRaw, res.Metadata.ExecutionPath)
	assert.Equal(t, "cobol", res.Metadata.Language)
}

func TestAnalyzeTimeoutFallsBack(t *testing.T) {
	opts := DefaultOptions()
	opts.RunTimeout = 30 * time.Millisecond
	opts.FallbackTimeout = 5 * time.Second
	engine := llm.NewScriptedEngine(
		llm.Step{Delay: time.Second, Text: largePayload(t)},
		llm.TextStep(largePayload(t)),
	)
	obs := &recordingObserver{}
	a := newTestAnalyzer(engine, opts, WithObserver(obs))

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)
	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	require.Len(t, obs.fallbacks, 1)
	assert.Equal(t, errors.CodeTimeout, obs.fallbacks[0].Code)
}

func TestAnalyzeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := llm.NewScriptedEngine(
		llm.ToolStep(llm.ReadCall(1, 10, "")),
		llm.Step{Respond: func(ctx context.Context, _ llm.ExchangeRequest) (*llm.Reply, error) {
			cancel()
			return nil, ctx.Err()
		}},
		llm.TextStep(largePayload(t)),
	)
	sink := &recordingSink{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithSink(sink))

	_, err := a.Analyze(ctx, pyRequest(largeSource()))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCanceled))
	assert.Equal(t, 2, engine.Calls(), "no fallback after cancellation")

	for _, st := range a.Cache().Stats() {
		assert.Zero(t, st.Size, st.Name)
	}
	assert.Equal(t, errors.CodeCanceled, sink.last().Code)
}

func TestAnalyzeCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := llm.NewScriptedEngine()
	a := newTestAnalyzer(engine, DefaultOptions())
	_, err := a.Analyze(ctx, pyRequest(smallSource))
	assert.True(t, errors.HasCode(err, errors.CodeCanceled))
	assert.Zero(t, engine.Calls())
}

func TestAnalyzeObserverPanicIsContained(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.TextStep("garbage"),
		llm.TextStep(largePayload(t)),
	)
	a := newTestAnalyzer(engine, DefaultOptions(), WithObserver(panickingObserver{}))

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)
	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
}

func TestAnalyzeStrategyPanicBecomesEngineFailure(t *testing.T) {
	engine := llm.NewScriptedEngine(
		llm.Step{Respond: func(context.Context, llm.ExchangeRequest) (*llm.Reply, error) {
			panic("provider bug")
		}},
		llm.TextStep(largePayload(t)),
	)
	obs := &recordingObserver{}
	a := newTestAnalyzer(engine, DefaultOptions(), WithObserver(obs))

	res, err := a.Analyze(context.Background(), pyRequest(largeSource()))
	require.NoError(t, err)
	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
	assert.Equal(t, errors.CodeEngine, obs.fallbacks[0].Code)
}

func TestAnalyzeTwoStepCachesPlan(t *testing.T) {
	plan := `{"reads": [{"start_line": 1, "end_line": 20, "reason": "process body"}, {"start_line": 400, "end_line": 410}]}`
	engine := llm.NewScriptedEngine(
		llm.Step{Text: plan, Usage: llm.Usage{InputTokens: 100, OutputTokens: 20}},
		llm.Step{Text: largePayload(t), Usage: llm.Usage{InputTokens: 300, OutputTokens: 80}},
		llm.Step{Text: largePayload(t), Usage: llm.Usage{InputTokens: 300, OutputTokens: 80}},
	)
	a := newTestAnalyzer(engine, DefaultOptions())
	ctx := context.Background()

	req := pyRequest(largeSource())
	req.Strategy = models.StrategyTwoStep
	res, err := a.Analyze(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, models.PathTwoStep, res.Metadata.ExecutionPath)
	assert.Equal(t, map[string]int{StageIdentify: 120, StageAnalyze: 380}, res.Metadata.StageTokenCounts)
	assert.Equal(t, 2, *res.Metadata.ToolCallCount)
	assert.Equal(t, 1, res.Metadata.ReadLogSummary.FailedReads)

	analyze := engine.Requests()[1].History[0].Text
	assert.Contains(t, analyze, " 1 | def process(rows):")
	assert.Contains(t, analyze, "RangeError")

	a.Cache().Result.Clear()
	res, err = a.Analyze(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, engine.Calls(), "identify is served from the decision cache")
	assert.Equal(t, 0, res.Metadata.StageTokenCounts[StageIdentify])
	assert.Equal(t, 1, a.Cache().Decision.Stats().Size)
}

func TestAnalyzeInvalidRequest(t *testing.T) {
	a := newTestAnalyzer(llm.NewScriptedEngine(), DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.Request
	}{
		{"empty source", models.Request{Language: "python"}},
		{"blank source", models.Request{Language: "python", SourceCode: " \n\t\n"}},
		{"unknown language", models.Request{Filename: "notes", SourceCode: "x"}},
		{"bad strategy", models.Request{Language: "python", SourceCode: "x = 1", Strategy: "fastest"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Analyze(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))
		})
	}
}

func TestAnalyzeDetectsLanguageFromFilename(t *testing.T) {
	engine := llm.NewScriptedEngine(llm.TextStep(smallPayload(t)))
	a := newTestAnalyzer(engine, DefaultOptions())

	res, err := a.Analyze(context.Background(), models.Request{Filename: "calc.py", SourceCode: smallSource})
	require.NoError(t, err)
	assert.Equal(t, structure.LangPython, res.Metadata.Language)
	assert.Equal(t, models.PathFastPath, res.Metadata.ExecutionPath)
}

func TestAnalyzeSharedCacheAcrossAnalyzers(t *testing.T) {
	shared := cache.New(cache.Options{})
	first := newTestAnalyzer(llm.NewScriptedEngine(llm.TextStep(smallPayload(t))), DefaultOptions(), WithCache(shared))
	idle := llm.NewScriptedEngine()
	second := newTestAnalyzer(idle, DefaultOptions(), WithCache(shared))

	_, err := first.Analyze(context.Background(), pyRequest(smallSource))
	require.NoError(t, err)
	_, err = second.Analyze(context.Background(), pyRequest(smallSource))
	require.NoError(t, err)
	assert.Zero(t, idle.Calls())
}

func TestAnalyzeConcurrentRequests(t *testing.T) {
	steps := make([]llm.Step, 8)
	for i := range steps {
		steps[i] = llm.TextStep(smallPayload(t))
	}
	a := newTestAnalyzer(llm.NewScriptedEngine(steps...), DefaultOptions())

	var wg sync.WaitGroup
	errs := make([]error, len(steps))
	for i := range steps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := strings.Replace(smallSource, "a + b", fmt.Sprintf("a + b + %d", i), 1)
			_, errs[i] = a.Analyze(context.Background(), pyRequest(src))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, len(steps), a.Cache().Result.Stats().Size)
}

func TestStructureIsCached(t *testing.T) {
	a := newTestAnalyzer(llm.NewScriptedEngine(), DefaultOptions())

	root, err := a.Structure(context.Background(), largeSource(), "py")
	require.NoError(t, err)
	require.Len(t, root.Children, 3)
	assert.Equal(t, "temp", root.Children[1].Name)
	assert.Equal(t, &models.Range{Start: 101, End: 200}, root.Children[1].LineRange)
	assert.Equal(t, 1, a.Cache().Structure.Stats().Size)

	_, err = a.Structure(context.Background(), "x", "cobol")
	assert.True(t, errors.HasCode(err, errors.CodeParse))
}
