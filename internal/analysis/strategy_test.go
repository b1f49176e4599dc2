package analysis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retz8/iris/internal/config"
	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/models"
)

func TestPlan(t *testing.T) {
	opts := DefaultOptions()
	twoStep := DefaultOptions()
	twoStep.Fallback = models.PathTwoStep

	tests := []struct {
		name       string
		opts       Options
		strategy   models.Strategy
		lines      int
		tokens     int
		structured bool
		want       []models.ExecutionPath
	}{
		{"small auto", opts, models.StrategyAuto, 5, 40, true,
			[]models.ExecutionPath{models.PathFastPath, models.PathFastRaw}},
		{"large auto", opts, "", 300, 4000, true,
			[]models.ExecutionPath{models.PathAdaptive, models.PathFastPath}},
		{"few lines but many tokens", opts, "", 80, 9000, true,
			[]models.ExecutionPath{models.PathAdaptive, models.PathFastPath}},
		{"two step fallback", twoStep, "", 300, 4000, true,
			[]models.ExecutionPath{models.PathAdaptive, models.PathTwoStep}},
		{"forced fast on large input", opts, models.StrategyFast, 300, 4000, true,
			[]models.ExecutionPath{models.PathFastPath, models.PathFastRaw}},
		{"forced adaptive on small input", opts, models.StrategyAdaptive, 5, 40, true,
			[]models.ExecutionPath{models.PathAdaptive, models.PathFastPath}},
		{"forced two step", opts, models.StrategyTwoStep, 300, 4000, true,
			[]models.ExecutionPath{models.PathTwoStep, models.PathFastPath}},
		{"no structure", opts, models.StrategyAdaptive, 300, 4000, false,
			[]models.ExecutionPath{models.PathFastRaw}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.Plan(tt.strategy, tt.lines, tt.tokens, tt.structured))
		})
	}
}

func TestPlanDefaultStrategy(t *testing.T) {
	opts := DefaultOptions()
	opts.DefaultStrategy = models.StrategyTwoStep
	assert.Equal(t, models.PathTwoStep, opts.Plan("", 5, 40, true)[0])
	assert.Equal(t, models.PathFastPath, opts.Plan(models.StrategyFast, 5, 40, true)[0])
}

func TestBlockBounds(t *testing.T) {
	opts := DefaultOptions()

	lo, hi := opts.BlockBounds(models.PathAdaptive, 300, 4000)
	assert.Equal(t, [2]int{3, 6}, [2]int{lo, hi})

	lo, hi = opts.BlockBounds(models.PathTwoStep, 300, 4000)
	assert.Equal(t, [2]int{3, 6}, [2]int{lo, hi})

	lo, hi = opts.BlockBounds(models.PathFastPath, 5, 40)
	assert.Equal(t, [2]int{1, 2}, [2]int{lo, hi})

	lo, hi = opts.BlockBounds(models.PathFastPath, 300, 4000)
	assert.Equal(t, [2]int{1, 6}, [2]int{lo, hi}, "fallback on a large input")
}

func TestRetryable(t *testing.T) {
	for _, code := range []errors.Code{errors.CodeTimeout, errors.CodeToolBudget, errors.CodeMalformed,
		errors.CodeEngine, errors.CodeParse, errors.CodeInternal} {
		assert.True(t, retryable(code), code)
	}
	for _, code := range []errors.Code{errors.CodeCanceled, errors.CodeInvalidRequest, errors.CodeRange} {
		assert.False(t, retryable(code), code)
	}
}

func TestClassify(t *testing.T) {
	bg := context.Background()

	t.Run("typed error kept", func(t *testing.T) {
		e := classify(bg, bg, time.Second, errors.MalformedOutput(nil, "bad"))
		assert.Equal(t, errors.CodeMalformed, e.Code)
	})

	t.Run("untyped error is engine failure", func(t *testing.T) {
		e := classify(bg, bg, time.Second, stderrors.New("connection reset"))
		assert.Equal(t, errors.CodeEngine, e.Code)
	})

	t.Run("attempt deadline is timeout", func(t *testing.T) {
		attempt, cancel := context.WithTimeout(bg, time.Nanosecond)
		defer cancel()
		<-attempt.Done()
		e := classify(bg, attempt, 30*time.Second, errors.EngineUnavailable(attempt.Err(), "x"))
		assert.Equal(t, errors.CodeTimeout, e.Code)
		assert.Contains(t, e.Error(), "30s")
	})

	t.Run("caller cancel wins", func(t *testing.T) {
		parent, cancel := context.WithCancel(bg)
		cancel()
		e := classify(parent, parent, time.Second, errors.MalformedOutput(nil, "bad"))
		assert.Equal(t, errors.CodeCanceled, e.Code)
	})

	t.Run("caller deadline is timeout", func(t *testing.T) {
		parent, cancel := context.WithDeadline(bg, time.Now().Add(-time.Second))
		defer cancel()
		e := classify(parent, parent, time.Second, stderrors.New("x"))
		assert.Equal(t, errors.CodeTimeout, e.Code)
	})
}

func TestDecodeResult(t *testing.T) {
	raw, err := decodeResult("Here you go:\n```json\n" +
		`{"file_intent": "Parses configuration files", "responsibility_blocks": [{"label": "Parsing", "ranges": [[1, 4]]}]}` +
		"\n```")
	require.NoError(t, err)
	assert.Equal(t, "Parses configuration files", raw.FileIntent)
	assert.Equal(t, []models.Range{{Start: 1, End: 4}}, raw.ResponsibilityBlocks[0].Ranges)

	bad := map[string]string{
		"empty":        "",
		"prose":        "This file parses config.",
		"no intent":    `{"responsibility_blocks": [{"label": "A", "ranges": [[1, 2]]}]}`,
		"no blocks":    `{"file_intent": "Parses things", "responsibility_blocks": []}`,
		"no label":     `{"file_intent": "Parses things", "responsibility_blocks": [{"ranges": [[1, 2]]}]}`,
		"no ranges":    `{"file_intent": "Parses things", "responsibility_blocks": [{"label": "A"}]}`,
		"bad range":    `{"file_intent": "Parses things", "responsibility_blocks": [{"label": "A", "ranges": [[1, 2, 3]]}]}`,
		"wrong shapes": `{"file_intent": 3, "responsibility_blocks": {}}`,
	}
	for name, text := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := decodeResult(text)
			require.Error(t, err)
			assert.Equal(t, errors.CodeMalformed, errors.CodeOf(err))
		})
	}
}

func TestDecodePlan(t *testing.T) {
	plan, err := decodePlan(`{"reads": [{"start_line": 3, "end_line": 9, "reason": "body"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []PlannedRange{{StartLine: 3, EndLine: 9, Reason: "body"}}, plan.Reads)

	plan, err = decodePlan(`{"reads": []}`)
	require.NoError(t, err)
	assert.Empty(t, plan.Reads)

	_, err = decodePlan("read lines 3 to 9")
	assert.Equal(t, errors.CodeMalformed, errors.CodeOf(err))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.AnalysisConfig{})
	assert.Equal(t, DefaultOptions(), opts)

	opts = OptionsFromConfig(config.AnalysisConfig{
		FastPathMaxLines: 50,
		MaxToolCalls:     3,
		RunTimeout:       10 * time.Second,
		Fallback:         "two_step",
		DefaultStrategy:  "adaptive",
	})
	assert.Equal(t, 50, opts.FastPathMaxLines)
	assert.Equal(t, 1500, opts.FastPathMaxTokens)
	assert.Equal(t, 3, opts.MaxToolCalls)
	assert.Equal(t, 10*time.Second, opts.RunTimeout)
	assert.Equal(t, models.PathTwoStep, opts.Fallback)
	assert.Equal(t, models.StrategyAdaptive, opts.DefaultStrategy)
}

func TestGuardedObserver(t *testing.T) {
	o := guard(panickingObserver{}, nil)
	assert.NotPanics(t, func() {
		o.IterationStarted(IterationEvent{})
		o.FallbackTriggered(FallbackEvent{})
	})
	assert.Equal(t, NopObserver{}, guard(nil, nil))
}
