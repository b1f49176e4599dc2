package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeMatching(t *testing.T) {
	err := RangeErrorf("start %d after end %d", 50, 10)

	assert.True(t, stderrors.Is(err, ErrRange))
	assert.False(t, stderrors.Is(err, ErrParse))
	assert.Equal(t, CodeRange, CodeOf(err))

	wrapped := fmt.Errorf("reader: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrRange))
	assert.True(t, HasCode(wrapped, CodeRange))
}

func TestCodeOfContextErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), CodeCanceled},
		{"plain", stderrors.New("boom"), CodeInternal},
		{"coded wins over cause", Timeout(context.Canceled, "attempt timed out"), CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestFailureOf(t *testing.T) {
	f := FailureOf(ToolBudgetExceeded(8, 6))
	assert.Equal(t, CodeToolBudget, f.Code)
	assert.Contains(t, f.Reason, "8 iterations")

	f = FailureOf(stderrors.New("unexpected"))
	assert.Equal(t, CodeInternal, f.Code)
	assert.Equal(t, "unexpected", f.Reason)
}

func TestIsFallsBackToType(t *testing.T) {
	err := ConfigErrorf("missing %s", "api key")
	target := &Error{Type: ErrorTypeConfig}

	assert.True(t, stderrors.Is(err, target))
	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrorTypeConfig, GetType(err))
}

func TestDetailedString(t *testing.T) {
	err := CacheIO(stderrors.New("disk full"), "persist result").WithContext("tier", "result")
	s := err.DetailedString()

	assert.Contains(t, s, "[LOW] [CACHE] persist result")
	assert.Contains(t, s, "Code: cache_io_error")
	assert.Contains(t, s, "tier: result")
	assert.Contains(t, s, "Caused by: disk full")
}
