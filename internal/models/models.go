package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExecutionPath names the strategy that produced a result.
type ExecutionPath string

const (
	PathFastPath ExecutionPath = "fast_path"
	PathFastRaw  ExecutionPath = "fast_raw"
	PathAdaptive ExecutionPath = "adaptive"
	PathTwoStep  ExecutionPath = "two_step"
)

// Strategy is the per-request path selection.
type Strategy string

const (
	StrategyAuto     Strategy = "auto"
	StrategyFast     Strategy = "fast"
	StrategyAdaptive Strategy = "adaptive"
	StrategyTwoStep  Strategy = "two_step"
)

// ParseStrategy accepts the CLI and config spellings of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StrategyAuto, nil
	case "fast", "fast_path":
		return StrategyFast, nil
	case "adaptive", "tool_calling":
		return StrategyAdaptive, nil
	case "two_step", "two-step":
		return StrategyTwoStep, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Request is one analysis request.
type Request struct {
	Filename    string   `json:"filename"`
	Language    string   `json:"language"`
	SourceCode  string   `json:"source_code"`
	ContentHash string   `json:"content_hash,omitempty"`
	Strategy    Strategy `json:"strategy,omitempty"`
}

// Range is a 1-based inclusive line range, encoded as [start, end].
type Range struct {
	Start int
	End   int
}

// Len returns the number of lines covered, or 0 for an inverted range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// Overlaps reports whether r and o share at least one line.
func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

// UnmarshalJSON accepts [start, end], [line] and {"start":..,"end":..}.
func (r *Range) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Start int `json:"start"`
			End   int `json:"end"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		r.Start, r.End = obj.Start, obj.End
		return nil
	}

	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("range must be [start, end]: %w", err)
	}
	switch len(pair) {
	case 1:
		r.Start, r.End = pair[0], pair[0]
	case 2:
		r.Start, r.End = pair[0], pair[1]
	default:
		return fmt.Errorf("range must have 1 or 2 elements, got %d", len(pair))
	}
	return nil
}

func (r Range) MarshalYAML() (interface{}, error) {
	return []int{r.Start, r.End}, nil
}

// Elements lists the named members a block covers.
type Elements struct {
	Functions []string `json:"functions" yaml:"functions,omitempty"`
	State     []string `json:"state" yaml:"state,omitempty"`
	Imports   []string `json:"imports" yaml:"imports,omitempty"`
	Types     []string `json:"types" yaml:"types,omitempty"`
	Constants []string `json:"constants" yaml:"constants,omitempty"`
}

// ResponsibilityBlock is a named conceptual unit of a file.
type ResponsibilityBlock struct {
	ID          string   `json:"id" yaml:"id"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description" yaml:"description"`
	Elements    Elements `json:"elements" yaml:"elements"`
	Ranges      []Range  `json:"ranges" yaml:"ranges"`
}

// Severity of a post-processing issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Issue is a non-fatal finding attached to a result.
type Issue struct {
	Code     string   `json:"code" yaml:"code"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	BlockID  string   `json:"block_id,omitempty" yaml:"block_id,omitempty"`
}

// ReadLogSummary condenses one run's read audit log.
type ReadLogSummary struct {
	TotalReads  int      `json:"total_reads" yaml:"total_reads"`
	FailedReads int      `json:"failed_reads" yaml:"failed_reads"`
	LinesRead   int      `json:"lines_read" yaml:"lines_read"`
	Ranges      []string `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	Reasons     []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ExecutionPath    ExecutionPath  `json:"execution_path" yaml:"execution_path"`
	FallbackFrom     ExecutionPath  `json:"fallback_from,omitempty" yaml:"fallback_from,omitempty"`
	FallbackReason   string         `json:"fallback_reason,omitempty" yaml:"fallback_reason,omitempty"`
	ToolCallCount    *int           `json:"tool_call_count,omitempty" yaml:"tool_call_count,omitempty"`
	Iterations       int            `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	StageTokenCounts map[string]int `json:"stage_token_counts,omitempty" yaml:"stage_token_counts,omitempty"`
	ReadLogSummary   ReadLogSummary `json:"read_log_summary" yaml:"read_log_summary"`
	Issues           []Issue        `json:"issues" yaml:"issues"`
	TotalLines       int            `json:"total_lines" yaml:"total_lines"`
	ContentHash      string         `json:"content_hash" yaml:"content_hash"`
	Language         string         `json:"language" yaml:"language"`
}

// AnalysisResult is the final response for one request.
type AnalysisResult struct {
	FileIntent           string                `json:"file_intent" yaml:"file_intent"`
	ResponsibilityBlocks []ResponsibilityBlock `json:"responsibility_blocks" yaml:"responsibility_blocks"`
	Metadata             Metadata              `json:"metadata" yaml:"metadata"`
}

// RawResult is the terminal payload as emitted by the reasoning service,
// before post-processing.
type RawResult struct {
	FileIntent           string                `json:"file_intent"`
	ResponsibilityBlocks []ResponsibilityBlock `json:"responsibility_blocks"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
