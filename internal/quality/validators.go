package quality

import (
	"fmt"
	"strings"

	"github.com/retz8/iris/internal/models"
)

// Issue codes
const (
	CodeInvalidRange   = "invalid_range"
	CodeRangeClamped   = "range_clamped"
	CodeNestedRange    = "nested_range"
	CodeRangeDropped   = "range_dropped"
	CodeRangesMerged   = "ranges_merged"
	CodeOverlapTrimmed = "overlap_trimmed"
	CodeBlockDropped   = "block_dropped"
	CodeTooManyBlocks  = "too_many_blocks"
	CodeTooFewBlocks   = "too_few_blocks"
	CodeBlockOverlap   = "block_overlap"
	CodeLabelLength    = "label_word_count"
	CodeEmptyLabel     = "empty_label"
	CodeIntentLength   = "intent_word_count"
	CodeGenericLabel   = "generic_label"
	CodeIDAssigned     = "id_assigned"
)

// Word-count bounds for labels (average) and the file intent.
const (
	MinLabelWords  = 1
	MaxLabelWords  = 5
	MinIntentWords = 3
	MaxIntentWords = 25
)

// BannedLabels are catch-all names that describe no responsibility.
var BannedLabels = map[string]bool{
	"utilities":     true,
	"utils":         true,
	"helpers":       true,
	"misc":          true,
	"miscellaneous": true,
	"other":         true,
	"general":       true,
	"common":        true,
	"stuff":         true,
	"main":          true,
	"core logic":    true,
	"various":       true,
}

// Input is what a validator inspects.
type Input struct {
	FileIntent string
	Blocks     []models.ResponsibilityBlock
	TotalLines int
}

// Validator reports findings without modifying its input.
type Validator func(in Input) []models.Issue

// Run applies validators in order and concatenates their issues.
func Run(in Input, validators ...Validator) []models.Issue {
	var issues []models.Issue
	for _, v := range validators {
		issues = append(issues, v(in)...)
	}
	return issues
}

// RangeShape flags ranges with start > end, a bound below 1, or an end
// past the file.
func RangeShape(in Input) []models.Issue {
	var issues []models.Issue
	for _, b := range in.Blocks {
		for _, r := range b.Ranges {
			var problem string
			switch {
			case r.Start < 1 || r.End < 1:
				problem = "bounds must be at least 1"
			case r.Start > r.End:
				problem = "start is after end"
			case in.TotalLines > 0 && r.End > in.TotalLines:
				problem = fmt.Sprintf("end is past line %d", in.TotalLines)
			default:
				continue
			}
			issues = append(issues, warning(CodeInvalidRange, b.ID,
				"range %s: %s", r, problem))
		}
	}
	return issues
}

// NestedRanges flags ranges fully contained in another range, within a
// block or across blocks, whether or not they are identical.
func NestedRanges(in Input) []models.Issue {
	type owned struct {
		block string
		idx   int
		r     models.Range
	}
	var all []owned
	for _, b := range in.Blocks {
		for i, r := range b.Ranges {
			if r.Start <= r.End {
				all = append(all, owned{block: b.ID, idx: i, r: r})
			}
		}
	}

	var issues []models.Issue
	for i, inner := range all {
		for j, outer := range all {
			if i == j || !outer.r.Contains(inner.r) {
				continue
			}
			// report identical ranges once
			if inner.r == outer.r && j > i {
				continue
			}
			where := "the same block"
			if inner.block != outer.block {
				where = "block " + outer.block
			}
			issues = append(issues, info(CodeNestedRange, inner.block,
				"range %s is contained in %s of %s", inner.r, outer.r, where))
			break
		}
	}
	return issues
}

// CrossBlockOverlap verifies that no two blocks share a line.
func CrossBlockOverlap(in Input) []models.Issue {
	var issues []models.Issue
	for i := 0; i < len(in.Blocks); i++ {
		for j := i + 1; j < len(in.Blocks); j++ {
			if r, ok := firstOverlap(in.Blocks[i].Ranges, in.Blocks[j].Ranges); ok {
				issues = append(issues, warning(CodeBlockOverlap, in.Blocks[j].ID,
					"shares lines %s with block %s", r, in.Blocks[i].ID))
			}
		}
	}
	return issues
}

// LabelWordCount checks the average label length and flags empty labels.
func LabelWordCount(in Input) []models.Issue {
	if len(in.Blocks) == 0 {
		return nil
	}

	var issues []models.Issue
	total := 0
	for _, b := range in.Blocks {
		n := len(strings.Fields(b.Label))
		if n == 0 {
			issues = append(issues, warning(CodeEmptyLabel, b.ID, "label is empty"))
		}
		total += n
	}

	avg := float64(total) / float64(len(in.Blocks))
	if avg < MinLabelWords || avg > MaxLabelWords {
		issues = append(issues, warning(CodeLabelLength, "",
			"average label length %.1f words is outside %d-%d", avg, MinLabelWords, MaxLabelWords))
	}
	return issues
}

// IntentWordCount bounds the file intent length.
func IntentWordCount(in Input) []models.Issue {
	n := len(strings.Fields(in.FileIntent))
	if n < MinIntentWords || n > MaxIntentWords {
		return []models.Issue{warning(CodeIntentLength, "",
			"file intent has %d words, expected %d-%d", n, MinIntentWords, MaxIntentWords)}
	}
	return nil
}

// GenericLabels flags catch-all labels.
func GenericLabels(in Input) []models.Issue {
	var issues []models.Issue
	for _, b := range in.Blocks {
		if BannedLabels[normalizeLabel(b.Label)] {
			issues = append(issues, warning(CodeGenericLabel, b.ID,
				"label %q does not name a responsibility", b.Label))
		}
	}
	return issues
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.Trim(label, ".:;!-_ ")
	return strings.Join(strings.Fields(label), " ")
}

func firstOverlap(a, b []models.Range) (models.Range, bool) {
	for _, x := range a {
		for _, y := range b {
			if x.Overlaps(y) {
				return models.Range{Start: max(x.Start, y.Start), End: min(x.End, y.End)}, true
			}
		}
	}
	return models.Range{}, false
}

func warning(code, blockID, format string, args ...any) models.Issue {
	return models.Issue{Code: code, Severity: models.SeverityWarning, BlockID: blockID,
		Message: fmt.Sprintf(format, args...)}
}

func info(code, blockID, format string, args ...any) models.Issue {
	return models.Issue{Code: code, Severity: models.SeverityInfo, BlockID: blockID,
		Message: fmt.Sprintf(format, args...)}
}
