package quality

import (
	"sort"

	"github.com/retz8/iris/internal/models"
)

// MergeRanges sorts ranges by start and merges any range that starts at
// most one line after the previous one ends. The result is the minimal
// covering set of non-overlapping ranges.
func MergeRanges(ranges []models.Range) []models.Range {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]models.Range, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []models.Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// SubtractRanges removes every line in claimed from r. claimed must be
// sorted and non-overlapping. A range split by a claimed island yields
// two pieces.
func SubtractRanges(r models.Range, claimed []models.Range) []models.Range {
	var out []models.Range
	cur := r
	for _, c := range claimed {
		if c.End < cur.Start {
			continue
		}
		if c.Start > cur.End {
			break
		}
		if c.Start > cur.Start {
			out = append(out, models.Range{Start: cur.Start, End: c.Start - 1})
		}
		cur.Start = c.End + 1
		if cur.Start > cur.End {
			return out
		}
	}
	return append(out, cur)
}

// coveredLines counts the lines in a merged set.
func coveredLines(ranges []models.Range) int {
	n := 0
	for _, r := range ranges {
		n += r.Len()
	}
	return n
}
