// Package quality repairs a raw candidate result into a conflict-free,
// schema-valid one. Nothing here fails: every finding becomes an issue.
package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/retz8/iris/internal/models"
)

// Options bound the repaired result. Zero MinBlocks or MaxBlocks disables
// that bound.
type Options struct {
	TotalLines int
	MinBlocks  int
	MaxBlocks  int
}

// Result is the repaired output with every issue in emission order.
type Result struct {
	FileIntent string
	Blocks     []models.ResponsibilityBlock
	Issues     []models.Issue
}

// RawValidators run on the candidate before any repair.
var RawValidators = []Validator{RangeShape, NestedRanges}

// FinalValidators run on the repaired result.
var FinalValidators = []Validator{CrossBlockOverlap, LabelWordCount, IntentWordCount, GenericLabels, RangeShape}

// Process repairs raw. It never modifies raw itself.
func Process(raw models.RawResult, opts Options) Result {
	blocks := cloneBlocks(raw.ResponsibilityBlocks)
	intent := strings.Join(strings.Fields(raw.FileIntent), " ")

	var issues []models.Issue
	issues = append(issues, assignIDs(blocks)...)
	issues = append(issues, Run(Input{FileIntent: intent, Blocks: blocks, TotalLines: opts.TotalLines}, RawValidators...)...)

	for i := range blocks {
		issues = append(issues, normalize(&blocks[i], opts.TotalLines)...)
	}
	for i := range blocks {
		before := len(blocks[i].Ranges)
		blocks[i].Ranges = MergeRanges(blocks[i].Ranges)
		if after := len(blocks[i].Ranges); after < before {
			issues = append(issues, info(CodeRangesMerged, blocks[i].ID,
				"merged %d ranges into %d", before, after))
		}
	}

	blocks, dedupIssues := dedupe(blocks)
	issues = append(issues, dedupIssues...)

	blocks, boundIssues := enforceBounds(blocks, opts)
	issues = append(issues, boundIssues...)

	issues = append(issues, Run(Input{FileIntent: intent, Blocks: blocks, TotalLines: opts.TotalLines}, FinalValidators...)...)

	return Result{FileIntent: intent, Blocks: blocks, Issues: issues}
}

// assignIDs gives every block a unique id, replacing empty and repeated ones.
func assignIDs(blocks []models.ResponsibilityBlock) []models.Issue {
	var issues []models.Issue
	seen := make(map[string]bool, len(blocks))
	for i := range blocks {
		blocks[i].ID = strings.TrimSpace(blocks[i].ID)
		if blocks[i].ID != "" && !seen[blocks[i].ID] {
			seen[blocks[i].ID] = true
			continue
		}

		old := blocks[i].ID
		n := i + 1
		id := fmt.Sprintf("block-%d", n)
		for seen[id] {
			n++
			id = fmt.Sprintf("block-%d", n)
		}
		blocks[i].ID = id
		seen[id] = true
		if old != "" {
			issues = append(issues, info(CodeIDAssigned, id, "duplicate id %q renamed", old))
		}
	}
	return issues
}

// normalize trims text, sorts and dedupes elements, drops inverted or
// unreachable ranges and clamps the rest into [1, total].
func normalize(b *models.ResponsibilityBlock, total int) []models.Issue {
	b.Label = strings.Join(strings.Fields(b.Label), " ")
	b.Description = strings.TrimSpace(b.Description)
	b.Elements = models.Elements{
		Functions: uniqueSorted(b.Elements.Functions),
		State:     uniqueSorted(b.Elements.State),
		Imports:   uniqueSorted(b.Elements.Imports),
		Types:     uniqueSorted(b.Elements.Types),
		Constants: uniqueSorted(b.Elements.Constants),
	}

	var issues []models.Issue
	kept := make([]models.Range, 0, len(b.Ranges))
	for _, r := range b.Ranges {
		if r.Start > r.End || r.End < 1 || (total > 0 && r.Start > total) {
			issues = append(issues, warning(CodeRangeDropped, b.ID, "range %s dropped", r))
			continue
		}
		clamped := r
		if clamped.Start < 1 {
			clamped.Start = 1
		}
		if total > 0 && clamped.End > total {
			clamped.End = total
		}
		if clamped != r {
			issues = append(issues, info(CodeRangeClamped, b.ID, "range %s clamped to %s", r, clamped))
		}
		kept = append(kept, clamped)
	}
	b.Ranges = kept
	return issues
}

// dedupe walks blocks in emission order; lines claimed by an earlier block
// are cut out of later ones. Blocks left without ranges are dropped.
func dedupe(blocks []models.ResponsibilityBlock) ([]models.ResponsibilityBlock, []models.Issue) {
	var (
		issues  []models.Issue
		claimed []models.Range
		out     = make([]models.ResponsibilityBlock, 0, len(blocks))
	)

	for _, b := range blocks {
		var kept []models.Range
		for _, r := range b.Ranges {
			kept = append(kept, SubtractRanges(r, claimed)...)
		}

		if removed := coveredLines(b.Ranges) - coveredLines(kept); removed > 0 {
			issues = append(issues, info(CodeOverlapTrimmed, b.ID,
				"%d lines already claimed by earlier blocks removed", removed))
		}
		if len(kept) == 0 {
			issues = append(issues, warning(CodeBlockDropped, b.ID,
				"block %q has no lines left", b.Label))
			continue
		}

		b.Ranges = kept
		out = append(out, b)
		claimed = MergeRanges(append(claimed, kept...))
	}
	return out, issues
}

func enforceBounds(blocks []models.ResponsibilityBlock, opts Options) ([]models.ResponsibilityBlock, []models.Issue) {
	var issues []models.Issue
	if opts.MaxBlocks > 0 && len(blocks) > opts.MaxBlocks {
		for _, b := range blocks[opts.MaxBlocks:] {
			issues = append(issues, warning(CodeTooManyBlocks, b.ID,
				"block %q dropped, at most %d blocks allowed", b.Label, opts.MaxBlocks))
		}
		blocks = blocks[:opts.MaxBlocks]
	}
	if opts.MinBlocks > 0 && len(blocks) < opts.MinBlocks {
		issues = append(issues, warning(CodeTooFewBlocks, "",
			"%d blocks, expected at least %d", len(blocks), opts.MinBlocks))
	}
	return blocks, issues
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func cloneBlocks(in []models.ResponsibilityBlock) []models.ResponsibilityBlock {
	out := make([]models.ResponsibilityBlock, len(in))
	for i, b := range in {
		out[i] = b
		out[i].Ranges = append([]models.Range(nil), b.Ranges...)
	}
	return out
}
