package analysis

import (
	"fmt"
	"strings"

	"github.com/retz8/iris/internal/llm"
	"github.com/retz8/iris/internal/source"
	"github.com/retz8/iris/internal/structure"
)

const systemPrompt = `You summarize a single source file for a reader who has not seen it.
Produce a one-line file intent (why the file exists, 3 to 25 words) and a small set of
responsibility blocks. A responsibility block is a named conceptual unit of the file: give it a
short specific label (1 to 5 words, never a catch-all such as "Utilities", "Helpers", "Misc" or
"Core logic"), one or two sentences of description, the named elements it covers and the
1-based inclusive line ranges it occupies. Ranges may be scattered but no line belongs to two
blocks.`

const outputSchema = `Reply with a single JSON object and nothing else:
{
  "file_intent": "string",
  "responsibility_blocks": [
    {
      "id": "string",
      "label": "string",
      "description": "string",
      "elements": {"functions": [], "state": [], "imports": [], "types": [], "constants": []},
      "ranges": [[start_line, end_line]]
    }
  ]
}`

const decisionGuidance = `Reading source costs budget. Skip a read when a declaration has a
descriptive name, a helpful comment, or "line_range": null (it is fully shown already). Read when a
name is generic or a single letter (loop counters such as i, j, k are fine) or when a node has no
comment and a large line_range that hides real complexity.`

// readTool declares refer_to_source_code.
var readTool = llm.ToolSpec{
	Name:        ReadToolName,
	Description: "Return the numbered source text of lines start_line through end_line (1-based, inclusive).",
	Params: []llm.Param{
		{Name: "start_line", Type: "integer", Description: "First line to read, at least 1", Required: true},
		{Name: "end_line", Type: "integer", Description: "Last line to read, at most the file's line count", Required: true},
		{Name: "reason", Type: "string", Description: "Why this range is needed"},
	},
}

func header(sb *strings.Builder, run *Run) {
	name := run.Filename
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(sb, "File: %s\nLanguage: %s\nTotal lines: %d\n\n", name, run.Language, run.TotalLines)
}

func blockCount(sb *strings.Builder, minBlocks, maxBlocks int) {
	if minBlocks == maxBlocks {
		fmt.Fprintf(sb, "Return exactly %d responsibility blocks.\n\n", minBlocks)
		return
	}
	fmt.Fprintf(sb, "Return between %d and %d responsibility blocks.\n\n", minBlocks, maxBlocks)
}

func writeStructure(sb *strings.Builder, root *structure.Node) {
	sb.WriteString("Shallow structure (bodies replaced by line_range):\n")
	sb.WriteString(root.JSON())
	sb.WriteString("\n\n")
}

func writeHints(sb *strings.Builder, hints []structure.Hint) {
	if len(hints) == 0 {
		return
	}
	sb.WriteString("Declarations that may need reading:\n")
	for _, h := range hints {
		fmt.Fprintf(sb, "- %s %q lines %s: %s\n", h.Type, h.Name, h.Range, h.Reason)
	}
	sb.WriteString("\n")
}

// fastPrompt carries the full numbered source, plus the structure unless raw.
func fastPrompt(run *Run, raw bool, minBlocks, maxBlocks int) string {
	var sb strings.Builder
	header(&sb, run)
	if !raw && run.Structure != nil {
		writeStructure(&sb, run.Structure)
	}
	sb.WriteString("Source:\n")
	sb.WriteString(source.NumberLines(1, strings.Join(source.SplitLines(run.Source), "\n")))
	sb.WriteString("\n")
	sb.WriteString(decisionGuidance)
	sb.WriteString("\n\n")
	blockCount(&sb, minBlocks, maxBlocks)
	sb.WriteString(outputSchema)
	return sb.String()
}

// adaptivePrompt carries the structure only; source arrives through reads.
func adaptivePrompt(run *Run, minBlocks, maxBlocks int) string {
	var sb strings.Builder
	header(&sb, run)
	writeStructure(&sb, run.Structure)
	writeHints(&sb, run.Hints)
	sb.WriteString(decisionGuidance)
	fmt.Fprintf(&sb, "\n\nYou may call %s at most %d times. When you have enough, stop calling tools.\n\n",
		ReadToolName, run.Opts.MaxToolCalls)
	blockCount(&sb, minBlocks, maxBlocks)
	sb.WriteString(outputSchema)
	return sb.String()
}

// identifyPrompt asks for a read plan without reading anything.
func identifyPrompt(run *Run) string {
	var sb strings.Builder
	header(&sb, run)
	writeStructure(&sb, run.Structure)
	writeHints(&sb, run.Hints)
	sb.WriteString(decisionGuidance)
	fmt.Fprintf(&sb, "\n\nList at most %d line ranges worth reading before summarizing. Reply with a single JSON object:\n", run.Opts.MaxToolCalls)
	sb.WriteString(`{"reads": [{"start_line": 1, "end_line": 10, "reason": "string"}]}`)
	sb.WriteString("\nAn empty list is fine when the structure is self-explanatory.")
	return sb.String()
}

// analyzePrompt carries the structure and the planned reads.
func analyzePrompt(run *Run, reads []plannedRead, minBlocks, maxBlocks int) string {
	var sb strings.Builder
	header(&sb, run)
	writeStructure(&sb, run.Structure)
	if len(reads) > 0 {
		sb.WriteString("Source excerpts:\n")
		for _, r := range reads {
			fmt.Fprintf(&sb, "--- lines %d-%d", r.StartLine, r.EndLine)
			if r.Reason != "" {
				fmt.Fprintf(&sb, " (%s)", r.Reason)
			}
			sb.WriteString(" ---\n")
			sb.WriteString(r.observation)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(decisionGuidance)
	sb.WriteString("\n\n")
	blockCount(&sb, minBlocks, maxBlocks)
	sb.WriteString(outputSchema)
	return sb.String()
}
