// Package structure builds the shallow skeleton of a source file that the
// orchestrator hands to the reasoning service instead of the full text.
package structure

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/retz8/iris/internal/models"
)

// SyntaxNode is a language-neutral view of a concrete parse tree node.
// Lines are 1-based inclusive, bytes are offsets into the parsed source.
type SyntaxNode struct {
	Kind      string
	Field     string
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
	Children  []*SyntaxNode
}

// Lines returns the number of lines the node spans.
func (n *SyntaxNode) Lines() int {
	return n.EndLine - n.StartLine + 1
}

// ChildByField returns the first child occupying field.
func (n *SyntaxNode) ChildByField(field string) *SyntaxNode {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// Parser produces a syntax tree or fails with a parse error.
type Parser interface {
	Parse(ctx context.Context, src []byte, language string) (*SyntaxNode, error)
	Supports(language string) bool
}

// Node is one entry of the shallow structure.
// LineRange is nil when the declaration fits on one line.
type Node struct {
	Type            string        `json:"type"`
	Name            string        `json:"name,omitempty"`
	Signature       string        `json:"signature,omitempty"`
	Line            int           `json:"line"`
	LineRange       *models.Range `json:"line_range"`
	LeadingComment  string        `json:"leading_comment,omitempty"`
	InlineComment   string        `json:"inline_comment,omitempty"`
	TrailingComment string        `json:"trailing_comment,omitempty"`
	Children        []*Node       `json:"children,omitempty"`

	Language   string `json:"language,omitempty"`
	TotalLines int    `json:"total_lines,omitempty"`
}

// HasComment reports whether any comment is attached.
func (n *Node) HasComment() bool {
	return n.LeadingComment != "" || n.InlineComment != "" || n.TrailingComment != ""
}

// Walk visits n and every descendant depth-first.
func (n *Node) Walk(fn func(*Node, int)) {
	var walk func(*Node, int)
	walk = func(cur *Node, depth int) {
		fn(cur, depth)
		for _, c := range cur.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
}

// Depth returns the number of levels below n.
func (n *Node) Depth() int {
	max := 0
	n.Walk(func(_ *Node, d int) {
		if d > max {
			max = d
		}
	})
	return max
}

// JSON renders the structure for prompts.
func (n *Node) JSON() string {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Language identifiers understood by the compressor
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangJava       = "java"
	LangRust       = "rust"
)

// NormalizeLanguage maps common aliases onto the canonical identifiers.
func NormalizeLanguage(lang string) string {
	switch l := strings.ToLower(strings.TrimSpace(lang)); l {
	case "golang":
		return LangGo
	case "py", "python3":
		return LangPython
	case "js", "jsx", "node", "mjs", "cjs":
		return LangJavaScript
	case "ts":
		return LangTypeScript
	case "rs":
		return LangRust
	default:
		return l
	}
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
