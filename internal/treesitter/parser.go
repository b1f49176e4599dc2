//go:build cgo

package treesitter

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/structure"
)

// Parser adapts tree-sitter to structure.Parser.
// A fresh sitter.Parser is used per call, so Parser is safe for concurrent use.
type Parser struct{}

// NewParser creates a new tree-sitter parser.
func NewParser() *Parser {
	return &Parser{}
}

// Available reports whether tree-sitter parsing is compiled in.
func Available() bool {
	return true
}

// Supports reports whether language has a grammar.
func (p *Parser) Supports(language string) bool {
	_, err := getLanguage(language)
	return err == nil
}

// Parse parses src and converts the concrete tree into named SyntaxNodes.
// Trees containing syntax errors are rejected.
func (p *Parser) Parse(ctx context.Context, src []byte, language string) (*structure.SyntaxNode, error) {
	lang, err := getLanguage(language)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ParseErrorf("tree-sitter %s: %v", language, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.ParseErrorf("tree-sitter %s: empty tree", language)
	}
	if root.HasError() {
		return nil, errors.ParseErrorf("%s source contains syntax errors", language).
			WithContext("language", language)
	}

	return convert(root, ""), nil
}

// getLanguage returns the tree-sitter Language for a given language identifier.
func getLanguage(language string) (*sitter.Language, error) {
	switch structure.NormalizeLanguage(language) {
	case structure.LangGo:
		return golang.GetLanguage(), nil
	case structure.LangJavaScript:
		return javascript.GetLanguage(), nil
	case structure.LangTypeScript:
		return typescript.GetLanguage(), nil
	case structure.LangTSX:
		return tsx.GetLanguage(), nil
	case structure.LangPython:
		return python.GetLanguage(), nil
	case structure.LangJava:
		return java.GetLanguage(), nil
	case structure.LangRust:
		return rust.GetLanguage(), nil
	default:
		return nil, errors.ParseErrorf("unsupported language: %s", language)
	}
}

// convert copies the named part of the tree so the sitter tree can be freed.
func convert(n *sitter.Node, field string) *structure.SyntaxNode {
	start, end := n.StartPoint(), n.EndPoint()
	endLine := int(end.Row) + 1
	// A node ending at column 0 stops at the end of the previous line.
	if end.Column == 0 && end.Row > start.Row {
		endLine--
	}

	out := &structure.SyntaxNode{
		Kind:      n.Type(),
		Field:     field,
		StartLine: int(start.Row) + 1,
		EndLine:   endLine,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}

	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		out.Children = append(out.Children, convert(child, n.FieldNameForChild(i)))
	}
	return out
}
