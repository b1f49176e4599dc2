//go:build !cgo

package treesitter

import (
	"context"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/structure"
)

// Parser is a stub for non-CGO builds; every parse fails with a parse
// error, which routes requests to the raw-source fast path.
type Parser struct{}

// NewParser creates a new tree-sitter parser.
func NewParser() *Parser {
	return &Parser{}
}

// Available reports whether tree-sitter parsing is compiled in.
func Available() bool {
	return false
}

// Supports always reports true so the failure surfaces as a parse error.
func (p *Parser) Supports(language string) bool {
	return true
}

func (p *Parser) Parse(ctx context.Context, src []byte, language string) (*structure.SyntaxNode, error) {
	return nil, errors.ParseErrorf("structural parsing requires CGO (tree-sitter)")
}
