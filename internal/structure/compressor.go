package structure

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/source"
)

const (
	maxSignatureLen = 240
	maxCommentLen   = 300
	nameSearchDepth = 3
	bodySearchDepth = 3
)

// Fields and node types whose subtree is implementation detail.
var (
	bodyFields = map[string]bool{
		"body":             true,
		"block":            true,
		"consequence":      true,
		"alternative":      true,
		"declaration_list": true,
		"members":          true,
	}

	bodyKinds = map[string]bool{
		"block":                  true,
		"statement_block":        true,
		"class_body":             true,
		"compound_statement":     true,
		"declaration_list":       true,
		"field_declaration_list": true,
		"interface_body":         true,
		"interface_type":         true,
		"enum_body":              true,
		"enum_variant_list":      true,
		"object_type":            true,
		"constructor_body":       true,
	}

	// Bodies whose direct members are kept as level-2 nodes.
	containerBodyKinds = map[string]bool{
		"class_body":             true,
		"interface_body":         true,
		"interface_type":         true,
		"enum_body":              true,
		"enum_variant_list":      true,
		"object_type":            true,
		"declaration_list":       true,
		"field_declaration_list": true,
	}

	containerKinds = map[string]bool{
		"class_definition": true,
		"class":            true,
	}

	// Wrappers whose real declaration sits in a field.
	wrapperFields = map[string]string{
		"export_statement":     "declaration",
		"decorated_definition": "definition",
	}

	// Siblings that belong to the declaration that follows them.
	prefixKinds = map[string]bool{
		"attribute_item": true,
	}

	nameFields = []string{"name", "left", "declarator"}

	opaqueKinds = map[string]bool{
		"argument_list":   true,
		"arguments":       true,
		"call":            true,
		"call_expression": true,
	}
)

// Compressor turns a parse tree into a two-level skeleton.
type Compressor struct {
	parser Parser
	logger *slog.Logger
}

// NewCompressor creates a compressor backed by parser.
func NewCompressor(parser Parser) *Compressor {
	return &Compressor{
		parser: parser,
		logger: slog.Default().With("component", "structure"),
	}
}

// Supports reports whether the underlying parser handles language.
func (c *Compressor) Supports(language string) bool {
	return c.parser != nil && c.parser.Supports(NormalizeLanguage(language))
}

// Compress parses src and returns its shallow structure. Unsupported or
// unparseable input fails with a parse error.
func (c *Compressor) Compress(ctx context.Context, src, language string) (*Node, error) {
	lang := NormalizeLanguage(language)
	if !c.Supports(lang) {
		return nil, errors.ParseErrorf("unsupported language %q", language)
	}

	tree, err := c.parser.Parse(ctx, []byte(src), lang)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.HasCode(err, errors.CodeParse) {
			return nil, err
		}
		return nil, errors.ParseErrorf("parse %s source: %v", lang, err).WithContext("language", lang)
	}
	if tree == nil {
		return nil, errors.ParseErrorf("parser returned no tree for %s", lang)
	}

	b := &builder{src: []byte(src), lang: lang}
	total := source.CountLines(src)

	root := &Node{
		Type:       tree.Kind,
		Line:       1,
		Language:   lang,
		TotalLines: total,
	}
	if total > 1 {
		root.LineRange = &models.Range{Start: 1, End: total}
	}

	top := tree.Children
	if lang == LangPython && len(top) > 0 {
		if doc, ok := b.docstring(top[0]); ok {
			root.LeadingComment = doc
			top = top[1:]
		}
	}
	root.Children = b.level(top, true)

	c.logger.Debug("compressed structure",
		"language", lang,
		"total_lines", total,
		"top_level", len(root.Children))
	return root, nil
}

type builder struct {
	src  []byte
	lang string
}

type notes struct {
	leading, inline, trailing []string
}

// level converts one sibling list into nodes, attaching comments.
// Members of containers are expanded only when withMembers is set.
func (b *builder) level(items []*SyntaxNode, withMembers bool) []*Node {
	attached := b.attachComments(items)

	var out []*Node
	for _, item := range items {
		if isComment(item.Kind) || prefixKinds[item.Kind] {
			continue
		}
		n := b.declaration(item, withMembers)
		if note := attached[item]; note != nil {
			n.LeadingComment = firstNonEmpty(joinComments(note.leading), n.LeadingComment)
			n.InlineComment = joinComments(note.inline)
			n.TrailingComment = joinComments(note.trailing)
		}
		out = append(out, n)
	}
	return out
}

// attachComments assigns each comment sibling to at most one declaration.
// Priority: inline with the previous declaration, then part of the
// contiguous run leading the next one, then trailing the previous one.
func (b *builder) attachComments(items []*SyntaxNode) map[*SyntaxNode]*notes {
	out := make(map[*SyntaxNode]*notes)
	get := func(n *SyntaxNode) *notes {
		if out[n] == nil {
			out[n] = &notes{}
		}
		return out[n]
	}

	claimed := make([]bool, len(items))
	prevDecl := make([]int, len(items))

	last := -1
	for i, item := range items {
		prevDecl[i] = last
		if isDecl(item) {
			last = i
		}
	}

	for i, item := range items {
		if !isComment(item.Kind) || prevDecl[i] < 0 {
			continue
		}
		p := items[prevDecl[i]]
		if item.StartLine == p.EndLine {
			get(p).inline = append(get(p).inline, b.text(item))
			claimed[i] = true
		}
	}

	for d, item := range items {
		if !isDecl(item) {
			continue
		}
		expect := item.StartLine
		var run []string
		for k := d - 1; k >= 0; k-- {
			prev := items[k]
			if prefixKinds[prev.Kind] && prev.EndLine >= expect-1 {
				expect = prev.StartLine
				continue
			}
			if !isComment(prev.Kind) || claimed[k] || prev.EndLine != expect-1 {
				break
			}
			run = append(run, b.text(prev))
			claimed[k] = true
			expect = prev.StartLine
		}
		for l, r := 0, len(run)-1; l < r; l, r = l+1, r-1 {
			run[l], run[r] = run[r], run[l]
		}
		if len(run) > 0 {
			get(item).leading = run
		}
	}

	for i, item := range items {
		if !isComment(item.Kind) || claimed[i] || prevDecl[i] < 0 {
			continue
		}
		p := items[prevDecl[i]]
		if item.StartLine == p.EndLine+1 {
			get(p).trailing = append(get(p).trailing, b.text(item))
			claimed[i] = true
		}
	}

	return out
}

func (b *builder) declaration(d *SyntaxNode, withMembers bool) *Node {
	inner := unwrap(d)
	body := findBody(inner)

	n := &Node{
		Type:      inner.Kind,
		Name:      b.name(inner),
		Signature: b.signature(d, body),
		Line:      d.StartLine,
	}
	if d.EndLine > d.StartLine {
		n.LineRange = &models.Range{Start: d.StartLine, End: d.EndLine}
	}

	if body != nil {
		if doc, ok := b.bodyDocstring(body); ok {
			n.LeadingComment = doc
		}
		if withMembers && isContainer(inner, body) {
			members := body.Children
			if _, ok := b.bodyDocstring(body); ok {
				members = members[1:]
			}
			n.Children = b.level(members, false)
		}
	}
	return n
}

func (b *builder) signature(d, body *SyntaxNode) string {
	end := d.EndByte
	if body != nil && body.StartByte >= d.StartByte {
		end = body.StartByte
		bodyText := b.src[body.StartByte:body.EndByte]
		if i := bytes.IndexByte(bodyText, '{'); i > 0 && !bytes.Contains(bodyText[:i], []byte("\n")) {
			end += i
		}
	}
	return truncate(collapse(string(b.src[d.StartByte:end])), maxSignatureLen)
}

// name finds the declared identifier without descending into bodies or calls.
func (b *builder) name(n *SyntaxNode) string {
	frontier := []*SyntaxNode{n}
	for depth := 0; depth < nameSearchDepth && len(frontier) > 0; depth++ {
		var next []*SyntaxNode
		for _, cur := range frontier {
			for _, field := range nameFields {
				if c := cur.ChildByField(field); c != nil {
					if field == "declarator" && len(c.Children) > 0 {
						next = append(next, c)
						continue
					}
					if txt := b.raw(c); isNameLike(txt) {
						return txt
					}
				}
			}
			for _, c := range cur.Children {
				if isBody(c) || opaqueKinds[c.Kind] || isComment(c.Kind) {
					continue
				}
				next = append(next, c)
			}
		}
		frontier = next
	}
	return ""
}

// docstring returns the text of a Python string statement.
func (b *builder) docstring(n *SyntaxNode) (string, bool) {
	if b.lang != LangPython || n.Kind != "expression_statement" || len(n.Children) != 1 {
		return "", false
	}
	if n.Children[0].Kind != "string" {
		return "", false
	}
	return cleanComment(b.raw(n.Children[0])), true
}

func (b *builder) bodyDocstring(body *SyntaxNode) (string, bool) {
	if len(body.Children) == 0 {
		return "", false
	}
	return b.docstring(body.Children[0])
}

func (b *builder) raw(n *SyntaxNode) string {
	if n.StartByte < 0 || n.EndByte > len(b.src) || n.StartByte > n.EndByte {
		return ""
	}
	return string(b.src[n.StartByte:n.EndByte])
}

func (b *builder) text(n *SyntaxNode) string {
	return cleanComment(b.raw(n))
}

func unwrap(n *SyntaxNode) *SyntaxNode {
	for {
		field, ok := wrapperFields[n.Kind]
		if !ok {
			return n
		}
		inner := n.ChildByField(field)
		if inner == nil {
			return n
		}
		n = inner
	}
}

func findBody(n *SyntaxNode) *SyntaxNode {
	frontier := n.Children
	for depth := 0; depth < bodySearchDepth && len(frontier) > 0; depth++ {
		var next []*SyntaxNode
		for _, c := range frontier {
			if isBody(c) {
				return c
			}
			if !opaqueKinds[c.Kind] {
				next = append(next, c.Children...)
			}
		}
		frontier = next
	}
	return nil
}

func isBody(n *SyntaxNode) bool {
	return bodyFields[n.Field] || bodyKinds[n.Kind]
}

func isContainer(decl, body *SyntaxNode) bool {
	return containerKinds[decl.Kind] || containerBodyKinds[body.Kind]
}

func isComment(kind string) bool {
	return strings.Contains(kind, "comment")
}

func isDecl(n *SyntaxNode) bool {
	return !isComment(n.Kind) && !prefixKinds[n.Kind]
}

func isNameLike(s string) bool {
	return s != "" && len(s) <= 80 && !strings.ContainsAny(s, "\n{}()")
}

func cleanComment(text string) string {
	text = strings.TrimSpace(text)
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			text = text[len(q) : len(text)-len(q)]
		}
	}

	var parts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, "*/")
		for _, prefix := range []string{"///", "//!", "//", "/**", "/*", "#", "*"} {
			if strings.HasPrefix(line, prefix) {
				line = line[len(prefix):]
				break
			}
		}
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return truncate(strings.Join(parts, " "), maxCommentLen)
}

func joinComments(cs []string) string {
	var parts []string
	for _, c := range cs {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return truncate(strings.Join(parts, " "), maxCommentLen)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
