package structure

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/retz8/iris/internal/models"
)

// LargeSpan is the line count above which an uncommented declaration is
// worth reading.
const LargeSpan = 15

// Hint marks a declaration whose skeleton alone is unlikely to explain it.
type Hint struct {
	Name   string       `json:"name"`
	Type   string       `json:"type"`
	Range  models.Range `json:"range"`
	Reason string       `json:"reason"`
}

var loopCounters = map[string]bool{
	"i": true, "j": true, "k": true, "n": true, "x": true, "y": true, "_": true,
	"err": true, "ok": true, "ctx": true,
}

var genericWords = map[string]bool{
	"process": true, "data": true, "temp": true, "tmp": true, "handle": true,
	"handler": true, "do": true, "run": true, "exec": true, "execute": true,
	"func": true, "fn": true, "foo": true, "bar": true, "baz": true, "qux": true,
	"helper": true, "helpers": true, "util": true, "utils": true, "manager": true,
	"stuff": true, "thing": true, "things": true, "obj": true, "object": true,
	"item": true, "items": true, "val": true, "value": true, "values": true,
	"result": true, "res": true, "info": true, "misc": true, "input": true,
	"output": true, "buf": true, "calc": true, "compute": true, "work": true,
}

// ReadHints lists declarations worth reading: generic or single-letter
// names, and large spans without any comment. Single-line declarations
// are fully captured by the skeleton and never hinted.
func ReadHints(root *Node) []Hint {
	if root == nil {
		return nil
	}

	var hints []Hint
	root.Walk(func(n *Node, depth int) {
		if depth == 0 || n.LineRange == nil || isImport(n.Type) {
			return
		}
		switch {
		case IsGenericName(n.Name):
			hints = append(hints, Hint{Name: n.Name, Type: n.Type, Range: *n.LineRange,
				Reason: "generic name"})
		case !n.HasComment() && n.LineRange.Len() >= LargeSpan:
			hints = append(hints, Hint{Name: n.Name, Type: n.Type, Range: *n.LineRange,
				Reason: fmt.Sprintf("no comment, spans %d lines", n.LineRange.Len())})
		}
	})
	return hints
}

// IsGenericName reports whether name says nothing about what it does.
// Conventional loop counters are not generic.
func IsGenericName(name string) bool {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || loopCounters[strings.ToLower(name)] {
		return false
	}

	words := splitIdentifier(name)
	if len(words) == 1 && len([]rune(words[0])) == 1 {
		return true
	}
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !genericWords[w] {
			return false
		}
	}
	return true
}

// splitIdentifier breaks snake_case and camelCase into lowercase words.
func splitIdentifier(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '$':
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func isImport(kind string) bool {
	return strings.Contains(kind, "import") || kind == "use_declaration" ||
		kind == "package_clause" || kind == "package_declaration"
}
