package treesitter

import (
	"path/filepath"
	"strings"

	"github.com/retz8/iris/internal/structure"
)

var extLanguages = map[string]string{
	".go":   structure.LangGo,
	".js":   structure.LangJavaScript,
	".jsx":  structure.LangJavaScript,
	".mjs":  structure.LangJavaScript,
	".cjs":  structure.LangJavaScript,
	".ts":   structure.LangTypeScript,
	".mts":  structure.LangTypeScript,
	".cts":  structure.LangTypeScript,
	".tsx":  structure.LangTSX,
	".py":   structure.LangPython,
	".pyi":  structure.LangPython,
	".pyw":  structure.LangPython,
	".java": structure.LangJava,
	".rs":   structure.LangRust,
}

// DetectLanguage returns language identifier from file extension
func DetectLanguage(filePath string) string {
	return extLanguages[strings.ToLower(filepath.Ext(filePath))]
}

// SupportedLanguages lists the languages the parser can handle.
func SupportedLanguages() []string {
	return []string{
		structure.LangGo,
		structure.LangJavaScript,
		structure.LangTypeScript,
		structure.LangTSX,
		structure.LangPython,
		structure.LangJava,
		structure.LangRust,
	}
}
