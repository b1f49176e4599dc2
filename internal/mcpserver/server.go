// Package mcpserver exposes file analysis as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/logging"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/structure"
	"github.com/retz8/iris/internal/treesitter"
)

// Tool names
const (
	ToolAnalyzeFile   = "analyze_file"
	ToolFileStructure = "file_structure"
)

// Analyzer is the part of analysis.Analyzer the server needs.
type Analyzer interface {
	Analyze(ctx context.Context, req models.Request) (*models.AnalysisResult, error)
	Structure(ctx context.Context, src, language string) (*structure.Node, error)
}

// AnalyzeInput is the analyze_file argument object. Either path or
// source_code must be set; source_code wins when both are.
type AnalyzeInput struct {
	Path       string `json:"path,omitempty" jsonschema:"file to read when source_code is empty"`
	Filename   string `json:"filename,omitempty" jsonschema:"display name used to detect the language"`
	Language   string `json:"language,omitempty" jsonschema:"language identifier such as go or python"`
	SourceCode string `json:"source_code,omitempty" jsonschema:"full text of the file"`
	Strategy   string `json:"strategy,omitempty" jsonschema:"one of auto or fast or adaptive or two_step"`
}

// StructureInput is the file_structure argument object.
type StructureInput struct {
	Path       string `json:"path,omitempty" jsonschema:"file to read when source_code is empty"`
	Language   string `json:"language,omitempty" jsonschema:"language identifier such as go or python"`
	SourceCode string `json:"source_code,omitempty" jsonschema:"full text of the file"`
}

// Server serves the analysis tools.
type Server struct {
	analyzer Analyzer
	server   *mcp.Server
	logger   *slog.Logger
}

// New creates a server with both tools registered.
func New(analyzer Analyzer, version string) *Server {
	s := &Server{
		analyzer: analyzer,
		server:   mcp.NewServer(&mcp.Implementation{Name: "iris", Version: version}, nil),
		logger:   logging.Component("mcp"),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name: ToolAnalyzeFile,
		Description: "Summarize a source file: a one-line file intent and a few named responsibility " +
			"blocks with the line ranges they occupy.",
	}, s.analyzeFile)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolFileStructure,
		Description: "Return the shallow structure of a source file: declarations, signatures, comments and line ranges.",
	}, s.fileStructure)
	return s
}

// Run serves over stdin and stdout until ctx is done or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

func (s *Server) analyzeFile(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, any, error) {
	src, err := sourceOf(in.Path, in.SourceCode)
	if err != nil {
		return failure(err), nil, nil
	}
	name := in.Filename
	if name == "" && in.Path != "" {
		name = filepath.Base(in.Path)
	}

	res, err := s.analyzer.Analyze(ctx, models.Request{
		Filename:   name,
		Language:   in.Language,
		SourceCode: src,
		Strategy:   models.Strategy(in.Strategy),
	})
	if err != nil {
		s.logger.Warn("analyze_file failed", "filename", name, "code", errors.CodeOf(err))
		return failure(err), nil, nil
	}
	return success(res), nil, nil
}

func (s *Server) fileStructure(ctx context.Context, _ *mcp.CallToolRequest, in StructureInput) (*mcp.CallToolResult, any, error) {
	src, err := sourceOf(in.Path, in.SourceCode)
	if err != nil {
		return failure(err), nil, nil
	}
	lang := in.Language
	if lang == "" && in.Path != "" {
		lang = treesitter.DetectLanguage(in.Path)
	}

	root, err := s.analyzer.Structure(ctx, src, lang)
	if err != nil {
		return failure(err), nil, nil
	}
	return success(root), nil, nil
}

func sourceOf(path, src string) (string, error) {
	if src != "" {
		return src, nil
	}
	if path == "" {
		return "", errors.InvalidRequestf("either path or source_code is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.InvalidRequestf("read %s: %v", path, err)
	}
	return string(data), nil
}

func success(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return failure(errors.InternalErrorf("encode result: %v", err))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}

// failure reports err as a tool-level error carrying {code, reason}.
func failure(err error) *mcp.CallToolResult {
	data, _ := json.Marshal(errors.FailureOf(err))
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
