package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/models"
	"github.com/retz8/iris/internal/structure"
)

// mockAnalyzer records requests and returns canned answers.
type mockAnalyzer struct {
	requests []models.Request
	result   *models.AnalysisResult
	err      error
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req models.Request) (*models.AnalysisResult, error) {
	m.requests = append(m.requests, req)
	return m.result, m.err
}

func (m *mockAnalyzer) Structure(ctx context.Context, src, language string) (*structure.Node, error) {
	if language != structure.LangGo {
		return nil, errors.ParseErrorf("unsupported language %q", language)
	}
	return &structure.Node{Type: "source_file", Language: language, TotalLines: 3}, nil
}

func connect(t *testing.T, a Analyzer) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()

	_, err := New(a, "test").Connect(ctx, serverT)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListTools(t *testing.T) {
	cs := connect(t, &mockAnalyzer{})
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolAnalyzeFile, ToolFileStructure}, names)
}

func TestAnalyzeFile(t *testing.T) {
	a := &mockAnalyzer{result: &models.AnalysisResult{
		FileIntent: "Serves cached thumbnails over HTTP",
		ResponsibilityBlocks: []models.ResponsibilityBlock{
			{ID: "serve", Label: "HTTP serving", Ranges: []models.Range{{Start: 1, End: 9}}},
		},
		Metadata: models.Metadata{ExecutionPath: models.PathFastPath, TotalLines: 9},
	}}
	cs := connect(t, a)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolAnalyzeFile,
		Arguments: map[string]any{
			"filename":    "thumbs.go",
			"source_code": "package thumbs\n",
			"strategy":    "fast",
		},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got models.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "Serves cached thumbnails over HTTP", got.FileIntent)
	assert.Equal(t, []models.Range{{Start: 1, End: 9}}, got.ResponsibilityBlocks[0].Ranges)

	require.Len(t, a.requests, 1)
	assert.Equal(t, models.StrategyFast, a.requests[0].Strategy)
	assert.Equal(t, "thumbs.go", a.requests[0].Filename)
}

func TestAnalyzeFileFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.py")
	require.NoError(t, os.WriteFile(path, []byte("print('hi')\n"), 0o644))

	a := &mockAnalyzer{result: &models.AnalysisResult{FileIntent: "Prints a greeting to stdout"}}
	cs := connect(t, a)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolAnalyzeFile,
		Arguments: map[string]any{"path": path},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, a.requests, 1)
	assert.Equal(t, "main.py", a.requests[0].Filename)
	assert.Equal(t, "print('hi')\n", a.requests[0].SourceCode)
}

func TestAnalyzeFileFailure(t *testing.T) {
	a := &mockAnalyzer{err: errors.ToolBudgetExceeded(8, 6)}
	cs := connect(t, a)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolAnalyzeFile,
		Arguments: map[string]any{"source_code": "x = 1", "language": "python"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	var f errors.Failure
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &f))
	assert.Equal(t, errors.CodeToolBudget, f.Code)
	assert.NotEmpty(t, f.Reason)
}

func TestAnalyzeFileNeedsSource(t *testing.T) {
	a := &mockAnalyzer{}
	cs := connect(t, a)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolAnalyzeFile,
		Arguments: map[string]any{"language": "go"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), string(errors.CodeInvalidRequest))
	assert.Empty(t, a.requests)
}

func TestFileStructure(t *testing.T) {
	cs := connect(t, &mockAnalyzer{})
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolFileStructure,
		Arguments: map[string]any{"source_code": "package a\n", "language": "go"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), `"type": "source_file"`)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolFileStructure,
		Arguments: map[string]any{"source_code": "IDENTIFICATION DIVISION.", "language": "cobol"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), string(errors.CodeParse))
}
