// Package llm adapts reasoning services to a single exchange protocol:
// submit a history with declared tools, receive either text or tool calls.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider names a reasoning service backend.
type Provider string

const (
	ProviderGemini   Provider = "gemini"
	ProviderOpenAI   Provider = "openai"
	ProviderScripted Provider = "scripted"
)

// Role of a turn in the exchange history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Engine is one reasoning service. Implementations must be safe for
// concurrent use by independent runs.
type Engine interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*Reply, error)
	Name() string
}

// ExchangeRequest is a single submission of the full history.
type ExchangeRequest struct {
	System  string
	History []Turn
	Tools   []ToolSpec
	// JSON asks the service to reply with a JSON object when no tool is declared.
	JSON bool
	// Stage tags the request for logging and token accounting.
	Stage string
}

// Turn is one message in the history.
type Turn struct {
	Role        Role         `json:"role" yaml:"role"`
	Text        string       `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty" yaml:"tool_results,omitempty"`
}

// ToolSpec declares a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// Param is one tool argument. Type is "integer", "string" or "boolean".
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolCall is a tool invocation requested by the service.
type ToolCall struct {
	ID      string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string         `json:"name" yaml:"name"`
	Args    map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	RawArgs string         `json:"raw_args,omitempty" yaml:"raw_args,omitempty"`
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id,omitempty" yaml:"call_id,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

// Usage reports token counts for one exchange.
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Reply is the service's answer to one exchange.
type Reply struct {
	Text      string     `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage" yaml:"usage"`
}

// HasToolCalls reports whether the reply requests any tool.
func (r *Reply) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// IntArg reads an integer argument. Services encode numbers as float64 or
// strings depending on the provider.
func (c ToolCall) IntArg(name string) (int, bool) {
	switch v := c.Args[name].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		var n int
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &n); err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// StringArg reads a string argument.
func (c ToolCall) StringArg(name string) string {
	s, _ := c.Args[name].(string)
	return s
}

// ExtractJSON returns the first JSON object in text, dropping markdown
// fences and surrounding prose.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// schema renders params as a JSON schema object.
func schema(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		props[p.Name] = map[string]any{"type": p.Type, "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}
