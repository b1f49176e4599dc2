package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Here you go: {\"a\":{\"b\":2}} done", `{"a":{"b":2}}`},
		{"no object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestToolCallIntArg(t *testing.T) {
	call := ToolCall{Args: map[string]any{
		"float":    float64(12),
		"fraction": 1.5,
		"int":      7,
		"number":   json.Number("42"),
		"string":   " 9 ",
		"word":     "nine",
		"bool":     true,
	}}

	tests := []struct {
		key  string
		want int
		ok   bool
	}{
		{"float", 12, true},
		{"fraction", 0, false},
		{"int", 7, true},
		{"number", 42, true},
		{"string", 9, true},
		{"word", 0, false},
		{"bool", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := call.IntArg(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "", call.StringArg("float"))
	assert.Equal(t, "nine", call.StringArg("word"))
}

func TestSchema(t *testing.T) {
	s := schema([]Param{
		{Name: "start_line", Type: "integer", Required: true},
		{Name: "reason", Type: "string"},
	})
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"start_line"}, s["required"])
	assert.Len(t, s["properties"], 2)

	assert.NotContains(t, schema(nil), "required")
}

func TestReplyHasToolCalls(t *testing.T) {
	var nilReply *Reply
	assert.False(t, nilReply.HasToolCalls())
	assert.False(t, (&Reply{Text: "x"}).HasToolCalls())
	assert.True(t, (&Reply{ToolCalls: []ToolCall{{Name: "t"}}}).HasToolCalls())
	assert.Equal(t, 5, Usage{InputTokens: 2, OutputTokens: 3}.Total())
}
