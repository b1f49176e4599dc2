package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/retz8/iris/internal/errors"
)

// Step is one canned reply. Delay is honored against the context before
// the reply or error is returned.
type Step struct {
	Text      string        `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCalls []ToolCall    `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Usage     Usage         `json:"usage" yaml:"usage"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Delay     time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	Err       error         `json:"-" yaml:"-"`
	Respond   ResponderFunc `json:"-" yaml:"-"`
}

// ResponderFunc computes a reply from the request.
type ResponderFunc func(ctx context.Context, req ExchangeRequest) (*Reply, error)

// ScriptedEngine replays steps in order. It records every request it
// receives. Running past the end of the script is an engine failure.
type ScriptedEngine struct {
	mu    sync.Mutex
	steps []Step
	next  int
	calls []ExchangeRequest
	name  string
}

// NewScriptedEngine creates an engine replaying steps.
func NewScriptedEngine(steps ...Step) *ScriptedEngine {
	return &ScriptedEngine{steps: steps, name: string(ProviderScripted)}
}

// LoadScript reads steps from a YAML or JSON file.
func LoadScript(path string) (*ScriptedEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileSystemError(err, "read script")
	}

	var steps []Step
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &steps)
	default:
		err = yaml.Unmarshal(data, &steps)
	}
	if err != nil {
		return nil, errors.ConfigErrorf("parse script %s: %v", path, err)
	}

	e := NewScriptedEngine(steps...)
	e.name = string(ProviderScripted) + "/" + filepath.Base(path)
	return e, nil
}

func (s *ScriptedEngine) Name() string {
	return s.name
}

// Exchange returns the next step.
func (s *ScriptedEngine) Exchange(ctx context.Context, req ExchangeRequest) (*Reply, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cloneRequest(req))
	if s.next >= len(s.steps) {
		n := s.next
		s.mu.Unlock()
		return nil, errors.EngineUnavailable(nil, fmt.Sprintf("script exhausted after %d steps", n))
	}
	step := s.steps[s.next]
	s.next++
	callNo := len(s.calls)
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case step.Respond != nil:
		return step.Respond(ctx, req)
	case step.Err != nil:
		return nil, step.Err
	case step.Error != "":
		return nil, errors.EngineUnavailable(nil, step.Error)
	}

	calls := make([]ToolCall, len(step.ToolCalls))
	copy(calls, step.ToolCalls)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call-%d-%d", callNo, i)
		}
	}
	return &Reply{Text: step.Text, ToolCalls: calls, Usage: step.Usage}, nil
}

// Calls returns the number of exchanges received.
func (s *ScriptedEngine) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Requests returns copies of every request received.
func (s *ScriptedEngine) Requests() []ExchangeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExchangeRequest, len(s.calls))
	copy(out, s.calls)
	return out
}

// Remaining returns the number of unplayed steps.
func (s *ScriptedEngine) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}

func cloneRequest(req ExchangeRequest) ExchangeRequest {
	out := req
	out.History = make([]Turn, len(req.History))
	copy(out.History, req.History)
	return out
}

// ToolStep is a step requesting the given tool calls.
func ToolStep(calls ...ToolCall) Step {
	return Step{ToolCalls: calls}
}

// TextStep is a terminal step replying with text.
func TextStep(text string) Step {
	return Step{Text: text}
}

// ReadCall builds a refer_to_source_code call.
func ReadCall(start, end int, reason string) ToolCall {
	return ToolCall{
		Name: "refer_to_source_code",
		Args: map[string]any{"start_line": float64(start), "end_line": float64(end), "reason": reason},
	}
}
