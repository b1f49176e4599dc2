package llm

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/retz8/iris/internal/errors"
)

// OpenAIEngine talks to OpenAI-compatible chat completion endpoints.
type OpenAIEngine struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewOpenAIEngine creates an OpenAI engine. baseURL may point at any
// compatible endpoint; empty means the public API.
func NewOpenAIEngine(apiKey, model, baseURL string, temperature float32) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, errors.ConfigErrorf("openai api key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIEngine{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		logger:      slog.Default().With("component", "openai", "model", model),
	}, nil
}

func (o *OpenAIEngine) Name() string {
	return string(ProviderOpenAI) + "/" + o.model
}

// Exchange submits the history to CreateChatCompletion.
func (o *OpenAIEngine) Exchange(ctx context.Context, req ExchangeRequest) (*Reply, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    openAIMessages(req.System, req.History),
		Tools:       openAITools(req.Tools),
		Temperature: o.temperature,
	}
	if req.JSON && len(req.Tools) == 0 {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, errors.EngineUnavailable(err, "openai exchange failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.MalformedOutput(nil, "openai returned no choices")
	}

	msg := resp.Choices[0].Message
	reply := &Reply{
		Text: msg.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, parseOpenAIToolCall(tc))
	}

	o.logger.Debug("openai exchange",
		"stage", req.Stage,
		"history_length", len(req.History),
		"tool_calls", len(reply.ToolCalls),
		"tokens_used", resp.Usage.TotalTokens,
	)
	return reply, nil
}

func parseOpenAIToolCall(tc openai.ToolCall) ToolCall {
	call := ToolCall{ID: tc.ID, Name: tc.Function.Name, RawArgs: tc.Function.Arguments}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
		call.Args = args
	}
	return call
}

func openAIMessages(system string, turns []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Text}
			for _, call := range t.ToolCalls {
				args := call.RawArgs
				if args == "" {
					data, _ := json.Marshal(call.Args)
					args = string(data)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Name, Arguments: args},
				})
			}
			msgs = append(msgs, msg)
		case RoleTool:
			// one tool message per answered call
			for _, res := range t.ToolResults {
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    res.Content,
					Name:       res.Name,
					ToolCallID: res.CallID,
				})
			}
		default:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Text})
		}
	}
	return msgs
}

func openAITools(specs []ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  schema(s.Params),
			},
		})
	}
	return tools
}
