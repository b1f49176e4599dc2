package llm

import (
	"context"
	"log/slog"

	"google.golang.org/genai"

	"github.com/retz8/iris/internal/errors"
)

// GeminiEngine talks to Google's Gemini models through the genai SDK.
type GeminiEngine struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewGeminiEngine creates a Gemini engine for model.
func NewGeminiEngine(ctx context.Context, apiKey, model string, temperature float32) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, errors.ConfigErrorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.EngineUnavailable(err, "create gemini client")
	}

	return &GeminiEngine{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      slog.Default().With("component", "gemini", "model", model),
	}, nil
}

func (g *GeminiEngine) Name() string {
	return string(ProviderGemini) + "/" + g.model
}

// Exchange submits the history to GenerateContent.
func (g *GeminiEngine) Exchange(ctx context.Context, req ExchangeRequest) (*Reply, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: &g.temperature,
		Tools:       geminiTools(req.Tools),
	}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	// JSON mode cannot be combined with function calling
	if req.JSON && len(req.Tools) == 0 {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiHistory(req.History), genConfig)
	if err != nil {
		return nil, errors.EngineUnavailable(err, "gemini exchange failed")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.MalformedOutput(nil, "gemini returned no candidates")
	}

	reply := &Reply{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
		if part.Text != "" {
			reply.Text += part.Text
		}
	}
	if resp.UsageMetadata != nil {
		reply.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	g.logger.Debug("gemini exchange",
		"stage", req.Stage,
		"history_length", len(req.History),
		"tool_calls", len(reply.ToolCalls),
		"tokens", reply.Usage.Total(),
	)
	return reply, nil
}

func geminiHistory(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			content := &genai.Content{Role: "model"}
			if t.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: t.Text})
			}
			for _, call := range t.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				}})
			}
			history = append(history, content)
		case RoleTool:
			// function responses travel in a user turn
			content := &genai.Content{Role: "user"}
			for _, res := range t.ToolResults {
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       res.CallID,
					Name:     res.Name,
					Response: map[string]any{"result": res.Content},
				}})
			}
			history = append(history, content)
		default:
			history = append(history, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}
	return history
}

func geminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		props := make(map[string]*genai.Schema, len(s.Params))
		var required []string
		for _, p := range s.Params {
			props[p.Name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
