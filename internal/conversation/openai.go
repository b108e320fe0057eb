// ABOUTME: Engine implementation on the OpenAI chat completions API
// ABOUTME: Supports Azure OpenAI deployments and the public OpenAI endpoint

package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/2389/helix-gateway/internal/packs"
)

// Providers understood by NewOpenAIEngine.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// ErrNoChoices is returned when the provider answers without any choice.
var ErrNoChoices = errors.New("engine returned no choices")

// OpenAIConfig configures an OpenAIEngine.
type OpenAIConfig struct {
	Provider            string
	Endpoint            string
	APIKey              string
	APIVersion          string
	Model               string // deployment name on Azure
	MaxCompletionTokens int
	SystemPrompt        string
	Timeout             time.Duration
}

// OpenAIEngine implements Engine with go-openai.
type OpenAIEngine struct {
	client       *openai.Client
	model        string
	maxTokens    int
	systemPrompt string
}

// NewOpenAIEngine builds an engine for the configured provider.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	var clientCfg openai.ClientConfig
	switch cfg.Provider {
	case ProviderAzure:
		if cfg.Endpoint == "" {
			return nil, errors.New("azure provider requires an endpoint")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		// Deployment names are used verbatim.
		clientCfg.AzureModelMapperFunc = func(model string) string { return model }
	case ProviderOpenAI, "":
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = cfg.Endpoint
		}
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}

	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	return &OpenAIEngine{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		maxTokens:    cfg.MaxCompletionTokens,
		systemPrompt: prompt,
	}, nil
}

// Respond implements Engine. Tools are offered with automatic choice; with no
// tools the request carries neither tools nor a tool choice.
func (e *OpenAIEngine) Respond(ctx context.Context, history []Entry, tools []*packs.ToolDefinition) (*Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:               e.model,
		Messages:            e.messages(history),
		MaxCompletionTokens: e.maxTokens,
	}
	if len(tools) > 0 {
		req.Tools = toolParams(tools)
		req.ToolChoice = "auto"
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

func (e *OpenAIEngine) messages(history []Entry) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.systemPrompt})

	for _, entry := range history {
		switch entry.Role {
		case RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: entry.Content})
		case RoleAssistant:
			m := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: entry.Content}
			for _, tc := range entry.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			msgs = append(msgs, m)
		case RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    entry.Content,
				ToolCallID: entry.ToolCallID,
				Name:       entry.Name,
			})
		}
	}
	return msgs
}

func toolParams(tools []*packs.ToolDefinition) []openai.Tool {
	params := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params = append(params, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return params
}
