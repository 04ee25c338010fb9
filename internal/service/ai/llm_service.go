package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/config"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
	"github.com/zhouzirui/negi-chat/internal/model/persona"
)

// ErrMalformedReply is returned when the model answers with no usable text.
var ErrMalformedReply = errors.New("malformed model reply")

// StatusError is a non-success response from the model provider.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("model request failed with status %d: %s", e.StatusCode, e.Message)
}

// Params are the sampling settings sent with every request. They are fixed
// for the lifetime of a Service.
type Params struct {
	Temperature float32
	TopP        float32
}

// Service runs the persona prompt plus session context through a chat model.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	persona persona.Persona
	params  Params
	logger  zerolog.Logger
}

// NewService compiles the chat chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, p persona.Persona, params Params, logger zerolog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:   runnable,
		persona: p,
		params:  params,
		logger:  logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Generate asks the model for the next reply given the full session context.
func (s *Service) Generate(ctx context.Context, history []chat.Message) (string, error) {
	input := map[string]any{
		"system":  s.persona.SystemPrompt,
		"history": toSchemaMessages(history),
	}

	response, err := s.chain.Invoke(ctx, input, compose.WithChatModelOption(
		model.WithTemperature(s.params.Temperature),
		model.WithTopP(s.params.TopP),
	))
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrMalformedReply
	}

	s.logger.Debug().Int("history", len(history)).Int("length", len(response.Content)).Msg("generated reply")
	return response.Content, nil
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleModel:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}

// NewChatModel creates the chat model selected by cfg.Provider.
func NewChatModel(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		return cfg.NewArkChatModel(ctx)
	case config.ProviderGemini, "":
		return NewGeminiChatModel(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
