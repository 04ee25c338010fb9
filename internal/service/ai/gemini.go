package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/negi-chat/internal/config"
)

// GeminiConfig configures GeminiChatModel.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	HTTPClient  *http.Client
	Temperature float32
	TopP        float32
}

// GeminiChatModel adapts the Gemini generateContent API to eino's chat model
// interface.
type GeminiChatModel struct {
	client      *genai.Client
	model       string
	temperature float32
	topP        float32
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel creates a Gemini client.
func NewGeminiChatModel(ctx context.Context, cfg GeminiConfig) (*GeminiChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", config.ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiChatModel{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}, nil
}

// Generate sends the conversation and returns the first candidate's first part.
func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.model,
		Temperature: &m.temperature,
		TopP:        &m.topP,
	}, opts...)

	contents, system := toGeminiContents(input)
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       options.Temperature,
		TopP:              options.TopP,
	}

	resp, err := m.client.Models.GenerateContent(ctx, *options.Model, contents, genCfg)
	if err != nil {
		return nil, convertGeminiError(err)
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream is not used by the gateway; it yields the full reply as one chunk.
func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toGeminiContents(input []*schema.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents    []*genai.Content
		systemParts []*genai.Part
	)

	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			systemParts = append(systemParts, &genai.Part{Text: msg.Content})
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}

	if len(systemParts) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: systemParts}
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedReply)
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0] == nil {
		return "", fmt.Errorf("%w: candidate has no content parts", ErrMalformedReply)
	}
	text := candidate.Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text part", ErrMalformedReply)
	}
	return text, nil
}

func convertGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
