package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// TextProvider is one LLM backend.
type TextProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (ProviderResult, error)
	Ping(ctx context.Context) bool
}

type ProviderResult struct {
	Text  string
	Model string
}

// GeminiProvider wraps the Gemini client.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, defaultModel: defaultModel, logger: logger}, nil
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (ProviderResult, error) {
	modelName := g.defaultModel
	if opts.Model != "" {
		modelName = opts.Model
	}

	config := GetPresetConfig(opts.Preset)
	if opts.Temperature != nil {
		config.Temperature = *opts.Temperature
	}
	if opts.JSONMode {
		config.ResponseMimeType = "application/json"
	}

	topK := float32(config.TopK)
	genConfig := &genai.GenerateContentConfig{
		Temperature:      &config.Temperature,
		TopP:             &config.TopP,
		TopK:             &topK,
		MaxOutputTokens:  int32(config.MaxOutputTokens),
		ResponseMIMEType: config.ResponseMimeType,
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName, []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}},
	}, genConfig)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("Gemini request failed: %w", err)
	}

	text := extractTextFromGeminiResponse(resp)
	if text == "" {
		return ProviderResult{}, fmt.Errorf("Gemini returned empty response")
	}

	g.logger.Debug("Gemini response received",
		zap.String("model", modelName),
		zap.Int("length", len(text)),
	)
	return ProviderResult{Text: text, Model: modelName}, nil
}

func (g *GeminiProvider) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	temp := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, []*genai.Content{
		{Parts: []*genai.Part{{Text: "ping"}}},
	}, &genai.GenerateContentConfig{Temperature: &temp, MaxOutputTokens: 10})
	if err != nil {
		g.logger.Debug("Gemini ping failed", zap.Error(err))
		return false
	}
	return extractTextFromGeminiResponse(resp) != ""
}

func extractTextFromGeminiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// OpenAIProvider is the chat-completions fallback.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewOpenAIProvider(apiKey, defaultModel string, logger *zap.Logger, opts ...option.RequestOption) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIProvider{client: &client, defaultModel: defaultModel, logger: logger}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (ProviderResult, error) {
	modelName := o.defaultModel
	if opts.Model != "" {
		modelName = opts.Model
	}
	config := GetOpenAIPresetConfig(opts.Preset)
	if opts.Temperature != nil {
		config.Temperature = *opts.Temperature
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)}
	if opts.JSONMode {
		messages = []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You must respond with valid JSON only. Do not include any text outside the JSON object."),
			openai.UserMessage(prompt),
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(modelName),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(config.MaxTokens)),
	}
	// gpt-5 family rejects sampling parameters
	if !strings.HasPrefix(modelName, "gpt-5") {
		params.Temperature = openai.Float(float64(config.Temperature))
		params.TopP = openai.Float(float64(config.TopP))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("OpenAI request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ProviderResult{}, fmt.Errorf("no choices in OpenAI response")
	}

	text := resp.Choices[0].Message.Content
	o.logger.Info("OpenAI response received",
		zap.String("model", modelName),
		zap.Int("length", len(text)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return ProviderResult{Text: text, Model: modelName}, nil
}

func (o *OpenAIProvider) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.defaultModel),
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		MaxCompletionTokens: openai.Int(10),
	})
	if err != nil {
		o.logger.Debug("OpenAI ping failed", zap.Error(err))
		return false
	}
	return len(resp.Choices) > 0
}
