package analyzer

import (
	"context"
	"errors"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/papergrade/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

// TextGenerator produces plain text from a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// TextFunc adapts a plain function to TextGenerator.
type TextFunc func(ctx context.Context, systemPrompt, prompt string) (string, error)

func (f TextFunc) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	return f(ctx, systemPrompt, prompt)
}

type languageModelGenerator struct {
	model     jetapi.LanguageModel
	maxTokens int
}

// NewText builds a text generator for cfg.TextModel.
func NewText(cfg appcfg.AIConfig, maxTokens int) (TextGenerator, error) {
	provider := SelectProvider(cfg, cfg.TextModel)
	if provider == nil {
		return nil, ErrNoProvider
	}
	model, err := buildLanguageModel(provider)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &languageModelGenerator{model: model, maxTokens: maxTokens}, nil
}

func (g *languageModelGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	resp, err := jetai.GenerateText(ctx,
		buildPromptMessages(systemPrompt, prompt),
		jetai.WithModel(g.model),
		jetai.WithMaxOutputTokens(g.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrEmptyOutput
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

func buildLanguageModel(provider *appcfg.AIProvider) (jetapi.LanguageModel, error) {
	apiKey := strings.TrimSpace(provider.APIKey)
	if apiKey == "" {
		return nil, errors.New("AI provider api key is empty")
	}
	endpoint := strings.TrimSpace(provider.Endpoint)

	switch normalizeProviderType(provider.Type) {
	case "anthropic":
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelOr(provider, "claude-haiku-4-5-20251001"), jetanthropic.WithClient(client)), nil
	case "gemini", "google":
		return nil, errors.New("gemini providers only serve vision analysis")
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	base := normalizeOpenAIBaseURL(endpoint)
	if base == "" && normalizeProviderType(provider.Type) == "openrouter" {
		base = openRouterBaseURL
	}
	if base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelOr(provider, "gpt-4o-mini"), jetopenai.WithClient(client)), nil
}
