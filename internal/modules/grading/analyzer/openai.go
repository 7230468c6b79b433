package analyzer

import (
	"context"
	"encoding/base64"
	neturl "net/url"
	"strings"

	appcfg "github.com/papergrade/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

type openAIAnalyzer struct {
	client openaiclient.Client
	model  string
}

func newOpenAI(provider *appcfg.AIProvider) *openAIAnalyzer {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(provider.APIKey)),
		openaioption.WithMaxRetries(1),
	}
	base := normalizeOpenAIBaseURL(provider.Endpoint)
	if base == "" && normalizeProviderType(provider.Type) == "openrouter" {
		base = openRouterBaseURL
	}
	if base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	return &openAIAnalyzer{
		client: openaiclient.NewClient(opts...),
		model:  modelOr(provider, "gpt-4o"),
	}
}

func (a *openAIAnalyzer) Analyze(ctx context.Context, images []Image, prompt string) (string, error) {
	parts := make([]openaiclient.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	parts = append(parts, openaiclient.TextContentPart(prompt))
	for _, img := range images {
		parts = append(parts, openaiclient.ImageContentPart(openaiclient.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
		}))
	}

	resp, err := a.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model: openaiclient.ChatModel(a.model),
		Messages: []openaiclient.ChatCompletionMessageParamUnion{
			openaiclient.SystemMessage(systemPrompt),
			openaiclient.UserMessage(parts),
		},
		MaxTokens: openaiclient.Int(defaultMaxOutputTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyOutput
	}
	return resp.Choices[0].Message.Content, nil
}

// normalizeOpenAIBaseURL makes sure a configured endpoint ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
