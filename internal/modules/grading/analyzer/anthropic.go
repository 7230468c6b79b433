package analyzer

import (
	"context"
	"encoding/base64"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/papergrade/core/internal/config"
)

type anthropicAnalyzer struct {
	client anthropicclient.Client
	model  string
}

func newAnthropic(provider *appcfg.AIProvider) *anthropicAnalyzer {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(provider.APIKey)),
		anthropicoption.WithMaxRetries(1),
	}
	if endpoint := strings.TrimSpace(provider.Endpoint); endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}
	return &anthropicAnalyzer{
		client: anthropicclient.NewClient(opts...),
		model:  modelOr(provider, "claude-sonnet-4-5"),
	}
}

func (a *anthropicAnalyzer) Analyze(ctx context.Context, images []Image, prompt string) (string, error) {
	blocks := make([]anthropicclient.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, anthropicclient.NewImageBlockBase64(img.MIME, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropicclient.NewTextBlock(prompt))

	msg, err := a.client.Messages.New(ctx, anthropicclient.MessageNewParams{
		Model:     anthropicclient.Model(a.model),
		MaxTokens: defaultMaxOutputTokens,
		System:    []anthropicclient.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropicclient.MessageParam{anthropicclient.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", ErrEmptyOutput
	}
	return out.String(), nil
}
