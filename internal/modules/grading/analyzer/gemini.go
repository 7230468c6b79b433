package analyzer

import (
	"context"
	"fmt"
	"strings"

	appcfg "github.com/papergrade/core/internal/config"
	"google.golang.org/genai"
)

type geminiAnalyzer struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, provider *appcfg.AIProvider) (*geminiAnalyzer, error) {
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(provider.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if endpoint := strings.TrimSpace(provider.Endpoint); endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiAnalyzer{client: client, model: modelOr(provider, "gemini-2.5-flash")}, nil
}

func (a *geminiAnalyzer) Analyze(ctx context.Context, images []Image, prompt string) (string, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIME))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	result, err := a.client.Models.GenerateContent(ctx, a.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			MaxOutputTokens:   defaultMaxOutputTokens,
			ResponseMIMEType:  "application/json",
		})
	if err != nil {
		return "", err
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}
