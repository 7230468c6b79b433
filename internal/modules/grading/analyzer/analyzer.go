// Package analyzer talks to external vision and text models.
//
// The grading code only sees the Analyzer interface: images plus an
// instruction in, raw text out. Turning that text into typed data goes
// through Decode.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appcfg "github.com/papergrade/core/internal/config"
	"github.com/papergrade/core/internal/pkg/imageprep"
)

const defaultMaxOutputTokens = 4096

var (
	ErrNoProvider  = errors.New("no enabled AI provider")
	ErrEmptyOutput = errors.New("empty response from AI")
	// ErrUnavailable wraps every failed analyzer call made through Call.
	ErrUnavailable = errors.New("analyzer call failed")
)

// Image is one picture sent to the model.
type Image struct {
	Data []byte
	MIME string
}

// Analyzer sends images with an instruction prompt and returns the raw reply.
type Analyzer interface {
	Analyze(ctx context.Context, images []Image, prompt string) (string, error)
}

// Func adapts a plain function to Analyzer.
type Func func(ctx context.Context, images []Image, prompt string) (string, error)

func (f Func) Analyze(ctx context.Context, images []Image, prompt string) (string, error) {
	return f(ctx, images, prompt)
}

// Call runs one analysis bounded by timeout. Failures wrap ErrUnavailable.
func Call(ctx context.Context, a Analyzer, timeout time.Duration, images []Image, prompt string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	raw, err := a.Analyze(ctx, images, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return raw, nil
}

// PrepareImage downsizes and re-encodes an upload for a vision call.
func PrepareImage(data []byte, maxEdge int) (Image, error) {
	p, err := imageprep.PrepareForAnalysis(data, maxEdge)
	if err != nil {
		return Image{}, err
	}
	return Image{Data: p.Data, MIME: p.MIME}, nil
}

// NewVision builds the analyzer for cfg.VisionModel, falling back to the
// first enabled provider.
func NewVision(ctx context.Context, cfg appcfg.AIConfig) (Analyzer, error) {
	provider := SelectProvider(cfg, cfg.VisionModel)
	if provider == nil {
		return nil, ErrNoProvider
	}
	return newProviderAnalyzer(ctx, provider)
}

func newProviderAnalyzer(ctx context.Context, provider *appcfg.AIProvider) (Analyzer, error) {
	if strings.TrimSpace(provider.APIKey) == "" {
		return nil, fmt.Errorf("AI provider %q api key is empty", provider.ID)
	}
	switch t := normalizeProviderType(provider.Type); t {
	case "anthropic":
		return newAnthropic(provider), nil
	case "gemini", "google":
		return newGemini(ctx, provider)
	case "openai", "openai-compatible", "openaicompatible", "openrouter":
		return newOpenAI(provider), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider type %q", provider.Type)
	}
}

// SelectProvider returns a copy of the assigned provider with the assigned
// model applied, or the first enabled provider when the assignment does not
// resolve.
func SelectProvider(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) *appcfg.AIProvider {
	var providerID, overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(provider appcfg.AIProvider) *appcfg.AIProvider {
		selected := provider
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, provider := range cfg.Providers {
			if provider.Enabled && strings.TrimSpace(provider.ID) == providerID {
				return pick(provider)
			}
		}
	}
	for _, provider := range cfg.Providers {
		if provider.Enabled {
			return pick(provider)
		}
	}
	return nil
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	return t
}

func modelOr(provider *appcfg.AIProvider, fallback string) string {
	if m := strings.TrimSpace(provider.DefaultModel); m != "" {
		return m
	}
	return fallback
}
