// Package summary serves chapter summaries from the content cache and
// generates missing ones with the configured text model.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/content/cache"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	ContentType = "chapter_summary"

	summaryMaxWords = 400
	generateTimeout = 90 * time.Second
)

var (
	ErrNotCached = errors.New("summary not cached")
	ErrDisabled  = errors.New("summary generation is disabled")
)

const systemPrompt = `You write revision notes for school students.
Summarize the requested textbook chapter in at most %d words of Markdown.
Start with one short paragraph, then list the key ideas, definitions and formulas as bullet points.
Write in the target language. Do not add a title, greetings or notes about yourself.`

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"ta": "Tamil",
	"te": "Telugu",
	"mr": "Marathi",
	"ur": "Urdu",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"zh": "Chinese",
	"ar": "Arabic",
}

// Request names one chapter. Module is the subject area the chapter belongs to.
type Request struct {
	Module     string
	Chapter    string
	Language   string
	ClassLevel string
	OnlyCache  bool
}

func (r Request) key() cache.Key {
	return cache.Key{Module: r.Module, ContentType: ContentType, Identifier: r.Chapter, Language: r.Language}
}

// Result is a cached or freshly generated summary.
type Result struct {
	Entry     *models.ContentCacheEntry `json:"entry"`
	Generated bool                      `json:"generated"`
}

type Service struct {
	store   *cache.Store
	gen     analyzer.TextGenerator
	enabled bool
	logger  *zap.Logger
	group   singleflight.Group
}

// NewService returns a summary service. gen may be nil, in which case only
// cached summaries are served.
func NewService(store *cache.Store, gen analyzer.TextGenerator, enabled bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gen: gen, enabled: enabled, logger: logger.Named("Summary")}
}

// Get returns the cached summary for r, generating and storing it on a miss.
// Concurrent misses for one key share a single generation.
func (s *Service) Get(ctx context.Context, r Request) (*Result, error) {
	k, err := r.key().Normalize()
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Get(ctx, k)
	if err == nil {
		return &Result{Entry: entry}, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	if r.OnlyCache {
		return nil, ErrNotCached
	}
	if !s.enabled || s.gen == nil {
		return nil, ErrDisabled
	}

	v, err, shared := s.group.Do(k.String(), func() (interface{}, error) {
		return s.generate(context.WithoutCancel(ctx), k, r.ClassLevel)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("summary generation shared", zap.String("key", k.String()))
	}
	return &Result{Entry: v.(*models.ContentCacheEntry), Generated: true}, nil
}

func (s *Service) generate(ctx context.Context, k cache.Key, classLevel string) (*models.ContentCacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	started := time.Now()
	text, err := s.gen.Generate(ctx, fmt.Sprintf(systemPrompt, summaryMaxWords), buildPrompt(k, classLevel))
	if err != nil {
		s.logger.Warn("summary generation failed", zap.String("key", k.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", analyzer.ErrUnavailable, err)
	}
	body := cleanSummary(text)
	if body == "" {
		return nil, fmt.Errorf("%w: %w", analyzer.ErrUnavailable, analyzer.ErrEmptyOutput)
	}

	title := chapterTitle(k.Identifier)
	entry, err := s.store.Put(ctx, k, cache.Content{
		Title:      &title,
		Body:       body,
		Source:     models.ContentSourceLLM,
		Subject:    k.Module,
		ClassLevel: classLevel,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("summary generated",
		zap.String("key", k.String()),
		zap.Int("chars", len(body)),
		zap.Duration("took", time.Since(started)),
	)
	return entry, nil
}

func buildPrompt(k cache.Key, classLevel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TARGET_LANGUAGE: %s\n", languageName(k.Language))
	fmt.Fprintf(&b, "SUBJECT: %s\n", k.Module)
	if classLevel = strings.TrimSpace(classLevel); classLevel != "" {
		fmt.Fprintf(&b, "CLASS: %s\n", classLevel)
	}
	fmt.Fprintf(&b, "CHAPTER: %s\n", chapterTitle(k.Identifier))
	return b.String()
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// chapterTitle turns a slug such as "laws-of-motion" into "Laws of motion".
func chapterTitle(identifier string) string {
	t := strings.Join(strings.FieldsFunc(identifier, func(r rune) bool {
		return r == '-' || r == '_'
	}), " ")
	if t == "" {
		return identifier
	}
	r, size := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(r)) + t[size:]
}

// cleanSummary strips a wrapping code fence some models add around Markdown.
func cleanSummary(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
