package paper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
)

const extractPrompt = `Read this question paper and list every question on it.
Return JSON with this shape:
{
  "title": "paper title or null",
  "subject": "subject name",
  "grade_level": "class or grade, empty if unknown",
  "language": "language the paper is written in",
  "questions": [
    {
      "question_number": "label as printed, e.g. 1, 2a, 3(ii)",
      "question_text": "full question text",
      "max_score": 5,
      "topics": ["concept tags"],
      "position": {"x": 0-100, "y": 0-100}
    }
  ]
}
Use null for max_score when the paper does not print marks. position is the
top-left of the question as a percentage of image width and height.`

// ExtractedQuestion is one question as read by the vision model.
type ExtractedQuestion struct {
	Number   string           `json:"question_number" validate:"required"`
	Text     string           `json:"question_text"`
	MaxScore *float64         `json:"max_score"       validate:"omitempty,gte=0"`
	Topics   []string         `json:"topics"`
	Position *models.Position `json:"position"`
}

// ExtractedPaper is the structured reading of a question paper image.
type ExtractedPaper struct {
	Title      *string             `json:"title"`
	Subject    string              `json:"subject"`
	GradeLevel string              `json:"grade_level"`
	Language   string              `json:"language"`
	Questions  []ExtractedQuestion `json:"questions" validate:"required,min=1,dive"`
}

// ExtractionError carries the unusable model reply.
type ExtractionError struct {
	Raw string
	Err error
}

func (e *ExtractionError) Error() string { return "question paper extraction: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns a question paper image into ExtractedPaper.
type Extractor struct {
	analyzer analyzer.Analyzer
	maxEdge  int
	timeout  time.Duration
}

func NewExtractor(a analyzer.Analyzer, maxEdge int, timeout time.Duration) *Extractor {
	return &Extractor{analyzer: a, maxEdge: maxEdge, timeout: timeout}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (*ExtractedPaper, error) {
	if e.analyzer == nil {
		return nil, analyzer.ErrNoProvider
	}
	img, err := analyzer.PrepareImage(data, e.maxEdge)
	if err != nil {
		return nil, err
	}
	raw, err := analyzer.Call(ctx, e.analyzer, e.timeout, []analyzer.Image{img}, extractPrompt)
	if err != nil {
		return nil, err
	}
	out, err := analyzer.Decode[ExtractedPaper](raw)
	if err != nil {
		return nil, &ExtractionError{Raw: raw, Err: err}
	}
	out.normalize()
	if len(out.Questions) == 0 {
		return nil, &ExtractionError{Raw: raw, Err: errors.New("no questions found")}
	}
	return out, nil
}

// normalize trims labels and drops repeated question numbers, keeping the first.
func (p *ExtractedPaper) normalize() {
	p.Subject = strings.TrimSpace(p.Subject)
	p.GradeLevel = strings.TrimSpace(p.GradeLevel)
	p.Language = strings.TrimSpace(p.Language)
	if p.Title != nil {
		if t := strings.TrimSpace(*p.Title); t == "" || strings.EqualFold(t, "null") {
			p.Title = nil
		} else {
			p.Title = &t
		}
	}

	seen := make(map[string]struct{}, len(p.Questions))
	kept := p.Questions[:0]
	for _, q := range p.Questions {
		key := NormalizeNumber(q.Number)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		q.Number = strings.TrimSpace(q.Number)
		q.Text = strings.TrimSpace(q.Text)
		if q.Position != nil {
			pos := q.Position.Clamp()
			q.Position = &pos
		}
		kept = append(kept, q)
	}
	p.Questions = kept
}

func (p *ExtractedPaper) toModel(hash string) *models.QuestionPaper {
	paper := &models.QuestionPaper{
		Title:          p.Title,
		Subject:        p.Subject,
		GradeLevel:     p.GradeLevel,
		Language:       p.Language,
		ContentHash:    hash,
		TotalQuestions: len(p.Questions),
		Questions:      make([]models.Question, 0, len(p.Questions)),
	}
	for i, q := range p.Questions {
		paper.Questions = append(paper.Questions, models.Question{
			Ordinal:  i + 1,
			Number:   q.Number,
			Text:     q.Text,
			MaxScore: q.MaxScore,
			Topics:   q.Topics,
			Location: q.Position,
		})
	}
	return paper
}
