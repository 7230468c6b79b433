package grader

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
)

// looseString accepts a JSON string, number or null. Models are
// inconsistent about quoting scores.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

type analyzedAnswer struct {
	QuestionNumber looseString      `json:"question_number" validate:"required"`
	StudentAnswer  *string          `json:"student_answer"`
	IsCorrect      bool             `json:"is_correct"`
	Score          looseString      `json:"score"`
	PointsAwarded  *float64         `json:"points_awarded"`
	MaxScore       *float64         `json:"max_score"`
	Remarks        string           `json:"remarks"`
	Confidence     *float64         `json:"confidence"`
	Position       *models.Position `json:"position"`
}

type analysis struct {
	Subject     string              `json:"subject"`
	Language    string              `json:"language"`
	GradeLevel  string              `json:"grade_level"`
	TotalScore  looseString         `json:"total_score"`
	Feedback    string              `json:"feedback"`
	Answers     []analyzedAnswer    `json:"answers" validate:"dive"`
	Annotations []models.Annotation `json:"annotations"`
}

var errNoAnswers = errors.New("no answers in analyzer output")

func parseAnalysis(raw string, requireAnswers bool) (*analysis, error) {
	out, err := analyzer.Decode[analysis](raw)
	if err != nil {
		return nil, err
	}
	if requireAnswers && len(out.Answers) == 0 {
		return nil, errNoAnswers
	}
	return out, nil
}

// parseScore reads "4", "4.5" or "4/5" and returns the awarded part.
func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if num, _, ok := strings.Cut(s, "/"); ok {
		s = strings.TrimSpace(num)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
