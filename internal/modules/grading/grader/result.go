package grader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/paper"
)

// Scope says how much of the paper one analyzed image is expected to cover.
type Scope int

const (
	// ScopeSheet: the image holds answers to the whole paper. Questions the
	// analyzer skipped are added back as unanswered.
	ScopeSheet Scope = iota
	// ScopePage: the image is one page of several. Only questions found on
	// the page count toward its total.
	ScopePage
)

// Result is one evaluated answer-sheet image. A degraded result carries the
// raw analyzer text and leaves score and feedback empty.
type Result struct {
	Subject           string              `json:"subject"`
	Language          string              `json:"language"`
	GradeLevel        string              `json:"grade_level"`
	TotalScore        string              `json:"total_score"`
	Feedback          string              `json:"feedback"`
	TotalQuestions    int                 `json:"total_questions"`
	AnsweredQuestions int                 `json:"answered_questions"`
	CorrectQuestions  int                 `json:"correct_questions"`
	Answers           []models.Answer     `json:"answers"`
	Annotations       []models.Annotation `json:"annotations"`
	Width             int                 `json:"width"`
	Height            int                 `json:"height"`
	Warnings          []string            `json:"warnings,omitempty"`

	Degraded   bool   `json:"degraded"`
	RawText    string `json:"raw_text,omitempty"`
	ParseError string `json:"parse_error,omitempty"`
}

func degradedResult(raw string, err error) *Result {
	return &Result{
		Degraded:   true,
		RawText:    raw,
		ParseError: err.Error(),
		Answers:    []models.Answer{},
	}
}

type gradedAnswer struct {
	answer  models.Answer
	awarded float64
	max     *float64
}

// reconcile applies the paper to the analyzer output. Numbers not on the
// paper become unmatched extras. Only the first answer to a question is
// scored; later ones are kept as Duplicate extras.
func reconcile(a *analysis, qp *models.QuestionPaper, scope Scope) *Result {
	res := &Result{
		Subject:    strings.TrimSpace(a.Subject),
		Language:   strings.TrimSpace(a.Language),
		GradeLevel: strings.TrimSpace(a.GradeLevel),
		Feedback:   strings.TrimSpace(a.Feedback),
	}

	byNumber := make(map[string]*models.Question, len(qp.Questions))
	for i := range qp.Questions {
		byNumber[paper.NormalizeNumber(qp.Questions[i].Number)] = &qp.Questions[i]
	}

	seen := make(map[string]bool, len(qp.Questions))
	var matched, extras []gradedAnswer
	for _, aa := range a.Answers {
		key := paper.NormalizeNumber(string(aa.QuestionNumber))
		q, known := byNumber[key]
		if known && !seen[key] {
			seen[key] = true
			g := grade(aa, q.MaxScore)
			g.answer.Matched = true
			g.answer.QuestionNumber = q.Number
			g.answer.Ordinal = q.Ordinal
			matched = append(matched, g)
			continue
		}
		if known {
			res.Warnings = append(res.Warnings, fmt.Sprintf("question %s was answered more than once; only the first answer is scored", q.Number))
			g := grade(aa, q.MaxScore)
			g.answer.Matched = true
			g.answer.Duplicate = true
			g.answer.QuestionNumber = q.Number
			extras = append(extras, g)
			continue
		}
		extras = append(extras, grade(aa, aa.MaxScore))
	}

	if scope == ScopeSheet {
		for i := range qp.Questions {
			q := &qp.Questions[i]
			if !seen[paper.NormalizeNumber(q.Number)] {
				matched = append(matched, unanswered(q))
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].answer.Ordinal < matched[j].answer.Ordinal })

	var awarded, maxTotal float64
	maxKnown := len(matched) > 0
	for _, g := range matched {
		res.TotalQuestions++
		if g.answer.Answered() {
			res.AnsweredQuestions++
		}
		if g.answer.IsCorrect {
			res.CorrectQuestions++
		}
		if g.max == nil {
			maxKnown = false
			continue
		}
		awarded += g.awarded
		maxTotal += *g.max
	}
	if maxKnown && scope == ScopeSheet {
		res.TotalScore = formatPoints(awarded) + "/" + formatPoints(maxTotal)
	} else {
		res.TotalScore = fmt.Sprintf("%d/%d", res.CorrectQuestions, res.TotalQuestions)
	}

	res.Answers = make([]models.Answer, 0, len(matched)+len(extras))
	for _, g := range matched {
		res.Answers = append(res.Answers, g.answer)
	}
	for i, g := range extras {
		g.answer.Ordinal = len(qp.Questions) + i + 1
		res.Answers = append(res.Answers, g.answer)
	}
	res.Annotations = annotate(res.Answers, a.Annotations)
	return res
}

// paperFromAnswers stands in for a stored paper when the image carries the
// questions itself. Question order follows first appearance.
func paperFromAnswers(a *analysis) *models.QuestionPaper {
	qp := &models.QuestionPaper{}
	seen := make(map[string]bool, len(a.Answers))
	for _, aa := range a.Answers {
		key := paper.NormalizeNumber(string(aa.QuestionNumber))
		if seen[key] {
			continue
		}
		seen[key] = true
		qp.Questions = append(qp.Questions, models.Question{
			Ordinal:  len(qp.Questions) + 1,
			Number:   string(aa.QuestionNumber),
			MaxScore: aa.MaxScore,
		})
	}
	qp.TotalQuestions = len(qp.Questions)
	return qp
}

func grade(aa analyzedAnswer, maxScore *float64) gradedAnswer {
	ans := models.Answer{
		QuestionNumber: string(aa.QuestionNumber),
		IsCorrect:      aa.IsCorrect,
		Remarks:        strings.TrimSpace(aa.Remarks),
	}
	if aa.StudentAnswer != nil {
		if text := strings.TrimSpace(*aa.StudentAnswer); text != "" {
			ans.StudentAnswer = &text
		}
	}
	if !ans.Answered() {
		ans.IsCorrect = false
	}
	if aa.Confidence != nil {
		ans.Confidence = clampUnit(*aa.Confidence)
	}
	if aa.Position != nil {
		pos := aa.Position.Clamp()
		ans.Location = &pos
	}

	g := gradedAnswer{max: maxScore}
	switch points, ok := parseScore(string(aa.Score)); {
	case !ans.Answered():
		g.awarded = 0
	case aa.PointsAwarded != nil:
		g.awarded = *aa.PointsAwarded
	case ok:
		g.awarded = points
	case ans.IsCorrect && maxScore != nil:
		g.awarded = *maxScore
	}
	if g.awarded < 0 {
		g.awarded = 0
	}
	if maxScore != nil && g.awarded > *maxScore {
		g.awarded = *maxScore
	}

	switch {
	case maxScore != nil:
		ans.Score = formatPoints(g.awarded) + "/" + formatPoints(*maxScore)
	case aa.Score != "":
		ans.Score = string(aa.Score)
	case ans.IsCorrect:
		ans.Score = "1/1"
	default:
		ans.Score = "0/1"
	}
	g.answer = ans
	return g
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func unanswered(q *models.Question) gradedAnswer {
	return gradedAnswer{answer: Unanswered(q), max: q.MaxScore}
}

// Unanswered is the explicit entry for a paper question the student skipped.
func Unanswered(q *models.Question) models.Answer {
	ans := models.Answer{
		QuestionNumber: q.Number,
		Ordinal:        q.Ordinal,
		Matched:        true,
		Remarks:        "Not answered",
	}
	if q.MaxScore != nil {
		ans.Score = "0/" + formatPoints(*q.MaxScore)
	} else {
		ans.Score = "0/1"
	}
	return ans
}
