package multipage

import (
	"fmt"
	"math"
	"strings"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/grader"
	"github.com/papergrade/core/internal/modules/grading/paper"
)

type band struct {
	minPercent float64
	template   string
}

// Checked top down; the first band whose minimum is reached wins.
var feedbackBands = []band{
	{90, "Outstanding work! You scored %s (%d%%). Keep it up."},
	{75, "Great job! You scored %s (%d%%). A little more practice on the questions you missed will take you to the top."},
	{60, "Good effort. You scored %s (%d%%). Review the incorrect answers to strengthen your understanding."},
	{40, "You scored %s (%d%%). You are getting there, so go over the remarks on each question and try again."},
	{0, "You scored %s (%d%%). Don't be discouraged. Revisit this chapter, practice the basics and you will improve."},
}

// Feedback picks the canned message for correct out of total.
func Feedback(correct, total int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(correct) / float64(total) * 100
	}
	score := fmt.Sprintf("%d/%d", correct, total)
	for _, b := range feedbackBands {
		if pct >= b.minPercent {
			return fmt.Sprintf(b.template, score, int(math.Round(pct)))
		}
	}
	return ""
}

// aggregate folds per-page results, in page order, into one grading.
// Metadata comes from the primary page (pages[0]); disagreeing pages are
// reported as warnings. Questions no page covered are appended unanswered
// with no page number and do not change the summed totals.
func aggregate(qp *models.QuestionPaper, pages []*grader.Result) *models.Grading {
	primary := pages[0]
	g := &models.Grading{
		PaperID:    &qp.ID,
		Mode:       models.GradingModeDual,
		TotalPages: len(pages),
		Subject:    primary.Subject,
		Language:   primary.Language,
		GradeLevel: primary.GradeLevel,
		Pages:      make([]models.GradingPage, 0, len(pages)),
	}
	fillBlank(&g.Subject, qp.Subject)
	fillBlank(&g.Language, qp.Language)
	fillBlank(&g.GradeLevel, qp.GradeLevel)

	var correct, total int
	firstSeen := make(map[string]int)
	for i, res := range pages {
		pageNo := i + 1
		correct += res.CorrectQuestions
		total += res.TotalQuestions
		g.AnsweredQuestions += res.AnsweredQuestions

		if i > 0 {
			g.Warnings = append(g.Warnings, metaMismatch(pageNo, "subject", primary.Subject, res.Subject)...)
			g.Warnings = append(g.Warnings, metaMismatch(pageNo, "language", primary.Language, res.Language)...)
			g.Warnings = append(g.Warnings, metaMismatch(pageNo, "grade level", primary.GradeLevel, res.GradeLevel)...)
		}
		for _, w := range res.Warnings {
			g.Warnings = append(g.Warnings, fmt.Sprintf("page %d: %s", pageNo, w))
		}

		for _, a := range res.Answers {
			a.PageNumber = pageNo
			if a.Matched && !a.Duplicate {
				key := paper.NormalizeNumber(a.QuestionNumber)
				if first, dup := firstSeen[key]; dup {
					g.Warnings = append(g.Warnings, fmt.Sprintf("question %s appears on page %d and page %d", a.QuestionNumber, first, pageNo))
				} else {
					firstSeen[key] = pageNo
				}
			}
			g.Answers = append(g.Answers, a)
		}
		g.Pages = append(g.Pages, models.GradingPage{
			PageNumber:  pageNo,
			Annotations: res.Annotations,
			Width:       res.Width,
			Height:      res.Height,
		})
	}

	for i := range qp.Questions {
		q := &qp.Questions[i]
		if _, ok := firstSeen[paper.NormalizeNumber(q.Number)]; !ok {
			g.Warnings = append(g.Warnings, fmt.Sprintf("question %s was not found on any page", q.Number))
			g.Answers = append(g.Answers, grader.Unanswered(q))
		}
	}

	g.TotalQuestions = total
	g.TotalScore = fmt.Sprintf("%d/%d", correct, total)
	g.Feedback = Feedback(correct, total)
	return g
}

func fillBlank(dst *string, fallback string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = fallback
	}
}

func metaMismatch(page int, field, primary, got string) []string {
	if primary == "" || got == "" || strings.EqualFold(primary, got) {
		return nil
	}
	return []string{fmt.Sprintf("page %d %s %q differs from page 1 %q", page, field, got, primary)}
}
