package grader

import (
	"testing"

	"github.com/papergrade/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func threeQuestionPaper() *models.QuestionPaper {
	return &models.QuestionPaper{
		Base:           models.Base{ID: "paper-1"},
		Subject:        "Mathematics",
		TotalQuestions: 3,
		Questions: []models.Question{
			{Ordinal: 1, Number: "1", Text: "2 + 3", MaxScore: ptr(5.0)},
			{Ordinal: 2, Number: "2", Text: "7 x 6", MaxScore: ptr(5.0)},
			{Ordinal: 3, Number: "3", Text: "1/2 as decimal", MaxScore: ptr(5.0)},
		},
	}
}

func mustParse(t *testing.T, raw string) *analysis {
	t.Helper()
	a, err := parseAnalysis(raw, false)
	require.NoError(t, err)
	return a
}

// Q1 and Q3 answered correctly, Q2 skipped by the model entirely.
const skippedQ2Reply = `{
  "subject": "Maths",
  "feedback": "Good effort.",
  "answers": [
    {"question_number": "Q1", "student_answer": "5", "is_correct": true},
    {"question_number": "3", "student_answer": "0.5", "is_correct": true, "score": "5/5"}
  ]
}`

func TestReconcileSynthesizesUnansweredQuestions(t *testing.T) {
	res := reconcile(mustParse(t, skippedQ2Reply), threeQuestionPaper(), ScopeSheet)

	assert.Equal(t, "10/15", res.TotalScore)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.Equal(t, 2, res.AnsweredQuestions)
	assert.Equal(t, 2, res.CorrectQuestions)
	require.Len(t, res.Answers, 3)

	q2 := res.Answers[1]
	assert.Equal(t, "2", q2.QuestionNumber)
	assert.Nil(t, q2.StudentAnswer)
	assert.True(t, q2.Matched)
	assert.False(t, q2.IsCorrect)
	assert.Equal(t, "0/5", q2.Score)

	assert.Equal(t, "1", res.Answers[0].QuestionNumber, "number taken from the paper")
	assert.Equal(t, "5/5", res.Answers[0].Score)
}

func TestReconcileExcludesUnmatchedAnswers(t *testing.T) {
	raw := `{"answers": [
	  {"question_number": "1", "student_answer": "5", "is_correct": true},
	  {"question_number": "2", "student_answer": "42", "is_correct": true},
	  {"question_number": "3", "student_answer": "0.2", "is_correct": false, "remarks": "one half is 0.5"},
	  {"question_number": "7", "student_answer": "extra work", "is_correct": false},
	  {"question_number": "2", "student_answer": "41", "is_correct": false}
	]}`
	res := reconcile(mustParse(t, raw), threeQuestionPaper(), ScopeSheet)

	assert.Equal(t, 3, res.TotalQuestions)
	assert.Equal(t, 3, res.AnsweredQuestions)
	assert.Equal(t, "10/15", res.TotalScore)
	require.Len(t, res.Answers, 5)

	extras := res.Answers[3:]
	assert.False(t, extras[0].Matched, "7 is not on the paper")
	assert.False(t, extras[0].Duplicate)
	assert.Equal(t, "7", extras[0].QuestionNumber)
	assert.Equal(t, 4, extras[0].Ordinal)

	assert.True(t, extras[1].Matched, "a repeat still belongs to a paper question")
	assert.True(t, extras[1].Duplicate)
	assert.Equal(t, "2", extras[1].QuestionNumber)
	assert.Equal(t, "41", *extras[1].StudentAnswer)
	assert.False(t, res.Answers[1].Duplicate)
	assert.Equal(t, "42", *res.Answers[1].StudentAnswer, "the first answer is the scored one")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "question 2")
}

func TestReconcilePartialCreditIsClamped(t *testing.T) {
	raw := `{"answers": [
	  {"question_number": "1", "student_answer": "4", "is_correct": false, "score": 3},
	  {"question_number": "2", "student_answer": "42", "is_correct": true, "points_awarded": 9},
	  {"question_number": "3", "student_answer": "", "is_correct": true, "score": "5/5"}
	]}`
	res := reconcile(mustParse(t, raw), threeQuestionPaper(), ScopeSheet)

	assert.Equal(t, "3/5", res.Answers[0].Score)
	assert.Equal(t, "5/5", res.Answers[1].Score)
	assert.Equal(t, "0/5", res.Answers[2].Score, "blank answers earn nothing")
	assert.False(t, res.Answers[2].IsCorrect)
	assert.Equal(t, "8/15", res.TotalScore)
	assert.Equal(t, 2, res.AnsweredQuestions)
}

func TestReconcileFallsBackToCountsWithoutMaxScores(t *testing.T) {
	qp := threeQuestionPaper()
	qp.Questions[1].MaxScore = nil
	res := reconcile(mustParse(t, skippedQ2Reply), qp, ScopeSheet)
	assert.Equal(t, "2/3", res.TotalScore)
}

func TestReconcilePageScopeCountsOnlyVisibleQuestions(t *testing.T) {
	raw := `{"answers": [
	  {"question_number": "2", "student_answer": "42", "is_correct": true},
	  {"question_number": "3", "student_answer": "0.3", "is_correct": false}
	]}`
	res := reconcile(mustParse(t, raw), threeQuestionPaper(), ScopePage)
	assert.Equal(t, 2, res.TotalQuestions)
	assert.Equal(t, 1, res.CorrectQuestions)
	assert.Equal(t, "1/2", res.TotalScore)
	assert.Len(t, res.Answers, 2)
}

func TestSingleModeBuildsPaperFromAnswers(t *testing.T) {
	raw := `{"answers": [
	  {"question_number": "1", "student_answer": "a", "is_correct": true, "max_score": 2},
	  {"question_number": "2", "student_answer": "b", "is_correct": false, "max_score": 3, "confidence": 1.7},
	  {"question_number": "1", "student_answer": "again", "is_correct": true}
	]}`
	a := mustParse(t, raw)
	res := reconcile(a, paperFromAnswers(a), ScopeSheet)
	assert.Equal(t, 2, res.TotalQuestions)
	assert.Equal(t, "2/5", res.TotalScore)
	assert.Equal(t, 1.0, res.Answers[1].Confidence)
	assert.True(t, res.Answers[2].Matched)
	assert.True(t, res.Answers[2].Duplicate)
	assert.Equal(t, "1", res.Answers[2].QuestionNumber)
}

func TestParseAnalysisRejectsBadOutput(t *testing.T) {
	_, err := parseAnalysis("the student did well", false)
	assert.Error(t, err)

	_, err = parseAnalysis(`{"answers": [{"student_answer": "x"}]}`, false)
	assert.Error(t, err, "question_number is required")

	_, err = parseAnalysis(`{"answers": []}`, true)
	assert.ErrorIs(t, err, errNoAnswers)

	a, err := parseAnalysis(`{"total_score": 12, "answers": [{"question_number": 1, "score": 4}]}`, false)
	require.NoError(t, err)
	assert.Equal(t, looseString("12"), a.TotalScore)
	assert.Equal(t, looseString("1"), a.Answers[0].QuestionNumber)
}

func TestParseScore(t *testing.T) {
	v, ok := parseScore("4/5")
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
	v, ok = parseScore(" 2.5 ")
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	_, ok = parseScore("good")
	assert.False(t, ok)
}
