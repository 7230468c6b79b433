package grader

import (
	"strings"
	"testing"

	"github.com/papergrade/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutAnnotationsFallback(t *testing.T) {
	answers := []models.Answer{
		{QuestionNumber: "1", IsCorrect: true, Score: "5/5"},
		{QuestionNumber: "2", IsCorrect: false, Score: "0/5", Remarks: strings.Repeat("x", 60)},
		{QuestionNumber: "3", IsCorrect: true, Score: "5/5", Location: &models.Position{X: 50, Y: 90}},
	}
	out := annotate(answers, nil)

	require.Len(t, out, 7)
	assert.Equal(t, models.Annotation{Type: models.AnnotationCheck, QuestionNumber: "1", X: 8, Y: 25}, out[0])
	assert.Equal(t, models.Annotation{Type: models.AnnotationScore, QuestionNumber: "1", X: 2, Y: 25, Text: "5/5"}, out[1])
	assert.Equal(t, models.AnnotationCross, out[2].Type)
	assert.Equal(t, 50.0, out[2].Y)

	remark := out[4]
	assert.Equal(t, models.AnnotationRemark, remark.Type)
	assert.Equal(t, 14.0, remark.X)
	assert.Equal(t, strings.Repeat("x", 40)+"...", remark.Text)

	assert.Equal(t, 75.0, out[5].Y)
	assert.Equal(t, &models.Position{X: 8, Y: 25}, answers[0].Location)
	assert.Equal(t, &models.Position{X: 50, Y: 90}, answers[2].Location, "existing positions are kept")
}

func TestAnnotateKeepsProvidedAnnotations(t *testing.T) {
	answers := []models.Answer{{QuestionNumber: "1", IsCorrect: true}}
	out := annotate(answers, []models.Annotation{
		{Type: "CHECK", QuestionNumber: "1", X: 120, Y: -4},
		{Type: "sticker", X: 1, Y: 1},
	})
	require.Len(t, out, 1)
	assert.Equal(t, models.Annotation{Type: models.AnnotationCheck, QuestionNumber: "1", X: 100, Y: 0}, out[0])
	assert.Nil(t, answers[0].Location)
}

func TestAnnotateEmptySheet(t *testing.T) {
	assert.Empty(t, annotate(nil, nil))
}
