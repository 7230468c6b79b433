package grader

import (
	"strings"

	"github.com/papergrade/core/internal/models"
)

const (
	glyphX      = 8.0
	scoreX      = 2.0
	remarkX     = 14.0
	remarkRunes = 40
)

var annotationTypes = map[string]bool{
	models.AnnotationCheck:  true,
	models.AnnotationCross:  true,
	models.AnnotationScore:  true,
	models.AnnotationRemark: true,
}

// annotate keeps usable analyzer annotations. When there are none it lays
// answers out in evenly spaced rows and fills in missing answer positions.
func annotate(answers []models.Answer, provided []models.Annotation) []models.Annotation {
	out := make([]models.Annotation, 0, len(provided))
	for _, a := range provided {
		a.Type = strings.ToLower(strings.TrimSpace(a.Type))
		if !annotationTypes[a.Type] {
			continue
		}
		p := models.Position{X: a.X, Y: a.Y}.Clamp()
		a.X, a.Y = p.X, p.Y
		out = append(out, a)
	}
	if len(out) > 0 {
		return out
	}
	return layoutAnnotations(answers)
}

func layoutAnnotations(answers []models.Answer) []models.Annotation {
	out := make([]models.Annotation, 0, len(answers)*3)
	step := 100 / float64(len(answers)+1)
	for i := range answers {
		ans := &answers[i]
		y := step * float64(i+1)

		glyph := models.AnnotationCross
		if ans.IsCorrect {
			glyph = models.AnnotationCheck
		}
		out = append(out,
			models.Annotation{Type: glyph, QuestionNumber: ans.QuestionNumber, X: glyphX, Y: y},
			models.Annotation{Type: models.AnnotationScore, QuestionNumber: ans.QuestionNumber, X: scoreX, Y: y, Text: ans.Score},
		)
		if !ans.IsCorrect && ans.Remarks != "" {
			out = append(out, models.Annotation{
				Type:           models.AnnotationRemark,
				QuestionNumber: ans.QuestionNumber,
				X:              remarkX,
				Y:              y,
				Text:           truncate(ans.Remarks, remarkRunes),
			})
		}
		if ans.Location == nil {
			ans.Location = &models.Position{X: glyphX, Y: y}
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
