package grader

import (
	"fmt"
	"strings"

	"github.com/papergrade/core/internal/models"
)

const answerSchema = `{
  "subject": "subject of the exam",
  "language": "language the answers are written in",
  "grade_level": "class or grade, empty if unknown",
  "total_score": "awarded/maximum",
  "feedback": "two or three sentences of encouraging feedback for the student",
  "answers": [
    {
      "question_number": "label as printed",
      "student_answer": "what the student wrote, or null if left blank",
      "is_correct": true,
      "score": "awarded/maximum for this question",
      "points_awarded": 4,
      "max_score": 5,
      "remarks": "short note on what is wrong, empty when correct",
      "confidence": 0.0-1.0,
      "position": {"x": 0-100, "y": 0-100}
    }
  ],
  "annotations": [
    {"type": "check|cross|score|remark", "question_number": "1", "x": 0-100, "y": 0-100, "text": ""}
  ]
}`

const singlePrompt = `This image shows an exam sheet with both the questions and the student's answers.
For every question, read the student's answer, decide whether it is correct and award marks.
Positions and annotation coordinates are percentages of image width and height.
Return JSON with this shape:
` + answerSchema

// paperPrompt embeds the stored questions so the model grades against them.
func paperPrompt(qp *models.QuestionPaper, scope Scope) string {
	var b strings.Builder
	b.WriteString("This image shows a student's answer sheet. Grade it against the question paper below.\n")
	if qp.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", qp.Subject)
	}
	if qp.GradeLevel != "" {
		fmt.Fprintf(&b, "Grade level: %s\n", qp.GradeLevel)
	}
	b.WriteString("\nQuestions:\n")
	for _, q := range qp.Questions {
		fmt.Fprintf(&b, "- [%s] %s", q.Number, q.Text)
		if q.MaxScore != nil {
			fmt.Fprintf(&b, " (max %s)", formatPoints(*q.MaxScore))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Rules:
1. Use the question numbers exactly as listed above in "question_number".
2. If the sheet answers something that is not on the paper, still include it with the number written on the sheet.
`)
	if scope == ScopePage {
		b.WriteString("3. This is only one page of a longer answer sheet. List only the answers visible on this page.\n")
	} else {
		b.WriteString("3. List every question above. Use null for student_answer when it was left blank.\n")
	}
	b.WriteString("4. Positions and annotation coordinates are percentages of image width and height.\n\nReturn JSON with this shape:\n")
	b.WriteString(answerSchema)
	return b.String()
}
