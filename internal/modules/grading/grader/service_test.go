package grader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/papergrade/core/internal/database/dbtest"
	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
	"github.com/papergrade/core/internal/modules/grading/analyzer/analyzertest"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func samplePNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeImage(t *testing.T, shade uint8) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sheet.png")
	require.NoError(t, os.WriteFile(p, samplePNG(t, shade), 0o600))
	return p
}

type fixture struct {
	db     *gorm.DB
	papers *paper.Repository
	blobs  *blob.Local
	svc    *Service
}

func newFixture(t *testing.T, a analyzer.Analyzer) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	local, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	papers := paper.NewRepository(db, nil, nil)
	return &fixture{
		db:     db,
		papers: papers,
		blobs:  local,
		svc:    NewService(NewStore(db), a, papers, local, nil, Options{AnalyzerTimeout: time.Second}),
	}
}

func (f *fixture) seedPaper(t *testing.T) *models.QuestionPaper {
	t.Helper()
	five := 5.0
	ex := &paper.ExtractedPaper{Subject: "Mathematics", Language: "English", GradeLevel: "Class 6"}
	for _, n := range []string{"1", "2", "3"} {
		ex.Questions = append(ex.Questions, paper.ExtractedQuestion{Number: n, Text: "question " + n, MaxScore: &five})
	}
	qp, err := f.papers.Store(context.Background(), writeImage(t, 1), ex, paper.Meta{ImageRef: "papers/seed.png"})
	require.NoError(t, err)
	return qp
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func TestGradeAgainstPaperSkippedQuestion(t *testing.T) {
	ctx := context.Background()
	fake := analyzertest.Text(skippedQ2Reply)
	f := newFixture(t, fake)
	qp := f.seedPaper(t)
	user := "student-1"

	out, err := f.svc.GradeAgainstPaper(ctx, writeImage(t, 2), qp, &user)
	require.NoError(t, err)
	require.NotNil(t, out.Grading)
	assert.False(t, out.Result.Degraded)

	g, err := f.svc.Store().Get(ctx, out.Grading.ID)
	require.NoError(t, err)
	assert.Equal(t, "10/15", g.TotalScore)
	assert.Equal(t, 2, g.AnsweredQuestions)
	assert.Equal(t, 3, g.TotalQuestions)
	assert.Equal(t, models.GradingModeDual, g.Mode)
	assert.Equal(t, "Mathematics", g.Subject, "paper metadata wins")
	assert.Equal(t, qp.ID, *g.PaperID)
	require.Len(t, g.Answers, 3)
	assert.Nil(t, g.Answers[1].StudentAnswer)
	assert.Len(t, g.Annotations, 7)

	stored, err := f.blobs.Open(g.ImageRef)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	reloaded, err := f.papers.Get(ctx, qp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsageCount)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "[2] question 2 (max 5)")
}

func TestDegradedResultIsNotStored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text("Sorry, the image is too blurry to grade."))
	qp := f.seedPaper(t)

	out, err := f.svc.GradeAgainstPaper(ctx, writeImage(t, 2), qp, nil)
	require.NoError(t, err)
	assert.Nil(t, out.Grading)
	assert.True(t, out.Result.Degraded)
	assert.Equal(t, "Sorry, the image is too blurry to grade.", out.Result.RawText)
	assert.Empty(t, out.Result.TotalScore)
	assert.Empty(t, out.Result.Feedback)
	assert.Equal(t, 40, out.Result.Width)

	assert.Zero(t, f.count(t, &models.Grading{}))
	reloaded, err := f.papers.Get(ctx, qp.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.UsageCount)
}

func TestGradeSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text(`{
	  "subject": "Science", "language": "English", "feedback": "Nice.",
	  "answers": [
	    {"question_number": "1", "student_answer": "photosynthesis", "is_correct": true, "max_score": 2},
	    {"question_number": "2", "student_answer": null, "is_correct": false, "max_score": 2}
	  ]
	}`))

	out, err := f.svc.GradeSingle(ctx, writeImage(t, 3), nil)
	require.NoError(t, err)
	require.NotNil(t, out.Grading)
	assert.Equal(t, models.GradingModeSingle, out.Grading.Mode)
	assert.Equal(t, "2/4", out.Grading.TotalScore)
	assert.Equal(t, 1, out.Grading.AnsweredQuestions)
	assert.Nil(t, out.Grading.PaperID)
	assert.EqualValues(t, 2, f.count(t, &models.Answer{}))
}

func TestGradeSingleWithoutAnswersIsDegraded(t *testing.T) {
	f := newFixture(t, analyzertest.Text(`{"answers": []}`))
	out, err := f.svc.GradeSingle(context.Background(), writeImage(t, 3), nil)
	require.NoError(t, err)
	assert.True(t, out.Result.Degraded)
	assert.Zero(t, f.count(t, &models.Grading{}))
}

func TestAnalyzerFailureIsAnError(t *testing.T) {
	boom := errors.New("upstream 529")
	f := newFixture(t, analyzertest.New(analyzertest.Reply{Err: boom}))
	qp := f.seedPaper(t)
	_, err := f.svc.GradeAgainstPaper(context.Background(), writeImage(t, 2), qp, nil)
	assert.ErrorIs(t, err, analyzer.ErrUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.count(t, &models.Grading{}))
}

func TestStoreCreateLinksAnswersToPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g := &models.Grading{
		Mode:       models.GradingModeDual,
		TotalPages: 2,
		Pages:      []models.GradingPage{{PageNumber: 1}, {PageNumber: 2}},
		Answers: []models.Answer{
			{PageNumber: 2, Ordinal: 1, QuestionNumber: "3", Matched: true},
			{PageNumber: 1, Ordinal: 1, QuestionNumber: "1", Matched: true},
		},
	}
	require.NoError(t, f.svc.Store().Create(ctx, g))

	got, err := f.svc.Store().Get(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, got.Pages, 2)
	assert.Equal(t, 1, got.Pages[0].PageNumber)
	require.Len(t, got.Answers, 2)
	assert.Equal(t, "1", got.Answers[0].QuestionNumber)
	assert.Equal(t, got.Pages[0].ID, *got.Answers[0].PageID)
	assert.Equal(t, got.Pages[1].ID, *got.Answers[1].PageID)

	_, err = f.svc.Store().Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
