package multipage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/papergrade/core/internal/database/dbtest"
	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/analyzer/analyzertest"
	"github.com/papergrade/core/internal/modules/grading/grader"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/redis/redistest"
	"github.com/papergrade/core/internal/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func samplePNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 30, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pageJSON answers questions from..to; the first `correct` are right.
func pageJSON(from, to, correct int) string {
	var answers []string
	for i := from; i <= to; i++ {
		answers = append(answers, fmt.Sprintf(`{"question_number": "%d", "student_answer": "a%d", "is_correct": %t}`, i, i, i-from < correct))
	}
	return `{"subject": "Physics", "answers": [` + strings.Join(answers, ",") + `]}`
}

type fixture struct {
	db     *gorm.DB
	papers *paper.Repository
	blobs  string
	local  blob.Store
	temp   *blob.Temp
	tasks  *taskqueue.Service
	svc    *Service
	fake   *analyzertest.Scripted
}

func newFixture(t *testing.T, fake *analyzertest.Scripted) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	blobDir := t.TempDir()
	local, err := blob.NewLocal(blobDir)
	require.NoError(t, err)
	temp, err := blob.NewTemp(t.TempDir())
	require.NoError(t, err)
	rc, _ := redistest.New(t)

	papers := paper.NewRepository(db, nil, nil)
	g := grader.NewService(grader.NewStore(db), fake, papers, local, nil, grader.Options{AnalyzerTimeout: time.Second})
	tasks := taskqueue.NewService(rc)
	return &fixture{
		db:     db,
		papers: papers,
		blobs:  blobDir,
		local:  local,
		temp:   temp,
		tasks:  tasks,
		svc:    NewService(g, papers, tasks, temp, 5, nil),
		fake:   fake,
	}
}

func (f *fixture) seedPaper(t *testing.T, n int) *models.QuestionPaper {
	t.Helper()
	ex := &paper.ExtractedPaper{Subject: "Physics", Language: "English"}
	for i := 1; i <= n; i++ {
		ex.Questions = append(ex.Questions, paper.ExtractedQuestion{Number: fmt.Sprint(i), Text: fmt.Sprintf("question %d", i)})
	}
	p := filepath.Join(t.TempDir(), "paper.png")
	require.NoError(t, os.WriteFile(p, samplePNG(t, 1), 0o600))
	qp, err := f.papers.Store(context.Background(), p, ex, paper.Meta{})
	require.NoError(t, err)
	return qp
}

func (f *fixture) rows(t *testing.T) (gradings, pages, answers int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Grading{}).Count(&gradings).Error)
	require.NoError(t, f.db.Model(&models.GradingPage{}).Count(&pages).Error)
	require.NoError(t, f.db.Model(&models.Answer{}).Count(&answers).Error)
	return
}

func (f *fixture) storedFiles(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(f.blobs, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return err
	}))
	return n
}

func TestGradePagesSumsPageTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text(pageJSON(1, 10, 8), pageJSON(11, 15, 4)))
	qp := f.seedPaper(t, 15)
	user := "student-9"

	var progress []int
	g, err := f.svc.GradePages(ctx, qp, [][]byte{samplePNG(t, 2), samplePNG(t, 3)}, &user, func(done int) {
		progress = append(progress, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, progress)
	assert.Equal(t, "12/15", g.TotalScore)
	assert.Equal(t, Feedback(12, 15), g.Feedback)

	stored, err := grader.NewStore(f.db).Get(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Pages, 2)
	assert.Equal(t, 30, stored.Pages[0].Width)
	assert.NotEmpty(t, stored.Pages[1].Annotations)
	assert.Equal(t, stored.Pages[0].ImageRef, stored.ImageRef)
	require.Len(t, stored.Answers, 15)
	assert.Equal(t, stored.Pages[1].ID, *stored.Answers[14].PageID)
	assert.Equal(t, 2, f.storedFiles(t))

	reloaded, err := f.papers.Get(ctx, qp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsageCount)

	calls := f.fake.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Prompt, "only one page")
}

func TestGradePagesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text(pageJSON(1, 3, 3), "page two is unreadable", pageJSON(7, 9, 1)))
	qp := f.seedPaper(t, 9)

	_, err := f.svc.GradePages(ctx, qp, [][]byte{samplePNG(t, 2), samplePNG(t, 3), samplePNG(t, 4)}, nil, nil)
	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 2, pageErr.Page)
	assert.Equal(t, "page two is unreadable", pageErr.Raw)
	assert.ErrorIs(t, err, ErrDegradedPage)

	gradings, pages, answers := f.rows(t)
	assert.Zero(t, gradings)
	assert.Zero(t, pages)
	assert.Zero(t, answers)
	assert.Zero(t, f.storedFiles(t))
	assert.Len(t, f.fake.Calls(), 2, "page 3 is never analyzed")

	reloaded, err := f.papers.Get(ctx, qp.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.UsageCount)
}

func TestGradePagesStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, analyzertest.Text(pageJSON(1, 2, 2), pageJSON(3, 4, 2)))
	qp := f.seedPaper(t, 4)

	_, err := f.svc.GradePages(ctx, qp, [][]byte{samplePNG(t, 2), samplePNG(t, 3)}, nil, func(done int) {
		if done == 1 {
			cancel()
		}
	})
	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 2, pageErr.Page)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.fake.Calls(), 1)
}

func TestCheckPageCount(t *testing.T) {
	f := newFixture(t, analyzertest.Text())
	assert.ErrorIs(t, f.svc.CheckPageCount(0), ErrNoPages)
	assert.ErrorIs(t, f.svc.CheckPageCount(6), ErrTooManyPages)
	assert.NoError(t, f.svc.CheckPageCount(5))
}

func (f *fixture) tempPages(t *testing.T, shades ...uint8) []string {
	t.Helper()
	var paths []string
	for _, s := range shades {
		p, err := f.temp.Save(bytes.NewReader(samplePNG(t, s)), "png", 0)
		require.NoError(t, err)
		paths = append(paths, p)
	}
	return paths
}

func TestEnqueueRunsInBackground(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text(pageJSON(1, 2, 1), pageJSON(3, 4, 2)))
	qp := f.seedPaper(t, 4)
	paths := f.tempPages(t, 5, 6)

	task, err := f.svc.Enqueue(ctx, qp.ID, paths, "student-2")
	require.NoError(t, err)
	assert.Equal(t, 2, task.Progress.Total)
	f.svc.Wait()

	done, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCompleted, done.Status)
	assert.Equal(t, 2, done.Progress.Done)

	var result TaskResult
	require.NoError(t, json.Unmarshal(done.Result, &result))
	assert.Equal(t, "3/4", result.TotalScore)
	g, err := grader.NewStore(f.db).Get(ctx, result.GradingID)
	require.NoError(t, err)
	assert.Equal(t, "student-2", *g.UserID)

	for _, p := range paths {
		assert.NoFileExists(t, p)
	}
}

func TestEnqueueReusesInFlightTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text(pageJSON(1, 2, 2)))
	qp := f.seedPaper(t, 2)

	first := f.tempPages(t, 9)
	key, err := pagesDedupKey(qp.ID, "student-4", first)
	require.NoError(t, err)
	running, created, err := f.tasks.Enqueue(ctx, TaskType, taskPayload{PaperID: qp.ID, PagePaths: first}, key, "student-4", 1)
	require.NoError(t, err)
	require.True(t, created)

	again := f.tempPages(t, 9)
	task, err := f.svc.Enqueue(ctx, qp.ID, again, "student-4")
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, running.ID, task.ID)
	assert.Empty(t, f.fake.Calls(), "no second grading is started")
	for _, p := range again {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, first[0])

	other, err := f.svc.Enqueue(ctx, qp.ID, f.tempPages(t, 9), "student-5")
	require.NoError(t, err)
	f.svc.Wait()
	assert.NotEqual(t, running.ID, other.ID, "another user's submission is graded separately")
	assert.Len(t, f.fake.Calls(), 1)
}

func TestEnqueueAfterCompletionStartsNewTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text(pageJSON(1, 2, 2), pageJSON(1, 2, 1)))
	qp := f.seedPaper(t, 2)

	first, err := f.svc.Enqueue(ctx, qp.ID, f.tempPages(t, 10), "student-6")
	require.NoError(t, err)
	f.svc.Wait()

	second, err := f.svc.Enqueue(ctx, qp.ID, f.tempPages(t, 10), "student-6")
	require.NoError(t, err)
	f.svc.Wait()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.fake.Calls(), 2)
}

func TestPagesDedupKey(t *testing.T) {
	f := newFixture(t, analyzertest.Text())
	a := f.tempPages(t, 1, 2)
	b := f.tempPages(t, 1, 2)
	swapped := []string{b[1], b[0]}

	ka, err := pagesDedupKey("p1", "u1", a)
	require.NoError(t, err)
	kb, err := pagesDedupKey("p1", "u1", b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb, "same bytes under different temp names")

	ks, err := pagesDedupKey("p1", "u1", swapped)
	require.NoError(t, err)
	assert.NotEqual(t, ka, ks, "page order matters")

	kp, err := pagesDedupKey("p2", "u1", a)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kp)

	_, err = pagesDedupKey("p1", "u1", []string{filepath.Join(t.TempDir(), "missing.png")})
	assert.Error(t, err)
}

func TestEnqueueRecordsPageFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, analyzertest.Text("nonsense"))
	qp := f.seedPaper(t, 2)

	task, err := f.svc.Enqueue(ctx, qp.ID, f.tempPages(t, 7, 8), "student-3")
	require.NoError(t, err)
	f.svc.Wait()

	failed, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskFailed, failed.Status)
	assert.Contains(t, failed.Error, "page 1")

	var detail TaskFailure
	require.NoError(t, json.Unmarshal(failed.ErrorData, &detail))
	assert.Equal(t, 1, detail.Page)
	assert.Equal(t, "nonsense", detail.RawText)

	gradings, _, _ := f.rows(t)
	assert.Zero(t, gradings)
}
