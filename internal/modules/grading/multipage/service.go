// Package multipage grades an exam photographed as several answer-sheet
// pages and stores it as one grading.
package multipage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/grader"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

var (
	ErrNoPages      = errors.New("at least one page is required")
	ErrTooManyPages = errors.New("too many pages")
	// ErrDegradedPage means the analyzer reply for a page was unusable.
	ErrDegradedPage = errors.New("analyzer output could not be parsed")
)

// PageError aborts a multi-page grading. Nothing is stored when it is returned.
type PageError struct {
	Page int
	Raw  string
	Err  error
}

func (e *PageError) Error() string { return fmt.Sprintf("page %d: %v", e.Page, e.Err) }
func (e *PageError) Unwrap() error { return e.Err }

// Progress is told how many pages are done after each one.
type Progress func(done int)

type Service struct {
	grader *grader.Service
	papers *paper.Repository
	tasks  *taskqueue.Service
	temp   *blob.Temp
	logger *zap.Logger

	maxPages int
	wg       sync.WaitGroup
}

func NewService(g *grader.Service, papers *paper.Repository, tasks *taskqueue.Service, temp *blob.Temp, maxPages int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		grader:   g,
		papers:   papers,
		tasks:    tasks,
		temp:     temp,
		logger:   logger.Named("MultiPage"),
		maxPages: maxPages,
	}
}

// CheckPageCount validates n before any upload is processed.
func (s *Service) CheckPageCount(n int) error {
	if n == 0 {
		return ErrNoPages
	}
	if s.maxPages > 0 && n > s.maxPages {
		return fmt.Errorf("%w: %d pages, at most %d", ErrTooManyPages, n, s.maxPages)
	}
	return nil
}

// GradePages grades pages strictly in order against qp and stores the
// grading with one page row per image. Any failing page aborts the whole
// run before anything is written.
func (s *Service) GradePages(ctx context.Context, qp *models.QuestionPaper, pages [][]byte, userID *string, progress Progress) (*models.Grading, error) {
	if qp == nil {
		return nil, grader.ErrNoPaper
	}
	if err := s.CheckPageCount(len(pages)); err != nil {
		return nil, err
	}

	results := make([]*grader.Result, 0, len(pages))
	for i, data := range pages {
		if err := ctx.Err(); err != nil {
			return nil, &PageError{Page: i + 1, Err: err}
		}
		res, err := s.grader.Evaluate(ctx, data, qp, grader.ScopePage)
		if err != nil {
			return nil, &PageError{Page: i + 1, Err: err}
		}
		if res.Degraded {
			return nil, &PageError{Page: i + 1, Raw: res.RawText, Err: fmt.Errorf("%w: %s", ErrDegradedPage, res.ParseError)}
		}
		results = append(results, res)
		s.logger.Debug("page graded",
			zap.Int("page", i+1),
			zap.Int("correct", res.CorrectQuestions),
			zap.Int("total", res.TotalQuestions),
		)
		if progress != nil {
			progress(i + 1)
		}
	}

	g := aggregate(qp, results)
	g.UserID = userID

	refs := make([]string, 0, len(pages))
	for i, data := range pages {
		ref, err := s.grader.StoreImage(ctx, "gradings", data)
		if err != nil {
			s.grader.DeleteImages(ctx, refs...)
			return nil, err
		}
		refs = append(refs, ref)
		g.Pages[i].ImageRef = ref
	}
	g.ImageRef = refs[0]

	if err := s.grader.Store().Create(ctx, g); err != nil {
		s.grader.DeleteImages(ctx, refs...)
		return nil, err
	}
	s.grader.CountUsage(ctx, qp.ID)
	s.logger.Info("multi-page grading stored",
		zap.String("grading_id", g.ID),
		zap.Int("pages", g.TotalPages),
		zap.String("total_score", g.TotalScore),
	)
	return g, nil
}

// GradeFiles reads page images from disk and calls GradePages.
func (s *Service) GradeFiles(ctx context.Context, qp *models.QuestionPaper, paths []string, userID *string, progress Progress) (*models.Grading, error) {
	pages := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read page: %w", err)
		}
		pages = append(pages, data)
	}
	return s.GradePages(ctx, qp, pages, userID, progress)
}

// Wait blocks until every background grading has finished.
func (s *Service) Wait() { s.wg.Wait() }
