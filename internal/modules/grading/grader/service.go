// Package grader grades answer sheets with a vision analyzer and stores the
// outcome as an immutable grading.
package grader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/imageprep"
	"go.uber.org/zap"
)

var (
	ErrNoImage       = errors.New("image required for single mode")
	ErrNoAnswerSheet = errors.New("answer sheet required for dual mode")
	ErrNoPaper       = errors.New("question_paper or paper_id required for dual mode")
	ErrModeMismatch  = errors.New("mode must be single or dual")
)

type Options struct {
	MaxImageEdge    int
	AnalyzerTimeout time.Duration
}

// Outcome is what a grading request produced. Grading is nil when the
// result is degraded and nothing was stored.
type Outcome struct {
	Grading *models.Grading `json:"grading,omitempty"`
	Result  *Result         `json:"result"`
}

type Service struct {
	store    *Store
	analyzer analyzer.Analyzer
	papers   *paper.Repository
	blobs    blob.Store
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewService(store *Store, a analyzer.Analyzer, papers *paper.Repository, blobs blob.Store, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		analyzer: a,
		papers:   papers,
		blobs:    blobs,
		logger:   logger.Named("Grader"),
		opts:     opts,
		now:      time.Now,
	}
}

func (s *Service) Store() *Store { return s.store }

// Evaluate analyzes one image without storing anything. With a nil paper
// the image must carry its own questions. Analyzer output that cannot be
// parsed yields a degraded result, not an error.
func (s *Service) Evaluate(ctx context.Context, data []byte, qp *models.QuestionPaper, scope Scope) (*Result, error) {
	if s.analyzer == nil {
		return nil, analyzer.ErrNoProvider
	}
	info, err := imageprep.Probe(data)
	if err != nil {
		return nil, err
	}
	img, err := analyzer.PrepareImage(data, s.opts.MaxImageEdge)
	if err != nil {
		return nil, err
	}

	prompt := singlePrompt
	if qp != nil {
		prompt = paperPrompt(qp, scope)
	}
	raw, err := analyzer.Call(ctx, s.analyzer, s.opts.AnalyzerTimeout, []analyzer.Image{img}, prompt)
	if err != nil {
		return nil, err
	}

	var res *Result
	if a, perr := parseAnalysis(raw, qp == nil); perr != nil {
		s.logger.Warn("analyzer output unusable", zap.Error(perr), zap.Int("raw_len", len(raw)))
		res = degradedResult(raw, perr)
	} else {
		if qp == nil {
			qp = paperFromAnswers(a)
		}
		res = reconcile(a, qp, scope)
	}
	res.Width, res.Height = info.Width, info.Height
	return res, nil
}

// GradeSingle grades an image holding both questions and answers.
func (s *Service) GradeSingle(ctx context.Context, imagePath string, userID *string) (*Outcome, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read answer sheet: %w", err)
	}
	res, err := s.Evaluate(ctx, data, nil, ScopeSheet)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		return &Outcome{Result: res}, nil
	}

	g := newGrading(res, models.GradingModeSingle, userID)
	if err := s.persist(ctx, g, data); err != nil {
		return nil, err
	}
	return &Outcome{Grading: g, Result: res}, nil
}

// GradeAgainstPaper grades an answer sheet against a stored paper and
// counts the use on the paper.
func (s *Service) GradeAgainstPaper(ctx context.Context, imagePath string, qp *models.QuestionPaper, userID *string) (*Outcome, error) {
	if qp == nil {
		return nil, ErrNoPaper
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read answer sheet: %w", err)
	}
	res, err := s.Evaluate(ctx, data, qp, ScopeSheet)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		return &Outcome{Result: res}, nil
	}

	g := newGrading(res, models.GradingModeDual, userID)
	g.PaperID = &qp.ID
	InheritPaperMeta(g, qp)
	if err := s.persist(ctx, g, data); err != nil {
		return nil, err
	}
	s.CountUsage(ctx, qp.ID)
	return &Outcome{Grading: g, Result: res}, nil
}

func (s *Service) persist(ctx context.Context, g *models.Grading, image []byte) error {
	ref, err := s.StoreImage(ctx, "gradings", image)
	if err != nil {
		return err
	}
	g.ImageRef = ref
	if err := s.store.Create(ctx, g); err != nil {
		s.DeleteImages(ctx, ref)
		return err
	}
	s.logger.Info("grading stored",
		zap.String("grading_id", g.ID),
		zap.String("mode", g.Mode),
		zap.String("total_score", g.TotalScore),
	)
	return nil
}

// StoreImage copies an upload to permanent storage and returns its ref.
func (s *Service) StoreImage(ctx context.Context, kind string, data []byte) (string, error) {
	info, err := imageprep.Probe(data)
	if err != nil {
		return "", err
	}
	ref, err := s.blobs.Put(ctx, blob.ObjectKey(kind, blob.ExtForMIME(info.MIME()), s.now()), data, info.MIME())
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return ref, nil
}

// DeleteImages removes stored images after a failed write.
func (s *Service) DeleteImages(ctx context.Context, refs ...string) {
	for _, ref := range refs {
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.logger.Warn("stored image not removed", zap.String("ref", ref), zap.Error(err))
		}
	}
}

// CountUsage records one more grading against the paper. Failures are
// logged only.
func (s *Service) CountUsage(ctx context.Context, paperID string) {
	if s.papers == nil {
		return
	}
	if err := s.papers.IncrementUsage(ctx, paperID); err != nil {
		s.logger.Warn("paper usage not counted", zap.String("paper_id", paperID), zap.Error(err))
	}
}

func newGrading(res *Result, mode string, userID *string) *models.Grading {
	return &models.Grading{
		UserID:            userID,
		TotalPages:        1,
		Subject:           res.Subject,
		Language:          res.Language,
		GradeLevel:        res.GradeLevel,
		TotalScore:        res.TotalScore,
		Feedback:          res.Feedback,
		Mode:              mode,
		TotalQuestions:    res.TotalQuestions,
		AnsweredQuestions: res.AnsweredQuestions,
		Warnings:          res.Warnings,
		Annotations:       res.Annotations,
		Answers:           append([]models.Answer(nil), res.Answers...),
	}
}

// InheritPaperMeta prefers the stored paper's metadata over what the
// analyzer inferred from the answer sheet.
func InheritPaperMeta(g *models.Grading, qp *models.QuestionPaper) {
	if qp.Subject != "" {
		g.Subject = qp.Subject
	}
	if qp.Language != "" {
		g.Language = qp.Language
	}
	if qp.GradeLevel != "" {
		g.GradeLevel = qp.GradeLevel
	}
}
