package paper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/contenthash"
	"github.com/papergrade/core/internal/pkg/imageprep"
	"go.uber.org/zap"
)

// Service resolves uploaded question paper images to stored papers,
// extracting only on a hash miss.
type Service struct {
	repo      *Repository
	extractor *Extractor
	blobs     blob.Store
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(repo *Repository, extractor *Extractor, blobs blob.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, extractor: extractor, blobs: blobs, logger: logger.Named("Paper"), now: time.Now}
}

func (s *Service) Repository() *Repository { return s.repo }

// Resolve returns the stored paper for the image at path. reused is true
// when no extraction call was made.
func (s *Service) Resolve(ctx context.Context, path string, uploadedBy *string) (p *models.QuestionPaper, reused bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read question paper: %w", err)
	}
	info, err := imageprep.Probe(data)
	if err != nil {
		return nil, false, err
	}

	hash := contenthash.Hash(data)
	if existing, err := s.repo.FindByHash(ctx, hash); err == nil {
		s.logger.Debug("question paper reused", zap.String("paper_id", existing.ID))
		return existing, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	extracted, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, false, err
	}

	ref, err := s.blobs.Put(ctx, blob.ObjectKey("papers", blob.ExtForMIME(info.MIME()), s.now()), data, info.MIME())
	if err != nil {
		return nil, false, fmt.Errorf("store question paper image: %w", err)
	}

	p, err = s.repo.Store(ctx, path, extracted, Meta{ImageRef: ref, UploadedBy: uploadedBy})
	if err != nil || p.ImageRef != ref {
		if delErr := s.blobs.Delete(ctx, ref); delErr != nil {
			s.logger.Warn("orphan question paper image not removed", zap.String("ref", ref), zap.Error(delErr))
		}
	}
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("question paper extracted",
		zap.String("paper_id", p.ID),
		zap.Int("questions", p.TotalQuestions),
	)
	return p, p.ImageRef != ref, nil
}
