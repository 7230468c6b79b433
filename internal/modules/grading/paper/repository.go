package paper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/papergrade/core/internal/database"
	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/pkg/contenthash"
	"github.com/papergrade/core/internal/pkg/pagination"
	"github.com/papergrade/core/internal/pkg/redis"
	"github.com/papergrade/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	hashIndexPrefix = "papergrade:paper:hash:"
	hashIndexTTL    = 24 * time.Hour
)

var ErrNotFound = errors.New("question paper not found")

// Meta is stored alongside a newly extracted paper.
type Meta struct {
	ImageRef   string
	UploadedBy *string
}

// Repository stores extracted papers deduplicated by content hash.
// The Redis hash index is optional and only ever points at rows that exist.
type Repository struct {
	db     *gorm.DB
	rc     *redis.Client
	logger *zap.Logger
}

func NewRepository(db *gorm.DB, rc *redis.Client, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, rc: rc, logger: logger}
}

func withQuestions(db *gorm.DB) *gorm.DB {
	return db.Preload("Questions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("ordinal ASC")
	})
}

// FindByHash returns the paper whose image hashed to hash.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*models.QuestionPaper, error) {
	if id := r.indexLookup(ctx, hash); id != "" {
		p, err := r.Get(ctx, id)
		if err == nil && p.ContentHash == hash {
			return p, nil
		}
		r.indexDrop(ctx, hash)
	}

	var p models.QuestionPaper
	err := withQuestions(r.db.WithContext(ctx)).Where("content_hash = ?", hash).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.indexSet(ctx, hash, p.ID)
	return &p, nil
}

// Store hashes the image at imagePath and saves extracted under that hash.
// When a paper with the same hash exists it is returned unchanged and
// extracted is discarded. Losing an insert race resolves to the winner's row.
func (r *Repository) Store(ctx context.Context, imagePath string, extracted *ExtractedPaper, meta Meta) (*models.QuestionPaper, error) {
	hash, err := contenthash.HashFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("hash question paper: %w", err)
	}
	if existing, err := r.FindByHash(ctx, hash); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if extracted == nil || len(extracted.Questions) == 0 {
		return nil, errors.New("extracted paper has no questions")
	}

	p := extracted.toModel(hash)
	p.ImageRef = meta.ImageRef
	p.UploadedBy = meta.UploadedBy

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(p).Error
	})
	if database.IsDuplicateKeyError(err) {
		r.logger.Info("question paper insert lost race, reusing existing row", zap.String("hash", hash))
		return r.FindByHash(ctx, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("create question paper: %w", err)
	}
	r.indexSet(ctx, hash, p.ID)
	return p, nil
}

// IncrementUsage bumps usage_count once per grading that used the paper.
func (r *Repository) IncrementUsage(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.QuestionPaper{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.QuestionPaper, error) {
	var p models.QuestionPaper
	err := withQuestions(r.db.WithContext(ctx)).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns papers newest first, without their questions.
func (r *Repository) List(ctx context.Context, q pagination.Query) ([]models.QuestionPaper, response.Pagination, error) {
	var items []models.QuestionPaper
	pag, err := pagination.Paginate(r.db.WithContext(ctx).Model(&models.QuestionPaper{}).Order("created_at DESC"), q, &items)
	return items, pag, err
}

func (r *Repository) indexLookup(ctx context.Context, hash string) string {
	if r.rc == nil {
		return ""
	}
	id, err := r.rc.Get(ctx, hashIndexPrefix+hash)
	if err != nil {
		r.logger.Warn("paper hash index read failed", zap.Error(err))
		return ""
	}
	return id
}

func (r *Repository) indexSet(ctx context.Context, hash, id string) {
	if r.rc == nil {
		return
	}
	if err := r.rc.Set(ctx, hashIndexPrefix+hash, id, hashIndexTTL); err != nil {
		r.logger.Warn("paper hash index write failed", zap.Error(err))
	}
}

func (r *Repository) indexDrop(ctx context.Context, hash string) {
	if r.rc == nil {
		return
	}
	_ = r.rc.Del(ctx, hashIndexPrefix+hash)
}
