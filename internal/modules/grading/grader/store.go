package grader

import (
	"context"
	"errors"
	"fmt"

	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/pkg/pagination"
	"github.com/papergrade/core/internal/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("grading not found")

// Store persists gradings. A grading, its pages and its answers are written
// in one transaction and never updated afterwards.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts g with its pages and answers. Answers are linked to the
// page with the same page number.
func (s *Store) Create(ctx context.Context, g *models.Grading) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(g).Error; err != nil {
			return fmt.Errorf("create grading: %w", err)
		}

		pageIDs := make(map[int]string, len(g.Pages))
		if len(g.Pages) > 0 {
			for i := range g.Pages {
				g.Pages[i].GradingID = g.ID
			}
			if err := tx.Create(&g.Pages).Error; err != nil {
				return fmt.Errorf("create grading pages: %w", err)
			}
			for _, p := range g.Pages {
				pageIDs[p.PageNumber] = p.ID
			}
		}

		if len(g.Answers) == 0 {
			return nil
		}
		for i := range g.Answers {
			a := &g.Answers[i]
			a.GradingID = g.ID
			if id, ok := pageIDs[a.PageNumber]; ok {
				a.PageID = &id
			}
		}
		if err := tx.Create(&g.Answers).Error; err != nil {
			return fmt.Errorf("create answers: %w", err)
		}
		return nil
	})
}

// Get loads a grading with pages in page order and answers in sheet order.
func (s *Store) Get(ctx context.Context, id string) (*models.Grading, error) {
	var g models.Grading
	err := s.db.WithContext(ctx).
		Preload("Pages", func(tx *gorm.DB) *gorm.DB { return tx.Order("page_number ASC") }).
		Preload("Answers", func(tx *gorm.DB) *gorm.DB { return tx.Order("page_number ASC, ordinal ASC") }).
		Where("id = ?", id).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListByUser returns a user's gradings newest first, without children.
func (s *Store) ListByUser(ctx context.Context, userID string, q pagination.Query) ([]models.Grading, response.Pagination, error) {
	var items []models.Grading
	db := s.db.WithContext(ctx).Model(&models.Grading{}).Where("user_id = ?", userID).Order("created_at DESC")
	pag, err := pagination.Paginate(db, q, &items)
	return items, pag, err
}
