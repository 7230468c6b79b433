package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papergrade/core/internal/database"
	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/pkg/pagination"
	"github.com/papergrade/core/internal/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultLanguage = "en"

var (
	ErrNotFound   = errors.New("content cache entry not found")
	ErrInvalidKey = errors.New("module, content_type and identifier are required")
)

// Key identifies one cache entry. Module, content type and language compare
// case-insensitively; identifier is only trimmed.
type Key struct {
	Module      string `json:"module"       form:"module"`
	ContentType string `json:"content_type" form:"content_type"`
	Identifier  string `json:"identifier"   form:"identifier"`
	Language    string `json:"language"     form:"lang"`
}

// Normalize returns the canonical form of k or ErrInvalidKey.
func (k Key) Normalize() (Key, error) {
	out := Key{
		Module:      strings.ToLower(strings.TrimSpace(k.Module)),
		ContentType: strings.ToLower(strings.TrimSpace(k.ContentType)),
		Identifier:  strings.TrimSpace(k.Identifier),
		Language:    strings.ToLower(strings.TrimSpace(k.Language)),
	}
	if out.Module == "" || out.ContentType == "" || out.Identifier == "" {
		return Key{}, ErrInvalidKey
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	return out, nil
}

func (k Key) String() string {
	return k.Module + "/" + k.ContentType + "/" + k.Identifier + "/" + k.Language
}

// Content is the payload written by Put.
type Content struct {
	Title      *string
	Body       string
	Source     string
	Subject    string
	ClassLevel string
	CreatedBy  *string
}

// Filter narrows List results; empty fields match everything.
type Filter struct {
	Module      string
	ContentType string
	Language    string
}

// Store is the read-through cache over content_cache rows.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) scoped(ctx context.Context, k Key) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.ContentCacheEntry{}).
		Where("module = ? AND content_type = ? AND identifier = ? AND language = ?",
			k.Module, k.ContentType, k.Identifier, k.Language)
}

func (s *Store) find(ctx context.Context, k Key) (*models.ContentCacheEntry, error) {
	var entry models.ContentCacheEntry
	if err := s.scoped(ctx, k).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Get returns the entry for key and records the access. access_count is
// incremented in SQL and last_accessed_at never moves backwards.
func (s *Store) Get(ctx context.Context, key Key) (*models.ContentCacheEntry, error) {
	k, err := key.Normalize()
	if err != nil {
		return nil, err
	}
	entry, err := s.find(ctx, k)
	if err != nil {
		return nil, err
	}

	accessed := s.now()
	if entry.LastAccessedAt != nil && entry.LastAccessedAt.After(accessed) {
		accessed = *entry.LastAccessedAt
	}
	res := s.db.WithContext(ctx).Model(&models.ContentCacheEntry{}).
		Where("id = ?", entry.ID).
		UpdateColumns(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + ?", 1),
			"last_accessed_at": accessed,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("record cache access: %w", res.Error)
	}
	return s.find(ctx, k)
}

// Put inserts or overwrites the entry for key. access_count and created_by of
// an existing row are preserved. Concurrent writers are last-write-wins.
func (s *Store) Put(ctx context.Context, key Key, content Content) (*models.ContentCacheEntry, error) {
	k, err := key.Normalize()
	if err != nil {
		return nil, err
	}
	source := strings.ToLower(strings.TrimSpace(content.Source))
	if source == "" {
		source = models.ContentSourceManual
	}

	entry := models.ContentCacheEntry{
		Module:      k.Module,
		ContentType: k.ContentType,
		Identifier:  k.Identifier,
		Language:    k.Language,
		Title:       content.Title,
		Content:     content.Body,
		Source:      source,
		Subject:     strings.TrimSpace(content.Subject),
		ClassLevel:  strings.TrimSpace(content.ClassLevel),
		CreatedBy:   content.CreatedBy,
	}
	updates := []string{"title", "content", "source", "subject", "class_level", "updated_at"}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "module"}, {Name: "content_type"}, {Name: "identifier"}, {Name: "language"},
		},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&entry).Error
	if database.IsDuplicateKeyError(err) {
		// Drivers without upsert support report the conflict instead.
		err = s.scoped(ctx, k).UpdateColumns(map[string]interface{}{
			"title":       entry.Title,
			"content":     entry.Content,
			"source":      entry.Source,
			"subject":     entry.Subject,
			"class_level": entry.ClassLevel,
			"updated_at":  s.now(),
		}).Error
	}
	if err != nil {
		return nil, fmt.Errorf("put cache entry %s: %w", k, err)
	}
	return s.find(ctx, k)
}

// Delete hard-deletes the entry for key.
func (s *Store) Delete(ctx context.Context, key Key) error {
	k, err := key.Normalize()
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("module = ? AND content_type = ? AND identifier = ? AND language = ?",
			k.Module, k.ContentType, k.Identifier, k.Language).
		Delete(&models.ContentCacheEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns entries newest first without touching access bookkeeping.
func (s *Store) List(ctx context.Context, f Filter, q pagination.Query) ([]models.ContentCacheEntry, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.ContentCacheEntry{}).Order("updated_at DESC")
	if v := strings.ToLower(strings.TrimSpace(f.Module)); v != "" {
		tx = tx.Where("module = ?", v)
	}
	if v := strings.ToLower(strings.TrimSpace(f.ContentType)); v != "" {
		tx = tx.Where("content_type = ?", v)
	}
	if v := strings.ToLower(strings.TrimSpace(f.Language)); v != "" {
		tx = tx.Where("language = ?", v)
	}
	items := make([]models.ContentCacheEntry, 0)
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}
