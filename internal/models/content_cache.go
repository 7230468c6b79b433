package models

import "time"

const (
	ContentSourceManual = "manual"
	ContentSourceLLM    = "llm"
	ContentSourceImport = "import"
)

// ContentCacheEntry is generated pedagogical content keyed by
// (module, content_type, identifier, language).
type ContentCacheEntry struct {
	Base
	Module         string     `json:"module"           gorm:"type:varchar(64);not null;uniqueIndex:idx_content_cache_key,priority:1"`
	ContentType    string     `json:"content_type"     gorm:"type:varchar(64);not null;uniqueIndex:idx_content_cache_key,priority:2"`
	Identifier     string     `json:"identifier"       gorm:"type:varchar(191);not null;uniqueIndex:idx_content_cache_key,priority:3"`
	Language       string     `json:"language"         gorm:"type:varchar(16);not null;uniqueIndex:idx_content_cache_key,priority:4"`
	Title          *string    `json:"title,omitempty"  gorm:"type:varchar(255)"`
	Content        string     `json:"content"          gorm:"type:longtext"`
	Source         string     `json:"source"           gorm:"type:varchar(16)"`
	Subject        string     `json:"subject"          gorm:"type:varchar(100)"`
	ClassLevel     string     `json:"class_level"      gorm:"type:varchar(50)"`
	AccessCount    int64      `json:"access_count"     gorm:"not null;default:0"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedBy      *string    `json:"created_by,omitempty" gorm:"type:char(36)"`
}

func (ContentCacheEntry) TableName() string { return "content_cache" }
