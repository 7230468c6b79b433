package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by every entity. Rows are never soft-deleted.
type Base struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// Position locates something on a source image as 0-100 percentages.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp keeps both coordinates inside the 0-100 range.
func (p Position) Clamp() Position {
	return Position{X: clampPercent(p.X), Y: clampPercent(p.Y)}
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
