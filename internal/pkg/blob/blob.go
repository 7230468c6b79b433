// Package blob stores uploaded images permanently (local disk or S3) and
// manages the temporary upload area they pass through.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/papergrade/core/internal/config"
)

// Store persists objects under a slash-separated key and returns that key as
// the reference saved on database rows.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
	Driver() string
}

// New builds the store selected by cfg.Storage.Driver.
func New(ctx context.Context, cfg *config.AppConfig) (Store, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return NewS3(ctx, cfg.Storage.S3)
	case "", "local":
		return NewLocal(cfg.StorageDir())
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// ObjectKey returns a dated, collision-free key such as
// "papers/2026/10/<uuid>.jpg".
func ObjectKey(kind, ext string, now time.Time) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join(kind, now.Format("2006"), now.Format("01"), uuid.NewString()+"."+ext)
}

// ExtForMIME maps an image content type to a file extension.
func ExtForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	}
	return "bin"
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}
