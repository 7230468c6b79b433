package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Temp is the scratch area uploads land in before they are hashed and stored.
type Temp struct {
	dir string
}

func NewTemp(dir string) (*Temp, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Temp{dir: dir}, nil
}

func (t *Temp) Dir() string { return t.dir }

// Save copies r into a new temp file and returns its path. At most limit
// bytes are accepted when limit > 0.
func (t *Temp) Save(r io.Reader, ext string, limit int64) (string, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	p := filepath.Join(t.dir, uuid.NewString()+"."+ext)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && limit > 0 && n > limit {
		copyErr = ErrTooLarge
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(p)
		if copyErr != nil {
			return "", copyErr
		}
		return "", closeErr
	}
	return p, nil
}

// SaveFile stores one multipart upload, keeping its extension.
func (t *Temp) SaveFile(fh *multipart.FileHeader, limit int64) (string, error) {
	if limit > 0 && fh.Size > limit {
		return "", ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return t.Save(src, filepath.Ext(fh.Filename), limit)
}

// ErrTooLarge is returned by Save when the upload exceeds the limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Remove deletes temp files; missing files are ignored.
func (t *Temp) Remove(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}

// Sweep deletes temp files last modified before now-maxAge.
func (t *Temp) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(t.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
