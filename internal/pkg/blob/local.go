package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects below a root directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Driver() string { return "local" }

func (l *Local) path(key string) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", errors.New("empty object key")
	}
	full := filepath.Join(l.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object key %q escapes storage root", key)
	}
	return full, nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	full, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return normalizeKey(key), nil
}

func (l *Local) Delete(_ context.Context, ref string) error {
	full, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Open returns the stored bytes for ref.
func (l *Local) Open(ref string) ([]byte, error) {
	full, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}
