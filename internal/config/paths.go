package config

import (
	"os"
	"path/filepath"
	"strings"
)

// baseDir anchors relative runtime paths. Empty means the executable directory.
var baseDir string

// SetBaseDir makes relative runtime paths resolve against dir, usually the
// directory holding config.yml.
func SetBaseDir(dir string) {
	baseDir = strings.TrimSpace(dir)
}

// ExecutableDir returns the directory where the current executable resides.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err == nil && strings.TrimSpace(exe) != "" {
		if resolved, resolveErr := filepath.EvalSymlinks(exe); resolveErr == nil && strings.TrimSpace(resolved) != "" {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, wdErr := os.Getwd(); wdErr == nil && strings.TrimSpace(wd) != "" {
		return wd
	}
	return "."
}

// ResolveRuntimePath resolves raw (or fallbackSubdir when raw is empty)
// against the configured base directory.
func ResolveRuntimePath(raw string, fallbackSubdir string) string {
	root := baseDir
	if root == "" {
		root = ExecutableDir()
	}
	target := strings.TrimSpace(raw)
	if target == "" {
		target = strings.TrimSpace(fallbackSubdir)
		if target == "" {
			return root
		}
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(root, target))
}
