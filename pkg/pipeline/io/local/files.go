package local

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Source is one eligible input document.
type Source struct {
	Path string
	Name string
	// Stem is the base name without its extension.
	Stem string
}

// NewSource derives name and stem from path.
func NewSource(path string) Source {
	name := filepath.Base(path)
	return Source{
		Path: path,
		Name: name,
		Stem: strings.TrimSuffix(name, filepath.Ext(name)),
	}
}

// RequireDir fails if path does not exist or is not a directory.
func RequireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// EnsureDir creates path and any parents. Existing directories are left alone.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// ListSources returns the immediate regular-file children of dir whose extension is
// one of exts, in directory enumeration order. Extension matching is case-sensitive.
func ListSources(dir string, exts []string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []Source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !slices.Contains(exts, filepath.Ext(e.Name())) {
			continue
		}
		out = append(out, NewSource(filepath.Join(dir, e.Name())))
	}
	return out, nil
}

// WriteText writes s to path as UTF-8, replacing any existing file.
func WriteText(path string, s string) error {
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// IsNotExist reports whether err means a path is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
