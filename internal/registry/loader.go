package registry

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"forged/internal/common/fsutil"
	"forged/internal/engine"
	"forged/pkg/types"
)

// Scanner discovers loadable model files under a directory.
type Scanner struct {
	// Recursive descends into subdirectories (hidden ones are skipped).
	Recursive bool
}

// NewScanner returns a Scanner that walks subdirectories.
func NewScanner() *Scanner { return &Scanner{Recursive: true} }

// Scan lists every file under dir whose suffix resolves to a known model
// format, sorted by path. Kind is the keyword guess from the file name.
func (s *Scanner) Scan(dir string) ([]types.CatalogEntry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}

	var out []types.CatalogEntry
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == abs {
				return nil
			}
			if !s.Recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		format := engine.DetectFormat(d.Name())
		if format == types.FormatUnknown {
			return nil
		}
		size, err := fsutil.FileSizeMB(p)
		if err != nil {
			// Broken symlinks and the like are not loadable.
			return nil
		}
		out = append(out, types.CatalogEntry{
			Name:   d.Name(),
			Path:   p,
			Format: format,
			Kind:   engine.DetectKind(d.Name()),
			SizeMB: size,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// LoadDir scans dir recursively with a default Scanner.
func LoadDir(dir string) ([]types.CatalogEntry, error) {
	return NewScanner().Scan(dir)
}
