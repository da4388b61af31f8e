package photos

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Scan returns the absolute paths of every photo under dir, sorted.
// Hidden directories are skipped.
func Scan(dir string, m *Matcher) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var found []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if m.Match(filepath.ToSlash(rel)) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}
