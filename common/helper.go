package common

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// PageFilePattern matches the file names produced by PagePaths.
var PageFilePattern = regexp.MustCompile(`^page-(\d{4,})\.json$`)

// GetEnv returns the environment variable value or a fallback if unset.
func GetEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// PagePaths returns n destination slots under dir: page-0001.json, page-0002.json, ...
// Slot i receives result page i+1.
func PagePaths(dir string, n int) []string {
	if n < 0 {
		n = 0
	}
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("page-%04d.json", i+1))
	}
	return paths
}

// StoredPages lists the page files present in dir in slot order. Files that
// do not look like page slots are ignored.
func StoredPages(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	type storedPage struct {
		path string
		slot string
	}
	var pages []storedPage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := PageFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		pages = append(pages, storedPage{
			path: filepath.Join(dir, entry.Name()),
			slot: strings.TrimLeft(m[1], "0"),
		})
	}

	// Slot numbers widen past four digits, so order by value, not by name.
	sort.Slice(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		if len(a.slot) != len(b.slot) {
			return len(a.slot) < len(b.slot)
		}
		if a.slot != b.slot {
			return a.slot < b.slot
		}
		return a.path < b.path
	})

	paths := make([]string, 0, len(pages))
	for _, p := range pages {
		paths = append(paths, p.path)
	}
	return paths, nil
}
