package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Discover returns the immediate subdirectories of root that contain a
// compiled manifest, sorted by name.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info, err := os.Stat(filepath.Join(dir, ManifestRelPath))
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, dir)
	}

	sort.Strings(paths)
	return paths, nil
}
