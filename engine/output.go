package engine

import (
	"os"
	"path/filepath"
	"sort"
)

// CollectOutputFiles lists regular files directly under dir. A missing or
// unreadable directory yields an empty list; entries are sorted by name.
func CollectOutputFiles(dir string) []FileInfo {
	if dir == "" {
		return []FileInfo{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return []FileInfo{}
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}
