package system

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ChildState describes what a child directory holds.
type ChildState string

const (
	ChildConfigured ChildState = "configured" // config.json present
	ChildStaged     ChildState = "staged"     // only config.json.pending present
	ChildEmpty      ChildState = "empty"
)

// ChildOnDisk is one directory under the children dir.
type ChildOnDisk struct {
	Name  string
	Dir   string
	State ChildState
}

// DiscoverChildrenOnDisk lists provisioned child directories sorted by name.
// A missing children dir yields no entries.
func DiscoverChildrenOnDisk(childrenDir string) ([]ChildOnDisk, error) {
	if strings.TrimSpace(childrenDir) == "" {
		return nil, fmt.Errorf("children dir is empty")
	}

	entries, err := os.ReadDir(childrenDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read children dir: %w", err)
	}

	found := make([]ChildOnDisk, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(childrenDir, entry.Name())
		state := ChildEmpty
		switch {
		case fileExists(filepath.Join(dir, "config.json")):
			state = ChildConfigured
		case fileExists(filepath.Join(dir, "config.json.pending")):
			state = ChildStaged
		}
		found = append(found, ChildOnDisk{Name: entry.Name(), Dir: dir, State: state})
	}

	sort.Slice(found, func(i, j int) bool {
		return strings.ToLower(found[i].Name) < strings.ToLower(found[j].Name)
	})
	return found, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
