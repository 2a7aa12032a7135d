package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSource reads strategy documents from a directory tree:
//
//	<dir>/strategies/*.yaml
//	<dir>/index.yaml
//	<dir>/settings.yaml
//
// Intended for development and tests; production uses the sqlite store.
type FileSource struct {
	Dir string
}

func (f FileSource) StrategyDocs(_ context.Context) ([][]byte, error) {
	dir := filepath.Join(f.Dir, "strategies")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	docs := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read strategy %s: %w", name, err)
		}
		docs = append(docs, data)
	}
	return docs, nil
}

func (f FileSource) IndexDoc(_ context.Context) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Dir, "index.yaml"))
}

func (f FileSource) SettingsDoc(_ context.Context) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.Dir, "settings.yaml"))
}
