package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileSink stores documents under root/<campaign>/validacion_<category>.json.
// It also serves the documents back to the summary aggregator.
type FileSink struct {
	root string
	mu   sync.RWMutex
}

func NewFileSink(root string) (*FileSink, error) {
	//nolint:gosec // G301: report directories are shared with the mail tooling
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure report dir: %w", err)
	}
	return &FileSink{root: root}, nil
}

func (s *FileSink) Root() string { return s.root }

// Put writes the document atomically.
func (s *FileSink) Put(_ context.Context, campaignID, category string, value any) error {
	data, err := Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", campaignID, category, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, campaignID)
	//nolint:gosec // G301: see NewFileSink
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure campaign dir: %w", err)
	}
	path := filepath.Join(dir, FileName(category))
	tmpPath := path + ".tmp"
	//nolint:gosec // G306: reports are read by the mail tooling
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// Reset removes every stored document and recreates an empty root.
func (s *FileSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to clear report dir: %w", err)
	}
	//nolint:gosec // G301: see NewFileSink
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to ensure report dir: %w", err)
	}
	return nil
}

// Campaigns lists the campaign directories, sorted by name. A missing root
// yields an empty list.
func (s *FileSink) Campaigns() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Get returns the raw document, or ErrNotFound.
func (s *FileSink) Get(campaignID, category string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(filepath.Join(s.root, campaignID, FileName(category)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, campaignID, category)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return data, nil
}
