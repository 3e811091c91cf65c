// Package results persists run payloads for audit and reproducibility:
// one JSON document per run id in the configured results directory,
// append-only, with an in-memory index of what this process wrote.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Store writes run documents and remembers where they went.
type Store struct {
	dir string

	mu    sync.RWMutex
	files map[string]string // runID -> path
}

// Entry describes one persisted run.
type Entry struct {
	RunID   string    `json:"run_id"`
	Path    string    `json:"path"`
	SavedAt time.Time `json:"saved_at"`
}

// NewStore creates the results directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir %s: %w", dir, err)
	}
	return &Store{dir: dir, files: make(map[string]string)}, nil
}

// Save writes payload as <kind>_<runID>.json. Documents are append-only:
// saving the same run twice is an error.
func (s *Store) Save(kind, runID string, payload any) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", kind, runID))

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.files[runID]; ok {
		return "", fmt.Errorf("run already persisted: %s (%s)", runID, existing)
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("result file already exists: %s", path)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run %s: %w", runID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run %s: %w", runID, err)
	}

	s.files[runID] = path
	return path, nil
}

// Path returns the file written for runID by this process.
func (s *Store) Path(runID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.files[runID]
	return p, ok
}

// List returns the runs saved by this process, ordered by run id.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.files))
	for id, path := range s.files {
		out = append(out, Entry{RunID: id, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// Dir returns the configured results directory.
func (s *Store) Dir() string { return s.dir }
