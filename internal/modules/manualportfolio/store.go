package manualportfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Position is one user-entered holding. AverageCost and ManualPrice stay
// nil when the user never supplied them; ManualPrice is the fallback used
// when no live quote resolves for the symbol.
type Position struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name,omitempty"`
	Units       float64  `json:"units"`
	Currency    string   `json:"currency"`
	AverageCost *float64 `json:"average_cost"`
	ManualPrice *float64 `json:"manual_price"`
}

// Portfolio is one named collection of manual positions.
type Portfolio struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Positions []Position `json:"positions"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// fileFormat is the on-disk layout: portfolios keyed by id under a single
// top-level object, so the file stays hand-editable.
type fileFormat struct {
	Portfolios map[string]*Portfolio `json:"portfolios"`
}

// FileStore persists portfolios to a single JSON file. Writes go through
// a temp file and rename so a crash mid-write never corrupts the data.
type FileStore struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
}

// NewFileStore creates a store backed by the given file path. The parent
// directory is created on first write.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{
		path: path,
		log:  log.With().Str("component", "portfolio_store").Logger(),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Read returns a snapshot of all portfolios. A missing file is an empty
// store, not an error.
func (s *FileStore) Read() (map[string]*Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return data.Portfolios, nil
}

// Update applies fn to the store contents under the write lock and
// persists the result atomically. fn returning an error aborts the write.
func (s *FileStore) Update(fn func(portfolios map[string]*Portfolio) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	if err := fn(data.Portfolios); err != nil {
		return err
	}

	return s.save(data)
}

func (s *FileStore) load() (*fileFormat, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileFormat{Portfolios: make(map[string]*Portfolio)}, nil
		}
		return nil, fmt.Errorf("failed to read portfolio file: %w", err)
	}

	var data fileFormat
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio file %s: %w", s.path, err)
	}
	if data.Portfolios == nil {
		data.Portfolios = make(map[string]*Portfolio)
	}
	return &data, nil
}

func (s *FileStore) save(data *fileFormat) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create portfolio directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode portfolios: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".portfolios-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp portfolio file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write portfolio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close portfolio file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace portfolio file: %w", err)
	}
	return nil
}
