// Package staging holds classified garments that are awaiting human
// review, keyed by transient ID in a JSON file. The file is process-wide
// shared state: every load-mutate-persist cycle runs under a single
// writer lock, and persistence is write-to-temp-then-rename so a failed
// write never corrupts the backing store.
package staging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saisurya114/wardrobe-backend/internal/model"
)

// Store is a file-backed staging area for pending garments.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a staging store persisting to the given JSON file.
// The parent directory is created if missing.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	return &Store{path: path}, nil
}

// NewTempID produces a transient staging identifier. These live in their
// own namespace and are never promoted to catalog IDs.
func NewTempID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "temp_" + hex[:12]
}

// Put stages an inventory payload with its processed image and returns
// the stored record.
func (s *Store) Put(tempID string, inventory model.InventoryItem, img model.StagedImage) (*model.StagedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	record := model.StagedItem{
		TempID:    tempID,
		Inventory: inventory,
		Image:     img,
		CreatedAt: time.Now().UTC(),
		Status:    model.StagedStatusPending,
	}
	records[tempID] = record

	if err := s.persist(records); err != nil {
		return nil, err
	}
	return &record, nil
}

// Get returns a staged record, or nil if the ID is unknown.
func (s *Store) Get(tempID string) (*model.StagedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	record, ok := records[tempID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Update merges a partial edit into a staged record's inventory payload.
// Only supplied fields overwrite. Returns the updated record, or nil if
// the ID is unknown.
func (s *Store) Update(tempID string, update model.InventoryUpdate) (*model.StagedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	record, ok := records[tempID]
	if !ok {
		return nil, nil
	}

	update.Apply(&record.Inventory)
	records[tempID] = record

	if err := s.persist(records); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes a staged record. Returns false if the ID was unknown;
// deleting an already-deleted record is not an error.
func (s *Store) Delete(tempID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}
	if _, ok := records[tempID]; !ok {
		return false, nil
	}
	delete(records, tempID)

	if err := s.persist(records); err != nil {
		return false, err
	}
	return true, nil
}

// List returns all pending records, for review dashboards.
func (s *Store) List() ([]model.StagedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.StagedItem, 0, len(records))
	for _, record := range records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TempID < out[j].TempID
	})
	return out, nil
}

// load reads the backing file. A missing file is an empty store.
func (s *Store) load() (map[string]model.StagedItem, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]model.StagedItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading staging file: %w", err)
	}

	records := map[string]model.StagedItem{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing staging file: %w", err)
	}
	return records, nil
}

// persist writes the full record set to a temp file and renames it over
// the store, so readers never observe a partial JSON document.
func (s *Store) persist(records map[string]model.StagedItem) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding staging file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing staging file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing staging file: %w", err)
	}
	return nil
}
