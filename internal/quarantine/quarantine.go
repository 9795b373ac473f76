// Package quarantine implements the durable collection of withheld tool
// responses. A flagged response never reaches the client; it is stored here
// until a human releases or deletes it. Durability matches the trust store:
// every mutating call flushes to disk before returning, last-writer-wins, no
// cross-process locking.
package quarantine

// file: internal/quarantine/quarantine.go

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/gateerrors"
	"github.com/toolgate/toolgate/internal/logging"
)

// Record is one withheld tool response. Mutated only through Release, which is
// idempotent; removed only through Delete, Tidy, or Purge.
type Record struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ToolOutput string          `json:"tool_output"`
	Reason     string          `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
	Released   bool            `json:"released"`
	ReleasedAt *time.Time      `json:"released_at"`
}

// ReviewRequest is the request half of the reviewer inspection surface.
type ReviewRequest struct {
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input"`
}

// ReviewPair pairs a withheld request with its response for human review.
type ReviewPair struct {
	Request  ReviewRequest `json:"request"`
	Response string        `json:"response"`
}

// Store is the file-backed quarantine store. Safe for concurrent use within
// one process.
type Store struct {
	path   string
	logger logging.Logger
	mutex  sync.RWMutex
}

// New creates a quarantine store persisting to the given path, creating the
// parent directory if needed.
func New(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create quarantine store directory")
	}
	return &Store{
		path:   path,
		logger: logger.WithField("component", "quarantine_store"),
	}, nil
}

// Add persists a new unreleased record for a withheld response and returns its
// freshly allocated id.
func (s *Store) Add(toolName string, toolInput json.RawMessage, toolOutput, reason string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec := Record{
		ID:         uuid.NewString(),
		ToolName:   toolName,
		ToolInput:  toolInput,
		ToolOutput: toolOutput,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}

	records := s.load()
	records = append(records, rec)
	if err := s.flush(records); err != nil {
		return "", err
	}

	s.logger.Info("Quarantined tool response.", "id", rec.ID, "tool", toolName, "reason", reason)
	return rec.ID, nil
}

// Get returns the record with the given id, or nil if it does not exist.
func (s *Store) Get(id string) (*Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, rec := range s.load() {
		if rec.ID == id {
			found := rec
			return &found, nil
		}
	}
	return nil, nil
}

// Release marks the record released, returning true iff the id exists.
// Idempotent: the first call sets ReleasedAt, later calls change nothing.
func (s *Store) Release(id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records := s.load()
	for i := range records {
		if records[i].ID != id {
			continue
		}
		if records[i].Released {
			return true, nil
		}
		now := time.Now().UTC()
		records[i].Released = true
		records[i].ReleasedAt = &now
		if err := s.flush(records); err != nil {
			return false, err
		}
		s.logger.Info("Released quarantined response.", "id", id)
		return true, nil
	}
	return false, nil
}

// Delete removes the record with the given id, reporting whether it existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records := s.load()
	for i := range records {
		if records[i].ID == id {
			records = append(records[:i], records[i+1:]...)
			if err := s.flush(records); err != nil {
				return false, err
			}
			s.logger.Info("Deleted quarantined response.", "id", id)
			return true, nil
		}
	}
	return false, nil
}

// List returns all unreleased records.
func (s *Store) List() ([]Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []Record
	for _, rec := range s.load() {
		if !rec.Released {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListAll returns every record, released or not.
func (s *Store) ListAll() ([]Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.load(), nil
}

// Pairs returns the reviewer inspection surface: request/response pairs over
// unreleased records only.
func (s *Store) Pairs() ([]ReviewPair, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []ReviewPair
	for _, rec := range s.load() {
		if rec.Released {
			continue
		}
		out = append(out, ReviewPair{
			Request:  ReviewRequest{ToolName: rec.ToolName, Input: rec.ToolInput},
			Response: rec.ToolOutput,
		})
	}
	return out, nil
}

// Tidy deletes all released records, returning how many were removed.
func (s *Store) Tidy() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records := s.load()
	kept := records[:0]
	removed := 0
	for _, rec := range records {
		if rec.Released {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.flush(kept); err != nil {
		return 0, err
	}
	s.logger.Info("Tidied quarantine store.", "removed", removed)
	return removed, nil
}

// Purge deletes every record, returning how many were removed.
func (s *Store) Purge() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	records := s.load()
	removed := len(records)
	if err := s.flush(nil); err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("Purged quarantine store.", "removed", removed)
	}
	return removed, nil
}

// load reads the store file. Missing, unreadable, or corrupt files read as an
// empty store; a quarantine that cannot be read must never silently release
// anything.
func (s *Store) load() []Record {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Quarantine store file unreadable, treating as empty.", "path", s.path, "error", err)
		}
		return nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Warn("Quarantine store file corrupt, treating as empty.", "path", s.path, "error", err)
		return nil
	}
	return records
}

// flush writes the store file with secure permissions.
func (s *Store) flush(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return gateerrors.NewPersistenceError("failed to marshal quarantine store", err, nil)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return gateerrors.NewPersistenceError(
			"failed to write quarantine store file", err,
			map[string]interface{}{"path": s.path},
		)
	}
	return nil
}
