// Package truststore implements the durable mapping from downstream server
// identity to its last human-approved fingerprint. It is a simple file-backed
// store: every mutating call flushes to disk before returning. Writes are rare
// and human-gated, so last-writer-wins with no cross-process locking is the
// accepted semantics; concurrent writers from independent processes can lose
// updates.
package truststore

// file: internal/truststore/truststore.go

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/toolgate/toolgate/internal/fingerprint"
	"github.com/toolgate/toolgate/internal/gateerrors"
	"github.com/toolgate/toolgate/internal/logging"
)

// Transport kinds a trust record may be keyed by.
const (
	KindStdio = "stdio"
	KindSSE   = "sse"
	KindHTTP  = "http"
)

// validKinds is the membership set enforced on Save.
var validKinds = map[string]struct{}{
	KindStdio: {},
	KindSSE:   {},
	KindHTTP:  {},
}

// record is the on-disk shape of one approved server.
type record struct {
	Type       string                    `json:"type"`
	Identifier string                    `json:"identifier"`
	ApprovedAt time.Time                 `json:"approved_at"`
	Config     *fingerprint.ServerConfig `json:"config"`
}

// fileShape is the on-disk shape of the whole store.
type fileShape struct {
	Servers []record `json:"servers"`
}

// Entry summarizes one stored record for listing.
type Entry struct {
	Kind       string
	Identifier string
	HasConfig  bool
}

// Store is the file-backed trust store. Safe for concurrent use within one
// process.
type Store struct {
	path   string
	logger logging.Logger
	mutex  sync.RWMutex
}

// New creates a trust store persisting to the given path, creating the parent
// directory if needed.
func New(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create trust store directory")
	}
	return &Store{
		path:   path,
		logger: logger.WithField("component", "trust_store"),
	}, nil
}

// Save upserts the approved fingerprint for (kind, id), stamping the approval
// time and flushing to disk before returning. Re-approval overwrites the whole
// record.
func (s *Store) Save(kind, id string, cfg *fingerprint.ServerConfig) error {
	if _, ok := validKinds[kind]; !ok {
		return gateerrors.NewValidationError(
			"invalid transport kind for trust record", nil,
			map[string]interface{}{"kind": kind},
		)
	}
	if cfg == nil {
		return gateerrors.NewValidationError("trust record requires a server config", nil, nil)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.load()
	updated := record{
		Type:       kind,
		Identifier: id,
		ApprovedAt: time.Now().UTC(),
		Config:     cfg,
	}
	replaced := false
	for i := range data.Servers {
		if data.Servers[i].Type == kind && data.Servers[i].Identifier == id {
			data.Servers[i] = updated
			replaced = true
			break
		}
	}
	if !replaced {
		data.Servers = append(data.Servers, updated)
	}

	s.logger.Info("Saving approved server config.", "kind", kind, "identifier", id, "tool_count", len(cfg.Tools))
	return s.flush(data)
}

// Get returns the approved fingerprint for (kind, id), or nil if no record
// exists. A corrupt store file reads as empty (fail closed).
func (s *Store) Get(kind, id string) (*fingerprint.ServerConfig, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data := s.load()
	for i := range data.Servers {
		if data.Servers[i].Type == kind && data.Servers[i].Identifier == id {
			return data.Servers[i].Config, nil
		}
	}
	return nil, nil
}

// Remove deletes the record for (kind, id), reporting whether one existed.
func (s *Store) Remove(kind, id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.load()
	for i := range data.Servers {
		if data.Servers[i].Type == kind && data.Servers[i].Identifier == id {
			data.Servers = append(data.Servers[:i], data.Servers[i+1:]...)
			s.logger.Info("Removing trust record.", "kind", kind, "identifier", id)
			if err := s.flush(data); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// List returns a summary of every stored record.
func (s *Store) List() ([]Entry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data := s.load()
	entries := make([]Entry, 0, len(data.Servers))
	for _, rec := range data.Servers {
		entries = append(entries, Entry{
			Kind:       rec.Type,
			Identifier: rec.Identifier,
			HasConfig:  rec.Config != nil,
		})
	}
	return entries, nil
}

// load reads the store file. A missing file is an empty store; a corrupt or
// unreadable file is also treated as empty, because a store that cannot be
// read must never be read as trust.
func (s *Store) load() *fileShape {
	data := &fileShape{}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Trust store file unreadable, treating as empty.", "path", s.path, "error", err)
		}
		return data
	}
	if err := json.Unmarshal(raw, data); err != nil {
		s.logger.Warn("Trust store file corrupt, treating as empty.", "path", s.path, "error", err)
		return &fileShape{}
	}
	return data
}

// flush writes the store file with secure permissions.
func (s *Store) flush(data *fileShape) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return gateerrors.NewPersistenceError("failed to marshal trust store", err, nil)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return gateerrors.NewPersistenceError(
			"failed to write trust store file", err,
			map[string]interface{}{"path": s.path},
		)
	}
	return nil
}
