// Package jsonfile implements the credential store as a single JSON document
// that is rewritten in full after every mutation.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/keyhold/internal/domain/model"
	"github.com/ericfisherdev/keyhold/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// fileRecord is the on-disk representation of a credential.
type fileRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Password    string `json:"password"`
}

// Store is the JSON file implementation of the CredentialStore port.
// All reads and mutations are serialized by mu; a mutation is only committed
// to memory once the new state has been written to disk.
type Store struct {
	mu      sync.Mutex
	path    string
	records []model.Credential
	nextID  int64
	logger  *slog.Logger
}

// Open loads the store persisted at path. A missing file yields an empty
// store. A file that is not a JSON array of records is reported as corrupt
// and also yields an empty store; its contents are replaced on the next
// mutation. Any other read error is returned.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{path: path, nextID: 1, logger: logger}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("credential store not found, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential store %q: %w", path, err)
	}

	records, err := decode(data)
	if err != nil {
		logger.Warn("credential store is corrupt, starting empty; existing data will be overwritten",
			"path", path,
			"error", err,
		)
		return s, nil
	}

	s.records = records
	s.nextID = nextIDFor(records)
	logger.Info("credential store loaded", "path", path, "records", len(records))
	return s, nil
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// NextID returns the id the next Create will assign.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// List returns a copy of all credentials in insertion order.
func (s *Store) List(_ context.Context) ([]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Credential, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Create appends a credential with the next id and persists the store.
func (s *Store) Create(_ context.Context, fields model.CredentialFields) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred := model.Credential{
		ID:          s.nextID,
		Name:        fields.Name,
		Description: fields.Description,
		Secret:      fields.Secret,
	}

	next := make([]model.Credential, len(s.records), len(s.records)+1)
	copy(next, s.records)
	next = append(next, cred)

	if err := s.save(next); err != nil {
		return model.Credential{}, err
	}

	s.records = next
	s.nextID++
	return cred, nil
}

// Update merges patch into the credential with the given id and persists
// the store. Returns driven.ErrNotFound if the id is unknown.
func (s *Store) Update(_ context.Context, id int64, patch model.CredentialPatch) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return model.Credential{}, driven.ErrNotFound
	}

	merged := patch.Apply(s.records[idx])

	next := make([]model.Credential, len(s.records))
	copy(next, s.records)
	next[idx] = merged

	if err := s.save(next); err != nil {
		return model.Credential{}, err
	}

	s.records = next
	return merged, nil
}

// Delete removes the credential with the given id and persists the store.
// Returns driven.ErrNotFound if the id is unknown. nextID is not affected.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return driven.ErrNotFound
	}

	next := make([]model.Credential, 0, len(s.records)-1)
	next = append(next, s.records[:idx]...)
	next = append(next, s.records[idx+1:]...)

	if err := s.save(next); err != nil {
		return err
	}

	s.records = next
	return nil
}

func (s *Store) indexOf(id int64) int {
	for i, c := range s.records {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// save writes records to a temporary file next to the store and renames it
// over the store, so readers never observe a partial document.
func (s *Store) save(records []model.Credential) error {
	data, err := encode(records)
	if err != nil {
		return fmt.Errorf("encode credential store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credential store directory: %w", err)
		}
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write credential store %q: %w", s.path, err)
	}

	s.logger.Debug("credential store saved", "path", s.path, "records", len(records))
	return nil
}

func decode(data []byte) ([]model.Credential, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("top-level value is not an array")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, err
	}

	records := make([]model.Credential, 0, len(elems))
	for i, elem := range elems {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
		var r fileRecord
		if err := json.Unmarshal(elem, &r); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		records = append(records, model.Credential{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Secret:      r.Password,
		})
	}
	return records, nil
}

func encode(records []model.Credential) ([]byte, error) {
	raw := make([]fileRecord, 0, len(records))
	for _, c := range records {
		raw = append(raw, fileRecord{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Password:    c.Secret,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nextIDFor returns one past the highest id in records, or 1 when empty.
func nextIDFor(records []model.Credential) int64 {
	var maxID int64
	for _, c := range records {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	return maxID + 1
}
