// Package quarantine is the durable store of terminally failed blocks: a
// mutex-guarded record of ContentBlocks whose translation was given up on,
// keyed by document and block, with retention-based pruning.
package quarantine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/logger"
)

// Record is one terminally-failed block, durable across process restarts.
type Record struct {
	DocumentID       string    `json:"document_id"`
	BlockID          string    `json:"block_id"`
	BlockType        docmodel.Kind `json:"block_type"`
	OriginalText     string    `json:"original_text"`
	LastError        string    `json:"last_error"`
	AttemptCount     int       `json:"attempt_count"`
	Timestamp        time.Time `json:"timestamp"`
	ContextNeighbors []string  `json:"context_neighbors,omitempty"`
}

// key returns the durable map key, document+block scoped to avoid collisions
// across documents sharing the same store.
func (r Record) key() string {
	return r.DocumentID + "/" + r.BlockID
}

// Store is the quarantine store; a repeated failure of the same block
// replaces its record and raises its attempt count. One Store instance is shared
// across all Documents processed by this run.
type Store struct {
	dir            string
	retentionDays  int
	mu             sync.Mutex
	records        map[string]*Record
}

// New opens (creating if absent) the quarantine store rooted at dir, with the
// given retention window.
func New(dir string, retentionDays int) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("quarantine: empty directory")
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("quarantine: create directory: %w", err)
	}

	s := &Store{dir: dir, retentionDays: retentionDays, records: make(map[string]*Record)}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.pruneExpired()
	return s, nil
}

// Record durably records a terminally-failed block. The caller has already
// exhausted max_correction_attempts before calling this.
func (s *Store) Record(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Timestamp = time.Now()
	if r.AttemptCount == 0 {
		if existing, ok := s.records[r.key()]; ok {
			r.AttemptCount = existing.AttemptCount + 1
		} else {
			r.AttemptCount = 1
		}
	}
	s.records[r.key()] = &r

	logger.Warn("block quarantined",
		logger.String("document_id", r.DocumentID),
		logger.String("block_id", r.BlockID),
		logger.String("block_type", string(r.BlockType)),
		logger.String("error", r.LastError))

	return s.save()
}

// ForDocument returns every quarantine record for a document, in no
// particular order.
func (s *Store) ForDocument(documentID string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, r := range s.records {
		if r.DocumentID == documentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// HasAny reports whether the document has any quarantined blocks — used by
// the CLI to decide between exit code 0 and exit code 4.
func (s *Store) HasAny(documentID string) bool {
	return len(s.ForDocument(documentID)) > 0
}

func (s *Store) path() string {
	return filepath.Join(s.dir, "quarantine.json")
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("quarantine: read: %w", err)
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("quarantine: unmarshal: %w", err)
	}
	for _, r := range records {
		s.records[r.key()] = r
	}
	return nil
}

func (s *Store) save() error {
	records := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("quarantine: marshal: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("quarantine: write temp: %w", err)
	}
	return os.Rename(tmp, s.path())
}

func (s *Store) pruneExpired() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	for k, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			delete(s.records, k)
		}
	}
}
