// Package tracing implements the per-document Trace/Span/Audit model: a
// uuid-identified, timestamped record with stage-scoped metadata per Span,
// persisted to disk with the same atomic-rename pattern used by
// internal/quarantine.
package tracing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-structural-translator/internal/logger"
)

// StageName identifies one of the fixed pipeline stages a Span belongs to.
type StageName string

const (
	StageImageExtraction   StageName = "image_extraction"
	StageContentExtraction StageName = "content_extraction"
	StageReconciliation    StageName = "reconciliation"
	StageRouting           StageName = "routing"
	StageTranslation       StageName = "translation"
	StageAssembly          StageName = "assembly"
)

// Span carries stage-specific counters for one pipeline stage of one document.
type Span struct {
	Stage           StageName     `json:"stage"`
	StartedAt       time.Time     `json:"started_at"`
	ProcessingMs    int64         `json:"processing_ms"`
	ImagesFound     int           `json:"images_found,omitempty"`
	ImagesPreserved int           `json:"images_preserved,omitempty"`
	CacheHits       int           `json:"cache_hits,omitempty"`
	CacheMisses     int           `json:"cache_misses,omitempty"`
	APICalls        int           `json:"api_calls,omitempty"`
	ValidationPass  int           `json:"validation_passes,omitempty"`
	ValidationFail  int           `json:"validation_fails,omitempty"`
	TotalBlocks     int           `json:"total_blocks,omitempty"`
	ImageBlocks     int           `json:"image_blocks,omitempty"`
	TextBlocks      int           `json:"text_blocks,omitempty"`
	MathBlocks      int           `json:"math_blocks,omitempty"`
	TableBlocks     int           `json:"table_blocks,omitempty"`

	start time.Time
}

// Audit is the block-count snapshot recorded at each stage boundary.
type Audit struct {
	Stage       StageName `json:"stage"`
	TotalBlocks int       `json:"total_blocks"`
	ImageBlocks int       `json:"image_blocks"`
	TextBlocks  int       `json:"text_blocks"`
	MathBlocks  int       `json:"math_blocks"`
	TableBlocks int       `json:"table_blocks"`
}

// Trace is the full per-document record: one Span per stage plus the Audits
// recorded at each stage boundary.
type Trace struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
	Spans      []*Span   `json:"spans"`
	Audits     []Audit   `json:"audits"`

	mu sync.Mutex
}

// New starts a Trace for a document.
func New(documentID string) *Trace {
	return &Trace{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		CreatedAt:  time.Now(),
	}
}

// StartSpan begins a Span for stage; call Finish on the returned Span when
// the stage completes.
func (t *Trace) StartSpan(stage StageName) *Span {
	return &Span{Stage: stage, StartedAt: time.Now(), start: time.Now()}
}

// Finish records the Span's elapsed time and appends it to the Trace.
func (s *Span) Finish(t *Trace) {
	s.ProcessingMs = time.Since(s.start).Milliseconds()
	t.mu.Lock()
	t.Spans = append(t.Spans, s)
	t.mu.Unlock()
}

// RecordAudit appends an Audit for a stage boundary, logging (and returning)
// an error when image_blocks has decreased versus the previous audit — a
// hard violation of the image preservation contract.
func (t *Trace) RecordAudit(a Audit) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.Audits) > 0 {
		prev := t.Audits[len(t.Audits)-1]
		if a.ImageBlocks < prev.ImageBlocks {
			err := fmt.Errorf("tracing: image_blocks decreased from %d to %d between %s and %s",
				prev.ImageBlocks, a.ImageBlocks, prev.Stage, a.Stage)
			logger.Error("audit violation", err, logger.String("document_id", t.DocumentID), logger.String("stage", string(a.Stage)))
			t.Audits = append(t.Audits, a)
			return err
		}
	}
	t.Audits = append(t.Audits, a)
	return nil
}

// Summary aggregates span metrics across the Trace and flags any stage whose
// image preservation rate fell below 100%.
type Summary struct {
	DocumentID        string   `json:"document_id"`
	TotalProcessingMs int64    `json:"total_processing_ms"`
	TotalAPICalls     int      `json:"total_api_calls"`
	TotalCacheHits    int      `json:"total_cache_hits"`
	TotalCacheMisses  int      `json:"total_cache_misses"`
	Issues            []string `json:"issues,omitempty"`
}

// Summarize produces the end-of-run Summary for trace.json.
func (t *Trace) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{DocumentID: t.DocumentID}
	for _, span := range t.Spans {
		s.TotalProcessingMs += span.ProcessingMs
		s.TotalAPICalls += span.APICalls
		s.TotalCacheHits += span.CacheHits
		s.TotalCacheMisses += span.CacheMisses
		if span.ImagesFound > 0 && span.ImagesPreserved < span.ImagesFound {
			s.Issues = append(s.Issues, fmt.Sprintf(
				"%s: preservation rate %.1f%% (%d/%d)",
				span.Stage, 100*float64(span.ImagesPreserved)/float64(span.ImagesFound),
				span.ImagesPreserved, span.ImagesFound))
		}
	}
	return s
}

// Persist writes the Trace to dir/<document_id>.json via an atomic rename,
// matching the durability pattern of internal/quarantine.Store.
func (t *Trace) Persist(dir string) error {
	t.mu.Lock()
	data, err := json.MarshalIndent(t, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("tracing: marshal: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("tracing: create directory: %w", err)
	}

	path := filepath.Join(dir, t.DocumentID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("tracing: write temp: %w", err)
	}
	return os.Rename(tmp, path)
}
