// Package layout is the layout extractor contract: an
// ordered per-page sequence of text fragments with font/position hints, plus
// block-type hints the Reconciler uses for its classification precedence
// rules. Fragments carry font and bounding-box metadata; implementations
// sit behind the Extractor interface so the "alternative extractor" retry
// target has
// somewhere to live.
package layout

import (
	"context"

	"pdf-structural-translator/internal/types"
)

// Fragment is one row of extracted text with its layout metadata, the unit
// the Reconciler classifies into ContentBlocks.
type Fragment struct {
	PageIndex int
	Text      string
	X, Y      float64
	Width     float64
	Height    float64
	FontName  string
	FontSize  float64
	Bold      bool
	Italic    bool
}

// Hints are document-wide structural signals the layout extractor can surface
// in addition to raw fragments.
type Hints struct {
	LatexSpans        []Span
	TableRegions      []Span
	FigurePlaceholders []Span
	HeadingCandidates []Span
}

// Span locates a hinted region by page and fragment index range.
type Span struct {
	PageIndex  int
	StartIndex int
	EndIndex   int
}

// Page is one page's fragments in extraction order.
type Page struct {
	Index     int
	Fragments []Fragment
}

// Result is the full output of one extraction run.
type Result struct {
	Pages []Page
	Hints Hints
}

// Extractor is the layout extractor contract. Implementations may
// wrap a local library (heuristic.go) or an external detection service
// (onnx.go); the Reconciler depends only on this interface.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (*Result, error)
}

// NewExtractorError builds the three documented failure kinds so call sites
// don't need to know the underlying library's error shape.
func NewExtractorError(code types.ErrorCode, message string, cause error) error {
	return types.NewAppError(code, message, cause)
}
