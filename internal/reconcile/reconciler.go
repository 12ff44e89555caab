// Package reconcile implements the hybrid content reconciler: it fuses
// the layout extractor's text fragments and the visual extractor's images
// into one ordered Document, through font analysis, classification, merge,
// footnote, caption, and column-detection passes.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/extract/layout"
	"pdf-structural-translator/internal/extract/visual"
	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/tracing"
)

// Config carries the reconciliation thresholds.
type Config struct {
	MinImageWidthPx  int
	MinImageHeightPx int
	MaxAspectRatio   float64
	PageHeightHint   float64       // approximate PDF page height in points, for position-based rules
	ExtractorTimeout time.Duration // per-extractor ceiling; 0 disables
}

// DefaultConfig matches the defaults set by internal/config.
func DefaultConfig() Config {
	return Config{
		MinImageWidthPx:  50,
		MinImageHeightPx: 50,
		MaxAspectRatio:   20,
		PageHeightHint:   792,
		ExtractorTimeout: 1200 * time.Second,
	}
}

// Reconciler fuses a layout.Extractor and a visual.Extractor into a
// docmodel.Document.
type Reconciler struct {
	layout layout.Extractor
	visual visual.Extractor
	cfg    Config
}

// New builds a Reconciler over the given extractor pair.
func New(layoutExtractor layout.Extractor, visualExtractor visual.Extractor, cfg Config) *Reconciler {
	return &Reconciler{layout: layoutExtractor, visual: visualExtractor, cfg: cfg}
}

// Reconcile runs both extractors in parallel and fuses their
// output into a Document. A failing visual extractor is recoverable — the
// Document is produced without images, logged as a warning. A failing
// layout extractor is fatal for this PDF.
func (r *Reconciler) Reconcile(ctx context.Context, pdfPath string, trace *tracing.Trace) (*docmodel.Document, error) {
	span := trace.StartSpan(tracing.StageReconciliation)
	defer span.Finish(trace)

	if r.cfg.ExtractorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ExtractorTimeout)
		defer cancel()
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		layoutResult *layout.Result
		layoutErr    error
		images       []visual.Image
		visualErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := r.layout.Extract(ctx, pdfPath)
		mu.Lock()
		layoutResult, layoutErr = res, err
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		imgs, err := r.visual.Extract(ctx, pdfPath)
		mu.Lock()
		images, visualErr = imgs, err
		mu.Unlock()
	}()
	wg.Wait()

	if layoutErr != nil {
		return nil, fmt.Errorf("reconcile: layout extraction failed: %w", layoutErr)
	}
	if visualErr != nil {
		logger.Warn("visual extraction failed, proceeding without images", logger.Err(visualErr))
		images = nil
	}
	span.ImagesFound = len(images)

	doc := docmodel.NewDocument(pdfPath)
	doc.FontProfile = analyzeFonts(layoutResult.Pages)
	images = filterDecorativeImages(images, r.cfg.MinImageWidthPx, r.cfg.MinImageHeightPx, r.cfg.MaxAspectRatio)

	imagesByPage := make(map[int][]visual.Image)
	for _, img := range images {
		imagesByPage[img.PageIndex] = append(imagesByPage[img.PageIndex], img)
	}

	var allFootnotes []*docmodel.ContentBlock
	for _, page := range layoutResult.Pages {
		blocks := r.classifyPage(page, doc.FontProfile)
		blocks = mergeParagraphs(blocks, maxFragmentWidth(page.Fragments))
		blocks = mergeHeadings(blocks)

		var footnotes []*docmodel.ContentBlock
		blocks, footnotes = extractFootnotes(blocks)
		allFootnotes = append(allFootnotes, footnotes...)

		imageBlocks := associateImages(imagesByPage[page.Index], blocks, doc.Assets)
		blocks = append(blocks, imageBlocks...)
		blocks = filterArtifacts(blocks, r.cfg.PageHeightHint)
		blocks = assignReadingOrder(blocks)

		for _, b := range blocks {
			b.PageNumber = page.Index + 1
		}
		doc.PageAt(page.Index + 1).Blocks = blocks
	}

	if len(allFootnotes) > 0 {
		footnotePage := doc.PageAt(len(doc.Pages))
		footnotePage.Blocks = append(footnotePage.Blocks, allFootnotes...)
	}

	assignBookmarkIDs(doc)
	span.ImagesPreserved = len(doc.BlocksOfKind(docmodel.KindImagePlaceholder))
	span.TotalBlocks = len(doc.AllBlocks())

	if violations := docmodel.CheckInvariants(doc); len(violations) > 0 {
		logger.Warn("document invariant violations detected after reconciliation",
			logger.Int("count", len(violations)))
	}

	return doc, nil
}

// classifyPage converts one page's fragments into ContentBlocks via the
// precedence rules in classify.go.
func (r *Reconciler) classifyPage(page layout.Page, profile *docmodel.FontProfile) []*docmodel.ContentBlock {
	blocks := make([]*docmodel.ContentBlock, 0, len(page.Fragments))
	for _, f := range page.Fragments {
		c := classify(f, r.cfg.PageHeightHint, profile)
		blocks = append(blocks, materialize(f, c))
	}
	return blocks
}

// materialize builds the ContentBlock for a classification verdict, filling
// exactly one variant field per the closed-variant rule in docmodel.
func materialize(f layout.Fragment, c classification) *docmodel.ContentBlock {
	b := &docmodel.ContentBlock{
		ID:           docmodel.NewID(),
		Kind:         c.kind,
		OriginalText: f.Text,
		BoundingBox:  docmodel.BoundingBox{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height},
	}
	switch c.kind {
	case docmodel.KindHeading:
		b.Heading = &docmodel.Heading{Level: c.headingLvl}
	case docmodel.KindParagraph:
		b.Paragraph = &docmodel.Paragraph{}
	case docmodel.KindListItem:
		b.ListItem = &docmodel.ListItem{Marker: c.listMarker, Ordered: c.listOrdered}
	case docmodel.KindFootnote:
		b.Footnote = &docmodel.Footnote{ReferenceID: c.footnoteRef}
	case docmodel.KindTable:
		b.Table = &docmodel.Table{Rows: parsePipeTable(f.Text)}
	case docmodel.KindMathFormula:
		b.MathFormula = &docmodel.MathFormula{Latex: c.latex, DisplayMode: c.display}
	case docmodel.KindCodeBlock:
		b.CodeBlock = &docmodel.CodeBlock{Language: c.codeLang}
	}
	return b
}

func maxFragmentWidth(fragments []layout.Fragment) float64 {
	max := 0.0
	for _, f := range fragments {
		if f.Width > max {
			max = f.Width
		}
	}
	return max
}

// assignBookmarkIDs stamps a unique bookmark_id onto every Heading; the ids
// stay stable from here through assembly.
func assignBookmarkIDs(doc *docmodel.Document) {
	for i, b := range doc.BlocksOfKind(docmodel.KindHeading) {
		b.Heading.BookmarkID = fmt.Sprintf("bm-%d-%s", i, b.ID[:8])
	}
}

func parsePipeTable(text string) [][]string {
	var rows [][]string
	for _, line := range splitLines(text) {
		cells := splitPipeRow(line)
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}
