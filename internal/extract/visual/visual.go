// Package visual is the visual extractor contract: per page, the set of
// embedded raster images with their pixel dimensions, implemented on
// pdfcpu's image-extraction endpoint. PDFCPUExtractor does not set an
// image's X and Y; they stay zero.
package visual

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/types"
)

// Image is one extracted raster image with its page, position (X, Y), asset
// bytes, and filter-relevant dimensions.
type Image struct {
	AssetID   string
	PageIndex int
	X, Y      float64
	Width     float64
	Height    float64
	Data      []byte
}

// Extractor is the visual extractor contract.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) ([]Image, error)
}

// PDFCPUExtractor implements Extractor on top of pdfcpu's pure-Go image
// extraction, avoiding any external rasterizer dependency for this stage.
type PDFCPUExtractor struct {
	MinWidthPx    int
	MinHeightPx   int
	MaxAspectRatio float64
}

// NewPDFCPUExtractor builds an extractor with the artifact-filtering
// defaults (decorative images: aspect ratio > 20:1 or
// min-dim < 50px are discarded by the Reconciler, not here — this extractor
// surfaces every embedded image; filtering happens one stage downstream so
// the Reconciler has the full multiset to reason about).
func NewPDFCPUExtractor() *PDFCPUExtractor {
	return &PDFCPUExtractor{MinWidthPx: 1, MinHeightPx: 1, MaxAspectRatio: 0}
}

// pageImageFile matches pdfcpu's extracted-image naming, e.g. "doc_3_Im0.png".
var pageImageFile = regexp.MustCompile(`_(\d+)_Im\d+\.(png|jpe?g)$`)

// Extract calls pdfcpu's ExtractImagesFile into a scratch directory, then
// decodes each file back into an Image with its source page recovered from
// pdfcpu's naming convention.
func (e *PDFCPUExtractor) Extract(ctx context.Context, pdfPath string) ([]Image, error) {
	select {
	case <-ctx.Done():
		return nil, types.NewAppError(types.ErrExtractorTimeout, "visual extraction cancelled", ctx.Err())
	default:
	}

	outDir, err := os.MkdirTemp("", "visual_extract_*")
	if err != nil {
		return nil, fmt.Errorf("visual: create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	logger.Info("extracting images with pdfcpu", logger.String("pdf", filepath.Base(pdfPath)))

	if err := api.ExtractImagesFile(pdfPath, outDir, nil, nil); err != nil {
		// Per the failure semantics, a failing visual extractor is
		// recoverable for the Document as a whole — the caller decides
		// whether to proceed without images.
		return nil, types.NewAppError(types.ErrVisualExtractorFailed, "pdfcpu image extraction failed", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("visual: list scratch dir: %w", err)
	}

	var images []Image
	for i, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(outDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("visual: skipping unreadable extracted image", logger.String("file", entry.Name()))
			continue
		}

		width, height := decodedDimensions(data)
		images = append(images, Image{
			AssetID:   fmt.Sprintf("img_%d_%s", i, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))),
			PageIndex: pageIndexFromName(entry.Name()),
			Width:     float64(width),
			Height:    float64(height),
			Data:      data,
		})
	}

	sort.Slice(images, func(i, j int) bool { return images[i].PageIndex < images[j].PageIndex })
	return images, nil
}

func pageIndexFromName(name string) int {
	m := pageImageFile.FindStringSubmatch(name)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0
	}
	return n - 1
}

func decodedDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
