package reconcile

import (
	"regexp"
	"strconv"
	"strings"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/extract/visual"
)

var headerFooterRe = regexp.MustCompile(`^(Copyright|©|Confidential|https?://)`)

// filterArtifacts discards standalone page numbers
// in the top/bottom 10% of page height, header/footer boilerplate, and
// blocks already consumed as captions elsewhere in this reconciliation pass.
func filterArtifacts(blocks []*docmodel.ContentBlock, pageHeight float64) []*docmodel.ContentBlock {
	var out []*docmodel.ContentBlock
	for _, b := range blocks {
		if b.Metadata["reconcile_consumed"] == "true" {
			continue
		}
		text := strings.TrimSpace(b.OriginalText)
		if isPageNumberArtifact(text, b.BoundingBox.Y, pageHeight) {
			continue
		}
		if headerFooterRe.MatchString(text) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func isPageNumberArtifact(text string, y, pageHeight float64) bool {
	if pageHeight <= 0 {
		return false
	}
	if _, err := strconv.Atoi(text); err != nil {
		return false
	}
	return y < pageHeight*0.1 || y > pageHeight*0.9
}

// filterDecorativeImages discards decorative images by aspect ratio or
// minimum dimension, per the reconciliation config thresholds.
func filterDecorativeImages(images []visual.Image, minWidthPx, minHeightPx int, maxAspectRatio float64) []visual.Image {
	var out []visual.Image
	for _, img := range images {
		if img.Width < float64(minWidthPx) || img.Height < float64(minHeightPx) {
			continue
		}
		if maxAspectRatio > 0 {
			ratio := img.Width / img.Height
			if ratio < 1 {
				ratio = 1 / ratio
			}
			if ratio > maxAspectRatio {
				continue
			}
		}
		out = append(out, img)
	}
	return out
}
