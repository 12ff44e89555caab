package reconcile

import (
	"regexp"
	"strings"

	"pdf-structural-translator/internal/docmodel"
)

var terminalPunctRe = regexp.MustCompile(`[.!?:;]\s*$`)

var lowercaseContinuationWords = map[string]bool{
	"and": true, "or": true, "but": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "with": true, "the": true, "a": true, "an": true,
	"nor": true, "yet": true, "so": true,
}

// mergeParagraphs merges runs of Paragraph blocks: consecutive pairs whose
// first spans the full line width and whose second starts unindented on the
// next line, with no blank-line gap and no terminal punctuation on the
// first, are merged into one.
func mergeParagraphs(blocks []*docmodel.ContentBlock, pageWidth float64) []*docmodel.ContentBlock {
	if pageWidth <= 0 {
		return blocks
	}
	var out []*docmodel.ContentBlock
	for _, b := range blocks {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if canMergeParagraphs(prev, b, pageWidth) {
				prev.OriginalText = strings.TrimSpace(prev.OriginalText + " " + b.OriginalText)
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func canMergeParagraphs(prev, next *docmodel.ContentBlock, pageWidth float64) bool {
	if prev.Kind != docmodel.KindParagraph || next.Kind != docmodel.KindParagraph {
		return false
	}
	prevFullWidth := prev.BoundingBox.Width >= pageWidth*0.8
	if !prevFullWidth {
		return false
	}
	if terminalPunctRe.MatchString(prev.OriginalText) {
		return false
	}
	verticalGap := prev.BoundingBox.Y - (next.BoundingBox.Y + next.BoundingBox.Height)
	if verticalGap > prev.BoundingBox.Height*0.5 {
		return false
	}
	// "begins on the next line without indentation" — next block's left edge
	// should line up with prev's, not be pushed in.
	return absf(next.BoundingBox.X-prev.BoundingBox.X) < prev.BoundingBox.Height
}

// mergeHeadings merges split headings: two consecutive headings of the same
// level, on the same or adjacent pages, with the first lacking terminal
// punctuation and the second starting with a lowercase letter, preposition,
// conjunction, or article, are merged into one.
func mergeHeadings(blocks []*docmodel.ContentBlock) []*docmodel.ContentBlock {
	var out []*docmodel.ContentBlock
	for _, b := range blocks {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if canMergeHeadings(prev, b) {
				prev.OriginalText = strings.TrimSpace(prev.OriginalText + " " + b.OriginalText)
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func canMergeHeadings(prev, next *docmodel.ContentBlock) bool {
	if prev.Kind != docmodel.KindHeading || next.Kind != docmodel.KindHeading {
		return false
	}
	if prev.Heading.Level != next.Heading.Level {
		return false
	}
	if next.PageNumber-prev.PageNumber > 1 {
		return false
	}
	if terminalPunctRe.MatchString(prev.OriginalText) {
		return false
	}
	return startsLikeContinuation(next.OriginalText)
}

func startsLikeContinuation(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	first := fields[0]
	if lowercaseContinuationWords[strings.ToLower(first)] {
		return true
	}
	r := []rune(first)[0]
	return r >= 'a' && r <= 'z' && !isAllUpperCase(first)
}
