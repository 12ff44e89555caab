package assembler

import (
	"fmt"
	"strings"

	"pdf-structural-translator/internal/docmodel"
)

// ContentPassResult is Pass 1's output: the rendered body, the
// bookmark_id -> page_number map recorded as each Heading was emitted, the
// rendered trailing Notes section, and the image asset IDs in the order
// they were emitted (used by the image-preservation assertion).
type ContentPassResult struct {
	Body          string
	BookmarkPages map[string]int
	Footnotes     string
	ImageOrder    []string
}

// RunContentPass is the first pass: emit blocks in Document order,
// insert a bookmark anchor at each Heading, track the running page estimate,
// and render Footnotes into a trailing Notes section.
func RunContentPass(doc *docmodel.Document) ContentPassResult {
	captionsByTarget := indexCaptionsByTarget(doc)
	estimator := NewPageEstimator()

	var body strings.Builder
	bookmarkPages := make(map[string]int)
	var imageOrder []string
	var footnotes []*docmodel.ContentBlock

	for _, page := range doc.Pages {
		for _, b := range page.Blocks {
			if b.Kind == docmodel.KindFootnote {
				footnotes = append(footnotes, b)
				continue
			}
			if b.Kind == docmodel.KindCaption {
				// Captions are rendered inline by their target (table/image),
				// not standalone, so they are skipped here and folded into
				// renderTable/renderImage below.
				continue
			}

			if b.Kind == docmodel.KindHeading {
				bookmarkPages[b.Heading.BookmarkID] = estimator.CurrentPage()
				body.WriteString(bookmarkAnchor(b.Heading.BookmarkID))
			}

			body.WriteString(renderBlock(b, captionsByTarget))
			body.WriteString("\n\n")

			if b.Kind == docmodel.KindImagePlaceholder {
				imageOrder = append(imageOrder, b.ImagePlaceholder.ImageAssetID)
			}

			estimator.Advance(b)
		}
	}

	return ContentPassResult{
		Body:          strings.TrimRight(body.String(), "\n") + "\n",
		BookmarkPages: bookmarkPages,
		Footnotes:     renderFootnotes(footnotes),
		ImageOrder:    imageOrder,
	}
}

func indexCaptionsByTarget(doc *docmodel.Document) map[string]*docmodel.ContentBlock {
	out := make(map[string]*docmodel.ContentBlock)
	for _, c := range doc.BlocksOfKind(docmodel.KindCaption) {
		out[c.Caption.TargetID] = c
	}
	return out
}

func bookmarkAnchor(bookmarkID string) string {
	return fmt.Sprintf("<a id=\"%s\"></a>\n", bookmarkID)
}

func text(b *docmodel.ContentBlock) string {
	if b.TranslatedText != "" {
		return b.TranslatedText
	}
	return b.OriginalText
}

func renderBlock(b *docmodel.ContentBlock, captionsByTarget map[string]*docmodel.ContentBlock) string {
	switch b.Kind {
	case docmodel.KindHeading:
		return renderHeading(b)
	case docmodel.KindParagraph:
		return text(b)
	case docmodel.KindListItem:
		return renderListItem(b)
	case docmodel.KindTable:
		return renderTable(b, captionsByTarget)
	case docmodel.KindMathFormula:
		return renderMath(b)
	case docmodel.KindCodeBlock:
		return renderCode(b)
	case docmodel.KindImagePlaceholder:
		return renderImage(b, captionsByTarget)
	default:
		return text(b)
	}
}

func renderHeading(b *docmodel.ContentBlock) string {
	return strings.Repeat("#", clampLevel(b.Heading.Level)) + " " + text(b)
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

func renderListItem(b *docmodel.ContentBlock) string {
	indent := strings.Repeat("  ", b.ListItem.NestingLevel)
	marker := b.ListItem.Marker
	if marker == "" {
		if b.ListItem.Ordered {
			marker = "1."
		} else {
			marker = "-"
		}
	}
	return indent + marker + " " + text(b)
}

// renderTable emits the table verbatim (rows were already preserved/
// translated cell-by-cell upstream) followed by its Caption, if any, per
// the rendering rules.
func renderTable(b *docmodel.ContentBlock, captionsByTarget map[string]*docmodel.ContentBlock) string {
	var out strings.Builder
	for i, row := range b.Table.Rows {
		out.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == b.Table.HeaderRows-1 {
			out.WriteString(separatorRowFor(len(row)))
		}
	}
	if cap, ok := captionsByTarget[b.ID]; ok {
		out.WriteString("\n")
		out.WriteString(text(cap))
	}
	return strings.TrimRight(out.String(), "\n")
}

func separatorRowFor(cols int) string {
	cells := make([]string, cols)
	for i := range cells {
		cells[i] = "---"
	}
	return "| " + strings.Join(cells, " | ") + " |\n"
}

// renderMath emits LaTeX untouched inside math delimiters, never
// translated.
func renderMath(b *docmodel.ContentBlock) string {
	if b.MathFormula.DisplayMode == docmodel.DisplayBlock {
		return "$$\n" + b.MathFormula.Latex + "\n$$"
	}
	return "$" + b.MathFormula.Latex + "$"
}

// renderCode emits with preserved fences and language.
func renderCode(b *docmodel.ContentBlock) string {
	return "```" + b.CodeBlock.Language + "\n" + b.OriginalText + "\n```"
}

// renderImage emits the binary asset reference at the recorded
// reading-order position with its Caption, if any, rendered after.
func renderImage(b *docmodel.ContentBlock, captionsByTarget map[string]*docmodel.ContentBlock) string {
	alt := "image"
	if cap, ok := captionsByTarget[b.ID]; ok {
		alt = text(cap)
	}
	img := fmt.Sprintf("![%s](assets/%s)", alt, b.ImagePlaceholder.ImageAssetID)
	if cap, ok := captionsByTarget[b.ID]; ok {
		return img + "\n\n" + text(cap)
	}
	return img
}

// renderFootnotes builds the trailing Notes section in original-reference
// order (the order the Reconciler extracted them in), each prefixed by its
// reference marker — no duplication in the body.
func renderFootnotes(footnotes []*docmodel.ContentBlock) string {
	if len(footnotes) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("## Notes\n\n")
	for _, f := range footnotes {
		out.WriteString(fmt.Sprintf("[%s] %s\n\n", f.Footnote.ReferenceID, text(f)))
	}
	return strings.TrimRight(out.String(), "\n") + "\n"
}
