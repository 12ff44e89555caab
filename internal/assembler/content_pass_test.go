package assembler

import (
	"strings"
	"testing"

	"pdf-structural-translator/internal/docmodel"
)

func docWithBlocks(blocks ...*docmodel.ContentBlock) *docmodel.Document {
	doc := docmodel.NewDocument("test.pdf")
	doc.Pages = append(doc.Pages, &docmodel.Page{Index: 1, Blocks: blocks})
	return doc
}

func TestRunContentPass_RendersHeadingWithBookmarkAnchor(t *testing.T) {
	heading := &docmodel.ContentBlock{
		ID: "h1", Kind: docmodel.KindHeading, TranslatedText: "Introduction",
		Heading: &docmodel.Heading{Level: 2, BookmarkID: "bm-h1"},
	}
	result := RunContentPass(docWithBlocks(heading))

	if !strings.Contains(result.Body, "## Introduction") {
		t.Errorf("expected a level-2 heading to render as ##, got %q", result.Body)
	}
	if !strings.Contains(result.Body, `id="bm-h1"`) {
		t.Errorf("expected a bookmark anchor, got %q", result.Body)
	}
	if result.BookmarkPages["bm-h1"] != 1 {
		t.Errorf("expected bookmark bm-h1 recorded on page 1, got %d", result.BookmarkPages["bm-h1"])
	}
}

func TestRunContentPass_FootnotesMoveToTrailingSection(t *testing.T) {
	para := &docmodel.ContentBlock{ID: "p1", Kind: docmodel.KindParagraph, TranslatedText: "See note.[1]"}
	footnote := &docmodel.ContentBlock{
		ID: "f1", Kind: docmodel.KindFootnote, TranslatedText: "A clarifying note.",
		Footnote: &docmodel.Footnote{ReferenceID: "1"},
	}
	result := RunContentPass(docWithBlocks(para, footnote))

	if strings.Contains(result.Body, "clarifying note") {
		t.Errorf("expected footnote text to be excluded from the body, got %q", result.Body)
	}
	if !strings.Contains(result.Footnotes, "clarifying note") {
		t.Errorf("expected footnote text in the Notes section, got %q", result.Footnotes)
	}
	if !strings.Contains(result.Footnotes, "## Notes") {
		t.Errorf("expected a Notes heading, got %q", result.Footnotes)
	}
}

func TestRunContentPass_CaptionFoldedIntoImage(t *testing.T) {
	image := &docmodel.ContentBlock{
		ID: "img1", Kind: docmodel.KindImagePlaceholder,
		ImagePlaceholder: &docmodel.ImagePlaceholder{ImageAssetID: "asset-1"},
	}
	caption := &docmodel.ContentBlock{
		ID: "cap1", Kind: docmodel.KindCaption, TranslatedText: "Figure one.",
		Caption: &docmodel.Caption{TargetID: "img1"},
	}
	result := RunContentPass(docWithBlocks(image, caption))

	if !strings.Contains(result.Body, "assets/asset-1") {
		t.Errorf("expected the image reference in the body, got %q", result.Body)
	}
	if !strings.Contains(result.Body, "Figure one.") {
		t.Errorf("expected the caption folded next to its image, got %q", result.Body)
	}
	if len(result.ImageOrder) != 1 || result.ImageOrder[0] != "asset-1" {
		t.Errorf("expected ImageOrder to record asset-1, got %v", result.ImageOrder)
	}
}

func TestRunContentPass_TableRendersHeaderSeparator(t *testing.T) {
	table := &docmodel.ContentBlock{
		ID: "t1", Kind: docmodel.KindTable,
		Table: &docmodel.Table{Rows: [][]string{{"a", "b"}, {"1", "2"}}, HeaderRows: 1},
	}
	result := RunContentPass(docWithBlocks(table))
	if !strings.Contains(result.Body, "| a | b |") || !strings.Contains(result.Body, "| --- | --- |") {
		t.Errorf("expected a rendered header row and separator, got %q", result.Body)
	}
}

func TestRunContentPass_MathPreservesLatexVerbatim(t *testing.T) {
	math := &docmodel.ContentBlock{
		ID: "m1", Kind: docmodel.KindMathFormula,
		MathFormula: &docmodel.MathFormula{Latex: "\\int_0^1 x dx", DisplayMode: docmodel.DisplayBlock},
	}
	result := RunContentPass(docWithBlocks(math))
	if !strings.Contains(result.Body, "$$\n\\int_0^1 x dx\n$$") {
		t.Errorf("expected block math rendered verbatim, got %q", result.Body)
	}
}

func TestRunContentPass_CodeBlockNeverTranslated(t *testing.T) {
	code := &docmodel.ContentBlock{
		ID: "c1", Kind: docmodel.KindCodeBlock, OriginalText: "fmt.Println(1)",
		CodeBlock: &docmodel.CodeBlock{Language: "go"},
	}
	result := RunContentPass(docWithBlocks(code))
	if !strings.Contains(result.Body, "```go\nfmt.Println(1)\n```") {
		t.Errorf("expected code fence with preserved language and text, got %q", result.Body)
	}
}

func TestRunContentPass_ListItemIndentsByNestingLevel(t *testing.T) {
	nested := &docmodel.ContentBlock{
		ID: "l1", Kind: docmodel.KindListItem, TranslatedText: "nested item",
		ListItem: &docmodel.ListItem{Marker: "-", NestingLevel: 2},
	}
	result := RunContentPass(docWithBlocks(nested))
	if !strings.Contains(result.Body, "    - nested item") {
		t.Errorf("expected a double-indented list item, got %q", result.Body)
	}
}
