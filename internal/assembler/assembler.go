package assembler

import (
	"bytes"
	"fmt"

	"github.com/teekennedy/goldmark-markdown"
	"github.com/yuin/goldmark"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/types"
)

// Assembled is the final document produced by the Two-Pass Assembler.
type Assembled struct {
	Markdown   string
	TOCEntries []TOCEntry
	Assets     map[string][]byte
}

// Assemble runs both passes and enforces the hard assembly assertions:
// original_image_count == translated_image_count (here: output image
// count, since MathFormula/CodeBlock/ImagePlaceholder are preserve-only and
// never lost post-reconciliation) and len(headings) == len(toc_entries),
// with every bookmark_id referenced by the TOC existing in the Document.
func Assemble(doc *docmodel.Document) (*Assembled, error) {
	content := RunContentPass(doc)

	entries, tocMarkdown, err := RunTOCPass(doc, content.BookmarkPages)
	if err != nil {
		return nil, err
	}

	if err := checkAssertions(doc, content, entries); err != nil {
		return nil, err
	}

	full := tocMarkdown + content.Body
	if content.Footnotes != "" {
		full += "\n" + content.Footnotes
	}

	normalized, err := normalize(full)
	if err != nil {
		// Normalization is a formatting nicety, not a correctness
		// requirement (the hand-built markdown above is already valid);
		// degrade to the unnormalized text rather than fail the document.
		normalized = full
	}

	return &Assembled{Markdown: normalized, TOCEntries: entries, Assets: doc.Assets}, nil
}

// checkAssertions implements the process-fatal assertions for this
// Document.
func checkAssertions(doc *docmodel.Document, content ContentPassResult, entries []TOCEntry) error {
	headings := doc.BlocksOfKind(docmodel.KindHeading)
	if len(headings) != len(entries) {
		return types.NewAppError(types.ErrAssemblerInvariantViolated,
			fmt.Sprintf("len(headings)=%d != len(toc_entries)=%d", len(headings), len(entries)), nil)
	}

	bookmarks := make(map[string]bool, len(headings))
	for _, h := range headings {
		bookmarks[h.Heading.BookmarkID] = true
	}
	for _, e := range entries {
		if !bookmarks[e.BookmarkID] {
			return types.NewAppError(types.ErrAssemblerInvariantViolated,
				"toc entry references bookmark "+e.BookmarkID+" not present in the Document", nil)
		}
	}

	originalImages := len(doc.ImagePlaceholderIDs())
	if len(content.ImageOrder) != originalImages {
		return types.NewAppError(types.ErrImagePreservationViolation,
			fmt.Sprintf("original_image_count=%d != assembled_image_count=%d", originalImages, len(content.ImageOrder)), nil)
	}

	return nil
}

// normalize parses the hand-built markdown and re-renders it through
// teekennedy/goldmark-markdown, canonicalizing whitespace/list/heading
// formatting before it reaches disk.
func normalize(source string) (string, error) {
	md := goldmark.New(goldmark.WithRenderer(markdown.NewRenderer()))
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("assembler: normalize markdown: %w", err)
	}
	return buf.String(), nil
}
