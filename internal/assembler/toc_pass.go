package assembler

import (
	"fmt"
	"strings"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/types"
)

// TOCEntry is one table-of-contents row.
type TOCEntry struct {
	Text       string
	BookmarkID string
	Page       int
}

// RunTOCPass is the second pass: walk the Heading list in order, emit
// one TOC entry per heading with its translated text, a link to its
// bookmark_id, and the page number Pass 1 recorded. Fails fast if the TOC
// entry set doesn't exactly match the Heading set (the validation,
// the "len(headings) == len(toc_entries)" assertion).
func RunTOCPass(doc *docmodel.Document, bookmarkPages map[string]int) ([]TOCEntry, string, error) {
	headings := doc.BlocksOfKind(docmodel.KindHeading)

	entries := make([]TOCEntry, 0, len(headings))
	for _, h := range headings {
		page, ok := bookmarkPages[h.Heading.BookmarkID]
		if !ok {
			return nil, "", types.NewAppError(types.ErrAssemblerInvariantViolated,
				fmt.Sprintf("heading %s has no recorded page (bookmark %s missing from Pass 1)", h.ID, h.Heading.BookmarkID), nil)
		}
		entries = append(entries, TOCEntry{Text: text(h), BookmarkID: h.Heading.BookmarkID, Page: page})
	}

	if len(entries) != len(headings) {
		return nil, "", types.NewAppError(types.ErrAssemblerInvariantViolated,
			fmt.Sprintf("toc entry count %d does not match heading count %d", len(entries), len(headings)), nil)
	}

	return entries, renderTOC(entries), nil
}

func renderTOC(entries []TOCEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("## Table of Contents\n\n")
	for _, e := range entries {
		out.WriteString(fmt.Sprintf("- [%s](#%s) ... %d\n", e.Text, e.BookmarkID, e.Page))
	}
	return out.String() + "\n"
}
