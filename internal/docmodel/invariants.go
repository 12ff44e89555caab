package docmodel

import (
	"fmt"
	"strings"
)

// Violation describes a single broken document invariant.
type Violation struct {
	Rule    string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// CheckInvariants walks the Document and reports every invariant violation
// found. It never mutates the Document; callers decide whether a violation is
// fatal (AssemblerInvariantViolated) or merely logged.
func CheckInvariants(d *Document) []Violation {
	var violations []Violation

	violations = append(violations, checkUniqueIDs(d)...)
	violations = append(violations, checkFootnoteReferences(d)...)
	violations = append(violations, checkCaptionTargets(d)...)
	violations = append(violations, checkImageAssets(d)...)
	violations = append(violations, checkPreserveKinds(d)...)
	violations = append(violations, checkBookmarkUniqueness(d)...)

	return violations
}

func checkUniqueIDs(d *Document) []Violation {
	seen := make(map[string]bool)
	var out []Violation
	for _, b := range d.AllBlocks() {
		if seen[b.ID] {
			out = append(out, Violation{"unique-id", "duplicate block id " + b.ID})
			continue
		}
		seen[b.ID] = true
	}
	return out
}

// checkFootnoteReferences checks that every Footnote.reference_id
// has exactly one matching inline marker in some Paragraph, and vice versa.
func checkFootnoteReferences(d *Document) []Violation {
	var out []Violation

	markerCounts := make(map[string]int)
	for _, b := range d.BlocksOfKind(KindParagraph) {
		for _, fid := range d.BlocksOfKind(KindFootnote) {
			marker := "[" + fid.Footnote.ReferenceID + "]"
			markerCounts[fid.Footnote.ReferenceID] += strings.Count(b.OriginalText, marker)
		}
	}

	for _, fn := range d.BlocksOfKind(KindFootnote) {
		count := markerCounts[fn.Footnote.ReferenceID]
		if count != 1 {
			out = append(out, Violation{
				"footnote-reference",
				fmt.Sprintf("footnote %s has %d inline markers, want exactly 1", fn.Footnote.ReferenceID, count),
			})
		}
	}
	return out
}

// checkCaptionTargets checks that every Caption.target_id resolves to an
// existing Table or ImagePlaceholder.
func checkCaptionTargets(d *Document) []Violation {
	targets := make(map[string]bool)
	for _, b := range d.BlocksOfKind(KindTable) {
		targets[b.ID] = true
	}
	for _, b := range d.BlocksOfKind(KindImagePlaceholder) {
		targets[b.ID] = true
	}

	var out []Violation
	for _, c := range d.BlocksOfKind(KindCaption) {
		if !targets[c.Caption.TargetID] {
			out = append(out, Violation{
				"caption-target",
				"caption " + c.ID + " targets missing block " + c.Caption.TargetID,
			})
		}
	}
	return out
}

// checkImageAssets checks that every image_asset_id resolves to a binary
// in the asset store.
func checkImageAssets(d *Document) []Violation {
	var out []Violation
	for _, b := range d.BlocksOfKind(KindImagePlaceholder) {
		if _, ok := d.Assets[b.ImagePlaceholder.ImageAssetID]; !ok {
			out = append(out, Violation{
				"image-asset",
				"image placeholder " + b.ID + " references missing asset " + b.ImagePlaceholder.ImageAssetID,
			})
		}
	}
	return out
}

// checkPreserveKinds checks that math and code blocks carry original_text
// verbatim, never a differing translation.
func checkPreserveKinds(d *Document) []Violation {
	var out []Violation
	for _, b := range d.AllBlocks() {
		if b.IsPreserveKind() && b.TranslatedText != "" && b.TranslatedText != b.OriginalText {
			out = append(out, Violation{
				"preserve-kind",
				fmt.Sprintf("block %s (%s) has translated_text diverging from original_text", b.ID, b.Kind),
			})
		}
	}
	return out
}

// checkBookmarkUniqueness checks that heading bookmark_ids are unique.
func checkBookmarkUniqueness(d *Document) []Violation {
	seen := make(map[string]bool)
	var out []Violation
	for _, b := range d.BlocksOfKind(KindHeading) {
		id := b.Heading.BookmarkID
		if id == "" {
			out = append(out, Violation{"bookmark-unique", "heading " + b.ID + " has empty bookmark_id"})
			continue
		}
		if seen[id] {
			out = append(out, Violation{"bookmark-unique", "duplicate bookmark_id " + id})
		}
		seen[id] = true
	}
	return out
}

// CheckImagePreservation enforces the image preservation contract between
// two snapshots of a
// Document's image multiset taken at successive pipeline stages. It reports a
// violation only when the later stage has fewer of an asset than the earlier
// one — reordering and duplication are both permitted.
func CheckImagePreservation(before, after []string) []Violation {
	beforeCounts := make(map[string]int)
	for _, id := range before {
		beforeCounts[id]++
	}
	afterCounts := make(map[string]int)
	for _, id := range after {
		afterCounts[id]++
	}

	var out []Violation
	for id, wantAtLeast := range beforeCounts {
		if afterCounts[id] < wantAtLeast {
			out = append(out, Violation{
				"image-preservation",
				fmt.Sprintf("asset %s dropped from %d to %d occurrences", id, wantAtLeast, afterCounts[id]),
			})
		}
	}
	return out
}
