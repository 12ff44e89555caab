package docmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"testing/quick"
)

func quickConfig() *quick.Config {
	return &quick.Config{
		MaxCount: 100,
		Rand:     rand.New(rand.NewSource(42)),
	}
}

// randomDocument builds a document with a random mix of block kinds across a
// random number of pages. Structural references (captions, footnote markers,
// image assets) are kept consistent so the same generator serves both the
// serialization and the invariant properties.
func randomDocument(r *rand.Rand) *Document {
	doc := &Document{ID: fmt.Sprintf("doc-%d", r.Intn(1<<30)), SourcePath: "paper.pdf", Assets: map[string][]byte{}}

	pages := r.Intn(4) + 1
	serial := 0
	nextID := func() string {
		serial++
		return fmt.Sprintf("block-%d", serial)
	}

	for p := 1; p <= pages; p++ {
		page := doc.PageAt(p)
		blocks := r.Intn(6) + 1
		for i := 0; i < blocks; i++ {
			b := &ContentBlock{ID: nextID(), PageNumber: p, BoundingBox: BoundingBox{
				X: r.Float64() * 500, Y: r.Float64() * 700, Width: 80, Height: 12,
			}}
			switch r.Intn(6) {
			case 0:
				b.Kind = KindHeading
				b.OriginalText = "Section title"
				b.Heading = &Heading{Level: r.Intn(6) + 1, BookmarkID: "bm-" + b.ID}
			case 1:
				b.Kind = KindParagraph
				b.OriginalText = "Body text."
				b.Paragraph = &Paragraph{}
			case 2:
				b.Kind = KindMathFormula
				b.OriginalText = "$x^2$"
				b.MathFormula = &MathFormula{Latex: "x^2", DisplayMode: DisplayInline}
			case 3:
				b.Kind = KindCodeBlock
				b.OriginalText = "```go\nreturn\n```"
				b.CodeBlock = &CodeBlock{Language: "go"}
			case 4:
				b.Kind = KindListItem
				b.OriginalText = "an item"
				b.ListItem = &ListItem{Marker: "-", NestingLevel: r.Intn(3)}
			default:
				b.Kind = KindImagePlaceholder
				assetID := "asset-" + b.ID
				b.ImagePlaceholder = &ImagePlaceholder{ImageAssetID: assetID, SpatialRelationship: RelationAfter}
				doc.Assets[assetID] = []byte{0x89, 0x50}
			}
			page.Blocks = append(page.Blocks, b)
		}
	}
	return doc
}

func TestProperty_JSONRoundTripIsByteIdentical(t *testing.T) {
	// Serialize -> deserialize -> serialize must reproduce the exact bytes,
	// so persisted documents can be compared and resumed reliably.
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		doc := randomDocument(r)

		first, err := json.Marshal(doc)
		if err != nil {
			return false
		}
		var decoded Document
		if err := json.Unmarshal(first, &decoded); err != nil {
			return false
		}
		second, err := json.Marshal(&decoded)
		if err != nil {
			return false
		}
		return bytes.Equal(first, second)
	}
	if err := quick.Check(f, quickConfig()); err != nil {
		t.Error(err)
	}
}

func TestProperty_GeneratedDocumentsSatisfyInvariants(t *testing.T) {
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		doc := randomDocument(r)
		return len(CheckInvariants(doc)) == 0
	}
	if err := quick.Check(f, quickConfig()); err != nil {
		t.Error(err)
	}
}

func TestProperty_NewIDNeverCollides(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestProperty_AllBlocksPreservesPageOrder(t *testing.T) {
	f := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		doc := randomDocument(r)

		all := doc.AllBlocks()
		idx := 0
		for _, p := range doc.Pages {
			for _, b := range p.Blocks {
				if all[idx] != b {
					return false
				}
				idx++
			}
		}
		return idx == len(all)
	}
	if err := quick.Check(f, quickConfig()); err != nil {
		t.Error(err)
	}
}
