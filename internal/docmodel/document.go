package docmodel

import "sort"

// Page owns an ordered sequence of ContentBlocks in reading order.
type Page struct {
	Index  int             `json:"index"`
	Blocks []*ContentBlock `json:"blocks"`
}

// FontStyle is a (name, size, weight) tuple tallied during global font
// analysis.
type FontStyle struct {
	Name   string  `json:"name"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
}

// FontProfile is the per-document side-structure recording the dominant body
// style and the size-to-heading-level mapping derived by font analysis.
type FontProfile struct {
	Body            FontStyle          `json:"body"`
	HeadingLevels   map[float64]int    `json:"heading_levels"` // font size -> heading level
	StyleFrequency  map[string]int     `json:"-"`              // internal tally, not persisted
}

// NewFontProfile returns an empty profile ready for tallying.
func NewFontProfile() *FontProfile {
	return &FontProfile{
		HeadingLevels:  make(map[float64]int),
		StyleFrequency: make(map[string]int),
	}
}

// Document owns an ordered sequence of Pages plus the FontProfile the
// Reconciler derived while fusing the two extraction sources.
type Document struct {
	ID          string       `json:"id"`
	SourcePath  string       `json:"source_path"`
	Pages       []*Page      `json:"pages"`
	FontProfile *FontProfile `json:"font_profile,omitempty"`
	Assets      map[string][]byte `json:"-"` // image_asset_id -> binary, held out of JSON on purpose
}

// NewDocument creates an empty Document ready for the Reconciler to populate.
func NewDocument(sourcePath string) *Document {
	return &Document{
		ID:         NewID(),
		SourcePath: sourcePath,
		Assets:     make(map[string][]byte),
	}
}

// AllBlocks returns every block across every page, in Document order.
func (d *Document) AllBlocks() []*ContentBlock {
	var out []*ContentBlock
	for _, p := range d.Pages {
		out = append(out, p.Blocks...)
	}
	return out
}

// BlocksOfKind filters AllBlocks by Kind, preserving order.
func (d *Document) BlocksOfKind(k Kind) []*ContentBlock {
	var out []*ContentBlock
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if b.Kind == k {
				out = append(out, b)
			}
		}
	}
	return out
}

// FindBlock returns the block with the given id, or nil.
func (d *Document) FindBlock(id string) *ContentBlock {
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if b.ID == id {
				return b
			}
		}
	}
	return nil
}

// ImagePlaceholderIDs returns, sorted by asset ID, the asset IDs of every
// ImagePlaceholder in the Document — used to enforce the image preservation
// contract across pipeline stages: images may be reordered, never dropped.
func (d *Document) ImagePlaceholderIDs() []string {
	var ids []string
	for _, b := range d.BlocksOfKind(KindImagePlaceholder) {
		ids = append(ids, b.ImagePlaceholder.ImageAssetID)
	}
	sort.Strings(ids)
	return ids
}

// PageAt returns the page at the given 1-based index, creating it (and any
// intermediate pages) if necessary. The Reconciler uses this while streaming
// blocks page by page from the extractors.
func (d *Document) PageAt(index int) *Page {
	for _, p := range d.Pages {
		if p.Index == index {
			return p
		}
	}
	p := &Page{Index: index}
	d.Pages = append(d.Pages, p)
	sort.Slice(d.Pages, func(i, j int) bool { return d.Pages[i].Index < d.Pages[j].Index })
	return p
}
