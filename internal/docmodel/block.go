// Package docmodel defines the structured document model that every pipeline
// stage operates on: a tagged-variant ContentBlock tree owned by a Document.
package docmodel

import "github.com/google/uuid"

// Kind tags the variant a ContentBlock carries in BlockData.
type Kind string

const (
	KindHeading         Kind = "heading"
	KindParagraph       Kind = "paragraph"
	KindListItem        Kind = "list_item"
	KindFootnote        Kind = "footnote"
	KindTable           Kind = "table"
	KindCaption         Kind = "caption"
	KindMathFormula     Kind = "math_formula"
	KindCodeBlock       Kind = "code_block"
	KindImagePlaceholder Kind = "image_placeholder"
)

// BoundingBox locates a block on its page, in PDF points with origin at the
// page's bottom-left corner (a larger Y is higher on the page).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box, used throughout the Reconciler's
// spatial-distance heuristics.
func (b BoundingBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// SpatialRelationship describes how an ImagePlaceholder relates to its
// associated text/caption block.
type SpatialRelationship string

const (
	RelationBefore    SpatialRelationship = "before"
	RelationAfter     SpatialRelationship = "after"
	RelationAlongside SpatialRelationship = "alongside"
	RelationWrapped   SpatialRelationship = "wrapped"
)

// DisplayMode distinguishes inline math from its own block.
type DisplayMode string

const (
	DisplayInline DisplayMode = "inline"
	DisplayBlock  DisplayMode = "block"
)

// Heading variant fields. Level is 1-6; BookmarkID is unique and stable from
// creation through assembly.
type Heading struct {
	Level      int    `json:"level"`
	BookmarkID string `json:"bookmark_id"`
	Numbering  string `json:"numbering,omitempty"`
}

// Paragraph variant fields.
type Paragraph struct {
	IsContinuation bool `json:"is_continuation"`
}

// ListItem variant fields.
type ListItem struct {
	Marker       string `json:"marker"`
	NestingLevel int    `json:"nesting_level"`
	Ordered      bool   `json:"ordered"`
}

// Footnote variant fields. ReferenceID matches an inline marker embedded in
// some Paragraph's text.
type Footnote struct {
	ReferenceID string `json:"reference_id"`
	OriginPage  int    `json:"origin_page"`
}

// Table variant fields.
type Table struct {
	Rows       [][]string `json:"rows"`
	HeaderRows int        `json:"header_rows"` // 0 or 1
	CaptionID  string     `json:"caption_id,omitempty"`
}

// Caption variant fields. TargetID references the Table or ImagePlaceholder
// this caption is attached to.
type Caption struct {
	TargetID string `json:"target_id"`
}

// MathFormula variant fields. Never translated: original_text carries the
// LaTeX verbatim through the whole pipeline.
type MathFormula struct {
	Latex       string      `json:"latex"`
	DisplayMode DisplayMode `json:"display_mode"`
}

// CodeBlock variant fields. Never translated.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
}

// ImagePlaceholder variant fields.
type ImagePlaceholder struct {
	ImageAssetID         string              `json:"image_asset_id"`
	CaptionID            string              `json:"caption_id,omitempty"`
	SpatialRelationship  SpatialRelationship `json:"spatial_relationship"`
	ReadingOrderPosition int                 `json:"reading_order_position"`
}

// ContentBlock is the tagged-variant atom of a Document. Exactly one of the
// *Data fields matching Kind is populated; components switch on Kind rather
// than using type assertions on an interface, keeping the variant closed.
type ContentBlock struct {
	ID             string      `json:"id"`
	Kind           Kind        `json:"kind"`
	PageNumber     int         `json:"page_number"`
	BoundingBox    BoundingBox `json:"bounding_box"`
	OriginalText   string      `json:"original_text"`
	TranslatedText string      `json:"translated_text,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	Heading          *Heading          `json:"heading,omitempty"`
	Paragraph        *Paragraph        `json:"paragraph,omitempty"`
	ListItem         *ListItem         `json:"list_item,omitempty"`
	Footnote         *Footnote         `json:"footnote,omitempty"`
	Table            *Table            `json:"table,omitempty"`
	Caption          *Caption          `json:"caption,omitempty"`
	MathFormula      *MathFormula      `json:"math_formula,omitempty"`
	CodeBlock        *CodeBlock        `json:"code_block,omitempty"`
	ImagePlaceholder *ImagePlaceholder `json:"image_placeholder,omitempty"`
}

// NewID returns a fresh unique block identifier. Centralized so every
// component that mints ContentBlocks (only the Reconciler, per the Lifecycle
// rule) shares one ID scheme.
func NewID() string {
	return uuid.NewString()
}

// IsPreserveKind reports whether a block's translated_text must equal its
// original_text verbatim (the "preserve" routing strategy).
func (b *ContentBlock) IsPreserveKind() bool {
	switch b.Kind {
	case KindMathFormula, KindCodeBlock:
		return true
	default:
		return false
	}
}

// SetMetadata lazily initializes Metadata and sets a key.
func (b *ContentBlock) SetMetadata(key, value string) {
	if b.Metadata == nil {
		b.Metadata = make(map[string]string)
	}
	b.Metadata[key] = value
}
