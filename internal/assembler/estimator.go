// Package assembler implements the two-pass document assembler: a
// page-estimating content pass followed by a table-of-contents pass over
// the bookmarks the first pass recorded.
package assembler

import (
	"math"

	"pdf-structural-translator/internal/docmodel"
)

const (
	defaultCharsPerLine   = 90
	defaultLinesPerPage   = 25
	headingLineWeight     = 4
	imageLineWeight       = 12
	tableBaseLineWeight   = 2
	listItemBaseWeight    = 1.0
	nestingWeightPerLevel = 0.25
)

// PageEstimator maintains the running line-count -> page-number mapping: a
// content-type-weighted line counter, not a rendering engine. It is only
// required to be *consistent*
// within a run (same heading always maps to the same page), not to match
// any particular final page layout.
type PageEstimator struct {
	linesPerPage  int
	charsPerLine  int
	runningLines  float64
	currentPage   int
}

// NewPageEstimator builds an estimator starting at page 1.
func NewPageEstimator() *PageEstimator {
	return &PageEstimator{
		linesPerPage: defaultLinesPerPage,
		charsPerLine: defaultCharsPerLine,
		currentPage:  1,
	}
}

// CurrentPage returns the page the next emitted block would land on, given
// lines consumed so far.
func (p *PageEstimator) CurrentPage() int {
	return p.currentPage
}

// Advance consumes the line weight of one block and rolls the page counter
// forward whenever the running count crosses linesPerPage.
func (p *PageEstimator) Advance(b *docmodel.ContentBlock) {
	p.runningLines += lineWeight(b, p.charsPerLine)
	for p.runningLines >= float64(p.linesPerPage) {
		p.runningLines -= float64(p.linesPerPage)
		p.currentPage++
	}
}

// lineWeight assigns the content-type-specific weights: heading 4
// lines, paragraph ceil(chars/chars_per_line), list-item weighted by
// nesting, image fixed 12 lines, table 2 + row count.
func lineWeight(b *docmodel.ContentBlock, charsPerLine int) float64 {
	switch b.Kind {
	case docmodel.KindHeading:
		return headingLineWeight
	case docmodel.KindImagePlaceholder:
		return imageLineWeight
	case docmodel.KindTable:
		return tableBaseLineWeight + float64(len(b.Table.Rows))
	case docmodel.KindListItem:
		return listItemBaseWeight + float64(b.ListItem.NestingLevel)*nestingWeightPerLevel
	default:
		text := b.TranslatedText
		if text == "" {
			text = b.OriginalText
		}
		return math.Ceil(float64(len(text)) / float64(charsPerLine))
	}
}
