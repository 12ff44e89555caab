package reconcile

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/extract/visual"
)

var captionLeadRe = regexp.MustCompile(`(?i)^(figure|fig\.|table|tab\.)\s*\d+`)

// associateImages places extracted images into page flow: for each
// visual-extractor image, pick the nearest text block by bounding-box-center
// distance, assign spatial_relationship from relative position, and attach
// a nearby caption line as its own Caption block. Uses samber/lo's MinBy to
// pick the nearest candidate, the one place in the Reconciler where a plain
// loop would otherwise duplicate what lo already expresses concisely.
func associateImages(images []visual.Image, pageBlocks []*docmodel.ContentBlock, assets map[string][]byte) []*docmodel.ContentBlock {
	var out []*docmodel.ContentBlock
	for _, img := range images {
		if len(pageBlocks) == 0 {
			continue
		}
		nearest := lo.MinBy(pageBlocks, func(a, b *docmodel.ContentBlock) bool {
			return centerDistance(img, a) < centerDistance(img, b)
		})

		placeholder := &docmodel.ContentBlock{
			ID:         docmodel.NewID(),
			Kind:       docmodel.KindImagePlaceholder,
			PageNumber: nearest.PageNumber,
			BoundingBox: docmodel.BoundingBox{X: img.X, Y: img.Y, Width: img.Width, Height: img.Height},
			ImagePlaceholder: &docmodel.ImagePlaceholder{
				ImageAssetID:        img.AssetID,
				SpatialRelationship: relativePosition(img, nearest),
			},
		}
		assets[img.AssetID] = img.Data
		out = append(out, placeholder)

		if capText, capBlock := findCaptionFor(img, pageBlocks); capText != "" {
			caption := &docmodel.ContentBlock{
				ID:           docmodel.NewID(),
				Kind:         docmodel.KindCaption,
				PageNumber:   nearest.PageNumber,
				BoundingBox:  capBlock.BoundingBox,
				OriginalText: capText,
				Caption:      &docmodel.Caption{TargetID: placeholder.ID},
			}
			placeholder.ImagePlaceholder.CaptionID = caption.ID
			out = append(out, caption)
			capBlock.SetMetadata("reconcile_consumed", "true")
		}
	}
	return out
}

func centerDistance(img visual.Image, b *docmodel.ContentBlock) float64 {
	icx, icy := img.X+img.Width/2, img.Y+img.Height/2
	bcx, bcy := b.BoundingBox.Center()
	dx, dy := icx-bcx, icy-bcy
	return math.Sqrt(dx*dx + dy*dy)
}

func relativePosition(img visual.Image, b *docmodel.ContentBlock) docmodel.SpatialRelationship {
	icx, icy := img.X+img.Width/2, img.Y+img.Height/2
	bcx, bcy := b.BoundingBox.Center()

	overlapX := math.Abs(icx-bcx) < (img.Width+b.BoundingBox.Width)/2
	overlapY := math.Abs(icy-bcy) < (img.Height+b.BoundingBox.Height)/2
	if overlapX && overlapY {
		return docmodel.RelationWrapped
	}
	if math.Abs(icy-bcy) > math.Abs(icx-bcx) {
		if icy > bcy {
			return docmodel.RelationBefore
		}
		return docmodel.RelationAfter
	}
	return docmodel.RelationAlongside
}

// findCaptionFor heuristically matches a "Figure N"/"Table N" leading
// Paragraph whose center lies within twice the combined height of the image
// and that Paragraph from the image's center.
func findCaptionFor(img visual.Image, blocks []*docmodel.ContentBlock) (string, *docmodel.ContentBlock) {
	for _, b := range blocks {
		if b.Kind != docmodel.KindParagraph {
			continue
		}
		if !captionLeadRe.MatchString(strings.TrimSpace(b.OriginalText)) {
			continue
		}
		if centerDistance(img, b) < (img.Height+b.BoundingBox.Height)*2 {
			return b.OriginalText, b
		}
	}
	return "", nil
}

// assignReadingOrder sorts a page's blocks into reading order: a top-to-bottom,
// left-to-right sweep with column detection via k-means on x-centers,
// k ∈ {1, 2}. One column is the common case; two columns covers the typical
// academic-paper layout.
func assignReadingOrder(blocks []*docmodel.ContentBlock) []*docmodel.ContentBlock {
	if len(blocks) <= 1 {
		return blocks
	}

	columns := detectColumns(blocks)
	column := make(map[*docmodel.ContentBlock]int, len(blocks))
	for i, b := range blocks {
		column[b] = columns[i]
	}
	// Rows are fixed 3pt bands of y, so the comparison stays transitive.
	const tol = 3.0
	sort.SliceStable(blocks, func(i, j int) bool {
		ci, cj := column[blocks[i]], column[blocks[j]]
		if ci != cj {
			return ci < cj
		}
		ri, rj := math.Floor(blocks[i].BoundingBox.Y/tol), math.Floor(blocks[j].BoundingBox.Y/tol)
		if ri != rj {
			return ri > rj
		}
		if blocks[i].BoundingBox.X != blocks[j].BoundingBox.X {
			return blocks[i].BoundingBox.X < blocks[j].BoundingBox.X
		}
		return blocks[i].BoundingBox.Y > blocks[j].BoundingBox.Y
	})

	for i, b := range blocks {
		if b.Kind == docmodel.KindImagePlaceholder {
			b.ImagePlaceholder.ReadingOrderPosition = i
		}
	}
	return blocks
}

// detectColumns runs a 2-means split on x-centers when the data clearly
// separates into two clusters; otherwise every block is column 0.
func detectColumns(blocks []*docmodel.ContentBlock) []int {
	xs := make([]float64, len(blocks))
	for i, b := range blocks {
		cx, _ := b.BoundingBox.Center()
		xs[i] = cx
	}

	minX, maxX := xs[0], xs[0]
	for _, x := range xs {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
	}
	if maxX-minX < 1 {
		return make([]int, len(blocks))
	}

	c0, c1 := minX, maxX
	assign := make([]int, len(xs))
	for iter := 0; iter < 10; iter++ {
		for i, x := range xs {
			if absf(x-c0) <= absf(x-c1) {
				assign[i] = 0
			} else {
				assign[i] = 1
			}
		}
		c0, c1 = centroid(xs, assign, 0), centroid(xs, assign, 1)
	}

	// Only accept the 2-column split when clusters are well separated
	// relative to the spread of x-centers, else collapse back to a single column —
	// most pages are single-column and shouldn't get a spurious split.
	if absf(c1-c0) < (maxX-minX)*0.25 {
		return make([]int, len(blocks))
	}
	return assign
}

func centroid(xs []float64, assign []int, cluster int) float64 {
	sum, count := 0.0, 0
	for i, x := range xs {
		if assign[i] == cluster {
			sum += x
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
