package reconcile

import (
	"fmt"
	"sort"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/extract/layout"
)

// analyzeFonts tallies (font-name, size, bold/italic) frequency across
// the whole document, calls the most frequent style the body, and assigns
// heading levels to any style >= 1.4x body size by size rank (largest
// becomes H1).
func analyzeFonts(pages []layout.Page) *docmodel.FontProfile {
	profile := docmodel.NewFontProfile()

	sizeCount := make(map[float64]int)
	for _, page := range pages {
		for _, f := range page.Fragments {
			key := fmt.Sprintf("%s|%.1f|%v|%v", f.FontName, f.FontSize, f.Bold, f.Italic)
			profile.StyleFrequency[key]++
			sizeCount[f.FontSize]++
		}
	}

	if len(sizeCount) == 0 {
		return profile
	}

	bodySize, bodyCount := 0.0, -1
	for size, count := range sizeCount {
		if count > bodyCount {
			bodySize, bodyCount = size, count
		}
	}
	profile.Body = docmodel.FontStyle{Size: bodySize}

	var headingSizes []float64
	for size := range sizeCount {
		if size >= bodySize*1.4 {
			headingSizes = append(headingSizes, size)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(headingSizes)))
	for level, size := range headingSizes {
		if level >= 6 {
			break
		}
		profile.HeadingLevels[size] = level + 1
	}

	return profile
}

// headingLevelFor resolves a fragment's font size to a heading level, or 0
// if the size is not eligible.
func headingLevelFor(profile *docmodel.FontProfile, fontSize float64) int {
	if profile == nil {
		return 0
	}
	if level, ok := profile.HeadingLevels[fontSize]; ok {
		return level
	}
	// Fall back to the nearest eligible size within a small tolerance —
	// real extractions rarely produce bit-identical float sizes across runs.
	const tolerance = 0.05
	for size, level := range profile.HeadingLevels {
		if absf(size-fontSize) <= tolerance {
			return level
		}
	}
	return 0
}

func absf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
