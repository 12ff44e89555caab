package layout

import (
	"context"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"pdf-structural-translator/internal/types"
)

// HeuristicExtractor is the default Extractor, built directly on
// ledongthuc/pdf's row-grouping: it emits Fragments plus lightweight Hints
// instead of pre-classified blocks (full classification is the
// Reconciler's job).
type HeuristicExtractor struct{}

// NewHeuristicExtractor returns the default layout extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (h *HeuristicExtractor) Extract(ctx context.Context, pdfPath string) (*Result, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppError(types.ErrExtractorCorruptInput, "pdf file not found", err)
		}
		return nil, types.NewAppError(types.ErrExtractorCorruptInput, "cannot access pdf file", err)
	}

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrExtractorCorruptInput, "cannot open pdf", err)
	}
	defer f.Close()

	result := &Result{}
	totalPages := r.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, types.NewAppError(types.ErrExtractorTimeout, "layout extraction cancelled", ctx.Err())
		default:
		}

		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		if page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}

		pageIndex := pageNum - 1
		var fragments []Fragment
		for _, row := range rows {
			frag, ok := fragmentFromRow(pageIndex, row)
			if !ok {
				continue
			}
			fragments = append(fragments, frag)
		}

		sort.SliceStable(fragments, func(i, j int) bool {
			const yTolerance = 5.0
			if absf(fragments[i].Y-fragments[j].Y) < yTolerance {
				return fragments[i].X < fragments[j].X
			}
			return fragments[i].Y > fragments[j].Y
		})

		collectHints(pageIndex, fragments, &result.Hints)
		result.Pages = append(result.Pages, Page{Index: pageIndex, Fragments: fragments})
	}

	return result, nil
}

func fragmentFromRow(pageIndex int, row *pdf.Row) (Fragment, bool) {
	if len(row.Content) == 0 {
		return Fragment{}, false
	}

	var textBuilder strings.Builder
	var minX, maxX, minY, maxY float64
	var totalFontSize float64
	var fontName string
	var isBold, isItalic bool
	first := true

	for _, text := range row.Content {
		if text.S == "" || isPostScriptCode(text.S) {
			continue
		}
		textBuilder.WriteString(text.S)

		if first {
			minX, maxX, minY, maxY = text.X, text.X, text.Y, text.Y
			fontName = text.Font
			first = false
		} else {
			minX, maxX = minf(minX, text.X), maxf(maxX, text.X)
			minY, maxY = minf(minY, text.Y), maxf(maxY, text.Y)
		}
		totalFontSize += text.FontSize

		fontLower := strings.ToLower(text.Font)
		if strings.Contains(fontLower, "bold") {
			isBold = true
		}
		if strings.Contains(fontLower, "italic") || strings.Contains(fontLower, "oblique") {
			isItalic = true
		}
	}

	text := strings.TrimSpace(textBuilder.String())
	if text == "" || isPostScriptCode(text) || hasExcessiveNonPrintable(text) {
		return Fragment{}, false
	}

	avgFontSize := totalFontSize / float64(len(row.Content))
	if avgFontSize <= 0 {
		avgFontSize = 10.0
	}

	width := maxf(float64(len(text))*avgFontSize*0.5, maxX-minX+avgFontSize)
	height := avgFontSize * 1.2
	if height <= 0 {
		height = 12.0
	}

	return Fragment{
		PageIndex: pageIndex,
		Text:      text,
		X:         minX,
		Y:         minY,
		Width:     width,
		Height:    height,
		FontName:  fontName,
		FontSize:  avgFontSize,
		Bold:      isBold,
		Italic:    isItalic,
	}, true
}

// collectHints scans a page's fragments for the hint categories,
// appending Spans by contiguous fragment-index runs.
func collectHints(pageIndex int, fragments []Fragment, hints *Hints) {
	appendRuns(pageIndex, fragments, isLatexFragment, &hints.LatexSpans)
	appendRuns(pageIndex, fragments, isTableFragment, &hints.TableRegions)
	appendRuns(pageIndex, fragments, isHeadingCandidate, &hints.HeadingCandidates)
}

func appendRuns(pageIndex int, fragments []Fragment, pred func(Fragment) bool, spans *[]Span) {
	start := -1
	for i, f := range fragments {
		if pred(f) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			*spans = append(*spans, Span{PageIndex: pageIndex, StartIndex: start, EndIndex: i - 1})
			start = -1
		}
	}
	if start != -1 {
		*spans = append(*spans, Span{PageIndex: pageIndex, StartIndex: start, EndIndex: len(fragments) - 1})
	}
}

func isLatexFragment(f Fragment) bool {
	t := f.Text
	if strings.Contains(t, "$$") || strings.Contains(t, "\\begin{equation}") || strings.Contains(t, "\\begin{align}") {
		return true
	}
	if strings.Count(t, "$")%2 == 0 && strings.Contains(t, "$") {
		return true
	}
	return looksLikeFormula(t)
}

func isTableFragment(f Fragment) bool {
	t := f.Text
	return strings.Count(t, "|") >= 2
}

func isHeadingCandidate(f Fragment) bool {
	t := strings.TrimSpace(f.Text)
	if t == "" {
		return false
	}
	if len(strings.Fields(t)) > 15 || len(t) > 100 {
		return false
	}
	if looksNumberedSection(t) {
		return true
	}
	keywords := []string{"introduction", "chapter", "section", "conclusion", "abstract", "references", "appendix"}
	lower := strings.ToLower(t)
	for _, kw := range keywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

func looksNumberedSection(t string) bool {
	i := 0
	for i < len(t) && i < 10 && (unicode.IsDigit(rune(t[i])) || t[i] == '.') {
		i++
	}
	return i > 0 && i < len(t) && t[i] == ' ' && strings.Contains(t[:i], ".")
}

func looksLikeFormula(t string) bool {
	mathSymbols := "∫∑∏√∂∇±×÷≤≥≠≈∞∈∉⊂⊃∪∩∧∨¬∀∃αβγδεζηθικλμνξοπρστυφχψω"
	symbolCount, total := 0, 0
	for _, r := range t {
		total++
		if strings.ContainsRune("+-*/=<>^_~()[]{}", r) || strings.ContainsRune(mathSymbols, r) {
			symbolCount++
		}
	}
	return total > 0 && float64(symbolCount)/float64(total) > 0.3
}

// isPostScriptCode filters internal PDF operator garbage text before it
// can surface as a Fragment.
func isPostScriptCode(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(text, " def ") || strings.HasSuffix(text, " def") {
		if strings.Contains(text, "/") {
			return true
		}
	}
	patterns := []string{"currentpoint", "gsave", "grestore", "newpath", "closepath",
		"setrgbcolor", "setgray", "setlinewidth", "showpage", "moveto", "lineto", "curveto", "stroke", "fill"}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func hasExcessiveNonPrintable(text string) bool {
	if text == "" {
		return false
	}
	count := 0
	for _, r := range text {
		if (r < 32 && r != '\n' && r != '\r' && r != '\t') || (r >= 0x7F && r <= 0x9F) {
			count++
		}
	}
	return float64(count)/float64(len(text)) > 0.1
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
