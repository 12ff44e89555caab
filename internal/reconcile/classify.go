package reconcile

import (
	"regexp"
	"strings"
	"unicode"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/extract/layout"
)

// classification is the intermediate verdict for one fragment before it is
// materialized into a ContentBlock; footnote/heading candidates still need
// the cross-fragment passes in merge.go and footnote.go before they settle.
type classification struct {
	kind       docmodel.Kind
	headingLvl int
	listMarker string
	listOrdered bool
	latex      string
	display    docmodel.DisplayMode
	codeLang   string
	footnoteRef string
}

var (
	sectionNumberRe = regexp.MustCompile(`^\d+(\.\d+)*\s`)
	footnoteLeadRe  = regexp.MustCompile(`^(\[\d+\]|\(\d+\)|\d+\.|[ivxIVX]+\.|\*)\s*`)
	listNumberRe    = regexp.MustCompile(`^(\d+)[.)]\s`)
	listLetterRe    = regexp.MustCompile(`^([a-zA-Z])[.)]\s`)
)

var headingKeywords = []string{
	"introduction", "chapter", "section", "appendix", "abstract",
	"conclusion", "references", "bibliography", "acknowledgment",
}

var bulletChars = "•◦▪▫●○■□–—"

// classify applies the precedence rules to one
// fragment, given its page's height (for the footnote position test) and the
// document's font profile (for the heading-by-size test). Precedence:
// LaTeX > CodeBlock > Table > Footnote-position > Heading > ListItem >
// Paragraph.
func classify(f layout.Fragment, pageHeightHint float64, profile *docmodel.FontProfile) classification {
	text := strings.TrimSpace(f.Text)

	if latex, display, ok := detectLatex(text); ok {
		return classification{kind: docmodel.KindMathFormula, latex: latex, display: display}
	}
	if lang, ok := detectCodeBlock(text); ok {
		return classification{kind: docmodel.KindCodeBlock, codeLang: lang}
	}
	if detectTableRow(text) {
		return classification{kind: docmodel.KindTable}
	}
	if ref, ok := detectFootnoteCandidate(text, f.Y, pageHeightHint); ok {
		return classification{kind: docmodel.KindFootnote, footnoteRef: ref}
	}
	if level, ok := detectHeading(text, f.FontSize, f.Bold, profile); ok {
		return classification{kind: docmodel.KindHeading, headingLvl: level}
	}
	if marker, ordered, ok := detectListItem(text); ok {
		return classification{kind: docmodel.KindListItem, listMarker: marker, listOrdered: ordered}
	}
	return classification{kind: docmodel.KindParagraph}
}

// detectLatex matches "$...$", "$$...$$", and "\begin{equation}" style
// environments.
func detectLatex(text string) (string, docmodel.DisplayMode, bool) {
	if strings.Contains(text, "\\begin{equation}") || strings.Contains(text, "\\begin{align}") {
		return text, docmodel.DisplayBlock, true
	}
	if strings.HasPrefix(text, "$$") && strings.HasSuffix(text, "$$") && len(text) > 4 {
		return strings.Trim(text, "$"), docmodel.DisplayBlock, true
	}
	if strings.Count(text, "$") >= 2 && strings.HasPrefix(text, "$") && strings.HasSuffix(text, "$") {
		return strings.Trim(text, "$"), docmodel.DisplayInline, true
	}
	return "", "", false
}

// detectCodeBlock matches fenced monospace blocks. Layout extraction
// collapses true indentation, so this relies
// on fence markers, the signal that survives row-grouping.
func detectCodeBlock(text string) (string, bool) {
	if strings.HasPrefix(text, "```") {
		lang := strings.TrimPrefix(strings.SplitN(text, "\n", 2)[0], "```")
		return strings.TrimSpace(lang), true
	}
	return "", false
}

// detectTableRow matches markdown pipe tables or a detected grid.
func detectTableRow(text string) bool {
	return strings.Count(text, "|") >= 2
}

// detectFootnoteCandidate matches the leading-marker + bottom-of-page
// position test.
func detectFootnoteCandidate(text string, y, pageHeight float64) (string, bool) {
	if pageHeight <= 0 {
		return "", false
	}
	// PDF y-origin is bottom-left; the last 15% of page height is a small y.
	if y > pageHeight*0.15 {
		return "", false
	}
	m := footnoteLeadRe.FindString(text)
	if m == "" {
		return "", false
	}
	ref := strings.Trim(strings.TrimRight(strings.TrimSpace(m), ".)"), "[]()")
	return ref, true
}

// detectHeading combines the font-size rule with semantic keywords and the
// length filter.
func detectHeading(text string, fontSize float64, bold bool, profile *docmodel.FontProfile) (int, bool) {
	if text == "" {
		return 0, false
	}
	if len(strings.Fields(text)) > 15 || len(text) > 100 {
		return 0, false
	}

	if level := headingLevelFor(profile, fontSize); level > 0 {
		return level, true
	}
	if sectionNumberRe.MatchString(text) {
		return fallbackHeadingLevel(bold), true
	}
	lower := strings.ToLower(text)
	for _, kw := range headingKeywords {
		if strings.HasPrefix(lower, kw) {
			return fallbackHeadingLevel(bold), true
		}
	}
	return 0, false
}

func fallbackHeadingLevel(bold bool) int {
	if bold {
		return 2
	}
	return 3
}

// detectListItem matches a leading bullet or numbered/lettered marker.
func detectListItem(text string) (string, bool, bool) {
	if text == "" {
		return "", false, false
	}
	first := []rune(text)[0]
	if strings.ContainsRune(bulletChars, first) || first == '*' || first == '-' {
		return string(first), false, true
	}
	if m := listNumberRe.FindStringSubmatch(text); m != nil {
		return m[1], true, true
	}
	if m := listLetterRe.FindStringSubmatch(text); m != nil {
		return m[1], true, true
	}
	return "", false, false
}

// isAllUpperCase reports whether every letter in text is upper case, used
// by the heading-merge heuristic's continuation check.
func isAllUpperCase(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
