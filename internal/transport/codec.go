// Package transport implements the markdown-aware transport form: blocks
// are serialized with placeholder separator tokens
// before dispatch to the translation endpoint, then split back apart (with a
// fallback chain) and structurally validated after translation returns.
package transport

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

const (
	// ParagraphBreakToken is an atomic placeholder the translator is
	// instructed to preserve verbatim wherever a paragraph break occurred.
	ParagraphBreakToken = "[[PARAGRAPH_BREAK]]"
	// ItemBreakToken separates independently-grouped blocks within one
	// transport payload.
	ItemBreakToken = "%%%%ITEM_BREAK%%%%"
)

// altSeparators are separator variants LLMs tend to substitute for
// ItemBreakToken when asked to preserve "a separator" loosely.
var altSeparators = []string{
	"%%%%ITEM_BREAK%%%%", "---", "***", "___", "===ITEM===", "# # # #",
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ToTransportForm replaces a block's paragraph breaks with the atomic
// placeholder token so the translator cannot merge or drop them.
func ToTransportForm(text string) string {
	return paragraphBreak.ReplaceAllString(strings.TrimSpace(text), ParagraphBreakToken)
}

// FromTransportForm reverses ToTransportForm after translation, restoring
// real blank-line paragraph breaks.
func FromTransportForm(text string) string {
	return strings.ReplaceAll(text, ParagraphBreakToken, "\n\n")
}

// Group runs each block payload through ToTransportForm and joins the results
// into one transport payload separated by ItemBreakToken, normalizing to NFC so the translated form doesn't drift in Unicode
// representation across the round trip.
func Group(items []string) string {
	normalized := make([]string, len(items))
	for i, it := range items {
		normalized[i] = norm.NFC.String(ToTransportForm(it))
	}
	return strings.Join(normalized, "\n"+ItemBreakToken+"\n")
}

// SplitMethod names which fallback tier recovered the split.
type SplitMethod string

const (
	MethodDirect          SplitMethod = "direct"
	MethodAltSeparator    SplitMethod = "alt_separator"
	MethodParagraphAware  SplitMethod = "paragraph_aware"
	MethodSentenceRegroup SplitMethod = "sentence_regroup"
	MethodFirstBlockOnly  SplitMethod = "first_block_only"
)

// SplitResult is the outcome of splitting a translated payload back into
// per-block translations.
type SplitResult struct {
	Parts  []string
	Method SplitMethod
	// FailedIndices marks blocks that could not be recovered (last-resort
	// fallback only); callers log these, they are not quarantined by the
	// transport layer itself.
	FailedIndices []int
}

// Split recovers expected per-block translations from a translated payload,
// walking the fallback chain until the part count matches expected.
func Split(output string, expected int) SplitResult {
	if expected <= 0 {
		return SplitResult{Parts: []string{output}, Method: MethodDirect}
	}

	if parts := strings.Split(output, ItemBreakToken); len(parts) == expected {
		return SplitResult{Parts: trimAll(parts), Method: MethodDirect}
	}

	for _, sep := range altSeparators {
		if sep == ItemBreakToken {
			continue
		}
		if parts := splitOnSeparator(output, sep); len(parts) == expected {
			return SplitResult{Parts: trimAll(parts), Method: MethodAltSeparator}
		}
	}

	if parts := strings.Split(output, ParagraphBreakToken); len(parts) == expected {
		return SplitResult{Parts: trimAll(parts), Method: MethodParagraphAware}
	}

	if parts, ok := regroupBySentenceLength(output, expected); ok {
		return SplitResult{Parts: parts, Method: MethodSentenceRegroup}
	}

	failed := make([]int, 0, expected-1)
	parts := make([]string, expected)
	parts[0] = strings.TrimSpace(output)
	for i := 1; i < expected; i++ {
		failed = append(failed, i)
	}
	return SplitResult{Parts: parts, Method: MethodFirstBlockOnly, FailedIndices: failed}
}

func splitOnSeparator(output, sep string) []string {
	if !strings.Contains(output, sep) {
		return nil
	}
	return strings.Split(output, sep)
}

func trimAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

var sentenceEnd = regexp.MustCompile(`[.!?。!?]\s+`)

// regroupBySentenceLength splits output into sentences, then regroups them
// into exactly `expected` parts proportional to a naive equal-length target,
// never breaking a sentence mid-way.
func regroupBySentenceLength(output string, expected int) ([]string, bool) {
	sentences := splitSentences(output)
	if len(sentences) < expected {
		return nil, false
	}

	total := len(output)
	target := total / expected

	groups := make([]string, 0, expected)
	var current strings.Builder
	currentLen := 0
	for i, s := range sentences {
		remainingGroups := expected - len(groups)
		remainingSentences := len(sentences) - i
		current.WriteString(s)
		currentLen += len(s)
		if remainingGroups > 1 && currentLen >= target && remainingSentences > remainingGroups {
			groups = append(groups, strings.TrimSpace(current.String()))
			current.Reset()
			currentLen = 0
		}
	}
	if current.Len() > 0 {
		groups = append(groups, strings.TrimSpace(current.String()))
	}
	if len(groups) != expected {
		return nil, false
	}
	return groups, true
}

func splitSentences(s string) []string {
	idx := sentenceEnd.FindAllStringIndex(s, -1)
	if len(idx) == 0 {
		return []string{s}
	}
	var out []string
	start := 0
	for _, m := range idx {
		out = append(out, s[start:m[1]])
		start = m[1]
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Scores are the three structural-preservation measurements of the
// post-translation validation.
type Scores struct {
	HeaderScore         float64
	ListItemScore       float64
	ParagraphBreakScore float64
}

// Passes reports whether the scores clear the acceptance bar: at least 2 of
// 3 clear their individual threshold, or the average is >= 0.75.
func (s Scores) Passes() bool {
	clear := 0
	if s.HeaderScore >= 0.7 {
		clear++
	}
	if s.ListItemScore >= 0.5 {
		clear++
	}
	if s.ParagraphBreakScore >= 0.5 {
		clear++
	}
	if clear >= 2 {
		return true
	}
	avg := (s.HeaderScore + s.ListItemScore + s.ParagraphBreakScore) / 3
	return avg >= 0.75
}

// Validate computes the three structural scores comparing input and output
// markdown, using goldmark to count headers/list items (with the line-based
// fallback in countStructure) and counting ParagraphBreakToken directly.
func Validate(input, output string) Scores {
	inHeaders, inItems := countStructure(input)
	outHeaders, outItems := countStructure(output)

	inBreaks := strings.Count(input, ParagraphBreakToken) + 1
	outBreaks := strings.Count(output, ParagraphBreakToken) + 1

	return Scores{
		HeaderScore:         ratioScore(outHeaders, inHeaders),
		ListItemScore:       ratioScore(outItems, inItems),
		ParagraphBreakScore: withinTolerance(outBreaks, inBreaks, 0.5),
	}
}

func ratioScore(out, in int) float64 {
	// Nothing to preserve means nothing was lost: plain paragraphs with no
	// headers or list items must not fail validation for lacking them.
	if in == 0 {
		return 1
	}
	num := out
	if num > in {
		num = in
	}
	return float64(num) / float64(in)
}

// withinTolerance returns 1.0 if out is within the given fraction of in,
// else 0.
func withinTolerance(out, in int, tolerance float64) float64 {
	if in == 0 {
		if out == 0 {
			return 1
		}
		return 0
	}
	diff := float64(abs(out-in)) / float64(in)
	if diff <= tolerance {
		return 1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// countStructure parses markdown text with goldmark and counts headings and
// list items, the structural elements the validation compares.
func countStructure(markdown string) (headers, items int) {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			headers++
		case ast.KindListItem:
			items++
		}
		return ast.WalkContinue, nil
	})
	if headers == 0 {
		headers = countLineHeadings(markdown)
	}
	if items == 0 {
		items = countLineListItems(markdown)
	}
	return headers, items
}

var headingLine = regexp.MustCompile(`(?m)^#{1,6}\s`)
var listItemLine = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s`)

// countLineHeadings/countLineListItems are a plain-text fallback for payloads
// that are not valid standalone markdown documents (a lone translated
// fragment without surrounding context), since goldmark's block parser needs
// a well-formed document to recognize these constructs reliably.
func countLineHeadings(s string) int {
	return len(headingLine.FindAllString(s, -1))
}

func countLineListItems(s string) int {
	return len(listItemLine.FindAllString(s, -1))
}

// NormalizeForCache strips placeholder tokens and collapses whitespace for
// the Semantic Cache's normalization rule: case is preserved
// (headings are case-significant) but whitespace is collapsed and trimmed.
func NormalizeForCache(s string) string {
	s = strings.ReplaceAll(s, ParagraphBreakToken, " ")
	s = strings.ReplaceAll(s, ItemBreakToken, " ")
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
