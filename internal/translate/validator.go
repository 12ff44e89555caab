// Package translate implements the self-correcting translator and the
// markdown-aware group dispatch: translate, validate the output's
// structure against the source block (tables, code fences, LaTeX math,
// lists), and retry with a targeted correction prompt on mismatch.
package translate

import (
	"fmt"
	"regexp"
	"strings"

	"pdf-structural-translator/internal/docmodel"
)

// Violation names one structural mismatch a correction prompt should target.
type Violation struct {
	Detail string
}

// ValidationResult is the outcome of running ValidateStructured over one
// translated block.
type ValidationResult struct {
	Valid      bool
	Violations []Violation
}

// ValidateStructured runs the structural checks appropriate
// to block.Kind, comparing the original and candidate translated text.
func ValidateStructured(block *docmodel.ContentBlock, translated string) ValidationResult {
	switch block.Kind {
	case docmodel.KindTable:
		return validateTable(block, translated)
	case docmodel.KindCodeBlock:
		return validateCodeFences(block.OriginalText, translated)
	case docmodel.KindMathFormula:
		return validateLatex(block.OriginalText, translated)
	case docmodel.KindListItem:
		return validateList(block.OriginalText, translated)
	default:
		return ValidationResult{Valid: true}
	}
}

// validateTable enforces the table rules: row count within 10%, average
// column count within +-1, separator rows preserved.
func validateTable(block *docmodel.ContentBlock, translated string) ValidationResult {
	in := block.Table
	outRows := parsePipeTableLocal(translated)

	var v []Violation

	inRowCount := len(in.Rows)
	outRowCount := len(outRows)
	if inRowCount > 0 {
		diff := absInt(outRowCount - inRowCount)
		if float64(diff)/float64(inRowCount) > 0.10 {
			v = append(v, Violation{Detail: fmt.Sprintf(
				"original has %d rows, translation has %d — regenerate preserving exactly %d rows",
				inRowCount, outRowCount, inRowCount)})
		}
	}

	inCols := avgColumns(in.Rows)
	outCols := avgColumns(outRows)
	if absFloat(outCols-inCols) > 1.0 {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original averages %.1f columns per row, translation averages %.1f — preserve the column count",
			inCols, outCols)})
	}

	inSeparators := countSeparatorRows(block.OriginalText)
	outSeparators := countSeparatorRows(translated)
	if inSeparators > 0 && outSeparators < inSeparators {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original has %d separator rows, translation has %d — keep every markdown table separator row",
			inSeparators, outSeparators)})
	}

	return ValidationResult{Valid: len(v) == 0, Violations: v}
}

var fenceLine = regexp.MustCompile("(?m)^\\s*```")

// validateCodeFences enforces open/close fence count match and a preserved
// language tag.
func validateCodeFences(original, translated string) ValidationResult {
	inFences := len(fenceLine.FindAllString(original, -1))
	outFences := len(fenceLine.FindAllString(translated, -1))

	var v []Violation
	if inFences != outFences {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original has %d code fence markers, translation has %d — keep every ``` fence", inFences, outFences)})
	}

	inLang := firstFenceLang(original)
	outLang := firstFenceLang(translated)
	if inLang != "" && inLang != outLang {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original's fence language tag was %q, translation has %q — preserve the language tag verbatim", inLang, outLang)})
	}

	return ValidationResult{Valid: len(v) == 0, Violations: v}
}

var fenceWithLang = regexp.MustCompile("```([a-zA-Z0-9_+-]*)")

func firstFenceLang(s string) string {
	m := fenceWithLang.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

var (
	beginEnv   = regexp.MustCompile(`\\begin\{([a-zA-Z*]+)\}`)
	endEnv     = regexp.MustCompile(`\\end\{([a-zA-Z*]+)\}`)
	latexCmd   = regexp.MustCompile(`\\[a-zA-Z]+`)
)

// validateLatex enforces $/$$ balance, matching \begin/\end pairs, and
// command count within +-1.
func validateLatex(original, translated string) ValidationResult {
	var v []Violation

	if !dollarsBalanced(translated) {
		v = append(v, Violation{Detail: "translation has unbalanced $ or $$ math delimiters — balance every delimiter"})
	}

	inBegins, outBegins := beginEnv.FindAllStringSubmatch(original, -1), beginEnv.FindAllStringSubmatch(translated, -1)
	inEnds, outEnds := endEnv.FindAllStringSubmatch(original, -1), endEnv.FindAllStringSubmatch(translated, -1)
	if len(inBegins) != len(outBegins) || len(inEnds) != len(outEnds) {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original has %d \\begin/%d \\end, translation has %d/%d — keep every environment pair",
			len(inBegins), len(inEnds), len(outBegins), len(outEnds))})
	}

	inCmds := len(latexCmd.FindAllString(original, -1))
	outCmds := len(latexCmd.FindAllString(translated, -1))
	if absInt(inCmds-outCmds) > 1 {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original has %d LaTeX commands, translation has %d — preserve every command", inCmds, outCmds)})
	}

	return ValidationResult{Valid: len(v) == 0, Violations: v}
}

func dollarsBalanced(s string) bool {
	single := strings.Count(s, "$") - 2*strings.Count(s, "$$")
	return single%2 == 0
}

var listMarkerLine = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s`)

// validateList enforces marker preservation and nesting preservation.
func validateList(original, translated string) ValidationResult {
	inMarkers := listMarkerLine.FindAllStringSubmatch(original, -1)
	outMarkers := listMarkerLine.FindAllStringSubmatch(translated, -1)

	var v []Violation
	if len(inMarkers) != len(outMarkers) {
		v = append(v, Violation{Detail: fmt.Sprintf(
			"original has %d list markers, translation has %d — preserve every marker", len(inMarkers), len(outMarkers))})
	}

	inNesting := indentProfile(original)
	outNesting := indentProfile(translated)
	if inNesting != outNesting {
		v = append(v, Violation{Detail: "list nesting levels changed — preserve the original indentation depth per item"})
	}

	return ValidationResult{Valid: len(v) == 0, Violations: v}
}

func indentProfile(s string) string {
	var depths strings.Builder
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		indent := len(line) - len(trimmed)
		if listMarkerLine.MatchString(line) {
			depths.WriteString(fmt.Sprintf("%d,", indent/2))
		}
	}
	return depths.String()
}

func parsePipeTableLocal(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") {
			continue
		}
		// Separator rows are counted by countSeparatorRows, not as data rows.
		if separatorRow.MatchString(line) {
			continue
		}
		cells := strings.Split(strings.Trim(line, "|"), "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}

var separatorRow = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)

func countSeparatorRows(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "-") && separatorRow.MatchString(line) {
			n++
		}
	}
	return n
}

func avgColumns(rows [][]string) float64 {
	if len(rows) == 0 {
		return 0
	}
	total := 0
	for _, r := range rows {
		total += len(r)
	}
	return float64(total) / float64(len(rows))
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// CorrectionPrompt builds the targeted correction prompt, naming the
// specific violations so the retry has something concrete to fix.
func CorrectionPrompt(violations []Violation) string {
	var b strings.Builder
	b.WriteString("Your previous translation broke structural requirements. Fix exactly these issues and resend the full translation:\n")
	for _, v := range violations {
		b.WriteString("- ")
		b.WriteString(v.Detail)
		b.WriteString("\n")
	}
	return b.String()
}
