package reconcile

import "strings"

// splitLines splits a fragment's text into its constituent rows. Layout
// extraction usually yields one row per fragment already, but a table
// region hinted by the layout extractor may arrive as a multi-line fragment.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitPipeRow splits a markdown-style "| a | b |" row into cells, dropping
// a separator row of dashes (the Table validator treats those specially,
// per the "all separator rows preserved" rule — the Reconciler records
// row count, not separator identity).
func splitPipeRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	if trimmed == "" || isSeparatorRow(trimmed) {
		return nil
	}
	parts := strings.Split(trimmed, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

func isSeparatorRow(trimmed string) bool {
	hasDash := false
	for _, r := range trimmed {
		switch r {
		case '-':
			hasDash = true
		case ':', '|', ' ', '\t':
		default:
			return false
		}
	}
	return hasDash
}
