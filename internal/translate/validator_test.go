package translate

import (
	"strings"
	"testing"

	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/transport"
)

func TestValidateStructured_NonStructuralKindAlwaysValid(t *testing.T) {
	block := &docmodel.ContentBlock{Kind: docmodel.KindParagraph, OriginalText: "anything"}
	if res := ValidateStructured(block, "anything else entirely"); !res.Valid {
		t.Errorf("expected paragraph blocks to skip structural validation, got %+v", res)
	}
}

func TestValidateTable_PreservedStructureIsValid(t *testing.T) {
	block := &docmodel.ContentBlock{
		Kind:         docmodel.KindTable,
		OriginalText: "| a | b |\n| - | - |\n| 1 | 2 |",
		Table: &docmodel.Table{Rows: [][]string{{"a", "b"}, {"1", "2"}}},
	}
	translated := "| x | y |\n| - | - |\n| 1 | 2 |"

	if res := ValidateStructured(block, translated); !res.Valid {
		t.Errorf("expected preserved row/column counts to validate, got %+v", res)
	}
}

func TestValidateTable_DroppedRowsIsInvalid(t *testing.T) {
	block := &docmodel.ContentBlock{
		Kind:         docmodel.KindTable,
		OriginalText: "| a | b |\n| - | - |\n| 1 | 2 |\n| 3 | 4 |\n| 5 | 6 |\n| 7 | 8 |\n| 9 | 10 |",
		Table: &docmodel.Table{Rows: [][]string{
			{"a", "b"}, {"1", "2"}, {"3", "4"}, {"5", "6"}, {"7", "8"}, {"9", "10"},
		}},
	}
	translated := "| x | y |"

	res := ValidateStructured(block, translated)
	if res.Valid {
		t.Fatalf("expected a large row count drop to fail validation")
	}
	if len(res.Violations) == 0 {
		t.Errorf("expected at least one violation detail")
	}
}

func TestValidateTable_MissingSeparatorRowIsInvalid(t *testing.T) {
	block := &docmodel.ContentBlock{
		Kind:         docmodel.KindTable,
		OriginalText: "| a | b |\n| - | - |\n| 1 | 2 |",
		Table:        &docmodel.Table{Rows: [][]string{{"a", "b"}, {"1", "2"}}},
	}
	translated := "| x | y |\n| 1 | 2 |"

	if res := ValidateStructured(block, translated); res.Valid {
		t.Errorf("expected a dropped separator row to fail validation")
	}
}

func TestValidateCodeFences_MismatchedFenceCountIsInvalid(t *testing.T) {
	original := "```go\nfmt.Println(1)\n```"
	translated := "fmt.Println(1)"
	res := validateCodeFences(original, translated)
	if res.Valid {
		t.Errorf("expected dropped fences to be invalid")
	}
}

func TestValidateCodeFences_ChangedLanguageTagIsInvalid(t *testing.T) {
	original := "```go\nfmt.Println(1)\n```"
	translated := "```python\nfmt.Println(1)\n```"
	res := validateCodeFences(original, translated)
	if res.Valid {
		t.Errorf("expected a changed language tag to be invalid")
	}
}

func TestValidateCodeFences_PreservedIsValid(t *testing.T) {
	original := "```go\nfmt.Println(1)\n```"
	translated := "```go\nfmt.Println(1) // translated comment\n```"
	res := validateCodeFences(original, translated)
	if !res.Valid {
		t.Errorf("expected preserved fences/lang to be valid, got %+v", res)
	}
}

func TestValidateLatex_UnbalancedDollarsIsInvalid(t *testing.T) {
	res := validateLatex("$x^2$", "$x^2")
	if res.Valid {
		t.Errorf("expected unbalanced $ to be invalid")
	}
}

func TestValidateLatex_MismatchedEnvironmentsIsInvalid(t *testing.T) {
	original := `\begin{equation}x\end{equation}`
	translated := `\begin{equation}x`
	res := validateLatex(original, translated)
	if res.Valid {
		t.Errorf("expected a dropped \\end to be invalid")
	}
}

func TestValidateLatex_PreservedIsValid(t *testing.T) {
	original := `\begin{equation}x^2\end{equation}`
	translated := `\begin{equation}x^2\end{equation}`
	res := validateLatex(original, translated)
	if !res.Valid {
		t.Errorf("expected identical latex to validate, got %+v", res)
	}
}

func TestValidateList_DroppedMarkerIsInvalid(t *testing.T) {
	original := "- one\n- two\n- three"
	translated := "- one\n- two"
	res := validateList(original, translated)
	if res.Valid {
		t.Errorf("expected a dropped list marker to be invalid")
	}
}

func TestValidateList_ChangedNestingIsInvalid(t *testing.T) {
	original := "- one\n  - nested"
	translated := "- one\n- nested"
	res := validateList(original, translated)
	if res.Valid {
		t.Errorf("expected changed nesting depth to be invalid")
	}
}

func TestValidateList_PreservedIsValid(t *testing.T) {
	original := "- one\n  - nested"
	translated := "- un\n  - imbriqué"
	res := validateList(original, translated)
	if !res.Valid {
		t.Errorf("expected preserved markers/nesting to validate, got %+v", res)
	}
}

func TestCorrectionPrompt_ListsEachViolation(t *testing.T) {
	violations := []Violation{{Detail: "first issue"}, {Detail: "second issue"}}
	prompt := CorrectionPrompt(violations)
	if !strings.Contains(prompt, "first issue") || !strings.Contains(prompt, "second issue") {
		t.Errorf("expected the prompt to name every violation, got %q", prompt)
	}
}

func TestDescribeViolations_EmptyHasFallbackMessage(t *testing.T) {
	if msg := describeViolations(nil); msg == "" {
		t.Errorf("expected a non-empty fallback message")
	}
}

func TestDescribeViolations_JoinsMultiple(t *testing.T) {
	msg := describeViolations([]Violation{{Detail: "a"}, {Detail: "b"}})
	if !strings.Contains(msg, "a") || !strings.Contains(msg, "b") {
		t.Errorf("expected both violations to be joined, got %q", msg)
	}
}

func TestFailureMarker_AppendsMarker(t *testing.T) {
	if got := failureMarker("original"); !strings.Contains(got, "original") || !strings.Contains(got, "TRANSLATION_FAILED") {
		t.Errorf("unexpected failure marker output: %q", got)
	}
}

func TestMarkdownAwareSystemPrompt_NamesTargetLanguageAndTokens(t *testing.T) {
	prompt := markdownAwareSystemPrompt("French")
	if !strings.Contains(prompt, "French") {
		t.Errorf("expected the prompt to name the target language")
	}
	if !strings.Contains(prompt, transport.ParagraphBreakToken) || !strings.Contains(prompt, transport.ItemBreakToken) {
		t.Errorf("expected the prompt to name both placeholder tokens, got %q", prompt)
	}
}

func TestStrictStructuralPrompt_VariesByKind(t *testing.T) {
	table := strictStructuralPrompt("French", &docmodel.ContentBlock{Kind: docmodel.KindTable})
	code := strictStructuralPrompt("French", &docmodel.ContentBlock{Kind: docmodel.KindCodeBlock})
	if table == code {
		t.Errorf("expected table and code prompts to differ")
	}
}
