// Package router implements the translation strategy router: for every
// ContentBlock it decides a strategy and, for markdown-aware strategies, a
// model tier, combining per-kind dispatch with a complexity score and a
// global strategy knob.
package router

import (
	"regexp"
	"strings"

	"pdf-structural-translator/internal/docmodel"
)

// Strategy names the handler a block is dispatched to.
type Strategy string

const (
	StrategyPreserve             Strategy = "preserve"
	StrategySelfCorrecting       Strategy = "self_correcting"
	StrategyMarkdownAwareQuality Strategy = "markdown_aware_quality"
	StrategyMarkdownAwareCost    Strategy = "markdown_aware_cost"
)

// Tier names the model tier a markdown-aware strategy dispatches to.
type Tier string

const (
	TierCost    Tier = "cost"
	TierQuality Tier = "quality"
	// TierNone applies to strategies that never call the translation
	// endpoint (preserve). self_correcting decisions carry TierQuality: that
	// path always uses the quality tier for its "strict
	// structural-preservation prompt".
	TierNone Tier = ""
)

// Knob is the global strategy setting that shifts Paragraph routing
// thresholds.
type Knob string

const (
	KnobCostOptimized  Knob = "cost_optimized"
	KnobQualityFocused Knob = "quality_focused"
	KnobBalanced       Knob = "balanced"
	KnobSpeedFocused   Knob = "speed_focused"
)

// Config carries the routing thresholds.
type Config struct {
	Knob                Knob
	ComplexityThreshold float64 // base threshold for balanced; shifted per knob below
}

// Decision is the Router's output for one block.
type Decision struct {
	Strategy   Strategy
	Tier       Tier
	Complexity float64 // 0 for non-Paragraph blocks
}

// Route classifies block and returns its Decision, following the
// fixed precedence table: preserve/self_correcting choices never
// change based on the knob, only Paragraph cost-vs-quality routing does.
func Route(block *docmodel.ContentBlock, cfg Config) Decision {
	switch block.Kind {
	case docmodel.KindMathFormula, docmodel.KindCodeBlock, docmodel.KindImagePlaceholder:
		return Decision{Strategy: StrategyPreserve, Tier: TierNone}
	case docmodel.KindTable:
		return Decision{Strategy: StrategySelfCorrecting, Tier: TierQuality}
	case docmodel.KindHeading, docmodel.KindFootnote, docmodel.KindCaption:
		return Decision{Strategy: StrategyMarkdownAwareQuality, Tier: TierQuality}
	case docmodel.KindListItem:
		return routeParagraphLike(block.OriginalText, cfg)
	case docmodel.KindParagraph:
		return routeParagraphLike(block.OriginalText, cfg)
	default:
		return Decision{Strategy: StrategyMarkdownAwareQuality, Tier: TierQuality}
	}
}

func routeParagraphLike(text string, cfg Config) Decision {
	score := ComplexityScore(text)
	threshold := thresholdFor(cfg)
	if score >= threshold {
		return Decision{Strategy: StrategyMarkdownAwareQuality, Tier: TierQuality, Complexity: score}
	}
	return Decision{Strategy: StrategyMarkdownAwareCost, Tier: TierCost, Complexity: score}
}

// thresholdFor shifts the base complexity_threshold per the global knob
//: cost_optimized pushes more paragraphs to the cost tier by raising
// the bar for "complex"; quality_focused lowers it so more paragraphs
// escalate to quality; speed_focused behaves like cost_optimized (fewer,
// cheaper round-trips favor throughput); balanced uses the configured value
// unshifted.
func thresholdFor(cfg Config) float64 {
	base := cfg.ComplexityThreshold
	if base <= 0 {
		base = 0.5
	}
	switch cfg.Knob {
	case KnobCostOptimized, KnobSpeedFocused:
		return base * 1.5
	case KnobQualityFocused:
		return base * 0.5
	default:
		return base
	}
}

var (
	citationRef   = regexp.MustCompile(`\[\d+\]`)
	inlineMathRef = regexp.MustCompile(`\$[^$]+\$`)
)

// rareGlossaryTerms is a small seed set of terms whose presence signals
// domain-specific text that benefits from the quality tier. A real
// deployment would load this from the glossary configured alongside the
// target language; no glossary file format is defined here, so the set
// here covers the terms common to academic/technical PDFs.
var rareGlossaryTerms = []string{
	"theorem", "lemma", "corollary", "asymptotic", "eigenvalue",
	"homomorphism", "covariance", "regularization", "isomorphic",
}

// ComplexityScore computes a weighted sum of complexity signals: word count,
// citation count, inline math marker count, parenthetical depth, and rare
// glossary term presence. The result is unitless and only meaningful
// relative to complexity_threshold.
func ComplexityScore(text string) float64 {
	words := len(strings.Fields(text))
	citations := len(citationRef.FindAllString(text, -1))
	mathMarkers := len(inlineMathRef.FindAllString(text, -1))
	depth := maxParenDepth(text)
	glossaryHits := countGlossaryHits(text)

	// Word count dominates for long paragraphs but is normalized against a
	// 100-word paragraph so it doesn't swamp the other signals; the other
	// terms are additive per-occurrence weights.
	return float64(words)/100.0 +
		float64(citations)*0.15 +
		float64(mathMarkers)*0.2 +
		float64(depth)*0.1 +
		float64(glossaryHits)*0.25
}

func maxParenDepth(text string) int {
	depth, max := 0, 0
	for _, r := range text {
		switch r {
		case '(':
			depth++
			if depth > max {
				max = depth
			}
		case ')':
			if depth > 0 {
				depth--
			}
		}
	}
	return max
}

func countGlossaryHits(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, term := range rareGlossaryTerms {
		if strings.Contains(lower, term) {
			count++
		}
	}
	return count
}
