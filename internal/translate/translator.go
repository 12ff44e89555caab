package translate

import (
	"context"
	"fmt"

	"pdf-structural-translator/internal/batch"
	"pdf-structural-translator/internal/cache"
	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/llm"
	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/quarantine"
	"pdf-structural-translator/internal/router"
	"pdf-structural-translator/internal/transport"
	"pdf-structural-translator/internal/types"
)

// Config carries the per-run parameters the Translator needs beyond its
// collaborators.
type Config struct {
	TargetLanguage        string
	CostModel             string
	QualityModel          string
	MaxCorrectionAttempts int // self_correction.max_attempts, clamped to 0-5
}

// Endpoint is the slice of internal/llm.Client the Translator depends on.
// Kept narrow so tests can script responses without a live model behind them.
type Endpoint interface {
	Translate(ctx context.Context, tier llm.Tier, req llm.Request) (llm.Response, error)
}

// Translator is the self-correcting translator plus the markdown-aware
// group dispatch. One instance is shared by every worker
// the Batch Executor spawns; it holds no per-block mutable state.
type Translator struct {
	llm        Endpoint
	cache      *cache.Cache
	quarantine *quarantine.Store
	cfg        Config
}

// New builds a Translator over its collaborators.
func New(llmClient Endpoint, c *cache.Cache, q *quarantine.Store, cfg Config) *Translator {
	if cfg.MaxCorrectionAttempts < 0 {
		cfg.MaxCorrectionAttempts = 0
	}
	if cfg.MaxCorrectionAttempts > 5 {
		cfg.MaxCorrectionAttempts = 5
	}
	return &Translator{llm: llmClient, cache: c, quarantine: q, cfg: cfg}
}

// Work adapts the Translator to internal/batch.Work, dispatching each Group
// by the strategy its items share (grouping.go guarantees every item in a
// non-singleton Group shares one strategy/tier; singleton groups may be any
// strategy).
func (t *Translator) Work(documentID string) batch.Work {
	return func(ctx context.Context, g batch.Group) (map[string]string, error) {
		if len(g.Items) == 0 {
			return nil, nil
		}

		strategy := g.Items[0].Decision.Strategy
		switch strategy {
		case router.StrategyPreserve:
			return t.translatePreserve(g.Items), nil
		case router.StrategySelfCorrecting:
			return t.translateSelfCorrectingGroup(ctx, documentID, g.Items)
		default: // markdown_aware_quality, markdown_aware_cost
			return t.translateMarkdownGroup(ctx, documentID, g.Items)
		}
	}
}

// translatePreserve implements the "preserve" strategy: copy
// original_text to translated_text verbatim, no API call.
func (t *Translator) translatePreserve(items []batch.Item) map[string]string {
	out := make(map[string]string, len(items))
	for _, it := range items {
		out[it.Block.ID] = it.Block.OriginalText
	}
	return out
}

// tierModel resolves a router.Tier to the concrete model_identifier used as
// the cache's third key dimension.
func (t *Translator) tierModel(tier router.Tier) string {
	if tier == router.TierCost {
		return t.cfg.CostModel
	}
	return t.cfg.QualityModel
}

func (t *Translator) llmTier(tier router.Tier) llm.Tier {
	if tier == router.TierCost {
		return llm.TierCost
	}
	return llm.TierQuality
}

// translateMarkdownGroup serializes the group to transport form, translates,
// splits and validates it. A fresh response whose split left any block
// without a part, or that fails group-level validation, sends every block of
// the group to the self-correcting path; a cached response sends only the
// blocks without a part there.
func (t *Translator) translateMarkdownGroup(ctx context.Context, documentID string, items []batch.Item) (map[string]string, error) {
	model := t.tierModel(items[0].Decision.Tier)
	tier := t.llmTier(items[0].Decision.Tier)

	payloads := make([]string, len(items))
	for i, it := range items {
		payloads[i] = it.Block.OriginalText
	}
	groupText := transport.Group(payloads)

	if cached, ok := t.cache.Lookup(ctx, groupText, t.cfg.TargetLanguage, model); ok {
		split := transport.Split(cached.TranslatedText, len(items))
		if len(split.FailedIndices) > 0 {
			logger.Warn("transport split left blocks without a part", logger.String("document_id", documentID), logger.Int("failed_blocks", len(split.FailedIndices)))
		}
		return t.applySplit(ctx, documentID, items, split, tier, model), nil
	}

	resp, err := t.llm.Translate(ctx, tier, llm.Request{
		Text:               groupText,
		TargetLanguage:      t.cfg.TargetLanguage,
		ModelIdentifier:     model,
		SystemInstructions:  markdownAwareSystemPrompt(t.cfg.TargetLanguage),
	})
	if err != nil {
		return t.escalateAllToSelfCorrecting(ctx, documentID, items)
	}
	if resp.FinishReason == llm.FinishLengthCap {
		return t.halveAndRetry(ctx, documentID, items)
	}

	split := transport.Split(resp.TranslatedText, len(items))
	if len(split.FailedIndices) > 0 {
		logger.Warn("transport split left blocks without a part", logger.String("document_id", documentID), logger.Int("failed_blocks", len(split.FailedIndices)))
	}
	scores := transport.Validate(groupText, resp.TranslatedText)
	if !scores.Passes() || len(split.FailedIndices) > 0 {
		return t.escalateAllToSelfCorrecting(ctx, documentID, items)
	}

	qualityScore := 1.0
	if split.Method != transport.MethodDirect {
		qualityScore = 0.7
	}
	t.cache.Write(ctx, groupText, t.cfg.TargetLanguage, model, resp.TranslatedText, qualityScore)

	return t.applySplit(ctx, documentID, items, split, tier, model), nil
}

func (t *Translator) applySplit(ctx context.Context, documentID string, items []batch.Item, split transport.SplitResult, tier llm.Tier, model string) map[string]string {
	failed := make(map[int]bool, len(split.FailedIndices))
	for _, i := range split.FailedIndices {
		failed[i] = true
	}

	out := make(map[string]string, len(items))
	for i, it := range items {
		if failed[i] || i >= len(split.Parts) {
			result, err := t.translateSelfCorrecting(ctx, documentID, it.Block, tier, model)
			if err != nil {
				out[it.Block.ID] = it.Block.OriginalText
				continue
			}
			out[it.Block.ID] = result
			continue
		}
		out[it.Block.ID] = transport.FromTransportForm(split.Parts[i])
	}
	return out
}

// halveAndRetry handles a length_cap finish: the batch is halved and
// each half retried independently. A single capped block cannot be halved
// further and escalates to the self-correcting path, which retries it under
// its own attempt budget.
func (t *Translator) halveAndRetry(ctx context.Context, documentID string, items []batch.Item) (map[string]string, error) {
	if len(items) <= 1 {
		return t.escalateAllToSelfCorrecting(ctx, documentID, items)
	}
	mid := len(items) / 2
	out := make(map[string]string, len(items))
	for _, half := range [][]batch.Item{items[:mid], items[mid:]} {
		res, err := t.translateMarkdownGroup(ctx, documentID, half)
		if err != nil {
			return nil, err
		}
		for id, translated := range res {
			out[id] = translated
		}
	}
	return out, nil
}

func (t *Translator) escalateAllToSelfCorrecting(ctx context.Context, documentID string, items []batch.Item) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, it := range items {
		model := t.tierModel(router.TierQuality)
		result, err := t.translateSelfCorrecting(ctx, documentID, it.Block, llm.TierQuality, model)
		if err != nil {
			out[it.Block.ID] = it.Block.OriginalText
			continue
		}
		out[it.Block.ID] = result
	}
	return out, nil
}

// translateSelfCorrectingGroup runs every item in a self_correcting group
// (currently only Tables route here; consecutive Tables can share a Group,
// and each item is translated and validated on its own).
func (t *Translator) translateSelfCorrectingGroup(ctx context.Context, documentID string, items []batch.Item) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, it := range items {
		model := t.tierModel(router.TierQuality)
		result, err := t.translateSelfCorrecting(ctx, documentID, it.Block, llm.TierQuality, model)
		if err != nil {
			out[it.Block.ID] = it.Block.OriginalText
			continue
		}
		out[it.Block.ID] = result
	}
	return out, nil
}

// translateSelfCorrecting translates with a strict
// structural-preservation prompt, validate, and on failure retry with a
// targeted correction prompt up to max_correction_attempts. On exhaustion,
// quarantine the block and substitute original_text with a
// [TRANSLATION_FAILED] marker.
func (t *Translator) translateSelfCorrecting(ctx context.Context, documentID string, block *docmodel.ContentBlock, tier llm.Tier, model string) (string, error) {
	if cached, ok := t.cache.Lookup(ctx, block.OriginalText, t.cfg.TargetLanguage, model); ok {
		return cached.TranslatedText, nil
	}

	prompt := strictStructuralPrompt(t.cfg.TargetLanguage, block)
	var lastViolations []Violation

	for attempt := 0; attempt <= t.cfg.MaxCorrectionAttempts; attempt++ {
		systemInstructions := prompt
		if attempt > 0 {
			systemInstructions = prompt + "\n\n" + CorrectionPrompt(lastViolations)
		}

		resp, err := t.llm.Translate(ctx, tier, llm.Request{
			Text:               block.OriginalText,
			TargetLanguage:      t.cfg.TargetLanguage,
			ModelIdentifier:     model,
			SystemInstructions:  systemInstructions,
		})
		if err != nil {
			if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrTranslationEndpointBlocked {
				t.quarantineBlock(documentID, block, err.Error(), attempt+1)
				return failureMarker(block.OriginalText), nil
			}
			lastViolations = []Violation{{Detail: "translation call failed: " + err.Error()}}
			continue
		}

		result := ValidateStructured(block, resp.TranslatedText)
		if result.Valid {
			qualityScore := 1.0
			if attempt > 0 {
				qualityScore = 1.0 - float64(attempt)*0.15
			}
			t.cache.Write(ctx, block.OriginalText, t.cfg.TargetLanguage, model, resp.TranslatedText, qualityScore)
			return resp.TranslatedText, nil
		}
		lastViolations = result.Violations
	}

	t.quarantineBlock(documentID, block, describeViolations(lastViolations), t.cfg.MaxCorrectionAttempts+1)
	return failureMarker(block.OriginalText), nil
}

func (t *Translator) quarantineBlock(documentID string, block *docmodel.ContentBlock, lastError string, attempts int) {
	block.SetMetadata("translation_failed", "true")
	if t.quarantine == nil {
		return
	}
	if err := t.quarantine.Record(quarantine.Record{
		DocumentID:   documentID,
		BlockID:      block.ID,
		BlockType:    block.Kind,
		OriginalText: block.OriginalText,
		LastError:    lastError,
		AttemptCount: attempts,
	}); err != nil {
		logger.Warn("failed to record quarantine entry", logger.Err(err), logger.String("block_id", block.ID))
	}
}

func failureMarker(original string) string {
	return original + " [TRANSLATION_FAILED]"
}

func describeViolations(violations []Violation) string {
	if len(violations) == 0 {
		return "structural validation failed"
	}
	msg := violations[0].Detail
	for _, v := range violations[1:] {
		msg += "; " + v.Detail
	}
	return msg
}

func markdownAwareSystemPrompt(targetLanguage string) string {
	return fmt.Sprintf(
		"Translate the following markdown text to %s. Preserve every markdown structural "+
			"character (#, *, -, |, table pipes) and the literal tokens %s and %s exactly as written; "+
			"do not translate, remove, or reorder them.",
		targetLanguage, transport.ParagraphBreakToken, transport.ItemBreakToken)
}

func strictStructuralPrompt(targetLanguage string, block *docmodel.ContentBlock) string {
	base := fmt.Sprintf("Translate the following %s to %s, preserving its exact structure.", block.Kind, targetLanguage)
	switch block.Kind {
	case docmodel.KindTable:
		return base + " Keep the exact number of rows and columns, and every separator row."
	case docmodel.KindCodeBlock:
		return base + " Do not translate code; only translate comments, and keep every fence and the language tag."
	case docmodel.KindMathFormula:
		return base + " This should never reach the translator; return the input unchanged."
	case docmodel.KindListItem:
		return base + " Preserve every list marker and indentation level exactly."
	default:
		return base
	}
}
