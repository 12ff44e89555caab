// Package pipeline wires the per-document controller: single-writer over
// the Document, many workers for translation. internal/pipelinecmd builds a
// Controller and calls ProcessDocument on behalf of cmd/pdftranslate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pdf-structural-translator/internal/assembler"
	"pdf-structural-translator/internal/batch"
	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/extract/layout"
	"pdf-structural-translator/internal/extract/visual"
	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/quarantine"
	"pdf-structural-translator/internal/reconcile"
	"pdf-structural-translator/internal/router"
	"pdf-structural-translator/internal/tracing"
	"pdf-structural-translator/internal/translate"
	"pdf-structural-translator/internal/types"
)

// RoutingConfig carries the routing config section through to internal/router.
type RoutingConfig struct {
	Strategy            string
	ComplexityThreshold float64
}

// Config bundles every per-run parameter the controller needs to build its
// collaborators. Collaborators with their own lifetime (llm.Client,
// cache.Cache) are constructed by the caller and passed into New, per the
// "explicit lifetime, no global singletons" rule — tests inject
// in-memory-only substitutes.
type Config struct {
	Routing        RoutingConfig
	Grouping       batch.GroupingConfig
	Batch          batch.Config
	Reconciliation reconcile.Config
	TracingDir     string
	TracingEnabled bool
}

// Controller owns a single Document's traversal of the pipeline.
type Controller struct {
	reconciler *reconcile.Reconciler
	translator *translate.Translator
	quarantine *quarantine.Store
	cfg        Config

	mu     sync.Mutex
	status types.Status
}

// New builds a Controller. layoutExtractor/visualExtractor are the concrete
// implementations selected by reconciliation.layout_engine.
func New(layoutExtractor layout.Extractor, visualExtractor visual.Extractor, translator *translate.Translator, q *quarantine.Store, cfg Config) *Controller {
	return &Controller{
		reconciler: reconcile.New(layoutExtractor, visualExtractor, cfg.Reconciliation),
		translator: translator,
		quarantine: q,
		cfg:        cfg,
	}
}

// Result is what a successful (possibly partially quarantined) run produces.
type Result struct {
	Document  *docmodel.Document
	Assembled *assembler.Assembled
	Trace     *tracing.Trace
	Quarantined bool
}

// ProcessDocument runs the full pipeline for one PDF: reconcile, route,
// translate (via the batch executor), assemble. Block-scoped failures never
// abort the Document; Document-scoped fatals
// (extractor failure, assembler invariant violations) return an error.
func (c *Controller) ProcessDocument(ctx context.Context, pdfPath string, progress batch.ProgressFunc) (*Result, error) {
	trace := tracing.New(pdfPath)

	c.setStatus(types.PhaseReconciling, 0, "reconciling extractor output")
	doc, err := c.reconciler.Reconcile(ctx, pdfPath, trace)
	if err != nil {
		c.failStatus(ctx, err)
		return nil, fmt.Errorf("pipeline: reconciliation failed: %w", err)
	}
	trace.DocumentID = doc.ID
	logger.Info("reconciliation complete",
		logger.String("document_id", doc.ID),
		logger.Int("total_blocks", len(doc.AllBlocks())),
		logger.Int("image_blocks", len(doc.BlocksOfKind(docmodel.KindImagePlaceholder))))

	recordAudit(trace, tracing.StageReconciliation, doc)

	c.setStatus(types.PhaseRouting, 15, "routing blocks to strategies")
	routeSpan := trace.StartSpan(tracing.StageRouting)
	items := c.route(doc)
	routeSpan.TotalBlocks = len(items)
	routeSpan.Finish(trace)
	recordAudit(trace, tracing.StageRouting, doc)

	groups := batch.GroupItems(items, c.cfg.Grouping)

	c.setStatus(types.PhaseTranslating, 20, "translating blocks")
	translateSpan := trace.StartSpan(tracing.StageTranslation)
	executor := batch.NewExecutor(c.cfg.Batch)
	results := executor.Run(ctx, groups, c.translator.Work(doc.ID), c.trackProgress(len(groups), progress))
	if ctx.Err() != nil {
		// Completed batches were already flushed to the cache; a resumed run
		// re-reads them and skips straight to the unfinished blocks.
		c.setStatus(types.PhasePaused, 20, "cancelled mid-translation, resumable from cache")
		return nil, fmt.Errorf("pipeline: translation cancelled: %w", ctx.Err())
	}
	c.applyResults(doc, results)
	translateSpan.APICalls = countAPICalls(groups)
	translateSpan.Finish(trace)
	recordAudit(trace, tracing.StageTranslation, doc)

	c.setStatus(types.PhaseAssembling, 90, "assembling output document")
	assembleSpan := trace.StartSpan(tracing.StageAssembly)
	assembled, err := assembler.Assemble(doc)
	assembleSpan.Finish(trace)
	if err != nil {
		c.failStatus(ctx, err)
		return nil, fmt.Errorf("pipeline: assembly failed: %w", err)
	}
	recordAudit(trace, tracing.StageAssembly, doc)

	if violations := docmodel.CheckInvariants(doc); len(violations) > 0 {
		err := types.NewAppError(types.ErrAssemblerInvariantViolated,
			fmt.Sprintf("%d document invariant violation(s) at assembly", len(violations)), nil)
		c.failStatus(ctx, err)
		return nil, err
	}

	if c.cfg.TracingEnabled {
		if err := trace.Persist(c.cfg.TracingDir); err != nil {
			return nil, fmt.Errorf("pipeline: persist trace: %w", err)
		}
	}

	quarantined := c.quarantine != nil && c.quarantine.HasAny(doc.ID)
	if quarantined {
		logger.Warn("document completed with quarantined blocks",
			logger.String("document_id", doc.ID),
			logger.String("stage", string(tracing.StageTranslation)))
	}
	c.setStatus(types.PhaseComplete, 100, "done")
	return &Result{Document: doc, Assembled: assembled, Trace: trace, Quarantined: quarantined}, nil
}

// Status reports the phase the Document currently occupies, for callers
// polling progress while ProcessDocument runs on another goroutine.
func (c *Controller) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(phase types.ProcessPhase, progress int, message string) {
	c.mu.Lock()
	c.status = types.Status{Phase: phase, Progress: progress, Message: message}
	c.mu.Unlock()
}

// failStatus distinguishes a cancelled (resumable) document from a failed
// one: cancellation parks the Document in the paused phase.
func (c *Controller) failStatus(ctx context.Context, err error) {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.setStatus(types.PhasePaused, c.Status().Progress, "cancelled, resumable from cache")
		return
	}
	c.mu.Lock()
	c.status = types.Status{Phase: types.PhaseError, Progress: c.status.Progress, Message: "failed", Error: err.Error()}
	c.mu.Unlock()
}

// trackProgress folds batch completion counts into the translating phase's
// progress percentage while still forwarding to the caller's callback.
func (c *Controller) trackProgress(total int, inner batch.ProgressFunc) batch.ProgressFunc {
	return func(completed, totalGroups int) {
		if total > 0 {
			pct := 20 + (70*completed)/total
			c.setStatus(types.PhaseTranslating, pct, "translating blocks")
		}
		if inner != nil {
			inner(completed, totalGroups)
		}
	}
}

// route applies the Strategy Router to every translatable block in
// Document order, in the order the Batch Executor will later need to
// preserve (the ordering guarantee starts here: items is already in
// Document order, and grouping never reorders it).
func (c *Controller) route(doc *docmodel.Document) []batch.Item {
	routingCfg := router.Config{
		Knob:                router.Knob(c.cfg.Routing.Strategy),
		ComplexityThreshold: c.cfg.Routing.ComplexityThreshold,
	}

	var items []batch.Item
	for _, b := range doc.AllBlocks() {
		if b.Kind == docmodel.KindFootnote && b.TranslatedText != "" {
			continue
		}
		items = append(items, batch.Item{Block: b, Decision: router.Route(b, routingCfg)})
	}
	return items
}

// applyResults is the controller's one write path into the Document: it
// assigns each group's translations by block id, the "workers return
// translations by block-id into a results channel consumed by the
// controller" model.
func (c *Controller) applyResults(doc *docmodel.Document, results []batch.Result) {
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for blockID, translated := range r.Translations {
			if b := doc.FindBlock(blockID); b != nil {
				b.TranslatedText = translated
			}
		}
	}
}

func countAPICalls(groups []batch.Group) int {
	n := 0
	for _, g := range groups {
		if len(g.Items) > 0 && g.Items[0].Decision.Strategy != router.StrategyPreserve {
			n++
		}
	}
	return n
}

func recordAudit(trace *tracing.Trace, stage tracing.StageName, doc *docmodel.Document) {
	audit := tracing.Audit{
		Stage:       stage,
		TotalBlocks: len(doc.AllBlocks()),
		ImageBlocks: len(doc.BlocksOfKind(docmodel.KindImagePlaceholder)),
		TextBlocks:  len(doc.BlocksOfKind(docmodel.KindParagraph)) + len(doc.BlocksOfKind(docmodel.KindHeading)),
		MathBlocks:  len(doc.BlocksOfKind(docmodel.KindMathFormula)),
		TableBlocks: len(doc.BlocksOfKind(docmodel.KindTable)),
	}
	_ = trace.RecordAudit(audit)
}
