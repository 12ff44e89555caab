// Package pipelinecmd wires cmd/pdftranslate's one real dependency: config
// loading, collaborator construction, and persisting the pipeline's result
// to disk, translating the outcome into the command's exit codes.
package pipelinecmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pdf-structural-translator/internal/batch"
	"pdf-structural-translator/internal/cache"
	"pdf-structural-translator/internal/config"
	"pdf-structural-translator/internal/embedding"
	appErrors "pdf-structural-translator/internal/errors"
	"pdf-structural-translator/internal/extract/layout"
	"pdf-structural-translator/internal/extract/visual"
	"pdf-structural-translator/internal/llm"
	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/pipeline"
	"pdf-structural-translator/internal/quarantine"
	"pdf-structural-translator/internal/reconcile"
	"pdf-structural-translator/internal/translate"
	"pdf-structural-translator/internal/types"
)

// Options carries the command surface's three inputs plus the config
// file path cobra resolved from flags.
type Options struct {
	InputPDFPath           string
	OutputDir              string
	TargetLanguageOverride string
	ConfigFile             string
}

// Run executes one document end to end and returns the process exit code
// alongside any error worth printing.
func Run(ctx context.Context, opts Options) (int, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return 1, fmt.Errorf("config error: %w", err)
	}
	if opts.TargetLanguageOverride != "" {
		cfg.Translation.TargetLanguage = opts.TargetLanguageOverride
	}

	if err := logger.Init(&logger.Config{
		LogFilePath:   filepath.Join(opts.OutputDir, cfg.Logging.FilePath),
		MaxFileSize:   cfg.Logging.MaxFileSizeMB * 1024 * 1024,
		MaxBackups:    cfg.Logging.MaxBackups,
		Level:         logger.ParseLevel(cfg.Logging.Level),
		EnableConsole: cfg.Logging.EnableConsole,
	}); err != nil {
		return 1, fmt.Errorf("config error: init logger: %w", err)
	}
	defer logger.Close()

	llmClient, err := llm.NewClient(ctx, llm.Config{
		APIKey:         cfg.Translation.APIKey,
		CostModel:      cfg.Routing.CostModel,
		QualityModel:   cfg.Routing.QualityModel,
		RequestTimeout: time.Duration(cfg.Translation.RequestTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return 1, fmt.Errorf("config error: build translation endpoint client: %w", err)
	}

	var embedder cache.Embedder
	if cfg.Cache.EnablePersistent {
		provider, err := embedding.NewProvider(ctx, embedding.Config{
			APIKey: cfg.Translation.APIKey,
			Model:  cfg.Cache.EmbeddingModel,
		})
		if err != nil {
			return 1, fmt.Errorf("config error: build embedding provider: %w", err)
		}
		embedder = provider
	}

	translationCache, err := cache.New(cache.Config{
		EnableMemory:        cfg.Cache.EnableMemory,
		MemoryCapacity:      cfg.Cache.MemoryCapacity,
		EnablePersistent:    cfg.Cache.EnablePersistent,
		PersistentPath:      cfg.Cache.PersistentPath,
		PersistentCapacity:  cfg.Cache.PersistentCapacity,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
	}, embedder)
	if err != nil {
		return 1, fmt.Errorf("config error: build cache: %w", err)
	}
	if err := translationCache.LoadMemoryDump(filepath.Join("cache", "memory_dump.bin")); err != nil {
		logger.Warn("cache warm-start skipped", logger.Err(err))
	}

	documentStem := strings.TrimSuffix(filepath.Base(opts.InputPDFPath), filepath.Ext(opts.InputPDFPath))
	docOutputDir := filepath.Join(opts.OutputDir, documentStem)
	quarantineDir := filepath.Join(docOutputDir, cfg.Quarantine.Directory)

	quarantineStore, err := quarantine.New(quarantineDir, cfg.Quarantine.RetentionDays)
	if err != nil {
		return 1, fmt.Errorf("config error: open quarantine store: %w", err)
	}

	translator := translate.New(llmClient, translationCache, quarantineStore, translate.Config{
		TargetLanguage:        cfg.Translation.TargetLanguage,
		CostModel:             cfg.Routing.CostModel,
		QualityModel:          cfg.Routing.QualityModel,
		MaxCorrectionAttempts: cfg.SelfCorrection.MaxAttempts,
	})

	layoutExtractor, err := buildLayoutExtractor(cfg.Reconciliation.LayoutEngine)
	if err != nil {
		return 1, fmt.Errorf("config error: %w", err)
	}
	visualExtractor := visual.NewPDFCPUExtractor()

	controller := pipeline.New(layoutExtractor, visualExtractor, translator, quarantineStore, pipeline.Config{
		Routing: pipeline.RoutingConfig{
			Strategy:            cfg.Routing.Strategy,
			ComplexityThreshold: cfg.Routing.ComplexityThreshold,
		},
		Grouping: grouping(cfg),
		Batch: batchConfig(cfg),
		Reconciliation: reconciliationConfig(cfg),
		// Tracing is persisted by persistResult at the documented literal path
		// (<output_dir>/<document_stem>/trace.json) rather than by the
		// controller, which otherwise names the file by document id.
		TracingEnabled: false,
	})

	var result *pipeline.Result
	runErr := appErrors.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = controller.ProcessDocument(ctx, opts.InputPDFPath, nil)
		return err
	})
	if runErr != nil {
		return exitCodeFor(runErr), runErr
	}

	if err := persistResult(docOutputDir, result, cfg.Tracing.Enable); err != nil {
		return 1, fmt.Errorf("failed to persist output: %w", err)
	}
	if err := translationCache.DumpMemory(filepath.Join("cache", "memory_dump.bin")); err != nil {
		logger.Warn("cache warm-start dump skipped", logger.Err(err))
	}

	if result.Quarantined {
		return 4, nil
	}
	return 0, nil
}

// exitCodeFor maps a failed document's error to the exit code table.
func exitCodeFor(err error) int {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return 1
	}
	switch appErr.Code {
	case types.ErrExtractorTimeout, types.ErrExtractorUnavailable, types.ErrExtractorCorruptInput:
		return 2
	case types.ErrTranslationEndpointTransient, types.ErrTranslationEndpointBlocked:
		return 3
	case types.ErrAssemblerInvariantViolated, types.ErrImagePreservationViolation:
		return 2
	default:
		return 1
	}
}

func buildLayoutExtractor(engine string) (layout.Extractor, error) {
	switch engine {
	case "onnx":
		return nil, fmt.Errorf("reconciliation.layout_engine \"onnx\" requires a model path not exposed by this command surface yet; use \"heuristic\"")
	case "heuristic", "":
		return layout.NewHeuristicExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown reconciliation.layout_engine %q", engine)
	}
}

func grouping(cfg *config.Config) batch.GroupingConfig {
	return batch.GroupingConfig{
		Enable:            cfg.Grouping.Enable,
		MaxGroupSizeChars: cfg.Grouping.MaxGroupSizeChars,
		MaxItemsPerGroup:  cfg.Grouping.MaxItemsPerGroup,
	}
}

func batchConfig(cfg *config.Config) batch.Config {
	return batch.Config{
		MaxConcurrent:     cfg.Translation.MaxConcurrentTranslations,
		RequestsPerMinute: cfg.Translation.MaxConcurrentTranslations * 60,
	}
}

func reconciliationConfig(cfg *config.Config) reconcile.Config {
	return reconcile.Config{
		MinImageWidthPx:  cfg.Reconciliation.MinImageWidthPx,
		MinImageHeightPx: cfg.Reconciliation.MinImageHeightPx,
		MaxAspectRatio:   float64(cfg.Reconciliation.MaxAspectRatio),
		PageHeightHint:   792,
		ExtractorTimeout: 1200 * time.Second,
	}
}
