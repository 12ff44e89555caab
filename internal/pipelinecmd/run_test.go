package pipelinecmd

import (
	"errors"
	"testing"

	"pdf-structural-translator/internal/config"
	"pdf-structural-translator/internal/extract/layout"
	"pdf-structural-translator/internal/types"
)

func TestExitCodeFor_MapsErrorKindsToExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"extractor timeout", types.NewAppError(types.ErrExtractorTimeout, "x", nil), 2},
		{"extractor unavailable", types.NewAppError(types.ErrExtractorUnavailable, "x", nil), 2},
		{"corrupt input", types.NewAppError(types.ErrExtractorCorruptInput, "x", nil), 2},
		{"translation endpoint transient", types.NewAppError(types.ErrTranslationEndpointTransient, "x", nil), 3},
		{"translation endpoint blocked", types.NewAppError(types.ErrTranslationEndpointBlocked, "x", nil), 3},
		{"assembler invariant", types.NewAppError(types.ErrAssemblerInvariantViolated, "x", nil), 2},
		{"image preservation", types.NewAppError(types.ErrImagePreservationViolation, "x", nil), 2},
		{"unmapped kind", types.NewAppError(types.ErrInternal, "x", nil), 1},
		{"non-AppError", errors.New("plain error"), 1},
	}
	for _, c := range cases {
		if got := exitCodeFor(c.err); got != c.want {
			t.Errorf("%s: got exit code %d, want %d", c.name, got, c.want)
		}
	}
}

func TestBuildLayoutExtractor_Heuristic(t *testing.T) {
	e, err := buildLayoutExtractor("heuristic")
	if err != nil {
		t.Fatalf("buildLayoutExtractor(heuristic): %v", err)
	}
	if _, ok := e.(*layout.HeuristicExtractor); !ok {
		t.Errorf("expected a *layout.HeuristicExtractor, got %T", e)
	}
}

func TestBuildLayoutExtractor_EmptyDefaultsToHeuristic(t *testing.T) {
	e, err := buildLayoutExtractor("")
	if err != nil {
		t.Fatalf("buildLayoutExtractor(\"\"): %v", err)
	}
	if _, ok := e.(*layout.HeuristicExtractor); !ok {
		t.Errorf("expected a *layout.HeuristicExtractor, got %T", e)
	}
}

func TestBuildLayoutExtractor_OnnxNotYetWired(t *testing.T) {
	if _, err := buildLayoutExtractor("onnx"); err == nil {
		t.Errorf("expected onnx to return a configuration error until a model path flag exists")
	}
}

func TestBuildLayoutExtractor_UnknownEngineIsAnError(t *testing.T) {
	if _, err := buildLayoutExtractor("something-else"); err == nil {
		t.Errorf("expected an unknown engine name to error")
	}
}

func TestGroupingBatchReconciliationConfig_CarryConfigValuesThrough(t *testing.T) {
	cfg := &config.Config{}
	cfg.Grouping.Enable = true
	cfg.Grouping.MaxGroupSizeChars = 500
	cfg.Grouping.MaxItemsPerGroup = 4
	cfg.Translation.MaxConcurrentTranslations = 3
	cfg.Reconciliation.MinImageWidthPx = 50
	cfg.Reconciliation.MinImageHeightPx = 60
	cfg.Reconciliation.MaxAspectRatio = 20

	g := grouping(cfg)
	if !g.Enable || g.MaxGroupSizeChars != 500 || g.MaxItemsPerGroup != 4 {
		t.Errorf("unexpected grouping config: %+v", g)
	}

	b := batchConfig(cfg)
	if b.MaxConcurrent != 3 || b.RequestsPerMinute != 180 {
		t.Errorf("unexpected batch config: %+v", b)
	}

	r := reconciliationConfig(cfg)
	if r.MinImageWidthPx != 50 || r.MinImageHeightPx != 60 || r.MaxAspectRatio != 20 || r.PageHeightHint != 792 {
		t.Errorf("unexpected reconciliation config: %+v", r)
	}
}
