package translate

import (
	"context"
	"strings"
	"sync"
	"testing"

	"pdf-structural-translator/internal/batch"
	"pdf-structural-translator/internal/cache"
	"pdf-structural-translator/internal/docmodel"
	"pdf-structural-translator/internal/llm"
	"pdf-structural-translator/internal/quarantine"
	"pdf-structural-translator/internal/router"
	"pdf-structural-translator/internal/transport"
	"pdf-structural-translator/internal/types"
)

// fakeEndpoint scripts the translation endpoint: respond receives the
// zero-based call number and the request, and returns whatever the test
// wants the endpoint to say.
type fakeEndpoint struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(call int, req llm.Request) (llm.Response, error)
}

func (f *fakeEndpoint) Translate(ctx context.Context, tier llm.Tier, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	return f.respond(n, req)
}

func (f *fakeEndpoint) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func memoryOnlyCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{EnableMemory: true, MemoryCapacity: 100}, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return c
}

func testStore(t *testing.T) *quarantine.Store {
	t.Helper()
	s, err := quarantine.New(t.TempDir(), 30)
	if err != nil {
		t.Fatalf("quarantine.New: %v", err)
	}
	return s
}

func newTranslator(t *testing.T, endpoint Endpoint, q *quarantine.Store, maxAttempts int) *Translator {
	t.Helper()
	return New(endpoint, memoryOnlyCache(t), q, Config{
		TargetLanguage:        "French",
		CostModel:             "cost-model",
		QualityModel:          "quality-model",
		MaxCorrectionAttempts: maxAttempts,
	})
}

func paragraphItem(text string) batch.Item {
	return batch.Item{
		Block: &docmodel.ContentBlock{
			ID:           docmodel.NewID(),
			Kind:         docmodel.KindParagraph,
			OriginalText: text,
			Paragraph:    &docmodel.Paragraph{},
		},
		Decision: router.Decision{Strategy: router.StrategyMarkdownAwareCost, Tier: router.TierCost},
	}
}

func tableItem() batch.Item {
	return batch.Item{
		Block: &docmodel.ContentBlock{
			ID:           docmodel.NewID(),
			Kind:         docmodel.KindTable,
			OriginalText: "| a | b |\n| - | - |\n| 1 | 2 |",
			Table:        &docmodel.Table{Rows: [][]string{{"a", "b"}, {"1", "2"}}, HeaderRows: 1},
		},
		Decision: router.Decision{Strategy: router.StrategySelfCorrecting, Tier: router.TierQuality},
	}
}

func TestWork_PreserveStrategyNeverCallsEndpoint(t *testing.T) {
	endpoint := &fakeEndpoint{respond: func(int, llm.Request) (llm.Response, error) {
		t.Error("preserve strategy must not reach the translation endpoint")
		return llm.Response{}, nil
	}}
	tr := newTranslator(t, endpoint, nil, 2)

	math := batch.Item{
		Block: &docmodel.ContentBlock{
			ID:           docmodel.NewID(),
			Kind:         docmodel.KindMathFormula,
			OriginalText: "$E = mc^2$",
			MathFormula:  &docmodel.MathFormula{Latex: "E = mc^2", DisplayMode: docmodel.DisplayInline},
		},
		Decision: router.Decision{Strategy: router.StrategyPreserve},
	}

	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: []batch.Item{math}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if out[math.Block.ID] != "$E = mc^2$" {
		t.Errorf("expected original text copied verbatim, got %q", out[math.Block.ID])
	}
	if endpoint.callCount() != 0 {
		t.Errorf("expected zero endpoint calls, got %d", endpoint.callCount())
	}
}

func TestMarkdownGroup_DirectSplitAssignsEachBlock(t *testing.T) {
	endpoint := &fakeEndpoint{respond: func(_ int, req llm.Request) (llm.Response, error) {
		return llm.Response{
			TranslatedText: "ALPHA\n" + transport.ItemBreakToken + "\nBETA",
			FinishReason:   llm.FinishComplete,
		}, nil
	}}
	tr := newTranslator(t, endpoint, nil, 2)

	items := []batch.Item{paragraphItem("Alpha text."), paragraphItem("Beta text.")}
	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: items})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if out[items[0].Block.ID] != "ALPHA" || out[items[1].Block.ID] != "BETA" {
		t.Errorf("unexpected per-block assignment: %v", out)
	}
	if endpoint.callCount() != 1 {
		t.Errorf("expected one grouped endpoint call, got %d", endpoint.callCount())
	}
}

func TestMarkdownGroup_SecondIdenticalGroupHitsCache(t *testing.T) {
	endpoint := &fakeEndpoint{respond: func(int, llm.Request) (llm.Response, error) {
		return llm.Response{
			TranslatedText: "UN\n" + transport.ItemBreakToken + "\nDEUX",
			FinishReason:   llm.FinishComplete,
		}, nil
	}}
	tr := newTranslator(t, endpoint, nil, 2)

	items := []batch.Item{paragraphItem("One."), paragraphItem("Two.")}
	work := tr.Work("doc-1")

	if _, err := work(context.Background(), batch.Group{Items: items}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	out, err := work(context.Background(), batch.Group{Items: items})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if endpoint.callCount() != 1 {
		t.Errorf("expected the second identical group to be served from cache, got %d endpoint calls", endpoint.callCount())
	}
	if out[items[0].Block.ID] != "UN" || out[items[1].Block.ID] != "DEUX" {
		t.Errorf("cached result should split identically: %v", out)
	}
}

func TestMarkdownGroup_LengthCapHalvesBatch(t *testing.T) {
	endpoint := &fakeEndpoint{respond: func(call int, req llm.Request) (llm.Response, error) {
		if call == 0 {
			return llm.Response{TranslatedText: "truncated", FinishReason: llm.FinishLengthCap}, nil
		}
		return llm.Response{TranslatedText: "TRANSLATED " + req.Text, FinishReason: llm.FinishComplete}, nil
	}}
	tr := newTranslator(t, endpoint, nil, 2)

	items := []batch.Item{paragraphItem("First long paragraph."), paragraphItem("Second long paragraph.")}
	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: items})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if endpoint.callCount() != 3 {
		t.Errorf("expected capped call plus one per half, got %d calls", endpoint.callCount())
	}
	for _, it := range items {
		if !strings.HasPrefix(out[it.Block.ID], "TRANSLATED ") {
			t.Errorf("block %s missing halved retry translation: %q", it.Block.ID, out[it.Block.ID])
		}
	}
}

func TestSelfCorrecting_RetriesWithTargetedCorrectionPrompt(t *testing.T) {
	bad := "| x | y |\n| - | - |\n| 1 | 2 |\n| 3 | 4 |\n| 5 | 6 |"
	good := "| x | y |\n| - | - |\n| 1 | 2 |"
	endpoint := &fakeEndpoint{respond: func(call int, req llm.Request) (llm.Response, error) {
		if call == 0 {
			return llm.Response{TranslatedText: bad, FinishReason: llm.FinishComplete}, nil
		}
		return llm.Response{TranslatedText: good, FinishReason: llm.FinishComplete}, nil
	}}
	tr := newTranslator(t, endpoint, testStore(t), 2)

	item := tableItem()
	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: []batch.Item{item}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if out[item.Block.ID] != good {
		t.Errorf("expected the corrected translation to be accepted, got %q", out[item.Block.ID])
	}
	if endpoint.callCount() != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", endpoint.callCount())
	}
	retry := endpoint.calls[1]
	if !strings.Contains(retry.SystemInstructions, "original has 2 rows") {
		t.Errorf("expected the retry prompt to name the row-count violation, got %q", retry.SystemInstructions)
	}
}

func TestSelfCorrecting_ExhaustionQuarantinesAndSubstitutesOriginal(t *testing.T) {
	bad := "| x | y |\n| - | - |\n| 1 | 2 |\n| 3 | 4 |\n| 5 | 6 |"
	endpoint := &fakeEndpoint{respond: func(int, llm.Request) (llm.Response, error) {
		return llm.Response{TranslatedText: bad, FinishReason: llm.FinishComplete}, nil
	}}
	store := testStore(t)
	tr := newTranslator(t, endpoint, store, 1)

	item := tableItem()
	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: []batch.Item{item}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	result := out[item.Block.ID]
	if !strings.HasPrefix(result, item.Block.OriginalText) || !strings.Contains(result, "[TRANSLATION_FAILED]") {
		t.Errorf("expected original text substituted with a failure marker, got %q", result)
	}
	if endpoint.callCount() != 2 {
		t.Errorf("expected initial attempt plus one correction, got %d calls", endpoint.callCount())
	}
	if !store.HasAny("doc-1") {
		t.Errorf("expected the exhausted block to be quarantined")
	}
	if item.Block.Metadata["translation_failed"] != "true" {
		t.Errorf("expected translation_failed metadata on the block")
	}
}

func TestSelfCorrecting_BlockedEndpointQuarantinesWithoutRetry(t *testing.T) {
	endpoint := &fakeEndpoint{respond: func(int, llm.Request) (llm.Response, error) {
		return llm.Response{}, types.NewAppError(types.ErrTranslationEndpointBlocked, "translation blocked: safety_blocked", nil)
	}}
	store := testStore(t)
	tr := newTranslator(t, endpoint, store, 3)

	item := tableItem()
	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: []batch.Item{item}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if endpoint.callCount() != 1 {
		t.Errorf("blocked responses are non-retryable, expected 1 call, got %d", endpoint.callCount())
	}
	if !strings.Contains(out[item.Block.ID], "[TRANSLATION_FAILED]") {
		t.Errorf("expected the blocked block to carry the failure marker, got %q", out[item.Block.ID])
	}
	if !store.HasAny("doc-1") {
		t.Errorf("expected the blocked block to be quarantined")
	}
}

func TestMarkdownGroup_StructureLossEscalatesToQualityTier(t *testing.T) {
	endpoint := &fakeEndpoint{respond: func(call int, req llm.Request) (llm.Response, error) {
		if call == 0 {
			// Drop the headings and list items the payload carried.
			return llm.Response{TranslatedText: "flattened prose with nothing preserved", FinishReason: llm.FinishComplete}, nil
		}
		return llm.Response{TranslatedText: "# Titre\n\n- un\n- deux", FinishReason: llm.FinishComplete}, nil
	}}
	tr := newTranslator(t, endpoint, testStore(t), 2)

	item := batch.Item{
		Block: &docmodel.ContentBlock{
			ID:           docmodel.NewID(),
			Kind:         docmodel.KindParagraph,
			OriginalText: "# Title\n\n- one\n- two",
			Paragraph:    &docmodel.Paragraph{},
		},
		Decision: router.Decision{Strategy: router.StrategyMarkdownAwareCost, Tier: router.TierCost},
	}

	out, err := tr.Work("doc-1")(context.Background(), batch.Group{Items: []batch.Item{item}})
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if endpoint.callCount() < 2 {
		t.Fatalf("expected escalation to retry via the self-correcting path, got %d calls", endpoint.callCount())
	}
	if got := endpoint.calls[1].ModelIdentifier; got != "quality-model" {
		t.Errorf("expected the escalated call to use the quality model, got %q", got)
	}
	if got := out[item.Block.ID]; got != "# Titre\n\n- un\n- deux" {
		t.Errorf("expected the escalated translation, got %q", got)
	}
}
