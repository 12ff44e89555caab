package pipelinecmd

import (
	"os"
	"path/filepath"
	"testing"

	"pdf-structural-translator/internal/assembler"
	"pdf-structural-translator/internal/pipeline"
	"pdf-structural-translator/internal/tracing"
)

func TestPersistResult_WritesMarkdownAndAssets(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "doc-1")

	result := &pipeline.Result{
		Assembled: &assembler.Assembled{
			Markdown: "# Title\n\nBody.\n",
			Assets:   map[string][]byte{"img_0.png": {0x89, 0x50, 0x4e, 0x47}},
		},
		Trace: tracing.New("doc-1"),
	}

	if err := persistResult(docDir, result, false); err != nil {
		t.Fatalf("persistResult: %v", err)
	}

	md, err := os.ReadFile(filepath.Join(docDir, "output.md"))
	if err != nil {
		t.Fatalf("reading output.md: %v", err)
	}
	if string(md) != result.Assembled.Markdown {
		t.Errorf("unexpected output.md contents: %q", md)
	}

	asset, err := os.ReadFile(filepath.Join(docDir, "assets", "img_0.png"))
	if err != nil {
		t.Fatalf("reading asset: %v", err)
	}
	if len(asset) != 4 {
		t.Errorf("unexpected asset length %d", len(asset))
	}

	if _, err := os.Stat(filepath.Join(docDir, "trace.json")); !os.IsNotExist(err) {
		t.Errorf("expected no trace.json when tracing is disabled")
	}
}

func TestPersistResult_WritesTraceWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "doc-2")

	result := &pipeline.Result{
		Assembled: &assembler.Assembled{Markdown: "content"},
		Trace:     tracing.New("doc-2"),
	}

	if err := persistResult(docDir, result, true); err != nil {
		t.Fatalf("persistResult: %v", err)
	}

	if _, err := os.Stat(filepath.Join(docDir, "trace.json")); err != nil {
		t.Errorf("expected trace.json to be written, stat error: %v", err)
	}
}
