package pipelinecmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pdf-structural-translator/internal/pipeline"
)

// persistResult writes one document's pipeline output to disk:
// output.md, assets/, and (if tracing is enabled) trace.json alongside it.
// The quarantine directory was already created and written to by the
// quarantine.Store the controller shared with the translator.
func persistResult(docOutputDir string, result *pipeline.Result, tracingEnabled bool) error {
	if err := os.MkdirAll(docOutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(docOutputDir, "output.md")
	if err := os.WriteFile(outputPath, []byte(result.Assembled.Markdown), 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	if len(result.Assembled.Assets) > 0 {
		assetsDir := filepath.Join(docOutputDir, "assets")
		if err := os.MkdirAll(assetsDir, 0755); err != nil {
			return fmt.Errorf("create assets directory: %w", err)
		}
		for assetID, data := range result.Assembled.Assets {
			assetPath := filepath.Join(assetsDir, assetID)
			if err := os.WriteFile(assetPath, data, 0644); err != nil {
				return fmt.Errorf("write asset %s: %w", assetID, err)
			}
		}
	}

	if tracingEnabled {
		data, err := json.MarshalIndent(result.Trace, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal trace: %w", err)
		}
		if err := os.WriteFile(filepath.Join(docOutputDir, "trace.json"), data, 0644); err != nil {
			return fmt.Errorf("write trace.json: %w", err)
		}
	}

	return nil
}
