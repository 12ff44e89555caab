// Command pdftranslate is the CLI entry point: a single command that
// reconciles, routes, translates, and assembles one PDF per invocation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pdf-structural-translator/internal/logger"
	"pdf-structural-translator/internal/pipelinecmd"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		outputDir      string
		targetLanguage string
		configFile     string
	)

	root := &cobra.Command{
		Use:   "pdftranslate <input.pdf>",
		Short: "Translate a PDF's structural content into a target language markdown document",
		Args:  cobra.ExactArgs(1),
	}

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		code, err := pipelinecmd.Run(context.Background(), pipelinecmd.Options{
			InputPDFPath:           args[0],
			OutputDir:              outputDir,
			TargetLanguageOverride: targetLanguage,
			ConfigFile:             configFile,
		})
		exitCode = code
		return err
	}

	root.Flags().StringVar(&outputDir, "output-dir", "out", "directory the translated document and its assets are written into")
	root.Flags().StringVar(&targetLanguage, "target-language", "", "overrides translation.target_language from the config file")
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML/JSON/TOML config file; all keys default when absent")

	if err := root.Execute(); err != nil {
		logger.Error("pdftranslate failed", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}
