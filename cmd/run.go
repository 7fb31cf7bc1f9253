package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/medocr/pkg/export"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract lines of text from a scanned form",
	Long: `Run the full pipeline on one image: binarize the page, detect word regions,
recognize every region, and assemble the results into normalized lines.

The output format is one of txt, json, yaml, csv or hocr.`,
	RunE: runRun,
}

func init() {
	RootCmd.AddCommand(runCmd)

	runCmd.Flags().String("image", "", "Path to input image file (required)")
	runCmd.Flags().StringP("format", "f", "txt", "Output format: txt, json, yaml, csv, hocr")
	runCmd.Flags().StringP("output", "o", "", "Output path (prints to stdout if not specified)")
	addPipelineFlags(runCmd, "config")

	if err := runCmd.MarkFlagRequired("image"); err != nil {
		slog.Error("Unable to mark image as required", "err", err)
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	imagePath, _ := cmd.Flags().GetString("image")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		return fmt.Errorf("input image file does not exist: %s", imagePath)
	}
	if _, err := export.ContentType(format); err != nil {
		return err
	}

	cfg, err := pipelineConfig(cmd, "config")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := buildEngine(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	slog.Info("Extracting text", "image", imagePath, "detector", cfg.Detector, "recognizer", cfg.Recognizer)

	doc, err := eng.pipeline.Run(ctx, imagePath)
	if err != nil {
		return fmt.Errorf("failed to process %s: %w", imagePath, err)
	}

	if eng.recognizer != nil {
		usage, calls := eng.recognizer.Usage()
		slog.Info("Provider usage", "calls", calls, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, doc.Page()); err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), outputPath, buf.Bytes())
}

// writeOutput writes data to path, or to w when path is empty
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Info("Wrote output", "path", path, "bytes", len(data))
	return nil
}
