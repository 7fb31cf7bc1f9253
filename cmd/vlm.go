package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/medocr/pkg/providers"
)

var vlmCmd = &cobra.Command{
	Use:   "vlm",
	Short: "Transcribe a whole page with a vision-language model",
	Long: `Send the full image to a vision-language model and print its transcription.
No detection or line assembly is involved.`,
	RunE: runVLM,
}

func init() {
	RootCmd.AddCommand(vlmCmd)

	vlmCmd.Flags().String("image", "", "Path to input image file (required)")
	vlmCmd.Flags().String("provider", "openai", "Provider to use: openai, ollama")
	vlmCmd.Flags().String("model", "", "Model to use (uses provider default if not specified)")
	vlmCmd.Flags().StringP("prompt", "p", providers.PagePrompt, "Prompt to send with the image")
	vlmCmd.Flags().Float64P("temperature", "t", 0.1, "Temperature for the provider")
	vlmCmd.Flags().StringP("output", "o", "", "Output path (prints to stdout if not specified)")

	if err := vlmCmd.MarkFlagRequired("image"); err != nil {
		slog.Error("Unable to mark image as required", "err", err)
		os.Exit(1)
	}
}

func runVLM(cmd *cobra.Command, args []string) error {
	imagePath, _ := cmd.Flags().GetString("image")
	providerName, _ := cmd.Flags().GetString("provider")
	outputPath, _ := cmd.Flags().GetString("output")

	p, err := newRegistry().Get(providerName)
	if err != nil {
		return fmt.Errorf("unsupported provider: %w", err)
	}
	cfg := providerConfig(cmd, providerName)
	cfg.Prompt, _ = cmd.Flags().GetString("prompt")
	if err := p.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("provider configuration validation failed: %w", err)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	text, err := extractPage(cmd.Context(), p, cfg, imagePath, data)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), outputPath, []byte(text+"\n"))
}

// extractPage sends a whole page to p
func extractPage(ctx context.Context, p providers.Provider, cfg providers.Config, name string, data []byte) (string, error) {
	start := time.Now()
	text, usage, err := p.ExtractText(ctx, cfg, name, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return "", fmt.Errorf("%s transcription failed: %w", p.Name(), err)
	}
	slog.Info("Page transcribed",
		"provider", p.Name(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration", time.Since(start),
	)
	return text, nil
}
