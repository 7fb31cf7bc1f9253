package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/medocr/internal/pipeline"
	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/detect"
	"github.com/lehigh-university-libraries/medocr/pkg/gvision"
	"github.com/lehigh-university-libraries/medocr/pkg/ollama"
	"github.com/lehigh-university-libraries/medocr/pkg/openai"
	"github.com/lehigh-university-libraries/medocr/pkg/providers"
	"github.com/lehigh-university-libraries/medocr/pkg/recognize"
	"github.com/lehigh-university-libraries/medocr/pkg/tesseract"
)

func newRegistry() *providers.Registry {
	return providers.NewRegistry(openai.New(), ollama.New())
}

// addPipelineFlags registers the flags shared by every command that runs
// the pipeline. configFlag names the flag holding the YAML settings path.
func addPipelineFlags(cmd *cobra.Command, configFlag string) {
	d := pipeline.DefaultConfig()
	cmd.Flags().String(configFlag, "", "YAML file with pipeline settings")
	cmd.Flags().String("detector", d.Detector, "Text detector: components, file, vision, tesseract")
	cmd.Flags().String("boxes", "", "Box file for the file detector (default: <image>.boxes.json)")
	cmd.Flags().String("recognizer", d.Recognizer, "Region recognizer: provider, tesseract")
	cmd.Flags().String("provider", d.Provider, "Vision-language provider for the provider recognizer: openai, ollama")
	cmd.Flags().String("model", "", "Model to use (uses provider default if not specified)")
	cmd.Flags().Float64P("temperature", "t", 0.1, "Temperature for the provider")
	cmd.Flags().Float64("min-score", d.MinScore, "Drop detections scoring below this")
	cmd.Flags().Bool("no-preprocess", false, "Detect on the original image instead of the binarized one")
}

// pipelineConfig loads the settings file named by configFlag and applies
// explicitly set flags on top
func pipelineConfig(cmd *cobra.Command, configFlag string) (pipeline.Config, error) {
	flags := cmd.Flags()
	path, err := flags.GetString(configFlag)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg, err := pipeline.LoadConfig(path)
	if err != nil {
		return pipeline.Config{}, err
	}

	if flags.Changed("detector") {
		cfg.Detector, _ = flags.GetString("detector")
	}
	if flags.Changed("recognizer") {
		cfg.Recognizer, _ = flags.GetString("recognizer")
	}
	if flags.Changed("provider") {
		cfg.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("min-score") {
		cfg.MinScore, _ = flags.GetFloat64("min-score")
	}
	if noPre, _ := flags.GetBool("no-preprocess"); noPre {
		cfg.Preprocess = false
	}
	return cfg, cfg.Validate()
}

// providerConfig builds the per-call provider settings from flags
func providerConfig(cmd *cobra.Command, providerName string) providers.Config {
	cfg := providers.DefaultConfig()
	cfg.Provider = providerName
	cfg.Model, _ = cmd.Flags().GetString("model")
	if cmd.Flags().Lookup("temperature") != nil {
		cfg.Temperature, _ = cmd.Flags().GetFloat64("temperature")
	}
	return cfg
}

// engine bundles a built pipeline with the resources it holds open
type engine struct {
	pipeline   *pipeline.Pipeline
	recognizer *recognize.ProviderRecognizer
	closers    []func() error
}

func (e *engine) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			slog.Warn("Failed to release resource", "err", err)
		}
	}
}

// buildEngine wires the detector and recognizer cfg names
func buildEngine(ctx context.Context, cmd *cobra.Command, cfg pipeline.Config) (*engine, error) {
	e := &engine{}

	var tess *tesseract.Engine
	needTesseract := cfg.Detector == pipeline.DetectorTesseract || cfg.Recognizer == pipeline.RecognizerTesseract
	if needTesseract {
		t, err := tesseract.New(tesseract.DefaultOptions())
		if err != nil {
			if errors.Is(err, tesseract.ErrUnavailable) {
				return nil, fmt.Errorf("%w; choose another detector or recognizer", err)
			}
			return nil, err
		}
		tess = t
		e.closers = append(e.closers, t.Close)
	}

	var detector detect.Detector
	switch cfg.Detector {
	case pipeline.DetectorComponents:
		detector = detect.NewComponentDetector()
	case pipeline.DetectorFile:
		boxes, _ := cmd.Flags().GetString("boxes")
		detector = detect.FileDetector{Path: boxes}
	case pipeline.DetectorVision:
		d, closeFn, err := gvision.Dial(ctx)
		if err != nil {
			e.Close()
			return nil, err
		}
		detector = d
		e.closers = append(e.closers, closeFn)
	case pipeline.DetectorTesseract:
		detector = tess
	}

	var recognizer assembler.Recognizer
	switch cfg.Recognizer {
	case pipeline.RecognizerTesseract:
		recognizer = tess
	case pipeline.RecognizerProvider:
		p, err := newRegistry().Get(cfg.Provider)
		if err != nil {
			e.Close()
			return nil, err
		}
		pcfg := providerConfig(cmd, cfg.Provider)
		pcfg.Prompt = providers.WordPrompt
		pcfg.Timeout = 60 * time.Second
		if err := p.ValidateConfig(pcfg); err != nil {
			e.Close()
			return nil, fmt.Errorf("provider configuration validation failed: %w", err)
		}
		e.recognizer = recognize.NewProviderRecognizer(p, pcfg)
		recognizer = e.recognizer
	}

	e.pipeline = pipeline.New(cfg, detector, recognizer)
	slog.Debug("Built pipeline",
		"detector", cfg.Detector,
		"recognizer", cfg.Recognizer,
		"provider", cfg.Provider,
		"preprocess", cfg.Preprocess,
	)
	return e, nil
}
