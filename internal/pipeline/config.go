package pipeline

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/preprocess"
)

// Detector names accepted in Config.Detector
const (
	DetectorComponents = "components"
	DetectorFile       = "file"
	DetectorVision     = "vision"
	DetectorTesseract  = "tesseract"
)

// Recognizer names accepted in Config.Recognizer
const (
	RecognizerProvider  = "provider"
	RecognizerTesseract = "tesseract"
)

// Config is the full set of pipeline settings. It is usually loaded from a
// YAML file overlaid on DefaultConfig.
type Config struct {
	Detector   string `json:"detector" yaml:"detector"`
	Recognizer string `json:"recognizer" yaml:"recognizer"`
	Provider   string `json:"provider" yaml:"provider"`

	// MinScore drops detections scoring below it
	MinScore float64 `json:"min_score" yaml:"min_score"`

	// Preprocess enables binarization and variant selection before detection
	Preprocess bool              `json:"preprocess" yaml:"preprocess"`
	Binarize   preprocess.Config `json:"binarize" yaml:"binarize"`

	Assembler assembler.Config `json:"assembler" yaml:"assembler"`
}

// DefaultConfig returns the settings used when no file is given
func DefaultConfig() Config {
	return Config{
		Detector:   DetectorComponents,
		Recognizer: RecognizerProvider,
		Provider:   "openai",
		MinScore:   0,
		Preprocess: true,
		Binarize:   preprocess.DefaultConfig(),
		Assembler:  assembler.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file and overlays it on DefaultConfig. An empty
// path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks names and ranges
func (c Config) Validate() error {
	switch c.Detector {
	case DetectorComponents, DetectorFile, DetectorVision, DetectorTesseract:
	default:
		return fmt.Errorf("unknown detector %q", c.Detector)
	}
	switch c.Recognizer {
	case RecognizerProvider, RecognizerTesseract:
	default:
		return fmt.Errorf("unknown recognizer %q", c.Recognizer)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be between 0 and 1, got %v", c.MinScore)
	}
	if c.Preprocess && (c.Binarize.BlockSize < 3 || c.Binarize.BlockSize%2 == 0) {
		return fmt.Errorf("binarize.block_size must be an odd number of at least 3, got %d", c.Binarize.BlockSize)
	}
	return c.Assembler.Validate()
}
