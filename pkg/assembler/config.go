package assembler

import (
	"fmt"

	"github.com/lehigh-university-libraries/medocr/pkg/layout"
)

// Config holds the tunables of line assembly
type Config struct {
	Layout layout.Thresholds `json:"layout" yaml:"layout"`

	// PadXRatio and PadYRatio grow every crop by a fraction of its own width
	// and height on each side before recognition
	PadXRatio float64 `json:"pad_x_ratio" yaml:"pad_x_ratio"`
	PadYRatio float64 `json:"pad_y_ratio" yaml:"pad_y_ratio"`

	// TargetHeight is the height, in pixels, crops are resized to. Zero
	// leaves crops at their native size.
	TargetHeight int `json:"target_height" yaml:"target_height"`

	// Enhance runs a contrast and sharpening pass on every crop
	Enhance bool `json:"enhance" yaml:"enhance"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Layout:       layout.DefaultThresholds(),
		PadXRatio:    0.06,
		PadYRatio:    0.12,
		TargetHeight: 64,
		Enhance:      true,
	}
}

// Validate checks that the configuration values are usable
func (c Config) Validate() error {
	if c.Layout.RowIoU < 0 || c.Layout.RowIoU > 1 {
		return fmt.Errorf("layout.row_iou must be between 0 and 1, got %v", c.Layout.RowIoU)
	}
	if c.Layout.RowCenter < 0 {
		return fmt.Errorf("layout.row_center must not be negative, got %v", c.Layout.RowCenter)
	}
	if c.Layout.SpaceGap < 0 {
		return fmt.Errorf("layout.space_gap must not be negative, got %v", c.Layout.SpaceGap)
	}
	if c.PadXRatio < 0 || c.PadYRatio < 0 {
		return fmt.Errorf("padding ratios must not be negative, got x=%v y=%v", c.PadXRatio, c.PadYRatio)
	}
	if c.TargetHeight < 0 {
		return fmt.Errorf("target_height must not be negative, got %d", c.TargetHeight)
	}
	return nil
}
