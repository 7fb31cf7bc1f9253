// Package preprocess binarizes a page photo and picks the cleanest of a
// few morphological variants before text detection.
package preprocess

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Config controls the preprocessing steps
type Config struct {
	// AutoInvert flips dark-background pages when the mean gray level is
	// below InvertBelow
	AutoInvert  bool    `json:"auto_invert" yaml:"auto_invert"`
	InvertBelow float64 `json:"invert_below" yaml:"invert_below"`

	// BlockSize is the side of the neighbourhood used for the adaptive
	// threshold; Offset is subtracted from the weighted neighbourhood mean
	BlockSize int     `json:"block_size" yaml:"block_size"`
	Offset    float64 `json:"offset" yaml:"offset"`

	MedianRadius float64 `json:"median_radius" yaml:"median_radius"`
	MorphRadius  float64 `json:"morph_radius" yaml:"morph_radius"`
}

// DefaultConfig returns the standard preprocessing settings
func DefaultConfig() Config {
	return Config{
		AutoInvert:   true,
		InvertBelow:  120,
		BlockSize:    31,
		Offset:       2,
		MedianRadius: 1,
		MorphRadius:  1,
	}
}

// Result is the outcome of Process
type Result struct {
	Best     Variant
	Score    float64
	Inverted bool
	// Scores holds the score of every candidate by name
	Scores map[string]float64
}

// Preprocessor runs the binarization pipeline
type Preprocessor struct {
	config Config
	score  Scorer
}

// New creates a Preprocessor. A nil scorer means SharpnessScore.
func New(config Config, score Scorer) *Preprocessor {
	if score == nil {
		score = SharpnessScore
	}
	return &Preprocessor{config: config, score: score}
}

// Process inverts dark pages, binarizes, denoises, and returns the best of
// the denoised, thinned and thickened renditions.
func (p *Preprocessor) Process(src image.Image) (Result, error) {
	if src.Bounds().Empty() {
		return Result{}, fmt.Errorf("cannot preprocess an empty image")
	}

	var res Result
	img := src
	if p.config.AutoInvert {
		img, res.Inverted = AutoInvert(img, p.config.InvertBelow)
	}

	bw := AdaptiveThreshold(toGray(img), p.config.BlockSize, p.config.Offset)
	clean := RemoveNoise(bw, p.config.MedianRadius)

	variants := []Variant{
		{Name: "no_noise", Image: clean},
		{Name: "thin", Image: ThinFont(clean, p.config.MorphRadius)},
		{Name: "thick", Image: ThickFont(clean, p.config.MorphRadius)},
	}

	// SelectBestVariant scores in slice order
	res.Scores = make(map[string]float64, len(variants))
	next := 0
	best, score, err := SelectBestVariant(variants, func(img image.Image) float64 {
		s := p.score(img)
		res.Scores[variants[next].Name] = s
		next++
		return s
	})
	if err != nil {
		return Result{}, err
	}
	res.Best = best
	res.Score = score

	slog.Debug("Selected preprocessing variant",
		"variant", best.Name,
		"score", score,
		"inverted", res.Inverted,
	)
	return res, nil
}

// AutoInvert returns the negative of img when its mean gray level is below
// threshold
func AutoInvert(img image.Image, threshold float64) (image.Image, bool) {
	if MeanGray(img) < threshold {
		return imaging.Invert(img), true
	}
	return img, false
}

// MeanGray is the average luminance of img in the range 0..255
func MeanGray(img image.Image) float64 {
	gray := toGray(img)
	b := gray.Bounds()
	if b.Empty() {
		return 0
	}
	var sum float64
	for _, v := range gray.Pix[:b.Dx()*b.Dy()] {
		sum += float64(v)
	}
	return sum / float64(b.Dx()*b.Dy())
}

// AdaptiveThreshold binarizes gray against a Gaussian weighted mean of each
// pixel's blockSize neighbourhood minus offset. Pixels brighter than their
// local threshold become white, the rest black.
func AdaptiveThreshold(gray *image.Gray, blockSize int, offset float64) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	// same sigma OpenCV derives from the kernel size
	sigma := 0.3*(float64(blockSize-1)*0.5-1) + 0.8
	var local *image.Gray
	if sigma > 0 {
		local = toGray(imaging.Blur(gray, sigma))
	} else {
		local = gray
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := float64(gray.Pix[y*gray.Stride+x])
			t := float64(local.Pix[y*local.Stride+x]) - offset
			if v > t {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// RemoveNoise applies a median filter of the given radius
func RemoveNoise(img image.Image, radius float64) *image.Gray {
	if radius <= 0 {
		return toGray(img)
	}
	return toGray(effect.Median(img, radius))
}

// ThinFont shrinks dark strokes on a light background
func ThinFont(img image.Image, radius float64) *image.Gray {
	inv := imaging.Invert(img)
	return toGray(imaging.Invert(effect.Erode(inv, radius)))
}

// ThickFont grows dark strokes on a light background
func ThickFont(img image.Image, radius float64) *image.Gray {
	inv := imaging.Invert(img)
	return toGray(imaging.Invert(effect.Dilate(inv, radius)))
}

// toGray copies img into a zero-origin *image.Gray
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) && g.Stride == g.Bounds().Dx() {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			gray.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return gray
}
