package preprocess

import (
	"errors"
	"image"
)

// ErrNoVariants is returned when there is nothing to choose from
var ErrNoVariants = errors.New("no image variants to choose from")

// Variant is one candidate rendition of the page
type Variant struct {
	Name  string
	Image image.Image
}

// Scorer rates an image; higher is better
type Scorer func(image.Image) float64

// SelectBestVariant scores every variant, in order, and returns the best one
// together with its score. On ties the earlier variant wins. A nil score
// means SharpnessScore.
func SelectBestVariant(variants []Variant, score Scorer) (Variant, float64, error) {
	if len(variants) == 0 {
		return Variant{}, 0, ErrNoVariants
	}
	if score == nil {
		score = SharpnessScore
	}

	best := variants[0]
	bestScore := score(best.Image)
	for _, v := range variants[1:] {
		if s := score(v.Image); s > bestScore {
			best, bestScore = v, s
		}
	}
	return best, bestScore, nil
}

// SharpnessScore is the variance of the 4-neighbour Laplacian of the gray
// image. Borders are mirrored without repeating the edge pixel.
func SharpnessScore(img image.Image) float64 {
	gray := toGray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(gray.Pix[reflect101(y, h)*gray.Stride+reflect101(x, w)])
	}

	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += lap
			sumSq += lap * lap
		}
	}

	n := float64(w * h)
	mean := sum / n
	return sumSq/n - mean*mean
}

// reflect101 maps an out of range index back inside [0, n) the way
// gfedcb|abcdefgh|gfedcba does
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
