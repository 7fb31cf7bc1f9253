package preprocess

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func filled(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func fillRect(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func countBelow(img *image.Gray, v uint8) int {
	n := 0
	for _, p := range img.Pix {
		if p < v {
			n++
		}
	}
	return n
}

// page draws a few dark text bars on a light background
func page(bg, ink uint8) *image.Gray {
	img := filled(80, 60, bg)
	fillRect(img, image.Rect(10, 10, 70, 14), ink)
	fillRect(img, image.Rect(10, 25, 50, 29), ink)
	fillRect(img, image.Rect(10, 40, 60, 44), ink)
	return img
}

func TestSelectBestVariant(t *testing.T) {
	byWidth := func(img image.Image) float64 { return float64(img.Bounds().Dx()) }

	tests := []struct {
		name     string
		widths   []int
		expected string
		score    float64
	}{
		{"highest wins", []int{3, 9, 5}, "v1", 9},
		{"first wins ties", []int{7, 7, 2}, "v0", 7},
		{"single variant", []int{4}, "v0", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var variants []Variant
			for i, w := range tt.widths {
				variants = append(variants, Variant{
					Name:  "v" + string(rune('0'+i)),
					Image: filled(w, 1, 0),
				})
			}
			best, score, err := SelectBestVariant(variants, byWidth)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if best.Name != tt.expected || score != tt.score {
				t.Errorf("SelectBestVariant() = %s (%v), want %s (%v)", best.Name, score, tt.expected, tt.score)
			}
		})
	}
}

func TestSelectBestVariantEmpty(t *testing.T) {
	_, _, err := SelectBestVariant(nil, SharpnessScore)
	if !errors.Is(err, ErrNoVariants) {
		t.Errorf("expected ErrNoVariants, got %v", err)
	}
}

func TestSharpnessScore(t *testing.T) {
	if got := SharpnessScore(filled(10, 10, 128)); got != 0 {
		t.Errorf("uniform image scored %v, want 0", got)
	}

	dot := filled(5, 5, 0)
	dot.SetGray(2, 2, color.Gray{Y: 255})
	// laplacian is -1020 at the dot and 255 at its four neighbours
	if got := SharpnessScore(dot); got != 52020 {
		t.Errorf("single dot scored %v, want 52020", got)
	}

	if SharpnessScore(page(255, 0)) <= SharpnessScore(page(255, 200)) {
		t.Error("high contrast page should score above low contrast page")
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct {
		i, n, expected int
	}{
		{0, 5, 0},
		{4, 5, 4},
		{-1, 5, 1},
		{-2, 5, 2},
		{5, 5, 3},
		{6, 5, 2},
		{-1, 1, 0},
		{3, 1, 0},
	}
	for _, tt := range tests {
		if got := reflect101(tt.i, tt.n); got != tt.expected {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.expected)
		}
	}
}

func TestAutoInvert(t *testing.T) {
	dark := filled(4, 4, 20)
	out, inverted := AutoInvert(dark, 120)
	if !inverted {
		t.Fatal("expected dark image to be inverted")
	}
	if got := MeanGray(out); got != 235 {
		t.Errorf("MeanGray after invert = %v, want 235", got)
	}

	light := filled(4, 4, 200)
	if _, inverted := AutoInvert(light, 120); inverted {
		t.Error("light image should not be inverted")
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	uniform := AdaptiveThreshold(filled(12, 12, 200), 31, 2)
	if n := countBelow(uniform, 255); n != 0 {
		t.Errorf("uniform image produced %d black pixels", n)
	}

	img := filled(40, 40, 230)
	fillRect(img, image.Rect(18, 18, 22, 22), 10)
	bw := AdaptiveThreshold(img, 31, 2)
	if bw.GrayAt(20, 20).Y != 0 {
		t.Error("ink pixel should be black")
	}
	if bw.GrayAt(2, 2).Y != 255 {
		t.Error("background pixel should be white")
	}
	for _, p := range bw.Pix {
		if p != 0 && p != 255 {
			t.Fatalf("output is not binary: %d", p)
		}
	}
}

func TestFontVariants(t *testing.T) {
	base := filled(9, 9, 255)
	fillRect(base, image.Rect(3, 3, 6, 6), 0)

	baseInk := countBelow(base, 128)
	thinInk := countBelow(ThinFont(base, 1), 128)
	thickInk := countBelow(ThickFont(base, 1), 128)

	if !(thinInk < baseInk && baseInk < thickInk) {
		t.Errorf("ink pixels thin=%d base=%d thick=%d, want thin < base < thick", thinInk, baseInk, thickInk)
	}
}

func TestRemoveNoise(t *testing.T) {
	img := filled(9, 9, 255)
	img.SetGray(4, 4, color.Gray{Y: 0})

	clean := RemoveNoise(img, 1)
	if clean.GrayAt(4, 4).Y != 255 {
		t.Error("isolated speck should be removed")
	}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		inverted bool
	}{
		{"light page", page(240, 20), false},
		{"dark page", page(20, 240), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(DefaultConfig(), nil).Process(tt.img)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if res.Inverted != tt.inverted {
				t.Errorf("Inverted = %v, want %v", res.Inverted, tt.inverted)
			}
			if len(res.Scores) != 3 {
				t.Fatalf("expected 3 scored variants, got %v", res.Scores)
			}
			if res.Scores[res.Best.Name] != res.Score {
				t.Errorf("best score %v does not match %v", res.Score, res.Scores[res.Best.Name])
			}
			for name, s := range res.Scores {
				if s > res.Score {
					t.Errorf("variant %s scored %v above the chosen %v", name, s, res.Score)
				}
			}
			if res.Best.Image.Bounds() != tt.img.Bounds() {
				t.Errorf("variant bounds %v, want %v", res.Best.Image.Bounds(), tt.img.Bounds())
			}
		})
	}
}

func TestProcessEmpty(t *testing.T) {
	if _, err := New(DefaultConfig(), nil).Process(image.NewGray(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("expected error for empty image")
	}
}
