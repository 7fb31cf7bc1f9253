package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/medocr/internal/pipeline"
	"github.com/lehigh-university-libraries/medocr/pkg/assembler"
	"github.com/lehigh-university-libraries/medocr/pkg/detect"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name     string
		s1       string
		s2       string
		expected int
	}{
		{"identical strings", "hello", "hello", 0},
		{"one substitution", "hello", "hallo", 1},
		{"one insertion", "hello", "helloo", 1},
		{"one deletion", "hello", "hell", 1},
		{"empty strings", "", "", 0},
		{"one empty string", "hello", "", 5},
		{"completely different", "abc", "xyz", 3},
		{"missing diacritic is one edit", "bệnh", "benh", 1},
		{"vietnamese insertion", "nhân", "nhâan", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := levenshteinDistance(tt.s1, tt.s2)
			if got != tt.expected {
				t.Errorf("levenshteinDistance(%q, %q) = %d, want %d",
					tt.s1, tt.s2, got, tt.expected)
			}
		})
	}
}

func TestCalculateSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		s1       string
		s2       string
		expected float64
	}{
		{"identical strings", "hello", "hello", 1.0},
		{"completely different", "abc", "xyz", 0.0},
		{"one char different", "hello", "hallo", 0.8},
		{"empty strings", "", "", 1.0},
		{"diacritics count per rune", "tên", "ten", 2.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateSimilarity(tt.s1, tt.s2)
			if diff := got - tt.expected; diff > 0.01 || diff < -0.01 {
				t.Errorf("calculateSimilarity(%q, %q) = %.3f, want %.3f",
					tt.s1, tt.s2, got, tt.expected)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	composed := "Việt Nam"
	decomposed := "Việt  Nam\n"
	if normalizeText(composed) != normalizeText(decomposed) {
		t.Errorf("composed and decomposed forms should normalize equally: %q vs %q",
			normalizeText(composed), normalizeText(decomposed))
	}
	if got := normalizeText("  KẾT   Quả "); got != "kết quả" {
		t.Errorf("normalizeText() = %q", got)
	}
}

func TestCalculateAccuracyMetrics(t *testing.T) {
	near := func(a, b float64) bool { return math.Abs(a-b) < 0.001 }

	tests := []struct {
		name       string
		original   string
		transcript string
		want       Metrics
	}{
		{
			name:       "perfect match ignoring case",
			original:   "Họ tên: Nguyễn Văn A",
			transcript: "họ tên: nguyễn văn a",
			want: Metrics{CharacterSimilarity: 1, WordSimilarity: 1, WordAccuracy: 1,
				TotalWordsOriginal: 5, TotalWordsTranscribed: 5, CorrectWords: 5},
		},
		{
			name:       "one missing diacritic",
			original:   "Họ tên: Nguyễn Văn A",
			transcript: "Họ tên: Nguyễn Van A",
			want: Metrics{CharacterSimilarity: 0.95, WordSimilarity: 0.8, WordAccuracy: 0.8, WordErrorRate: 0.2,
				TotalWordsOriginal: 5, TotalWordsTranscribed: 5, CorrectWords: 4, Substitutions: 1},
		},
		{
			name:       "dropped word",
			original:   "Kết quả xét nghiệm",
			transcript: "Kết quả nghiệm",
			want: Metrics{WordSimilarity: 0.75, WordAccuracy: 0.75, WordErrorRate: 0.25,
				TotalWordsOriginal: 4, TotalWordsTranscribed: 3, CorrectWords: 3, Deletions: 1},
		},
		{
			name:       "nothing recognized",
			original:   "Khoa",
			transcript: "",
			want: Metrics{CharacterSimilarity: 0, WordSimilarity: 0, WordAccuracy: 0, WordErrorRate: 1,
				TotalWordsOriginal: 1, Deletions: 1},
		},
		{
			name:       "empty ground truth with output",
			original:   "",
			transcript: "x",
			want: Metrics{WordAccuracy: 0, WordErrorRate: 1, TotalWordsTranscribed: 1, Insertions: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateAccuracyMetrics(tt.original, tt.transcript)
			if got.TotalWordsOriginal != tt.want.TotalWordsOriginal ||
				got.TotalWordsTranscribed != tt.want.TotalWordsTranscribed ||
				got.CorrectWords != tt.want.CorrectWords ||
				got.Substitutions != tt.want.Substitutions ||
				got.Deletions != tt.want.Deletions ||
				got.Insertions != tt.want.Insertions {
				t.Errorf("counts = %+v, want %+v", got, tt.want)
			}
			if !near(got.WordAccuracy, tt.want.WordAccuracy) || !near(got.WordErrorRate, tt.want.WordErrorRate) ||
				!near(got.WordSimilarity, tt.want.WordSimilarity) {
				t.Errorf("rates = %+v, want %+v", got, tt.want)
			}
			if tt.want.CharacterSimilarity != 0 && !near(got.CharacterSimilarity, tt.want.CharacterSimilarity) {
				t.Errorf("CharacterSimilarity = %.3f, want %.3f", got.CharacterSimilarity, tt.want.CharacterSimilarity)
			}
		})
	}
}

func TestReadEvalRows(t *testing.T) {
	input := "image,transcript\nscan1.jpg,scan1.txt\nscan2.jpg,Khoa Xét nghiệm\nbroken\nscan4.jpg,\"a, b\"\n"

	rows, err := readEvalRows(strings.NewReader(input), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1].transcript != "Khoa Xét nghiệm" || rows[2].transcript != "a, b" || rows[2].index != 3 {
		t.Errorf("unexpected rows %+v", rows)
	}

	rows, err = readEvalRows(strings.NewReader(input), []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].image != "scan2.jpg" {
		t.Errorf("row selection = %+v", rows)
	}

	if _, err := readEvalRows(strings.NewReader(""), nil); err == nil {
		t.Error("expected error for empty CSV")
	}
}

func writeFormImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 60))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 20; y < 40; y++ {
		for x := 10; x < 60; x++ {
			img.SetGray(x, y, color.Gray{})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestProcessEvaluation(t *testing.T) {
	dir := t.TempDir()
	writeFormImage(t, filepath.Join(dir, "form.png"))
	boxes := `{"boxes":[{"points":[[10,20],[60,20],[60,40],[10,40]],"score":0.9}]}`
	files := map[string]string{
		"form.boxes.json": boxes,
		"form.txt":        "khoa\n",
		"eval.csv":        "image,transcript\nform.png,form.txt\nmissing.png,anything\nform.png,Khoa Nội\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := pipeline.DefaultConfig()
	cfg.Detector = pipeline.DetectorFile
	cfg.Preprocess = false
	p := pipeline.New(cfg, detect.FileDetector{}, assembler.RecognizerFunc(func(context.Context, image.Image) (string, error) {
		return "Khoa", nil
	}))

	config := EvalConfig{Pipeline: cfg, CSVPath: filepath.Join(dir, "eval.csv"), Dir: dir}
	results, err := processEvaluation(context.Background(), config, p, 2)
	if err != nil {
		t.Fatalf("processEvaluation() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (the missing image is skipped)", len(results))
	}

	first := results[0]
	if first.Row != 0 || first.Output != "Khoa" || first.Lines != 1 {
		t.Errorf("unexpected first result %+v", first)
	}
	if first.TranscriptPath != filepath.Join(dir, "form.txt") || first.CharacterSimilarity != 1 {
		t.Errorf("transcript file not used: %+v", first)
	}

	second := results[1]
	if second.Row != 2 || second.TranscriptPath != "" || second.CorrectWords != 1 || second.Deletions != 1 {
		t.Errorf("unexpected second result %+v", second)
	}

	var buf bytes.Buffer
	printSummaryStats(&buf, results)
	if !strings.Contains(buf.String(), "Total Evaluations: 2") {
		t.Errorf("summary missing count:\n%s", buf.String())
	}
}

func TestEvalConfigRerun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval_old.yaml")

	cfg := pipeline.DefaultConfig()
	cfg.Detector = pipeline.DetectorVision
	cfg.Assembler.TargetHeight = 48
	summary := EvalSummary{
		Config: EvalConfig{Pipeline: cfg, CSVPath: "data.csv", Dir: "scans", TestRows: []int{2, 5}, Timestamp: "old"},
		Results: []EvalResult{
			{Identifier: "a.png", Output: "x", Metrics: Metrics{WordAccuracy: 0.5}},
		},
	}
	if err := saveEvalResults(summary, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "word_accuracy: 0.5") {
		t.Errorf("metrics should be inlined in each result:\n%s", data)
	}

	loaded, err := loadEvalConfig(path)
	if err != nil {
		t.Fatalf("loadEvalConfig() error: %v", err)
	}
	if loaded.Pipeline.Detector != pipeline.DetectorVision || loaded.Pipeline.Assembler.TargetHeight != 48 {
		t.Errorf("pipeline settings not restored: %+v", loaded.Pipeline)
	}
	if loaded.CSVPath != "data.csv" || loaded.Dir != "scans" || len(loaded.TestRows) != 2 {
		t.Errorf("unexpected config %+v", loaded)
	}
	if loaded.Timestamp == "old" {
		t.Error("rerun should get a new timestamp")
	}
}
