package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/medocr/internal/pipeline"
)

type EvalConfig struct {
	Pipeline  pipeline.Config `yaml:"pipeline"`
	Model     string          `yaml:"model,omitempty"`
	CSVPath   string          `yaml:"csv_path"`
	Dir       string          `yaml:"dir"`
	TestRows  []int           `yaml:"rows"`
	Timestamp string          `yaml:"timestamp"`
}

type EvalResult struct {
	Identifier     string  `yaml:"identifier"`
	Row            int     `yaml:"row"`
	ImagePath      string  `yaml:"image_path"`
	TranscriptPath string  `yaml:"transcript_path,omitempty"`
	Output         string  `yaml:"output"`
	Lines          int     `yaml:"lines"`
	Seconds        float64 `yaml:"seconds"`
	Metrics        `yaml:",inline"`
}

type EvalSummary struct {
	Config  EvalConfig   `yaml:"config"`
	Results []EvalResult `yaml:"results"`
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the pipeline against ground truth transcripts",
	Long: `Run the pipeline over every image listed in a CSV file and compare the output
with the ground truth transcript.

The CSV has the columns image,transcript. The transcript column holds either a
path to a .txt file or the expected text itself. Results are written to
evals/eval_<timestamp>.yaml; pass that file to --config to rerun the same
evaluation.`,
	RunE: runEval,
}

func init() {
	RootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringP("csv", "c", "", "Path to CSV file with evaluation data")
	evalCmd.Flags().String("config", "", "Path to previous evaluation file to rerun")
	evalCmd.Flags().String("dir", "./", "Prepend your CSV file paths with a directory")
	evalCmd.Flags().IntSlice("rows", []int{}, "A list of row numbers to run the test on")
	evalCmd.Flags().Int("workers", 1, "Images processed concurrently")
	evalCmd.Flags().String("out", "evals", "Directory the evaluation file is written to")
	addPipelineFlags(evalCmd, "pipeline-config")

	evalCmd.MarkFlagsMutuallyExclusive("csv", "config")
	evalCmd.MarkFlagsOneRequired("csv", "config")
}

func runEval(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	workers, _ := flags.GetInt("workers")
	outDir, _ := flags.GetString("out")

	var config EvalConfig
	if configPath != "" {
		var err error
		config, err = loadEvalConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded evaluation configuration", "path", configPath)
	} else {
		pcfg, err := pipelineConfig(cmd, "pipeline-config")
		if err != nil {
			return err
		}
		config.Pipeline = pcfg
		config.Model, _ = flags.GetString("model")
		config.CSVPath, _ = flags.GetString("csv")
		config.Dir, _ = flags.GetString("dir")
		config.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	}
	if flags.Changed("rows") || configPath == "" {
		config.TestRows, _ = flags.GetIntSlice("rows")
	}

	if config.Model != "" && !flags.Changed("model") {
		if err := flags.Set("model", config.Model); err != nil {
			return err
		}
	}
	eng, err := buildEngine(cmd.Context(), cmd, config.Pipeline)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := processEvaluation(cmd.Context(), config, eng.pipeline, workers)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create evals directory: %w", err)
	}
	outputPath := filepath.Join(outDir, fmt.Sprintf("eval_%s.yaml", config.Timestamp))
	if err := saveEvalResults(EvalSummary{Config: config, Results: results}, outputPath); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	fmt.Printf("\nEvaluation completed. Results saved to: %s\n", outputPath)
	printSummaryStats(os.Stdout, results)
	return nil
}

func loadEvalConfig(configPath string) (EvalConfig, error) {
	var summary EvalSummary
	summary.Config.Pipeline = pipeline.DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return EvalConfig{}, err
	}
	if err := yaml.Unmarshal(data, &summary); err != nil {
		return EvalConfig{}, err
	}
	if err := summary.Config.Pipeline.Validate(); err != nil {
		return EvalConfig{}, err
	}

	// new timestamp for the rerun
	summary.Config.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	return summary.Config, nil
}

// evalRow is one CSV data row to evaluate
type evalRow struct {
	index      int
	image      string
	transcript string
}

// readEvalRows reads the CSV and keeps the requested rows. An empty
// selection keeps every row.
func readEvalRows(r io.Reader, selected []int) ([]evalRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	// Skip header row if present
	dataRows := records
	if strings.EqualFold(strings.TrimSpace(records[0][0]), "image") {
		dataRows = records[1:]
	}

	var rows []evalRow
	for i, record := range dataRows {
		if len(selected) > 0 && !slices.Contains(selected, i) {
			continue
		}
		if len(record) < 2 {
			slog.Warn("Insufficient columns", "row", i)
			continue
		}
		rows = append(rows, evalRow{
			index:      i,
			image:      strings.TrimSpace(record[0]),
			transcript: record[1],
		})
	}
	return rows, nil
}

func processEvaluation(ctx context.Context, config EvalConfig, p *pipeline.Pipeline, workers int) ([]EvalResult, error) {
	file, err := os.Open(config.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := readEvalRows(file, config.TestRows)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make([]*EvalResult, len(rows))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i, row := range rows {
		g.Go(func() error {
			result, err := processRow(ctx, row, config.Dir, p)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("Error processing row", "row", row.index, "err", err)
				return nil
			}
			mu.Lock()
			results[i] = &result
			printRowResult(os.Stdout, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []EvalResult
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func processRow(ctx context.Context, row evalRow, dir string, p *pipeline.Pipeline) (EvalResult, error) {
	imagePath := filepath.Join(dir, row.image)

	result := EvalResult{
		Identifier: filepath.Base(imagePath),
		Row:        row.index,
		ImagePath:  imagePath,
	}

	groundTruth := row.transcript
	if ref := strings.TrimSpace(row.transcript); strings.HasSuffix(strings.ToLower(ref), ".txt") {
		if !isURL(ref) {
			ref = filepath.Join(dir, ref)
		}
		text, err := readTextFile(ctx, ref)
		if err != nil {
			return EvalResult{}, fmt.Errorf("failed to read transcript: %w", err)
		}
		groundTruth = text
		result.TranscriptPath = ref
	}

	doc, err := p.Run(ctx, imagePath)
	if err != nil {
		return EvalResult{}, err
	}

	result.Output = doc.Text()
	result.Lines = len(doc.Lines)
	result.Seconds = doc.Duration.Seconds()
	result.Metrics = CalculateAccuracyMetrics(groundTruth, result.Output)
	return result, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func readTextFile(ctx context.Context, path string) (string, error) {
	if isURL(path) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetching %s: status %d", path, resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func saveEvalResults(summary EvalSummary, outputPath string) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0644)
}

func printRowResult(w io.Writer, result EvalResult) {
	fmt.Fprintf(w, "\n=== Results for %s (row %d) ===\n", result.Identifier, result.Row)
	fmt.Fprintf(w, "Image: %s\n", result.ImagePath)
	if result.TranscriptPath != "" {
		fmt.Fprintf(w, "Transcript: %s\n", result.TranscriptPath)
	}
	fmt.Fprintf(w, "Lines: %d in %.1fs\n", result.Lines, result.Seconds)
	fmt.Fprintf(w, "Character Similarity: %.3f\n", result.CharacterSimilarity)
	fmt.Fprintf(w, "Word Similarity: %.3f\n", result.WordSimilarity)
	fmt.Fprintf(w, "Word Accuracy: %.3f\n", result.WordAccuracy)
	fmt.Fprintf(w, "Word Error Rate: %.3f\n", result.WordErrorRate)
	fmt.Fprintf(w, "Total Words (Original): %d\n", result.TotalWordsOriginal)
	fmt.Fprintf(w, "Total Words (Transcribed): %d\n", result.TotalWordsTranscribed)
	fmt.Fprintf(w, "Correct Words: %d\n", result.CorrectWords)
	fmt.Fprintf(w, "Substitutions: %d\n", result.Substitutions)
	fmt.Fprintf(w, "Deletions: %d\n", result.Deletions)
	fmt.Fprintf(w, "Insertions: %d\n", result.Insertions)
}

func printSummaryStats(w io.Writer, results []EvalResult) {
	if len(results) == 0 {
		return
	}

	var totalCharSim, totalWordSim, totalWordAcc, totalWER float64
	for _, result := range results {
		totalCharSim += result.CharacterSimilarity
		totalWordSim += result.WordSimilarity
		totalWordAcc += result.WordAccuracy
		totalWER += result.WordErrorRate
	}

	count := float64(len(results))
	fmt.Fprintf(w, "\n=== SUMMARY STATISTICS ===\n")
	fmt.Fprintf(w, "Total Evaluations: %d\n", len(results))
	fmt.Fprintf(w, "Average Character Similarity: %.3f\n", totalCharSim/count)
	fmt.Fprintf(w, "Average Word Similarity: %.3f\n", totalWordSim/count)
	fmt.Fprintf(w, "Average Word Accuracy: %.3f\n", totalWordAcc/count)
	fmt.Fprintf(w, "Average Word Error Rate: %.3f\n", totalWER/count)
}
