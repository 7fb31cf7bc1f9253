// Package ollama talks to a local Ollama server's generate endpoint
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/medocr/pkg/providers"
)

// DefaultModel is used when neither the config nor OLLAMA_MODEL names one
const DefaultModel = "qwen2.5vl:7b"

// Provider implements the Ollama local provider
type Provider struct{}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Model           string  `json:"model"`
	Response        *string `json:"response"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// New creates a new Ollama provider
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "ollama"
}

func serverURL() string {
	if u := os.Getenv("OLLAMA_URL"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return "http://localhost:11434"
}

func model(config providers.Config) string {
	// the openai default is meaningless to ollama
	if config.Model != "" && !strings.HasPrefix(config.Model, "gpt-") {
		return config.Model
	}
	if m := os.Getenv("OLLAMA_MODEL"); m != "" {
		return m
	}
	return DefaultModel
}

// ValidateConfig checks that OLLAMA_URL parses
func (p *Provider) ValidateConfig(config providers.Config) error {
	u, err := url.Parse(serverURL())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid OLLAMA_URL %q", serverURL())
	}
	return nil
}

// ExtractText extracts text from an image using Ollama local API
func (p *Provider) ExtractText(ctx context.Context, config providers.Config, imagePath, imageBase64 string) (string, providers.UsageInfo, error) {
	options := map[string]any{
		"temperature": config.Temperature,
	}
	if config.MaxTokens > 0 {
		options["num_predict"] = config.MaxTokens
	}

	requestJSON, err := json.Marshal(generateRequest{
		Model:   model(config),
		Prompt:  config.Prompt,
		Images:  []string{imageBase64},
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL()+"/api/generate", bytes.NewReader(requestJSON))
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second // local inference is slow
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", providers.UsageInfo{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", providers.UsageInfo{}, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, providers.TruncateBody(body))
	}

	var ollamaResp generateResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return "", providers.UsageInfo{}, fmt.Errorf("failed to parse JSON response: %w - body: %s", err, providers.TruncateBody(body))
	}
	if ollamaResp.Response == nil {
		return "", providers.UsageInfo{}, fmt.Errorf("no response from Ollama")
	}

	usage := providers.UsageInfo{
		InputTokens:  ollamaResp.PromptEvalCount,
		OutputTokens: ollamaResp.EvalCount,
	}
	return providers.ProcessResponse(p, *ollamaResp.Response), usage, nil
}
