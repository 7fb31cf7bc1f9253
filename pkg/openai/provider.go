// Package openai talks to any OpenAI-compatible chat completions endpoint,
// by default a local LM Studio server hosting a Qwen vision model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lehigh-university-libraries/medocr/pkg/providers"
)

const (
	// DefaultBaseURL is LM Studio's local server
	DefaultBaseURL = "http://localhost:1234/v1"
	// DefaultModel is the vision model the forms were tuned against
	DefaultModel = "qwen/qwen2.5-vl-7b"

	publicBaseURL = "https://api.openai.com/v1"
)

// Provider implements the OpenAI-compatible vision provider
type Provider struct{}

// New creates a new OpenAI provider
func New() *Provider {
	return &Provider{}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// baseURL resolves OPENAI_BASE_URL, defaulting to the local server
func baseURL() string {
	if u := os.Getenv("OPENAI_BASE_URL"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return DefaultBaseURL
}

// ValidateConfig requires an API key only when talking to api.openai.com
func (p *Provider) ValidateConfig(config providers.Config) error {
	if baseURL() == publicBaseURL && os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", config.Temperature)
	}
	return nil
}

func model(config providers.Config) string {
	if config.Model != "" {
		return config.Model
	}
	if m := os.Getenv("OPENAI_MODEL"); m != "" {
		return m
	}
	return DefaultModel
}

// ExtractText sends the prompt and image as one user message and returns
// the cleaned reply
func (p *Provider) ExtractText(ctx context.Context, config providers.Config, imagePath, imageBase64 string) (string, providers.UsageInfo, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		// local servers ignore the key but go-openai always sends the header
		apiKey = "lm-studio"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL()
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	client := openai.NewClientWithConfig(clientConfig)

	mimeType := mime.TypeByExtension(filepath.Ext(imagePath))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}

	req := openai.ChatCompletionRequest{
		Model:       model(config),
		Temperature: float32(config.Temperature),
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: config.Prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, imageBase64),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", providers.UsageInfo{}, fmt.Errorf("openai API error: %d - %w", apiErr.HTTPStatusCode, err)
		}
		return "", providers.UsageInfo{}, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", providers.UsageInfo{}, fmt.Errorf("no response from %s", clientConfig.BaseURL)
	}

	usage := providers.UsageInfo{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	return providers.ProcessResponse(p, resp.Choices[0].Message.Content), usage, nil
}
