// Package providers defines the contract shared by vision-language model
// backends used for whole-page OCR and per-word recognition.
package providers

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Config represents the configuration for a provider call
type Config struct {
	Provider    string
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns the settings used when the caller supplies none
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Prompt:      PagePrompt,
		Temperature: 0.1,
		MaxTokens:   1500,
		Timeout:     120 * time.Second,
	}
}

// PagePrompt asks a model to transcribe a whole scanned page
const PagePrompt = "Please extract text from this medical test image."

// WordPrompt asks a model to read a single cropped word or short phrase
const WordPrompt = `This image is a tight crop of a single word or short phrase from a scanned Vietnamese medical form.
Return ONLY the exact characters visible, preserving Vietnamese diacritics, digits and punctuation.
Do not explain, translate or add quotes. If nothing is legible, return an empty response.`

// UsageInfo represents token usage information from a provider
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates usage from another call
func (u *UsageInfo) Add(other UsageInfo) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Provider interface that all vision providers must implement
type Provider interface {
	// ExtractText extracts text from an image. imagePath is only used to
	// infer the MIME type and may be a bare file name.
	ExtractText(ctx context.Context, config Config, imagePath, imageBase64 string) (string, UsageInfo, error)
	// Name returns the provider's name
	Name() string
	// ValidateConfig validates the provider-specific configuration
	ValidateConfig(config Config) error
}

// CleanResponseProvider is an optional interface that providers can implement
// to provide custom response cleaning logic
type CleanResponseProvider interface {
	CleanResponse(response string) string
}

var prefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(the\s+)?text\s+in\s+(the\s+)?image\s+(is|says|reads):?\s*`),
	regexp.MustCompile(`(?i)^(the\s+)?image\s+contains\s+(the\s+following\s+)?text:?\s*`),
	regexp.MustCompile(`(?i)^here'?s?\s+(the\s+)?text\s+(extracted\s+)?from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^(i\s+can\s+see\s+)?text\s+(that\s+says|reading):?\s*`),
	regexp.MustCompile(`(?i)^certainly!\s+here'?s?\s+(the\s+)?text\s+(extracted\s+)?from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^here'?s?\s+the\s+extracted\s+text\s+from\s+(the\s+)?image:?\s*`),
	regexp.MustCompile(`(?i)^(the\s+)?(word|text)\s+(is|reads):?\s*`),
}

var refusalPattern = regexp.MustCompile(`(?i)^(i'?m\s+sorry|sorry,|i\s+can(no|')t|i\s+am\s+unable|unable\s+to)`)

// CleanResponse strips the framing chat models tend to add around OCR output
func CleanResponse(response string) string {
	response = strings.TrimSpace(response)

	for _, re := range prefixPatterns {
		response = re.ReplaceAllString(response, "")
		response = strings.TrimSpace(response)
	}

	// Remove markdown code blocks if present
	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") && len(response) >= 6 {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		if nl := strings.IndexByte(response, '\n'); nl >= 0 && !strings.ContainsAny(response[:nl], " \t") {
			// drop a language tag such as ```text
			response = response[nl+1:]
		}
		response = strings.TrimSpace(response)
	}

	// Remove surrounding quotes
	response = strings.Trim(response, `"'`)

	return strings.TrimSpace(response)
}

// IsRefusal reports whether a response is an apology rather than text
func IsRefusal(response string) bool {
	return refusalPattern.MatchString(strings.TrimSpace(response))
}

// ProcessResponse cleans a response using the provider's custom cleaner if available,
// otherwise uses the general CleanResponse function
func ProcessResponse(provider Provider, response string) string {
	if cleaner, ok := provider.(CleanResponseProvider); ok {
		return cleaner.CleanResponse(response)
	}
	return CleanResponse(response)
}

// TruncateBody truncates a response body to a maximum length for error messages.
// Default maxLen is 500 if not specified.
func TruncateBody(body []byte, maxLen ...int) string {
	limit := 500
	if len(maxLen) > 0 && maxLen[0] > 0 {
		limit = maxLen[0]
	}
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "... (truncated)"
	}
	return s
}
