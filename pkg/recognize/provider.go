// Package recognize adapts vision-language providers to the assembler's
// per-region Recognizer contract.
package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lehigh-university-libraries/medocr/pkg/providers"
)

// ProviderRecognizer reads each crop with a single provider call, retrying
// transient failures at a constant interval
type ProviderRecognizer struct {
	provider providers.Provider
	config   providers.Config
	retries  uint64
	interval time.Duration

	mu    sync.Mutex
	usage providers.UsageInfo
	calls int
}

// Option customizes a ProviderRecognizer
type Option func(*ProviderRecognizer)

// WithRetries sets how many times a failed call is retried and the wait
// between attempts
func WithRetries(retries uint64, interval time.Duration) Option {
	return func(r *ProviderRecognizer) {
		r.retries = retries
		r.interval = interval
	}
}

// NewProviderRecognizer wraps provider. An empty prompt in config is
// replaced by providers.WordPrompt.
func NewProviderRecognizer(provider providers.Provider, config providers.Config, opts ...Option) *ProviderRecognizer {
	if config.Prompt == "" || config.Prompt == providers.PagePrompt {
		config.Prompt = providers.WordPrompt
	}
	r := &ProviderRecognizer{
		provider: provider,
		config:   config,
		retries:  3,
		interval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recognize sends img to the provider and returns its text on one line.
// Refusals are reported as an empty string.
func (r *ProviderRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode crop: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), r.retries),
		ctx,
	)
	attempt := 0
	text, err := backoff.RetryWithData(func() (string, error) {
		attempt++
		text, usage, err := r.provider.ExtractText(ctx, r.config, "crop.png", encoded)
		r.record(usage)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			slog.Debug("Recognition attempt failed",
				"provider", r.provider.Name(),
				"attempt", attempt,
				"error", err,
			)
			return "", err
		}
		return text, nil
	}, policy)
	if err != nil {
		return "", fmt.Errorf("%s recognition failed after %d attempts: %w", r.provider.Name(), attempt, err)
	}

	if providers.IsRefusal(text) {
		slog.Debug("Provider refused crop", "provider", r.provider.Name(), "response", text)
		return "", nil
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (r *ProviderRecognizer) record(usage providers.UsageInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.Add(usage)
	r.calls++
}

// Usage returns the tokens consumed and provider calls made so far
func (r *ProviderRecognizer) Usage() (providers.UsageInfo, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage, r.calls
}
