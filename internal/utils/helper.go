package utils

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
)

var (
	// ?key=xxx, &api_key=xxx, apiKey=xxx
	queryKeyPattern = regexp.MustCompile(`([?&])(api[_\-]?[kK]ey|key)=([^&\s"]+)`)
	bearerPattern   = regexp.MustCompile(`Bearer\s+([A-Za-z0-9_\-\.]+)`)
	// bare OpenAI style keys that show up in go-openai error strings
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
	// service account JSON leaking into a message
	privateKeyPattern = regexp.MustCompile(`("private_key"\s*:\s*")[^"]*(")`)
)

// MaskSensitiveData masks API keys and other credentials in strings so they
// can be logged or shown to a client
func MaskSensitiveData(s string) string {
	if s == "" {
		return s
	}

	s = queryKeyPattern.ReplaceAllString(s, `${1}${2}=***MASKED***`)
	s = bearerPattern.ReplaceAllString(s, `Bearer ***MASKED***`)
	s = secretKeyPattern.ReplaceAllString(s, `sk-***MASKED***`)
	s = privateKeyPattern.ReplaceAllString(s, `${1}***MASKED***${2}`)

	return s
}

// MaskSensitiveError wraps an error and masks sensitive data when the error is converted to string
func MaskSensitiveError(err error) error {
	if err == nil {
		return nil
	}
	return &maskedError{err: err}
}

type maskedError struct {
	err error
}

func (e *maskedError) Error() string {
	return MaskSensitiveData(e.err.Error())
}

func (e *maskedError) Unwrap() error {
	return e.err
}

// HumanSize formats a byte count with binary units, e.g. "1.5 KB"
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTP"[exp])
}

func ExitOnError(msg string, err error) {
	slog.Error(msg, "err", MaskSensitiveError(err))
	os.Exit(1)
}
