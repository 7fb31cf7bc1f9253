package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/medocr/pkg/providers"
)

func TestProvider_Name(t *testing.T) {
	p := New()
	if p.Name() != "openai" {
		t.Errorf("Expected name 'openai', got '%s'", p.Name())
	}
}

func TestProvider_ValidateConfig(t *testing.T) {
	p := New()

	tests := []struct {
		name          string
		baseURL       string
		apiKey        string
		temperature   float64
		expectError   bool
		errorContains string
	}{
		{
			name:    "local server without key",
			baseURL: "",
		},
		{
			name:    "public API with key",
			baseURL: "https://api.openai.com/v1",
			apiKey:  "sk-test-key",
		},
		{
			name:          "public API without key",
			baseURL:       "https://api.openai.com/v1/",
			expectError:   true,
			errorContains: "OPENAI_API_KEY",
		},
		{
			name:          "temperature out of range",
			temperature:   3,
			expectError:   true,
			errorContains: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_BASE_URL", tt.baseURL)
			t.Setenv("OPENAI_API_KEY", tt.apiKey)

			err := p.ValidateConfig(providers.Config{Temperature: tt.temperature})
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
			if tt.expectError && err != nil && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Expected error to contain '%s', got: %v", tt.errorContains, err)
			}
		})
	}
}

func TestProvider_ExtractText(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		statusCode     int
		expectedText   string
		expectedUsage  providers.UsageInfo
		expectError    bool
		errorContains  string
	}{
		{
			name:       "successful response",
			statusCode: http.StatusOK,
			serverResponse: `{
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Bệnh nhân: Nguyễn Văn A"}}],
				"usage": {"prompt_tokens": 812, "completion_tokens": 9, "total_tokens": 821}
			}`,
			expectedText:  "Bệnh nhân: Nguyễn Văn A",
			expectedUsage: providers.UsageInfo{InputTokens: 812, OutputTokens: 9},
		},
		{
			name:       "response with cleaning needed",
			statusCode: http.StatusOK,
			serverResponse: `{
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Here's the text extracted from the image: \"Khoa Xét nghiệm\""}}]
			}`,
			expectedText: "Khoa Xét nghiệm",
		},
		{
			name:       "API error response",
			statusCode: http.StatusBadRequest,
			serverResponse: `{
				"error": {"message": "model not loaded", "type": "invalid_request_error"}
			}`,
			expectError:   true,
			errorContains: "openai API error: 400",
		},
		{
			name:           "empty choices",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices": []}`,
			expectError:    true,
			errorContains:  "no response from",
		},
		{
			name:           "malformed JSON",
			statusCode:     http.StatusOK,
			serverResponse: `{"invalid": json}`,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST request, got %s", r.Method)
				}
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
					t.Errorf("Expected Bearer authorization header")
				}

				var reqBody struct {
					Model       string  `json:"model"`
					Temperature float64 `json:"temperature"`
					MaxTokens   int     `json:"max_tokens"`
					Messages    []struct {
						Role    string `json:"role"`
						Content []struct {
							Type     string `json:"type"`
							Text     string `json:"text"`
							ImageURL struct {
								URL string `json:"url"`
							} `json:"image_url"`
						} `json:"content"`
					} `json:"messages"`
				}
				if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
					t.Errorf("failed to decode request: %v", err)
				}
				if reqBody.Model != DefaultModel {
					t.Errorf("model = %q, want %q", reqBody.Model, DefaultModel)
				}
				if reqBody.MaxTokens != 1500 {
					t.Errorf("max_tokens = %d, want 1500", reqBody.MaxTokens)
				}
				if len(reqBody.Messages) != 1 || len(reqBody.Messages[0].Content) != 2 {
					t.Errorf("unexpected messages %+v", reqBody.Messages)
				} else {
					parts := reqBody.Messages[0].Content
					if parts[0].Text != providers.PagePrompt {
						t.Errorf("prompt = %q", parts[0].Text)
					}
					if parts[1].ImageURL.URL != "data:image/png;base64,aGVsbG8=" {
						t.Errorf("image url = %q", parts[1].ImageURL.URL)
					}
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.serverResponse)); err != nil {
					t.Errorf("Failed to write response: %v", err)
				}
			}))
			defer server.Close()

			t.Setenv("OPENAI_BASE_URL", server.URL+"/v1")
			t.Setenv("OPENAI_API_KEY", "")
			t.Setenv("OPENAI_MODEL", "")

			config := providers.DefaultConfig()
			config.Timeout = 5 * time.Second

			text, usage, err := New().ExtractText(context.Background(), config, "page.png", "aGVsbG8=")
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %v", tt.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if text != tt.expectedText {
				t.Errorf("text = %q, want %q", text, tt.expectedText)
			}
			if usage != tt.expectedUsage {
				t.Errorf("usage = %+v, want %+v", usage, tt.expectedUsage)
			}
		})
	}
}

func TestModelResolution(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	if got := model(providers.Config{}); got != DefaultModel {
		t.Errorf("default model = %q", got)
	}
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	if got := model(providers.Config{}); got != "gpt-4o" {
		t.Errorf("env model = %q", got)
	}
	if got := model(providers.Config{Model: "llava"}); got != "llava" {
		t.Errorf("explicit model = %q", got)
	}
}
