package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func makeHeaders(m map[string]string) http.Header {
	headers := http.Header{}
	for k, v := range m {
		headers.Set(k, v)
	}
	return headers
}

func TestParseOpenAIRateLimitHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected RateLimitInfo
	}{
		{
			name:     "empty_headers",
			headers:  map[string]string{},
			expected: RateLimitInfo{},
		},
		{
			name: "retry_after_seconds",
			headers: map[string]string{
				"Retry-After": "30",
			},
			expected: RateLimitInfo{
				RetryAfter: 30 * time.Second,
			},
		},
		{
			name: "retry_after_invalid",
			headers: map[string]string{
				"Retry-After": "not-a-number",
			},
			expected: RateLimitInfo{},
		},
		{
			name: "reset_requests_preferred",
			headers: map[string]string{
				"x-ratelimit-reset-requests": "1700000000",
				"x-ratelimit-reset-tokens":   "1800000000",
			},
			expected: RateLimitInfo{
				ResetTime: 1700000000,
			},
		},
		{
			name: "reset_tokens_fallback",
			headers: map[string]string{
				"x-ratelimit-reset-tokens": "1800000000",
			},
			expected: RateLimitInfo{
				ResetTime: 1800000000,
			},
		},
		{
			name: "remaining_counters",
			headers: map[string]string{
				"x-ratelimit-remaining-requests": "42",
				"x-ratelimit-remaining-tokens":   "9000",
			},
			expected: RateLimitInfo{
				RequestsRemaining: 42,
				TokensRemaining:   9000,
			},
		},
		{
			name: "all_fields",
			headers: map[string]string{
				"Retry-After":                    "5",
				"x-ratelimit-reset-requests":     "1700000000",
				"x-ratelimit-remaining-requests": "10",
				"x-ratelimit-remaining-tokens":   "5000",
			},
			expected: RateLimitInfo{
				RetryAfter:        5 * time.Second,
				ResetTime:         1700000000,
				RequestsRemaining: 10,
				TokensRemaining:   5000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseOpenAIRateLimitHeaders(makeHeaders(tt.headers))
			if result != tt.expected {
				t.Errorf("ParseOpenAIRateLimitHeaders() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestParseAnthropicRateLimitHeaders(t *testing.T) {
	resetTime := time.Now().Add(1 * time.Minute).UTC().Truncate(time.Second)

	tests := []struct {
		name     string
		headers  map[string]string
		expected RateLimitInfo
	}{
		{
			name:     "empty_headers",
			headers:  map[string]string{},
			expected: RateLimitInfo{},
		},
		{
			name: "retry_after_seconds",
			headers: map[string]string{
				"retry-after": "12",
			},
			expected: RateLimitInfo{
				RetryAfter: 12 * time.Second,
			},
		},
		{
			name: "rfc3339_reset",
			headers: map[string]string{
				"anthropic-ratelimit-requests-reset": resetTime.Format(time.RFC3339),
			},
			expected: RateLimitInfo{
				ResetTime: resetTime.Unix(),
			},
		},
		{
			name: "input_tokens_reset_fallback",
			headers: map[string]string{
				"anthropic-ratelimit-input-tokens-reset": resetTime.Format(time.RFC3339),
			},
			expected: RateLimitInfo{
				ResetTime: resetTime.Unix(),
			},
		},
		{
			name: "invalid_reset_ignored",
			headers: map[string]string{
				"anthropic-ratelimit-requests-reset": "yesterday",
			},
			expected: RateLimitInfo{},
		},
		{
			name: "remaining_counters",
			headers: map[string]string{
				"anthropic-ratelimit-requests-remaining":      "100",
				"anthropic-ratelimit-input-tokens-remaining":  "20000",
				"anthropic-ratelimit-output-tokens-remaining": "8000",
			},
			expected: RateLimitInfo{
				RequestsRemaining:     100,
				InputTokensRemaining:  20000,
				OutputTokensRemaining: 8000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseAnthropicRateLimitHeaders(makeHeaders(tt.headers))
			if result != tt.expected {
				t.Errorf("ParseAnthropicRateLimitHeaders() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestParseGeminiRateLimitHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected RateLimitInfo
	}{
		{
			name:     "empty_headers",
			headers:  map[string]string{},
			expected: RateLimitInfo{},
		},
		{
			name: "retry_after_seconds",
			headers: map[string]string{
				"Retry-After": "60",
			},
			expected: RateLimitInfo{
				RetryAfter: 60 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseGeminiRateLimitHeaders(makeHeaders(tt.headers))
			if result != tt.expected {
				t.Errorf("ParseGeminiRateLimitHeaders() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}
