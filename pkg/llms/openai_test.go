package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
)

func openAITestClient(baseURL string) *OpenAIClient {
	cfg := &config.LLMProviderConfig{
		Type:           config.LLMProviderOpenAI,
		Model:          "gpt-4o",
		APIKey:         "test-key",
		BaseURL:        baseURL,
		TimeoutSeconds: 5,
	}
	return NewOpenAIClient(cfg)
}

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(api.ModelCompletion{
			ID:    "chatcmpl-123",
			Model: "gpt-4o",
			Choices: []api.Choice{{
				Message:      api.Message{Role: api.RoleAssistant, Content: "hello"},
				FinishReason: api.FinishReasonStop,
			}},
			Usage: &api.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		})
	}))
	defer server.Close()

	client := openAITestClient(server.URL)
	completion, err := client.Complete(context.Background(), api.CompletionParams{
		Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"], "default model filled in")
	assert.Equal(t, "hello", api.ContentText(completion.FirstChoice().Message.Content))
	assert.Equal(t, 7, completion.Usage.TotalTokens)
}

func TestOpenAICompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	}))
	defer server.Close()

	client := openAITestClient(server.URL)
	_, err := client.Complete(context.Background(), api.CompletionParams{})
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindUpstream))
	assert.Contains(t, err.Error(), "bad key")
}

func TestOpenAIReasoningModelRequestShape(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(api.ModelCompletion{ID: "chatcmpl-1"})
	}))
	defer server.Close()

	client := openAITestClient(server.URL)
	maxTokens := 100
	temperature := 0.5
	_, err := client.Complete(context.Background(), api.CompletionParams{
		Model:       "o3-mini",
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(100), gotBody["max_completion_tokens"])
	assert.NotContains(t, gotBody, "max_tokens")
	assert.NotContains(t, gotBody, "temperature")
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"role":"assistant","content":"he"}}]}`,
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"llo"}}]}`,
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := openAITestClient(server.URL)
	chunks, errs := client.Stream(context.Background(), api.CompletionParams{
		Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}},
	})

	var content string
	var finish string
	for chunk := range chunks {
		for _, choice := range chunk.Choices {
			content += choice.Delta.Content
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "hello", content)
	assert.Equal(t, api.FinishReasonStop, finish)
}

func TestOpenAIStreamToolCallDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"berlin\"}"}}]}}]}`,
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := openAITestClient(server.URL)
	chunks, errs := client.Stream(context.Background(), api.CompletionParams{})

	var args string
	for chunk := range chunks {
		for _, choice := range chunk.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				args += tc.Function.Arguments
			}
		}
	}
	require.NoError(t, <-errs)
	assert.JSONEq(t, `{"city": "berlin"}`, args)
}

func TestOpenAIStreamUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer server.Close()

	client := openAITestClient(server.URL)
	chunks, errs := client.Stream(context.Background(), api.CompletionParams{})
	for range chunks {
	}
	err := <-errs
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindUpstream))
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("o3-mini"))
	assert.True(t, isReasoningModel("gpt-5"))
	assert.False(t, isReasoningModel("gpt-4o"))
	assert.False(t, isReasoningModel("llama3"))
}
