package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/httpclient"
)

const defaultImageModel = "gpt-image-1"

// ImageGenerationArgs is the argument shape the model fills in.
type ImageGenerationArgs struct {
	Prompt string `json:"prompt" jsonschema:"required,description=Text description of the image to generate"`
	Size   string `json:"size,omitempty" jsonschema:"description=Image dimensions such as 1024x1024"`
}

type imageGenerator struct {
	baseURL string
	apiKey  string
	model   string
	http    *httpclient.Client
}

// NewImageGeneration builds the image_generation terminal tool against an
// OpenAI-compatible images endpoint. The handler returns a data URL; the
// executor embeds it as an output_image part of the final message.
func NewImageGeneration(cfg *config.LLMProviderConfig, model string) *Tool {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = defaultImageModel
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	gen := &imageGenerator{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
	}
	return &Tool{
		Name:        "image_generation",
		Description: "Generate an image from a text prompt. The image is returned to the user directly.",
		Variant:     VariantTerminal,
		Parameters:  SchemaFor(ImageGenerationArgs{}),
		Handler:     gen.run,
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *imageGenerator) run(ctx context.Context, inv Invocation) (string, error) {
	var args ImageGenerationArgs
	if err := DecodeArgs(inv.Args, &args); err != nil {
		return "", api.WrapError(api.KindInvalidArgument, "decoding image_generation arguments", err)
	}
	if args.Prompt == "" {
		return "", api.NewError(api.KindInvalidArgument, "image_generation requires a prompt")
	}

	payload, err := json.Marshal(imageRequest{Model: g.model, Prompt: args.Prompt, Size: args.Size})
	if err != nil {
		return "", fmt.Errorf("marshaling image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if resp == nil {
		return "", api.WrapError(api.KindUpstream, "image generation request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", api.WrapError(api.KindUpstream, "reading image generation response", err)
	}

	var parsed imageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", api.WrapError(api.KindUpstream, "decoding image generation response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("upstream HTTP %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg += ": " + parsed.Error.Message
		}
		return "", api.NewError(api.KindUpstream, msg)
	}
	if len(parsed.Data) == 0 {
		return "", api.NewError(api.KindUpstream, "image generation returned no data")
	}

	if b64 := parsed.Data[0].B64JSON; b64 != "" {
		return "data:image/png;base64," + b64, nil
	}
	return parsed.Data[0].URL, nil
}
