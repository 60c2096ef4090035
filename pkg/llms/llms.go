// Package llms provides the upstream chat-completion clients (OpenAI and
// OpenAI-compatible endpoints, Anthropic, Gemini, Ollama) behind one Client
// interface, plus the provider registry that resolves "provider@model"
// references.
package llms

import (
	"context"

	"github.com/openresponses/openresponses/pkg/api"
)

// Client is an upstream chat-completion provider.
//
// Complete runs a blocking turn. Stream runs a streaming turn: chunks arrive
// on the first channel in upstream order, and at most one error arrives on
// the second after the chunk channel closes. Both channels are closed by the
// client when the turn ends.
type Client interface {
	Complete(ctx context.Context, params api.CompletionParams) (*api.ModelCompletion, error)
	Stream(ctx context.Context, params api.CompletionParams) (<-chan api.CompletionChunk, <-chan error)

	// Model returns the client's default model identifier.
	Model() string

	Close() error
}

// streamError closes out a failed Stream call: an already-closed chunk
// channel and the error.
func streamError(err error) (<-chan api.CompletionChunk, <-chan error) {
	chunks := make(chan api.CompletionChunk)
	close(chunks)
	errs := make(chan error, 1)
	errs <- err
	close(errs)
	return chunks, errs
}
