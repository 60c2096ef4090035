// Package openresponses implements an OpenAI-compatible response
// orchestration server: a tool-call loop over pluggable chat-completion
// providers, hybrid vector + keyword retrieval with an agentic search
// controller, conversation replay, and SSE streaming.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/openresponses/openresponses/cmd/openresponses@latest
//
// Create a configuration:
//
//	llm:
//	  default_provider: openai
//	  providers:
//	    openai:
//	      type: openai
//	      model: gpt-4o-mini
//	      api_key: ${OPENAI_API_KEY}
//
// Start the server:
//
//	openresponses serve --config config.yaml
//
// # Using as a Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/openresponses/openresponses/pkg/config"
//	    "github.com/openresponses/openresponses/pkg/responses"
//	    "github.com/openresponses/openresponses/pkg/search"
//	)
//
// # Architecture
//
// A request enters through the HTTP surface, is replayed against its stored
// conversation when previous_response_id is set, and then runs the tool-call
// loop: upstream completion, native tool dispatch (file_search runs the
// agentic retrieval loop over hybrid search), recursion until a terminal
// answer. Streaming requests forward upstream chunks as SSE and reassemble
// them for tool dispatch and storage.
package openresponses
