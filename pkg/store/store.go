// Package store persists responses, their conversation items, and the
// vector-store bookkeeping records. One Store interface, three families of
// backends: SQL (sqlite, mysql, postgres over one schema), redis, and an
// in-memory implementation for tests and ephemeral runs.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
)

// Vector store lifecycle states.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// FileCounts summarizes the files of a vector store by state.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// VectorStore is the bookkeeping record of one vector store.
type VectorStore struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	CreatedAt  int64             `json:"created_at"`
	FileCounts FileCounts        `json:"file_counts"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// VectorStoreFile is the bookkeeping record of one indexed file.
type VectorStoreFile struct {
	ID            string                 `json:"id"`
	VectorStoreID string                 `json:"vector_store_id"`
	Filename      string                 `json:"filename"`
	Status        string                 `json:"status"`
	CreatedAt     int64                  `json:"created_at"`
	ChunkCount    int                    `json:"chunk_count,omitempty"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
}

// Store persists responses and vector-store records. Response storage is an
// append-only log per id: the response itself, its input items in write
// order, and its output items derived from the completion.
type Store interface {
	// StoreResponse appends one response with its conversation input.
	StoreResponse(ctx context.Context, completion *api.ModelCompletion, inputItems []api.InputItem) error

	// GetResponse returns a stored completion. Missing ids yield a
	// previous-response-not-found error.
	GetResponse(ctx context.Context, id string) (*api.ModelCompletion, error)

	// GetInputItems returns the stored input items in write order.
	GetInputItems(ctx context.Context, id string) ([]api.InputItem, error)

	// GetOutputItems returns the stored output items in write order.
	GetOutputItems(ctx context.Context, id string) ([]api.InputItem, error)

	// CreateVectorStore records a new vector store.
	CreateVectorStore(ctx context.Context, vs *VectorStore) error

	// GetVectorStore returns one vector store record, or a not-found error.
	GetVectorStore(ctx context.Context, id string) (*VectorStore, error)

	// ListVectorStores returns all vector store records, newest first.
	ListVectorStores(ctx context.Context) ([]*VectorStore, error)

	// DeleteVectorStore removes the store record and its file records,
	// returning the deleted file ids so the caller can cascade into the
	// vector and lexical indexes.
	DeleteVectorStore(ctx context.Context, id string) ([]string, error)

	// UpsertVectorStoreFile records or replaces one file of a store and
	// refreshes the store's file counts.
	UpsertVectorStoreFile(ctx context.Context, file *VectorStoreFile) error

	// GetVectorStoreFile returns one file record, or a not-found error.
	GetVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error)

	// ListVectorStoreFiles returns the file records of a store, newest
	// first.
	ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]*VectorStoreFile, error)

	// DeleteVectorStoreFile removes one file record and refreshes counts.
	// Reports whether a record existed.
	DeleteVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (bool, error)

	Close() error
}

// New builds the configured backend.
func New(cfg config.StoreConfig) (Store, error) {
	switch {
	case cfg.Backend == config.StoreBackendMemory:
		return NewMemory(), nil
	case cfg.Backend == config.StoreBackendRedis:
		return NewRedis(cfg)
	case cfg.IsSQL():
		return NewSQL(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// OutputItems renders the completion's choices as output items: one
// assistant message item per choice with textual or image content, plus one
// function_call item per tool call.
func OutputItems(completion *api.ModelCompletion) []api.InputItem {
	if completion == nil {
		return nil
	}
	var items []api.InputItem
	for _, choice := range completion.Choices {
		msg := choice.Message
		if parts := outputParts(msg.Content); len(parts) > 0 {
			items = append(items, api.InputItem{
				Type:    api.ItemTypeMessage,
				Role:    api.RoleAssistant,
				Content: parts,
			})
		}
		for _, tc := range msg.ToolCalls {
			items = append(items, api.InputItem{
				Type:      api.ItemTypeFunctionCall,
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return items
}

func outputParts(content interface{}) []api.ContentPart {
	switch v := content.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []api.ContentPart{{Type: api.PartTypeOutputText, Text: v}}
	case []api.MessagePart:
		parts := make([]api.ContentPart, 0, len(v))
		for _, p := range v {
			switch {
			case p.Type == "image_url" && p.ImageURL != nil:
				parts = append(parts, api.ContentPart{Type: api.PartTypeOutputImage, ImageURL: p.ImageURL.URL})
			case p.Text != "":
				parts = append(parts, api.ContentPart{Type: api.PartTypeOutputText, Text: p.Text})
			}
		}
		return parts
	default:
		if text := api.ContentText(content); text != "" {
			return []api.ContentPart{{Type: api.PartTypeOutputText, Text: text}}
		}
		return nil
	}
}

func notFound(id string) error {
	return api.NewError(api.KindPreviousResponseNotFound, fmt.Sprintf("response %s not found", id))
}

func vectorStoreNotFound(id string) error {
	return api.NewError(api.KindNotFound, fmt.Sprintf("vector store %s not found", id))
}

func fileNotFound(id string) error {
	return api.NewError(api.KindNotFound, fmt.Sprintf("vector store file %s not found", id))
}

func now() int64 { return time.Now().Unix() }
