// Package ident mints the identifiers used across the engine: response and
// run ids, chunk ids, and content fingerprints. Response-scoped ids are
// UUIDv7 so they sort by creation time.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	responsePrefix     = "resp_"
	runPrefix          = "run_"
	conversationPrefix = "conv_"
	vectorStorePrefix  = "vs_"
	filePrefix         = "file_"
	chunkIDLen         = 16
)

// NewUUID returns a bare time-ordered UUID string. Falls back to a random
// v4 if the monotonic clock source is unavailable.
func NewUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// NewResponseID mints an id for a response object.
func NewResponseID() string { return responsePrefix + NewUUID() }

// NewRunID mints an id for one agentic-search run.
func NewRunID() string { return runPrefix + NewUUID() }

// NewConversationID mints an id for a conversation chain.
func NewConversationID() string { return conversationPrefix + NewUUID() }

// NewVectorStoreID mints an id for a vector store.
func NewVectorStoreID() string { return vectorStorePrefix + NewUUID() }

// NewFileID mints an id for an ingested file.
func NewFileID() string { return filePrefix + NewUUID() }

// ChunkID derives the short stable id of a chunk from its file and index.
// The same (file, index) pair always yields the same id, which is what makes
// re-ingest replace rather than duplicate.
func ChunkID(fileID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", fileID, index)))
	return hex.EncodeToString(sum[:])[:chunkIDLen]
}

// Fingerprint returns the full hex digest of the given content.
func Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
