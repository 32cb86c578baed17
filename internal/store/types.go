package store

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message. An alias, so plain strings from
// request decoding flow through without conversion.
type Role = string

// Role constants define valid message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session groups messages and documents under one conversation context and
// carries the rolling summary that substitutes for unbounded raw history.
type Session struct {
	ID             string // opaque identifier, supplied by the caller
	RollingSummary string // empty until the first summarization commits
	SummaryCursor  int32  // last sequence number folded into the summary
	MessageCount   int32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is a single conversation turn. Messages are append-only and
// immutable once written; sequence numbers are gapless per session.
type Message struct {
	ID             uuid.UUID
	SessionID      string
	Role           Role // "user" | "assistant"
	Content        string
	SequenceNumber int32
	CreatedAt      time.Time
}

// DocumentStatus is the ingestion lifecycle of an uploaded document.
type DocumentStatus string

const (
	// DocumentPending means chunks are still being embedded; nothing is
	// searchable yet.
	DocumentPending DocumentStatus = "pending"
	// DocumentReady means every chunk is persisted and searchable.
	DocumentReady DocumentStatus = "ready"
	// DocumentFailed means extraction or embedding failed; the document
	// exposes no chunks.
	DocumentFailed DocumentStatus = "failed"
)

// Document tracks one uploaded source per session.
type Document struct {
	ID         uuid.UUID
	SessionID  string
	SourceName string
	Status     DocumentStatus
	ChunkCount int32 // zero until the document reaches ready
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewChunk is the input for chunk insertion: one bounded text span plus its
// embedding vector.
type NewChunk struct {
	Index     int32
	Content   string
	Embedding []float32
}

// ChunkMatch is one nearest-neighbor search result.
type ChunkMatch struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int32
	Content    string
	SourceName string
	Similarity float32 // cosine similarity in [-1, 1]
}
