package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calypso-ai/calypso/internal/store"
)

// MemStore is an in-memory stand-in for the Postgres store. It mirrors the
// store's error semantics and invariants (dense sequences, cursor guards,
// ready-only search) closely enough for unit tests of the layers above.
//
// Thread-safe for concurrent use.
type MemStore struct {
	mu        sync.Mutex
	sessions  map[string]*store.Session
	messages  map[string][]store.Message
	documents map[uuid.UUID]*store.Document
	chunks    map[uuid.UUID][]store.NewChunk
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:  make(map[string]*store.Session),
		messages:  make(map[string][]store.Message),
		documents: make(map[uuid.UUID]*store.Document),
		chunks:    make(map[uuid.UUID][]store.NewChunk),
	}
}

// GetSession mirrors store.Store.GetSession.
func (m *MemStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	if err := store.ValidateSessionID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrSessionNotFound)
	}
	cp := *sess
	return &cp, nil
}

// GetOrCreateSession mirrors store.Store.GetOrCreateSession.
func (m *MemStore) GetOrCreateSession(_ context.Context, id string) (*store.Session, error) {
	if err := store.ValidateSessionID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		now := time.Now()
		sess = &store.Session{ID: id, CreatedAt: now, UpdatedAt: now}
		m.sessions[id] = sess
	}
	cp := *sess
	return &cp, nil
}

// UpdateSessionSummary mirrors the cursor guards of the SQL implementation.
func (m *MemStore) UpdateSessionSummary(_ context.Context, id, summary string, cursor int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, store.ErrSessionNotFound)
	}

	var maxSeq int32
	if msgs := m.messages[id]; len(msgs) > 0 {
		maxSeq = msgs[len(msgs)-1].SequenceNumber
	}
	if cursor < sess.SummaryCursor || cursor > maxSeq {
		return fmt.Errorf("session %q cursor %d: %w", id, cursor, store.ErrStaleCursor)
	}

	sess.RollingSummary = summary
	sess.SummaryCursor = cursor
	sess.UpdatedAt = time.Now()
	return nil
}

// AppendMessage mirrors store.Store.AppendMessage, including dense
// sequence numbering.
func (m *MemStore) AppendMessage(_ context.Context, sessionID string, role store.Role, content string) (*store.Message, error) {
	if err := store.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if role != store.RoleUser && role != store.RoleAssistant {
		return nil, fmt.Errorf("role %q: %w", role, store.ErrInvalidRole)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, store.ErrSessionNotFound)
	}

	msg := store.Message{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Role:           role,
		Content:        content,
		SequenceNumber: int32(len(m.messages[sessionID])) + 1,
		CreatedAt:      time.Now(),
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	sess.MessageCount++
	sess.UpdatedAt = msg.CreatedAt
	return &msg, nil
}

// ListMessagesAfter mirrors store.Store.ListMessagesAfter.
func (m *MemStore) ListMessagesAfter(_ context.Context, sessionID string, after int32) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.Message
	for _, msg := range m.messages[sessionID] {
		if msg.SequenceNumber > after {
			out = append(out, msg)
		}
	}
	return out, nil
}

// ListRecentMessages mirrors store.Store.ListRecentMessages.
func (m *MemStore) ListRecentMessages(_ context.Context, sessionID string, limit int) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[sessionID]
	if limit <= 0 || len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CountMessagesAfter mirrors store.Store.CountMessagesAfter.
func (m *MemStore) CountMessagesAfter(_ context.Context, sessionID string, after int32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, msg := range m.messages[sessionID] {
		if msg.SequenceNumber > after {
			n++
		}
	}
	return n, nil
}

// CreateDocument mirrors store.Store.CreateDocument.
func (m *MemStore) CreateDocument(_ context.Context, sessionID, sourceName string) (*store.Document, error) {
	if err := store.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	doc := &store.Document{
		ID:         uuid.New(),
		SessionID:  sessionID,
		SourceName: sourceName,
		Status:     store.DocumentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.documents[doc.ID] = doc
	cp := *doc
	return &cp, nil
}

// GetDocument mirrors store.Store.GetDocument.
func (m *MemStore) GetDocument(_ context.Context, sessionID string, id uuid.UUID) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok || doc.SessionID != sessionID {
		return nil, fmt.Errorf("document %s: %w", id, store.ErrDocumentNotFound)
	}
	cp := *doc
	return &cp, nil
}

// UpdateDocumentStatus mirrors store.Store.UpdateDocumentStatus.
func (m *MemStore) UpdateDocumentStatus(_ context.Context, id uuid.UUID, status store.DocumentStatus, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, store.ErrDocumentNotFound)
	}
	doc.Status = status
	doc.ChunkCount = int32(chunkCount)
	doc.UpdatedAt = time.Now()
	return nil
}

// InsertChunks mirrors store.Store.InsertChunks.
func (m *MemStore) InsertChunks(_ context.Context, _ string, documentID uuid.UUID, chunks []store.NewChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) != store.VectorDimension {
			return fmt.Errorf("chunk %d embedding dimension %d, want %d",
				c.Index, len(c.Embedding), store.VectorDimension)
		}
	}
	m.chunks[documentID] = append(m.chunks[documentID], chunks...)
	return nil
}

// DeleteChunks mirrors store.Store.DeleteChunks.
func (m *MemStore) DeleteChunks(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.chunks, documentID)
	return nil
}

// NearestChunks ranks chunks of the session's ready documents by cosine
// similarity, like the pgvector query.
func (m *MemStore) NearestChunks(_ context.Context, sessionID string, embedding []float32, limit int) ([]store.ChunkMatch, error) {
	if len(embedding) != store.VectorDimension {
		return nil, fmt.Errorf("query embedding dimension %d, want %d",
			len(embedding), store.VectorDimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []store.ChunkMatch
	for docID, chunks := range m.chunks {
		doc, ok := m.documents[docID]
		if !ok || doc.SessionID != sessionID || doc.Status != store.DocumentReady {
			continue
		}
		for _, c := range chunks {
			matches = append(matches, store.ChunkMatch{
				ID:         uuid.New(),
				DocumentID: docID,
				Index:      c.Index,
				Content:    c.Content,
				SourceName: doc.SourceName,
				Similarity: CosineSimilarity(embedding, c.Embedding),
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
