// Package chat assembles prompts and runs the chat operation.
package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
)

// DefaultSummaryThreshold is the unsummarized message count past which a
// summarization run is scheduled.
const DefaultSummaryThreshold = 10

// Store is the persistence surface the engine needs.
type Store interface {
	GetOrCreateSession(ctx context.Context, id string) (*store.Session, error)
	AppendMessage(ctx context.Context, sessionID string, role store.Role, content string) (*store.Message, error)
	ListMessagesAfter(ctx context.Context, sessionID string, after int32) ([]store.Message, error)
	CountMessagesAfter(ctx context.Context, sessionID string, after int32) (int, error)
}

// Retriever finds relevant document chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, sessionID, query string) ([]store.ChunkMatch, error)
}

// Completer generates an answer for an assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Scheduler enqueues a deferred summarization run for a session. It must
// never block the caller.
type Scheduler interface {
	Schedule(sessionID string)
}

// Result is the outcome of a chat turn. UsedChunkIDs carries provenance so
// the boundary layer can report which chunks informed the answer.
type Result struct {
	Answer       string
	UsedChunkIDs []uuid.UUID
}

// Config tunes the engine.
type Config struct {
	RecencyWindow    int // raw messages after the summary cursor to include
	SummaryThreshold int // unsummarized messages before scheduling a run
	TokenBudget      int // estimated tokens for the assembled prompt
}

// Engine runs chat turns: persist the question, gather context, complete,
// persist the answer, and schedule summarization when the backlog of
// unsummarized messages is large enough.
type Engine struct {
	store     Store
	retriever Retriever
	completer Completer
	scheduler Scheduler
	cfg       Config
	logger    log.Logger
}

// New creates an Engine. Zero config fields fall back to defaults.
func New(st Store, retriever Retriever, completer Completer, scheduler Scheduler, cfg Config, logger log.Logger) *Engine {
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = DefaultRecencyWindow
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = DefaultSummaryThreshold
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	return &Engine{
		store:     st,
		retriever: retriever,
		completer: completer,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
	}
}

// Chat executes one turn for a session. The user message is persisted
// before any model work so intent survives a failed generation. A failure
// past that point returns an error with no assistant message persisted.
func (e *Engine) Chat(ctx context.Context, sessionID, query string) (*Result, error) {
	sess, err := e.store.GetOrCreateSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	userMsg, err := e.store.AppendMessage(ctx, sess.ID, store.RoleUser, query)
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	recent, err := e.recentMessages(ctx, sess, userMsg.SequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	chunks, err := e.retriever.Retrieve(ctx, sess.ID, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	prompt, used := Assemble(sess.RollingSummary, recent, chunks, query, e.cfg.TokenBudget)
	answer, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	if _, err := e.store.AppendMessage(ctx, sess.ID, store.RoleAssistant, answer); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	e.maybeScheduleSummary(ctx, sess)

	e.logger.Info("chat turn complete",
		"session_id", sess.ID,
		"chunks_used", len(used))
	return &Result{Answer: answer, UsedChunkIDs: used}, nil
}

// recentMessages returns the last RecencyWindow messages strictly after the
// summary cursor, excluding the just-persisted user message. Messages the
// summary already covers are left out so the prompt does not repeat them.
func (e *Engine) recentMessages(ctx context.Context, sess *store.Session, currentSeq int32) ([]store.Message, error) {
	msgs, err := e.store.ListMessagesAfter(ctx, sess.ID, sess.SummaryCursor)
	if err != nil {
		return nil, err
	}

	recent := msgs[:0]
	for _, m := range msgs {
		if m.SequenceNumber < currentSeq {
			recent = append(recent, m)
		}
	}
	if len(recent) > e.cfg.RecencyWindow {
		recent = recent[len(recent)-e.cfg.RecencyWindow:]
	}
	return recent, nil
}

// maybeScheduleSummary checks the unsummarized backlog and hands the
// session to the summarizer when it crosses the threshold. Failures here
// never affect the chat response.
func (e *Engine) maybeScheduleSummary(ctx context.Context, sess *store.Session) {
	count, err := e.store.CountMessagesAfter(ctx, sess.ID, sess.SummaryCursor)
	if err != nil {
		e.logger.Warn("failed to count unsummarized messages", "session_id", sess.ID, "error", err)
		return
	}
	if count > e.cfg.SummaryThreshold {
		e.scheduler.Schedule(sess.ID)
	}
}
