// Package summary folds conversation history into each session's rolling
// summary on a background worker, off the chat path.
package summary

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
)

// Worker defaults.
const (
	DefaultQueueSize       = 64
	DefaultMaxSummaryWords = 200
)

// Store is the persistence surface the worker needs.
type Store interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListMessagesAfter(ctx context.Context, sessionID string, after int32) ([]store.Message, error)
	UpdateSessionSummary(ctx context.Context, id, summary string, cursor int32) error
}

// Completer generates the folded summary text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes the worker.
type Config struct {
	QueueSize       int
	MaxSummaryWords int
}

// Worker consumes scheduled summarization jobs. Each session owns a small
// state machine (idle, triggered, summarizing, committed) acting as the
// per-session lease: a session whose machine is not idle rejects further
// scheduling, so at most one run is ever in flight per session.
//
// Failures are absorbed here. The cursor stays put, the state returns to
// idle, and the same message range is retried on the next threshold
// crossing.
type Worker struct {
	store     Store
	completer Completer
	cfg       Config
	logger    log.Logger

	jobs chan string

	mu       sync.Mutex
	sessions map[string]*stateless.StateMachine
}

// NewWorker creates a Worker. Zero config fields fall back to defaults.
func NewWorker(st Store, completer Completer, cfg Config, logger log.Logger) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxSummaryWords <= 0 {
		cfg.MaxSummaryWords = DefaultMaxSummaryWords
	}
	return &Worker{
		store:     st,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
		jobs:      make(chan string, cfg.QueueSize),
		sessions:  make(map[string]*stateless.StateMachine),
	}
}

// Schedule enqueues a summarization run for a session. It never blocks: a
// session already in flight is skipped, and a full queue drops the job with
// a log line. Dropped work is recovered on the next threshold crossing.
func (w *Worker) Schedule(sessionID string) {
	fsm := w.machine(sessionID)
	if err := fsm.Fire(TriggerSchedule); err != nil {
		w.logger.Debug("summarization already in flight", "session_id", sessionID)
		return
	}

	select {
	case w.jobs <- sessionID:
	default:
		if err := fsm.Fire(TriggerReset); err != nil {
			w.logger.Warn("failed to reset dropped job", "session_id", sessionID, "error", err)
		}
		w.logger.Warn("summarization queue full, dropping job", "session_id", sessionID)
	}
}

// Run consumes jobs until the context is canceled. It is meant to be
// started once, as a goroutine, at application wiring time.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sessionID := <-w.jobs:
			w.summarize(ctx, sessionID)
		}
	}
}

// State reports the current lifecycle state for a session.
func (w *Worker) State(sessionID string) State {
	return w.machine(sessionID).MustState().(State)
}

func (w *Worker) machine(sessionID string) *stateless.StateMachine {
	w.mu.Lock()
	defer w.mu.Unlock()

	fsm, ok := w.sessions[sessionID]
	if !ok {
		fsm = newSessionFSM()
		w.sessions[sessionID] = fsm
	}
	return fsm
}

// summarize runs one fold for a session. Every failure path fires Fail,
// leaving the cursor unmoved and the machine idle for a retry.
func (w *Worker) summarize(ctx context.Context, sessionID string) {
	fsm := w.machine(sessionID)
	if err := fsm.Fire(TriggerBegin); err != nil {
		w.logger.Warn("summarization job in unexpected state", "session_id", sessionID, "error", err)
		return
	}

	fail := func(stage string, cause error) {
		if err := fsm.Fire(TriggerFail); err != nil {
			w.logger.Warn("failed to revert summarizer state", "session_id", sessionID, "error", err)
		}
		w.logger.Error("summarization failed",
			"session_id", sessionID,
			"stage", stage,
			"error", cause)
	}

	sess, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		fail("load session", err)
		return
	}

	msgs, err := w.store.ListMessagesAfter(ctx, sessionID, sess.SummaryCursor)
	if err != nil {
		fail("load messages", err)
		return
	}
	if len(msgs) == 0 {
		if err := fsm.Fire(TriggerFail); err != nil {
			w.logger.Warn("failed to revert summarizer state", "session_id", sessionID, "error", err)
		}
		w.logger.Debug("nothing to fold", "session_id", sessionID)
		return
	}

	updated, err := w.completer.Complete(ctx, foldPrompt(sess.RollingSummary, msgs, w.cfg.MaxSummaryWords))
	if err != nil {
		fail("complete", err)
		return
	}

	cursor := msgs[len(msgs)-1].SequenceNumber
	if err := w.store.UpdateSessionSummary(ctx, sessionID, strings.TrimSpace(updated), cursor); err != nil {
		fail("commit", err)
		return
	}

	if err := fsm.Fire(TriggerCommit); err != nil {
		w.logger.Warn("failed to mark summary committed", "session_id", sessionID, "error", err)
	}
	if err := fsm.Fire(TriggerReset); err != nil {
		w.logger.Warn("failed to reset summarizer state", "session_id", sessionID, "error", err)
	}

	w.logger.Info("summary updated",
		"session_id", sessionID,
		"cursor", cursor,
		"messages_folded", len(msgs))
}

// foldPrompt asks the model to merge the existing summary with the
// unsummarized transcript into one updated summary.
func foldPrompt(current string, msgs []store.Message, maxWords int) string {
	var b strings.Builder
	b.WriteString("Fold the new conversation turns into the running summary. ")
	fmt.Fprintf(&b, "Keep every fact a future turn might need and stay under %d words. ", maxWords)
	b.WriteString("Respond with the updated summary only.\n\n")

	b.WriteString("## Current summary\n")
	if current == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(current)
		b.WriteString("\n")
	}

	b.WriteString("\n## New turns\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
