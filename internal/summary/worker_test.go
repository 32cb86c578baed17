package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
	"github.com/calypso-ai/calypso/internal/testutil"
)

func seedMessages(t *testing.T, ms *testutil.MemStore, sessionID string, n int) {
	t.Helper()
	ctx := context.Background()

	if _, err := ms.GetOrCreateSession(ctx, sessionID); err != nil {
		t.Fatal(err)
	}
	for i := range n {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		if _, err := ms.AppendMessage(ctx, sessionID, role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatal(err)
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func startWorker(t *testing.T, w *Worker) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSummarizeFoldsAndAdvancesCursor(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ms := testutil.NewMemStore()
	seedMessages(t, ms, "sess-1", 12)

	mock := testutil.NewMockModel("folded: user asked about twelve turns")
	w := NewWorker(ms, mock, Config{}, log.NewNop())
	startWorker(t, w)

	w.Schedule("sess-1")
	waitFor(t, func() bool {
		sess, err := ms.GetSession(context.Background(), "sess-1")
		return err == nil && sess.SummaryCursor == 12
	})

	sess, err := ms.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.RollingSummary != "folded: user asked about twelve turns" {
		t.Fatalf("summary = %q", sess.RollingSummary)
	}

	waitFor(t, func() bool { return w.State("sess-1") == StateIdle })

	// The fold prompt carries both the old summary slot and the new turns.
	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("completer called %d times, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "turn 0") || !strings.Contains(calls[0].Prompt, "turn 11") {
		t.Fatalf("fold prompt missing transcript:\n%s", calls[0].Prompt)
	}
}

func TestSecondFoldBuildsOnFirst(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ms := testutil.NewMemStore()
	seedMessages(t, ms, "sess-1", 4)

	mock := testutil.NewMockModel("first summary")
	w := NewWorker(ms, mock, Config{}, log.NewNop())
	startWorker(t, w)

	w.Schedule("sess-1")
	waitFor(t, func() bool {
		sess, _ := ms.GetSession(context.Background(), "sess-1")
		return sess != nil && sess.SummaryCursor == 4
	})

	// More turns arrive, then a second fold.
	ctx := context.Background()
	if _, err := ms.AppendMessage(ctx, "sess-1", store.RoleUser, "a fifth turn"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return w.State("sess-1") == StateIdle })

	mock.AddResponse("first summary", "second summary")
	w.Schedule("sess-1")
	waitFor(t, func() bool {
		sess, _ := ms.GetSession(context.Background(), "sess-1")
		return sess != nil && sess.SummaryCursor == 5
	})

	sess, err := ms.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.RollingSummary != "second summary" {
		t.Fatalf("summary = %q, want fold built on the first", sess.RollingSummary)
	}

	calls := mock.Calls()
	last := calls[len(calls)-1].Prompt
	if !strings.Contains(last, "first summary") || !strings.Contains(last, "a fifth turn") {
		t.Fatalf("second fold prompt missing prior summary or new turn:\n%s", last)
	}
	if strings.Contains(last, "turn 0") {
		t.Fatal("second fold re-read messages already behind the cursor")
	}
}

func TestFailureRevertsWithoutMovingCursor(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	ms := testutil.NewMemStore()
	seedMessages(t, ms, "sess-1", 6)

	mock := testutil.NewMockModel("recovered summary")
	mock.FailNext(errors.New("model down"))
	w := NewWorker(ms, mock, Config{}, log.NewNop())
	startWorker(t, w)

	w.Schedule("sess-1")
	waitFor(t, func() bool { return len(mock.Calls()) == 0 && w.State("sess-1") == StateIdle })

	sess, err := ms.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.SummaryCursor != 0 || sess.RollingSummary != "" {
		t.Fatalf("failed run must not move cursor: cursor=%d summary=%q",
			sess.SummaryCursor, sess.RollingSummary)
	}

	// The same range is retried on the next trigger.
	w.Schedule("sess-1")
	waitFor(t, func() bool {
		s, _ := ms.GetSession(context.Background(), "sess-1")
		return s != nil && s.SummaryCursor == 6
	})
}

func TestScheduleWhileInFlightIsRejected(t *testing.T) {
	ms := testutil.NewMemStore()
	seedMessages(t, ms, "sess-1", 4)

	w := NewWorker(ms, testutil.NewMockModel("ok"), Config{}, log.NewNop())

	// No worker running: the first job parks the machine in Triggered.
	w.Schedule("sess-1")
	w.Schedule("sess-1")

	if got := w.State("sess-1"); got != StateTriggered {
		t.Fatalf("state = %v, want Triggered", got)
	}
	if got := len(w.jobs); got != 1 {
		t.Fatalf("queue holds %d jobs, want 1", got)
	}
}

func TestQueueFullDropsAndResets(t *testing.T) {
	ms := testutil.NewMemStore()
	seedMessages(t, ms, "sess-1", 2)
	seedMessages(t, ms, "sess-2", 2)

	w := NewWorker(ms, testutil.NewMockModel("ok"), Config{QueueSize: 1}, log.NewNop())

	w.Schedule("sess-1")
	w.Schedule("sess-2") // queue full, dropped

	if got := w.State("sess-2"); got != StateIdle {
		t.Fatalf("dropped session state = %v, want Idle so it can be rescheduled", got)
	}
	if got := w.State("sess-1"); got != StateTriggered {
		t.Fatalf("queued session state = %v, want Triggered", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := NewWorker(testutil.NewMemStore(), testutil.NewMockModel("ok"), Config{}, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
