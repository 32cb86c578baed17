package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
	"github.com/calypso-ai/calypso/internal/testutil"
)

type fakeRetriever struct {
	matches []store.ChunkMatch
	err     error
}

func (f *fakeRetriever) Retrieve(context.Context, string, string) ([]store.ChunkMatch, error) {
	return f.matches, f.err
}

type fakeScheduler struct {
	mu       sync.Mutex
	sessions []string
}

func (f *fakeScheduler) Schedule(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
}

func (f *fakeScheduler) scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func TestChatHappyPath(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	mock := testutil.NewMockModel("fallback answer")
	mock.AddResponse("sky", "The sky is blue due to Rayleigh scattering.")
	chunkID := uuid.New()
	retr := &fakeRetriever{matches: []store.ChunkMatch{
		{ID: chunkID, SourceName: "weather.txt", Index: 0, Content: "the sky is blue"},
	}}
	sched := &fakeScheduler{}

	e := New(ms, retr, mock, sched, Config{}, log.NewNop())
	res, err := e.Chat(context.Background(), "sess-1", "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if res.Answer != "The sky is blue due to Rayleigh scattering." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if len(res.UsedChunkIDs) != 1 || res.UsedChunkIDs[0] != chunkID {
		t.Fatalf("used chunk ids = %v, want [%s]", res.UsedChunkIDs, chunkID)
	}

	msgs, err := ms.ListMessagesAfter(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want user+assistant", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Fatalf("roles = %s,%s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].SequenceNumber != 1 || msgs[1].SequenceNumber != 2 {
		t.Fatalf("sequence numbers = %d,%d", msgs[0].SequenceNumber, msgs[1].SequenceNumber)
	}

	if got := sched.scheduled(); len(got) != 0 {
		t.Fatalf("summary scheduled below threshold: %v", got)
	}
}

func TestChatProvenanceExcludesTrimmedChunks(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	kept := uuid.New()
	trimmed := uuid.New()
	retr := &fakeRetriever{matches: []store.ChunkMatch{
		{ID: kept, SourceName: "small.txt", Index: 0, Content: "short fact"},
		{ID: trimmed, SourceName: "big.txt", Index: 1, Content: strings.Repeat("x", 4000)},
	}}

	budget := EstimateTokens(preamble) + EstimateTokens("## User question\nq") +
		EstimateTokens("[Source: small.txt#0]\nshort fact") + 10

	e := New(ms, retr, testutil.NewMockModel("ok"), &fakeScheduler{},
		Config{TokenBudget: budget}, log.NewNop())
	res, err := e.Chat(context.Background(), "sess-1", "q")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(res.UsedChunkIDs) != 1 || res.UsedChunkIDs[0] != kept {
		t.Fatalf("used chunk ids = %v, want only %v", res.UsedChunkIDs, kept)
	}
}

func TestChatPromptContainsContext(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	ctx := context.Background()
	if _, err := ms.GetOrCreateSession(ctx, "sess-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ms.AppendMessage(ctx, "sess-1", store.RoleUser, "earlier question about tides"); err != nil {
		t.Fatal(err)
	}
	if _, err := ms.AppendMessage(ctx, "sess-1", store.RoleAssistant, "earlier tide answer"); err != nil {
		t.Fatal(err)
	}

	mock := testutil.NewMockModel("ok")
	retr := &fakeRetriever{matches: []store.ChunkMatch{
		{ID: uuid.New(), SourceName: "ocean.txt", Index: 3, Content: "tides follow the moon"},
	}}

	e := New(ms, retr, mock, &fakeScheduler{}, Config{}, log.NewNop())
	if _, err := e.Chat(ctx, "sess-1", "What about tomorrow's tide?"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("completer called %d times", len(calls))
	}
	prompt := calls[0].Prompt
	for _, want := range []string{
		"earlier question about tides",
		"earlier tide answer",
		"[Source: ocean.txt#3]",
		"What about tomorrow's tide?",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	// The in-flight user message lives in the query block, not the history.
	if strings.Contains(prompt, "user: What about tomorrow's tide?") {
		t.Fatal("current query duplicated into recent messages")
	}
}

func TestChatCompletionFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	mock := testutil.NewMockModel("ok")
	wantErr := errors.New("model down")
	mock.FailNext(wantErr)

	e := New(ms, &fakeRetriever{}, mock, &fakeScheduler{}, Config{}, log.NewNop())
	_, err := e.Chat(context.Background(), "sess-1", "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}

	msgs, err := ms.ListMessagesAfter(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Role != store.RoleUser {
		t.Fatalf("messages = %v, want only the user message", msgs)
	}
}

func TestChatRetrievalFailureSurfaced(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	wantErr := errors.New("index unreachable")

	e := New(ms, &fakeRetriever{err: wantErr}, testutil.NewMockModel("ok"), &fakeScheduler{}, Config{}, log.NewNop())
	_, err := e.Chat(context.Background(), "sess-1", "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestChatSchedulesSummaryPastThreshold(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	sched := &fakeScheduler{}
	e := New(ms, &fakeRetriever{}, testutil.NewMockModel("ok"), sched,
		Config{SummaryThreshold: 4}, log.NewNop())

	ctx := context.Background()
	for i := range 3 {
		if _, err := e.Chat(ctx, "sess-1", fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	// Three turns produce six unsummarized messages, crossing T=4.
	got := sched.scheduled()
	if len(got) == 0 {
		t.Fatal("summary never scheduled")
	}
	for _, id := range got {
		if id != "sess-1" {
			t.Fatalf("scheduled unexpected session %q", id)
		}
	}
}

func TestChatRecencyWindowRespectsCursor(t *testing.T) {
	t.Parallel()

	ms := testutil.NewMemStore()
	ctx := context.Background()
	if _, err := ms.GetOrCreateSession(ctx, "sess-1"); err != nil {
		t.Fatal(err)
	}
	for i := range 4 {
		if _, err := ms.AppendMessage(ctx, "sess-1", store.RoleUser, fmt.Sprintf("old message %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	// Fold the first two messages into the summary.
	if err := ms.UpdateSessionSummary(ctx, "sess-1", "covers messages 0 and 1", 2); err != nil {
		t.Fatal(err)
	}

	mock := testutil.NewMockModel("ok")
	e := New(ms, &fakeRetriever{}, mock, &fakeScheduler{}, Config{}, log.NewNop())
	if _, err := e.Chat(ctx, "sess-1", "fresh question"); err != nil {
		t.Fatal(err)
	}

	prompt := mock.Calls()[0].Prompt
	if strings.Contains(prompt, "old message 0") || strings.Contains(prompt, "old message 1") {
		t.Fatal("summarized messages leaked into the recency window")
	}
	for _, want := range []string{"old message 2", "old message 3", "covers messages 0 and 1"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
