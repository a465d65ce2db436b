// ABOUTME: Tests for the assistant conversation controller.
// ABOUTME: Covers submission, streaming, reveal, merge, actions, cancellation.

package assistant

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftroom/draftroom-client/internal/api"
	"github.com/draftroom/draftroom-client/internal/identity"
	"github.com/draftroom/draftroom-client/internal/realtime"
	"github.com/draftroom/draftroom-client/internal/storage"
)

// fakeBackend is an in-memory Backend that replays scripted stream events
// and records every request it receives.
type fakeBackend struct {
	mu           sync.Mutex
	asks         []api.AskRequest
	events       []api.StreamEvent
	streamErr    error
	submitResp   *api.AssistantResponse
	submitErr    error
	history      []api.HistoryEntry
	historyErr   error
	historyCalls int
	tasks        []api.TaskRequest
	taskErr      error
	block        chan struct{} // when set, the stream waits before emitting
}

func (f *fakeBackend) StreamQuestion(ctx context.Context, projectID, channelID string, req api.AskRequest) (<-chan api.StreamEvent, error) {
	f.mu.Lock()
	f.asks = append(f.asks, req)
	events := slices.Clone(f.events)
	block := f.block
	err := f.streamErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan api.StreamEvent)
	go func() {
		defer close(out)
		if block != nil {
			select {
			case <-ctx.Done():
				return
			case <-block:
			}
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeBackend) SubmitQuestion(_ context.Context, _, _ string, req api.AskRequest) (*api.AssistantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, req)
	return f.submitResp, f.submitErr
}

func (f *fakeBackend) AssistantHistory(_ context.Context, _, _ string) ([]api.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return slices.Clone(f.history), f.historyErr
}

func (f *fakeBackend) CreateTask(_ context.Context, _ string, task api.TaskRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taskErr != nil {
		return f.taskErr
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeBackend) lastAsk(t *testing.T) api.AskRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.asks)
	return f.asks[len(f.asks)-1]
}

// recordingStore captures every snapshot write so tests can observe
// intermediate display states.
type recordingStore struct {
	*storage.Memory
	mu     sync.Mutex
	writes []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: storage.NewMemory()}
}

func (r *recordingStore) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	r.writes = append(r.writes, value)
	r.mu.Unlock()
	return r.Memory.Set(ctx, key, value)
}

// rawSnap reads stored snapshots without the hydration-time settling that
// DecodeSnapshot applies.
type rawSnap struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Display string `json:"display_message"`
}

func (r *recordingStore) snapshots(t *testing.T) [][]rawSnap {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]rawSnap, 0, len(r.writes))
	for _, w := range r.writes {
		var snaps []rawSnap
		require.NoError(t, json.Unmarshal([]byte(w), &snaps))
		out = append(out, snaps)
	}
	return out
}

func newTestController(backend Backend, store storage.Store) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(backend, store, &identity.Viewer{ID: "me", Name: "Me"}, logger)
	c.MinRevealDelay = time.Millisecond
	c.MaxRevealDelay = time.Millisecond
	return c
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		reasoning bool

		wantQuestion  string
		wantReasoning bool
	}{
		{"plain", "hello there", false, "hello there", false},
		{"plain keeps flag", "hello", true, "hello", true},
		{"reason", "/reason why is the sky blue", false, "why is the sky blue", true},
		{"reasoning", "/reasoning explain", false, "explain", true},
		{"short r", "/r explain", false, "explain", true},
		{"case insensitive", "/R explain", false, "explain", true},
		{"unknown command is question", "/summarize the intro", false, "summarize the intro", false},
		{"reason without body", "/reason", false, "", true},
		{"whitespace only", "   ", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, r := ParseCommand(tt.input, tt.reasoning)
			assert.Equal(t, tt.wantQuestion, q)
			assert.Equal(t, tt.wantReasoning, r)
		})
	}
}

func TestSubmit_EmptyQuestion(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = c.Submit(context.Background(), Ask{Input: "/reason"})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	assert.Empty(t, c.Exchanges())
	assert.Empty(t, backend.asks)
}

func TestSubmit_NoActiveChannel(t *testing.T) {
	c := newTestController(&fakeBackend{}, storage.NewMemory())

	_, err := c.Submit(context.Background(), Ask{Input: "hello"})
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestSubmit_StreamsTokensToCompletion(t *testing.T) {
	raw := "Cite [resource:r1].\n" +
		`[[actions]][{"action_type":"create_task","summary":"File it","payload":{"title":"T"}}][[/actions]]`
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "Cite "},
			{Type: api.StreamToken, Token: "[resource:r1]."},
			{Type: api.StreamResult, Result: &api.AssistantResponse{
				Message:   raw,
				Citations: []api.Citation{{Origin: "resource", OriginID: "r1", Label: "Doe 2021"}},
				Model:     "draftroom-lg",
			}},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	id, err := c.Submit(context.Background(), Ask{
		Input:           "please cite",
		Scope:           []string{"papers", "references"},
		DocumentContext: "EXCERPT",
	})
	require.NoError(t, err)

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1)
	ex := exchanges[0]
	assert.Equal(t, id, ex.ID)
	assert.Equal(t, StatusComplete, ex.Status)
	assert.Equal(t, "Cite **Doe 2021**.", ex.DisplayMessage)
	assert.False(t, ex.CompletedAt.IsZero())
	require.NotNil(t, ex.Response)
	assert.Equal(t, raw, ex.Response.Message)
	require.Len(t, ex.Response.SuggestedActions, 1)
	assert.Equal(t, "create_task", ex.Response.SuggestedActions[0].ActionType)
	require.NotNil(t, ex.Author)
	assert.Equal(t, "me", ex.Author.ID)
	assert.False(t, c.Sending())

	ask := backend.lastAsk(t)
	assert.Equal(t, "please cite", ask.Question)
	assert.Equal(t, []string{"papers", "references"}, ask.Scope)
	assert.Equal(t, "EXCERPT", ask.Context)
}

func TestSubmit_DisplayMonotonicWhileStreaming(t *testing.T) {
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "one "},
			{Type: api.StreamToken, Token: "two "},
			{Type: api.StreamToken, Token: "three"},
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: "one two three"}},
		},
	}
	store := newRecordingStore()
	c := newTestController(backend, store)
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "count"})
	require.NoError(t, err)

	prev := 0
	for _, snaps := range store.snapshots(t) {
		if len(snaps) != 1 || snaps[0].Status != string(StatusStreaming) {
			continue
		}
		assert.GreaterOrEqual(t, len(snaps[0].Display), prev,
			"display must never shrink while streaming")
		prev = len(snaps[0].Display)
	}
	assert.Equal(t, "one two three", c.Exchanges()[0].DisplayMessage)
}

func TestSubmit_TypewriterRevealsPrefixes(t *testing.T) {
	final := "Hello, collaborative world!"
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: final}},
		},
	}
	store := newRecordingStore()
	c := newTestController(backend, store)
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "greet"})
	require.NoError(t, err)

	sawPartial := false
	for _, snaps := range store.snapshots(t) {
		if len(snaps) != 1 || snaps[0].Status != string(StatusStreaming) {
			continue
		}
		assert.True(t, strings.HasPrefix(final, snaps[0].Display),
			"every revealed state must be a prefix of the final message")
		if snaps[0].Display != "" && snaps[0].Display != final {
			sawPartial = true
		}
	}
	assert.True(t, sawPartial, "reveal should pass through partial states")

	ex := c.Exchanges()[0]
	assert.Equal(t, StatusComplete, ex.Status)
	assert.Equal(t, final, ex.DisplayMessage)
}

func TestSubmit_EmptyAnswerCompletesImmediately(t *testing.T) {
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: "   "}},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "say nothing"})
	require.NoError(t, err)

	ex := c.Exchanges()[0]
	assert.Equal(t, StatusComplete, ex.Status)
	assert.Empty(t, ex.DisplayMessage)
}

func TestSubmit_TransportFailureRollsBack(t *testing.T) {
	backend := &fakeBackend{streamErr: &api.StatusError{Code: 503}}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "hello"})

	require.Error(t, err)
	assert.Empty(t, c.Exchanges(), "optimistic exchange must be rolled back")
	assert.False(t, c.Sending())
}

func TestSubmit_ErrorFrameDegradesToPartialAnswer(t *testing.T) {
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "partial answer"},
			{Type: api.StreamError, Err: "model overloaded"},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "hello"})
	require.NoError(t, err, "stream errors degrade, they do not fail the submission")

	ex := c.Exchanges()[0]
	assert.Equal(t, StatusComplete, ex.Status)
	assert.Contains(t, ex.DisplayMessage, "partial answer")
	assert.Contains(t, ex.DisplayMessage, "model overloaded")
}

func TestSubmit_SlashReasonForcesFlag(t *testing.T) {
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "ok"},
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: "ok", ReasoningUsed: true}},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "/r why?", Reasoning: false})
	require.NoError(t, err)

	ask := backend.lastAsk(t)
	assert.Equal(t, "why?", ask.Question)
	assert.True(t, ask.Reasoning)
}

func TestSubmit_NonStreamingUsesTypewriter(t *testing.T) {
	backend := &fakeBackend{
		submitResp: &api.AssistantResponse{ExchangeID: "srv-9", Message: "whole answer"},
	}
	c := newTestController(backend, storage.NewMemory())
	c.Streaming = false
	c.ActivateChannel(context.Background(), "p1", "c1")

	id, err := c.Submit(context.Background(), Ask{Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "srv-9", id)

	ex := c.Exchanges()[0]
	assert.Equal(t, StatusComplete, ex.Status)
	assert.Equal(t, "whole answer", ex.DisplayMessage)
}

func TestSubmit_AdoptsServerExchangeID(t *testing.T) {
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "my answer"},
			{Type: api.StreamResult, Result: &api.AssistantResponse{ExchangeID: "srv-1", Message: "my answer"}},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	id, err := c.Submit(context.Background(), Ask{Input: "my question"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "srv-1", exchanges[0].ID)

	// The server's persisted copy arriving through a history poll now
	// reconciles by id instead of duplicating the exchange.
	c.MergeHistory([]api.HistoryEntry{{
		ID:        "srv-1",
		Question:  "my question",
		Response:  api.AssistantResponse{Message: "my answer"},
		CreatedAt: time.Now(),
	}})
	assert.Len(t, c.Exchanges(), 1)
}

func TestMergeHistory_RetiresConfirmedLocalCopy(t *testing.T) {
	// The result frame carried no exchange id, so the completed exchange
	// keeps its client-generated one.
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "my answer"},
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: "my answer"}},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	id, err := c.Submit(context.Background(), Ask{Input: "my question"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "local-"))

	c.MergeHistory([]api.HistoryEntry{{
		ID:        "srv-1",
		Question:  "my question",
		Response:  api.AssistantResponse{Message: "my answer"},
		CreatedAt: time.Now(),
		Author:    &api.Author{ID: "me", Name: "Me"},
	}})

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1, "server copy of a submitted question must not duplicate it")
	assert.Equal(t, "srv-1", exchanges[0].ID)
}

func TestMergeHistory_KeepsLocalCopyFromOtherAuthor(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := newTestController(&fakeBackend{}, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	c.exchanges = []*Exchange{{
		ID:        "local-1",
		Question:  "same question",
		CreatedAt: t0,
		Status:    StatusComplete,
		Author:    &api.Author{ID: "me"},
	}}

	// A peer asked the identical question; that is not a twin.
	c.MergeHistory([]api.HistoryEntry{historyEntry("s1", "same question", "peer answer", t0)})

	assert.Len(t, c.Exchanges(), 2)
}

func TestCancel_RollsBackSilently(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), Ask{Input: "hello"})
		errCh <- err
	}()

	require.Eventually(t, c.Sending, time.Second, time.Millisecond)
	c.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Submit did not return after Cancel")
	}
	assert.Empty(t, c.Exchanges(), "cancelled submission must leave no exchange")
	assert.False(t, c.Sending())
}

func historyEntry(id, question, message string, createdAt time.Time) api.HistoryEntry {
	return api.HistoryEntry{
		ID:        id,
		Question:  question,
		Response:  api.AssistantResponse{Message: message},
		CreatedAt: createdAt,
		Author:    &api.Author{ID: "u2", Name: "Peer"},
	}
}

func TestMergeHistory_IdempotentAndOrdered(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entries := []api.HistoryEntry{
		historyEntry("s1", "first", "a1", t0),
		historyEntry("s2", "third", "a3", t0.Add(2*time.Minute)),
	}

	c := newTestController(&fakeBackend{}, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	// A local optimistic exchange the server has not confirmed yet.
	c.exchanges = []*Exchange{{
		ID:        "local-1",
		Question:  "second",
		CreatedAt: t0.Add(time.Minute),
		Status:    StatusPending,
	}}

	c.MergeHistory(entries)
	first := c.Exchanges()
	c.MergeHistory(entries)
	second := c.Exchanges()

	ids := func(list []Exchange) []string {
		out := make([]string, len(list))
		for i, ex := range list {
			out[i] = ex.ID
		}
		return out
	}
	assert.Equal(t, []string{"s1", "local-1", "s2"}, ids(first))
	assert.Equal(t, ids(first), ids(second), "merging twice must be a no-op")
}

func TestMergeHistory_ServerEntryReplacesConfirmed(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := newTestController(&fakeBackend{}, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	c.exchanges = []*Exchange{{
		ID:             "s1",
		Question:       "first",
		CreatedAt:      t0,
		Status:         StatusComplete,
		DisplayMessage: "stale local copy",
		AppliedActions: map[string]bool{"s1:0": true},
	}}

	c.MergeHistory([]api.HistoryEntry{historyEntry("s1", "first", "fresh server answer", t0)})

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "fresh server answer", exchanges[0].DisplayMessage)
	assert.True(t, exchanges[0].AppliedActions["s1:0"],
		"applied-action state is client-side and survives refresh")
}

func TestRefreshHistory_FetchesAndMerges(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	backend := &fakeBackend{history: []api.HistoryEntry{historyEntry("s1", "q", "a", t0)}}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	require.NoError(t, c.RefreshHistory(context.Background()))

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "s1", exchanges[0].ID)
	assert.Equal(t, StatusComplete, exchanges[0].Status)
}

func actionMessage(title string) string {
	payload := "{}"
	if title != "" {
		payload = `{"title":"` + title + `","description":"from the assistant"}`
	}
	return "Consider this.\n[[actions]][" +
		`{"action_type":"create_task","summary":"File a task","payload":` + payload + `}` +
		`,{"action_type":"send_email","summary":"Mail someone"}` +
		"][[/actions]]"
}

func TestApplyAction_CreateTaskIdempotent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	backend := &fakeBackend{}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	c.MergeHistory([]api.HistoryEntry{historyEntry("h1", "q", actionMessage("Fix intro"), t0)})

	require.NoError(t, c.ApplyAction(context.Background(), "h1", 0))
	require.NoError(t, c.ApplyAction(context.Background(), "h1", 0), "second apply is a no-op")

	require.Len(t, backend.tasks, 1, "side effect must run at most once")
	assert.Equal(t, "Fix intro", backend.tasks[0].Title)
	assert.Equal(t, "from the assistant", backend.tasks[0].Description)
	assert.Equal(t, "h1", backend.tasks[0].MessageID)
	assert.True(t, c.Exchanges()[0].AppliedActions["h1:0"])
}

func TestApplyAction_MissingTitle(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	backend := &fakeBackend{}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	c.MergeHistory([]api.HistoryEntry{historyEntry("h1", "q", actionMessage(""), t0)})

	err := c.ApplyAction(context.Background(), "h1", 0)

	assert.ErrorIs(t, err, ErrMissingTitle)
	assert.Empty(t, backend.tasks)
	assert.Empty(t, c.Exchanges()[0].AppliedActions, "failed action must not mutate state")
}

func TestApplyAction_UnsupportedType(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	backend := &fakeBackend{}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	c.MergeHistory([]api.HistoryEntry{historyEntry("h1", "q", actionMessage("T"), t0)})

	err := c.ApplyAction(context.Background(), "h1", 1)

	assert.ErrorIs(t, err, ErrActionUnsupported)
	assert.Empty(t, c.Exchanges()[0].AppliedActions)
}

func TestApplyAction_UnknownTargets(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := newTestController(&fakeBackend{}, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")
	c.MergeHistory([]api.HistoryEntry{historyEntry("h1", "q", actionMessage("T"), t0)})

	assert.ErrorIs(t, c.ApplyAction(context.Background(), "nope", 0), ErrUnknownExchange)
	assert.ErrorIs(t, c.ApplyAction(context.Background(), "h1", 99), ErrUnknownAction)
	assert.ErrorIs(t, c.ApplyAction(context.Background(), "h1", -1), ErrUnknownAction)
}

func peerEvent(t *testing.T, entry api.HistoryEntry, projectID, channelID string) realtime.Event {
	t.Helper()
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	return realtime.Event{
		Name:      EventAssistantReply,
		EventID:   "evt-" + entry.ID,
		ProjectID: projectID,
		ChannelID: channelID,
		Exchange:  raw,
	}
}

func TestHandleRealtimeEvent_PeerReplyAppends(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entry := historyEntry("peer-1", "peer question", "peer answer", t0)
	backend := &fakeBackend{history: []api.HistoryEntry{entry}}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	c.HandleRealtimeEvent(peerEvent(t, entry, "p1", "c1"))

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "peer-1", exchanges[0].ID)
	assert.Equal(t, StatusComplete, exchanges[0].Status, "peer replies complete immediately, no animation")
	assert.Equal(t, "peer answer", exchanges[0].DisplayMessage)
	assert.Equal(t, 1, backend.historyCalls, "peer reply triggers a history refresh")
}

func TestHandleRealtimeEvent_IgnoresOwnEcho(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entry := historyEntry("mine-1", "my question", "my answer", t0)
	entry.Author = &api.Author{ID: "me", Name: "Me"}
	backend := &fakeBackend{}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	c.HandleRealtimeEvent(peerEvent(t, entry, "p1", "c1"))

	assert.Empty(t, c.Exchanges())
	assert.Zero(t, backend.historyCalls)
}

func TestHandleRealtimeEvent_IgnoresOtherChannels(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entry := historyEntry("peer-1", "q", "a", t0)
	c := newTestController(&fakeBackend{}, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	c.HandleRealtimeEvent(peerEvent(t, entry, "p1", "other-channel"))
	c.HandleRealtimeEvent(peerEvent(t, entry, "other-project", "c1"))

	assert.Empty(t, c.Exchanges())
}

func TestHandleRealtimeEvent_DuplicateIgnored(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entry := historyEntry("peer-1", "q", "a", t0)
	backend := &fakeBackend{history: []api.HistoryEntry{entry}}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	ev := peerEvent(t, entry, "p1", "c1")
	c.HandleRealtimeEvent(ev)
	c.HandleRealtimeEvent(ev)

	assert.Len(t, c.Exchanges(), 1)
	assert.Equal(t, 1, backend.historyCalls, "duplicate event must not refresh again")
}

func TestActivateChannel_HydratesStoredHistory(t *testing.T) {
	store := storage.NewMemory()
	snapshot := `[
		{"id":"ex-1","question":"q1","response":{"message":"done"},"status":"complete","created_at":"2026-01-01T10:00:00Z"},
		{"id":"ex-2","question":"q2","response":{"message":"mid answer"},"status":"streaming","created_at":"2026-01-01T10:01:00Z"},
		{"id":"ex-3","question":"q3","status":"pending","created_at":"2026-01-01T10:02:00Z"}
	]`
	require.NoError(t, store.Set(context.Background(), "assistantHistory:p1:c1", snapshot))

	c := newTestController(&fakeBackend{}, store)
	c.ActivateChannel(context.Background(), "p1", "c1")

	exchanges := c.Exchanges()
	require.Len(t, exchanges, 2, "stale placeholder must be dropped")
	assert.Equal(t, "ex-1", exchanges[0].ID)
	assert.Equal(t, "ex-2", exchanges[1].ID)
	assert.Equal(t, StatusComplete, exchanges[1].Status)
	assert.Equal(t, "mid answer", exchanges[1].DisplayMessage)
}

func TestActivateChannel_CorruptSnapshotFallsBackEmpty(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.Set(context.Background(), "assistantHistory:p1:c1", "{corrupt"))

	c := newTestController(&fakeBackend{}, store)
	c.ActivateChannel(context.Background(), "p1", "c1")

	assert.Empty(t, c.Exchanges())
}

func TestActivateChannel_PersistenceSurvivesSwitch(t *testing.T) {
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamToken, Token: "answer"},
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: "answer"}},
		},
	}
	c := newTestController(backend, storage.NewMemory())
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "hello"})
	require.NoError(t, err)

	c.ActivateChannel(context.Background(), "p1", "c2")
	assert.Empty(t, c.Exchanges())

	c.ActivateChannel(context.Background(), "p1", "c1")
	exchanges := c.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "hello", exchanges[0].Question)
	assert.Equal(t, "answer", exchanges[0].DisplayMessage)
}

func TestClearHistory(t *testing.T) {
	store := storage.NewMemory()
	backend := &fakeBackend{
		events: []api.StreamEvent{
			{Type: api.StreamResult, Result: &api.AssistantResponse{Message: "hi"}},
		},
	}
	c := newTestController(backend, store)
	c.ActivateChannel(context.Background(), "p1", "c1")

	_, err := c.Submit(context.Background(), Ask{Input: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, c.Exchanges())

	require.NoError(t, c.ClearHistory(context.Background()))

	assert.Empty(t, c.Exchanges())
	_, err = store.Get(context.Background(), "assistantHistory:p1:c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
