// ABOUTME: Conversation controller for the assistant in one (project, channel).
// ABOUTME: Drives submission, streaming, reconciliation, actions, and persistence.

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftroom/draftroom-client/internal/api"
	"github.com/draftroom/draftroom-client/internal/identity"
	"github.com/draftroom/draftroom-client/internal/realtime"
	"github.com/draftroom/draftroom-client/internal/storage"
)

// EventAssistantReply is the realtime feed event carrying a peer's
// completed exchange.
const EventAssistantReply = "assistant_reply"

// Reveal cadence defaults for typewriter playback: per-character delay is
// clamp(min, max, 1s / messageLength), so long answers reveal faster per
// character but the whole reveal stays in a window of roughly one to
// several seconds. A UX heuristic, tunable per controller.
const (
	DefaultMinRevealDelay = 15 * time.Millisecond
	DefaultMaxRevealDelay = 60 * time.Millisecond

	revealWindow = time.Second

	persistTimeout = 5 * time.Second
)

// localIDPrefix marks client-generated ids for exchanges the server has not
// yet assigned a persisted id.
const localIDPrefix = "local-"

// Controller errors.
var (
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrNoChannel         = errors.New("no active channel")
	ErrUnknownExchange   = errors.New("unknown exchange")
	ErrUnknownAction     = errors.New("unknown action index")
	ErrActionUnsupported = errors.New("unsupported action type")
	ErrMissingTitle      = errors.New("create_task action requires a title")
)

// Backend is the subset of the platform API the controller needs.
// *api.Client satisfies it.
type Backend interface {
	SubmitQuestion(ctx context.Context, projectID, channelID string, req api.AskRequest) (*api.AssistantResponse, error)
	StreamQuestion(ctx context.Context, projectID, channelID string, req api.AskRequest) (<-chan api.StreamEvent, error)
	AssistantHistory(ctx context.Context, projectID, channelID string) ([]api.HistoryEntry, error)
	CreateTask(ctx context.Context, projectID string, task api.TaskRequest) error
}

// Ask is one user submission.
type Ask struct {
	// Input is the raw user text, possibly starting with a slash command.
	Input string
	// Reasoning requests extended reasoning; slash commands can force it on.
	Reasoning bool
	// Scope is the ordered subset of {transcripts, papers, references} the
	// assistant may draw context from.
	Scope []string
	// DocumentContext is a prepared document excerpt attached to the request.
	DocumentContext string
}

// inFlight tracks the abort handle for the most recent submission.
type inFlight struct {
	cancel context.CancelFunc
}

// Controller owns the ordered exchange list for the active (project,
// channel) pair. All state lives behind one mutex; callers read snapshots
// via Exchanges and never mutate exchanges directly.
type Controller struct {
	backend Backend
	store   storage.Store
	viewer  *identity.Viewer
	logger  *slog.Logger

	// MinRevealDelay and MaxRevealDelay bound the typewriter cadence.
	MinRevealDelay time.Duration
	MaxRevealDelay time.Duration
	// Streaming selects the incremental transport. When false, answers are
	// fetched whole and revealed via the typewriter.
	Streaming bool

	mu         sync.Mutex
	projectID  string
	channelID  string
	exchanges  []*Exchange
	sending    bool
	flight     *inFlight
	revealStop chan struct{} // non-nil while a typewriter reveal runs
}

// NewController creates a controller. Viewer may be nil when the client
// has no identity token; peer-echo suppression is then disabled. Pass nil
// logger for default.
func NewController(backend Backend, store storage.Store, viewer *identity.Viewer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend:        backend,
		store:          store,
		viewer:         viewer,
		logger:         logger.With("component", "assistant"),
		MinRevealDelay: DefaultMinRevealDelay,
		MaxRevealDelay: DefaultMaxRevealDelay,
		Streaming:      true,
	}
}

// ActivateChannel switches the controller to a channel: the in-flight
// submission is aborted, reveal timers are cleared, and the channel's
// stored history is hydrated. The previous channel's storage is left
// intact. Hydration failures fall back to an empty conversation.
func (c *Controller) ActivateChannel(ctx context.Context, projectID, channelID string) {
	c.mu.Lock()
	if c.flight != nil {
		c.flight.cancel()
		c.flight = nil
	}
	c.stopRevealLocked()
	c.sending = false
	c.projectID = projectID
	c.channelID = channelID
	c.exchanges = nil
	c.mu.Unlock()

	key := storageKey(projectID, channelID)
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		c.logger.Warn("reading stored history", "key", key, "error", err)
		return
	}

	hydrated, err := DecodeSnapshot(data)
	if err != nil {
		c.logger.Warn("discarding corrupt stored history", "key", key, "error", err)
		return
	}
	sortByCreatedAt(hydrated)

	c.mu.Lock()
	if c.projectID == projectID && c.channelID == channelID {
		c.exchanges = hydrated
	}
	c.mu.Unlock()
}

// ActiveChannel returns the current (project, channel) pair.
func (c *Controller) ActiveChannel() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID, c.channelID
}

// Sending reports whether a submission is in flight. The controller does
// not enforce mutual exclusion; callers check this before submitting.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Exchanges returns a snapshot copy of the exchange list, oldest first.
func (c *Controller) Exchanges() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Exchange, len(c.exchanges))
	for i, ex := range c.exchanges {
		out[i] = *ex
		out[i].AppliedActions = maps.Clone(ex.AppliedActions)
	}
	return out
}

// ParseCommand interprets slash commands in user input. "/reason",
// "/reasoning", and "/r" force the reasoning flag on with the remainder as
// the question; any other slash input submits the remainder after the
// slash with the caller's flag. Plain input passes through trimmed.
func ParseCommand(input string, reasoning bool) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return trimmed, reasoning
	}

	keyword, rest, _ := strings.Cut(trimmed[1:], " ")
	switch strings.ToLower(keyword) {
	case "reason", "reasoning", "r":
		return strings.TrimSpace(rest), true
	default:
		return strings.TrimSpace(trimmed[1:]), reasoning
	}
}

// Submit asks the assistant a question. An optimistic pending exchange is
// appended immediately and driven to complete through streaming or
// typewriter reveal. On transport failure the exchange is rolled back and
// the error returned; user cancellation rolls back silently and returns
// context.Canceled. Returns the exchange id on success.
func (c *Controller) Submit(ctx context.Context, ask Ask) (string, error) {
	question, reasoning := ParseCommand(ask.Input, ask.Reasoning)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	c.mu.Lock()
	if c.channelID == "" {
		c.mu.Unlock()
		return "", ErrNoChannel
	}
	projectID, channelID := c.projectID, c.channelID

	ex := &Exchange{
		ID:             localIDPrefix + uuid.New().String(),
		Question:       question,
		CreatedAt:      time.Now(),
		Status:         StatusPending,
		AppliedActions: make(map[string]bool),
	}
	if c.viewer != nil {
		ex.Author = &api.Author{ID: c.viewer.ID, Name: c.viewer.Name}
	}
	c.exchanges = append(c.exchanges, ex)

	reqCtx, cancel := context.WithCancel(ctx)
	flight := &inFlight{cancel: cancel}
	c.flight = flight
	c.sending = true
	c.persistLocked(projectID, channelID)
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.flight == flight {
			c.flight = nil
			c.sending = false
		}
		c.mu.Unlock()
	}()

	req := api.AskRequest{
		Question:  question,
		Reasoning: reasoning,
		Scope:     ask.Scope,
		Context:   ask.DocumentContext,
	}

	var finalID string
	var err error
	if c.Streaming {
		finalID, err = c.streamAnswer(reqCtx, projectID, channelID, ex.ID, req)
	} else {
		finalID, err = c.fetchAnswer(reqCtx, projectID, channelID, ex.ID, req)
	}
	if err != nil {
		c.removeExchange(projectID, channelID, ex.ID)
		if reqCtx.Err() != nil && ctx.Err() == nil {
			// Cancel() was called: silent rollback, no transport error.
			return "", context.Canceled
		}
		return "", err
	}
	return finalID, nil
}

// Cancel aborts the most recent in-flight submission. Its optimistic
// exchange is removed entirely so the user can retry cleanly.
func (c *Controller) Cancel() {
	c.mu.Lock()
	flight := c.flight
	c.mu.Unlock()
	if flight != nil {
		flight.cancel()
	}
}

// streamAnswer consumes the incremental event stream for one exchange.
// Returns the exchange's final id, which may differ from exchangeID once
// the server assigns a persisted id.
func (c *Controller) streamAnswer(ctx context.Context, projectID, channelID, exchangeID string, req api.AskRequest) (string, error) {
	events, err := c.backend.StreamQuestion(ctx, projectID, channelID, req)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	tokensSeen := false

	for ev := range events {
		switch ev.Type {
		case api.StreamToken:
			tokensSeen = true
			buf.WriteString(ev.Token)
			shown := buf.String()
			c.mutateExchange(projectID, channelID, exchangeID, func(ex *Exchange) {
				ex.Status = StatusStreaming
				ex.DisplayMessage = shown
			})

		case api.StreamResult:
			if !tokensSeen {
				// Single non-streaming reply: reveal via typewriter.
				return c.reveal(ctx, projectID, channelID, exchangeID, ev.Result)
			}
			return c.finalize(projectID, channelID, exchangeID, ev.Result), nil

		case api.StreamError:
			// Degrade to a best-effort answer from the partial text;
			// never a hard failure.
			return c.finalize(projectID, channelID, exchangeID, &api.AssistantResponse{
				Message: errorFallback(buf.String(), ev.Err),
			}), nil
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if tokensSeen {
		return c.finalize(projectID, channelID, exchangeID, &api.AssistantResponse{Message: buf.String()}), nil
	}
	return "", errors.New("stream ended without a result")
}

// fetchAnswer is the non-streaming path: one request, one structured
// answer, revealed via typewriter.
func (c *Controller) fetchAnswer(ctx context.Context, projectID, channelID, exchangeID string, req api.AskRequest) (string, error) {
	resp, err := c.backend.SubmitQuestion(ctx, projectID, channelID, req)
	if err != nil {
		return "", err
	}
	return c.reveal(ctx, projectID, channelID, exchangeID, resp)
}

// finalize installs the authoritative response and completes the exchange.
// When the response carries the server-assigned exchange id, the optimistic
// local id is replaced so later history merges reconcile by id instead of
// duplicating the exchange. Returns the exchange's final id.
func (c *Controller) finalize(projectID, channelID, exchangeID string, resp *api.AssistantResponse) string {
	formatted := FormatMessage(resp.Message, resp.Citations)
	response := buildResponse(resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projectID != projectID || c.channelID != channelID {
		return exchangeID
	}
	var target *Exchange
	for _, ex := range c.exchanges {
		if ex.ID == exchangeID {
			target = ex
			break
		}
	}
	if target == nil {
		return exchangeID
	}

	target.Response = response
	target.DisplayMessage = formatted
	target.Status = StatusComplete
	target.CompletedAt = time.Now()

	if resp.ExchangeID != "" && resp.ExchangeID != target.ID {
		// A copy under the server id may already have arrived through the
		// realtime feed or a history refresh; the finalized exchange wins.
		for i, other := range c.exchanges {
			if other != target && other.ID == resp.ExchangeID {
				c.exchanges = append(c.exchanges[:i], c.exchanges[i+1:]...)
				break
			}
		}
		target.ID = resp.ExchangeID
	}
	c.persistLocked(projectID, channelID)
	return target.ID
}

// reveal plays the formatted message through the typewriter, one character
// per tick. Context cancellation aborts (caller rolls the exchange back);
// a channel switch fast-forwards to the full message instead. Returns the
// exchange's final id.
func (c *Controller) reveal(ctx context.Context, projectID, channelID, exchangeID string, resp *api.AssistantResponse) (string, error) {
	formatted := FormatMessage(resp.Message, resp.Citations)
	response := buildResponse(resp)

	if formatted == "" {
		// Nothing to animate: pending goes straight to complete.
		return c.finalize(projectID, channelID, exchangeID, resp), nil
	}

	runes := []rune(formatted)
	delay := c.revealDelay(len(runes))

	stop := make(chan struct{})
	c.mu.Lock()
	c.revealStop = stop
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.revealStop == stop {
			c.revealStop = nil
		}
		c.mu.Unlock()
	}()

	c.mutateExchange(projectID, channelID, exchangeID, func(ex *Exchange) {
		ex.Response = response
		ex.Status = StatusStreaming
	})

	for i := 1; i <= len(runes); i++ {
		shown := string(runes[:i])
		c.mutateExchange(projectID, channelID, exchangeID, func(ex *Exchange) {
			ex.DisplayMessage = shown
		})
		if i == len(runes) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-stop:
			i = len(runes) - 1 // fast-forward: final iteration shows everything
		case <-time.After(delay):
		}
	}

	return c.finalize(projectID, channelID, exchangeID, resp), nil
}

// revealDelay computes the per-character typewriter delay for a message of
// the given length: clamp(min, max, 1s / length).
func (c *Controller) revealDelay(length int) time.Duration {
	if length <= 0 {
		return c.MinRevealDelay
	}
	return min(max(revealWindow/time.Duration(length), c.MinRevealDelay), c.MaxRevealDelay)
}

// MergeHistory reconciles authoritative server history into local state:
// server-confirmed exchanges win by id, local exchanges not yet known to
// the server are kept, and the result is ordered by creation time.
func (c *Controller) MergeHistory(entries []api.HistoryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergeHistoryLocked(entries)
	c.persistLocked(c.projectID, c.channelID)
}

// RefreshHistory fetches the active channel's history and merges it in.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	c.mu.Lock()
	projectID, channelID := c.projectID, c.channelID
	c.mu.Unlock()
	if channelID == "" {
		return ErrNoChannel
	}

	entries, err := c.backend.AssistantHistory(ctx, projectID, channelID)
	if err != nil {
		return fmt.Errorf("fetching assistant history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projectID != projectID || c.channelID != channelID {
		return nil // channel changed while fetching
	}
	c.mergeHistoryLocked(entries)
	c.persistLocked(projectID, channelID)
	return nil
}

func (c *Controller) mergeHistoryLocked(entries []api.HistoryEntry) {
	// Applied-action state is client-side only; carry it across refreshes.
	applied := make(map[string]map[string]bool)
	for _, ex := range c.exchanges {
		if len(ex.AppliedActions) > 0 {
			applied[ex.ID] = ex.AppliedActions
		}
	}

	confirmed := make(map[string]bool, len(entries))
	merged := make([]*Exchange, 0, len(entries)+len(c.exchanges))
	for _, entry := range entries {
		if entry.ID == "" || confirmed[entry.ID] {
			continue
		}
		confirmed[entry.ID] = true
		ex := exchangeFromHistory(entry)
		if prior, ok := applied[entry.ID]; ok {
			ex.AppliedActions = prior
		}
		merged = append(merged, ex)
	}
	for _, ex := range c.exchanges {
		if confirmed[ex.ID] {
			continue
		}
		if twin := serverTwin(merged, ex); twin != nil {
			// The server persisted this exchange under its own id before
			// the client learned it; retire the local copy and move its
			// applied-action state over.
			for k := range ex.AppliedActions {
				twin.AppliedActions[strings.Replace(k, ex.ID, twin.ID, 1)] = true
			}
			continue
		}
		merged = append(merged, ex)
	}
	sortByCreatedAt(merged)
	c.exchanges = merged
}

// serverTwin finds the server-confirmed copy of a completed locally-ided
// exchange: same question, asked by the same author. An exchange still in
// flight is never retired.
func serverTwin(confirmed []*Exchange, local *Exchange) *Exchange {
	if local.Status != StatusComplete || !strings.HasPrefix(local.ID, localIDPrefix) {
		return nil
	}
	for _, ex := range confirmed {
		if strings.HasPrefix(ex.ID, localIDPrefix) {
			continue
		}
		if ex.Question == local.Question && sameAuthor(ex.Author, local.Author) {
			return ex
		}
	}
	return nil
}

// sameAuthor treats a missing author on either side as a match; the server
// does not always echo authorship back.
func sameAuthor(a, b *api.Author) bool {
	if a == nil || b == nil {
		return true
	}
	return a.ID == b.ID
}

// HandleRealtimeEvent reacts to assistant replies from other participants
// in the active channel. Echoes of the viewer's own requests are ignored;
// new peer exchanges append as complete with no animation, then trigger a
// history refresh.
func (c *Controller) HandleRealtimeEvent(ev realtime.Event) {
	if ev.Name != EventAssistantReply {
		return
	}

	var entry api.HistoryEntry
	if err := json.Unmarshal(ev.Exchange, &entry); err != nil {
		c.logger.Warn("skipping malformed assistant reply event", "error", err)
		return
	}
	if entry.ID == "" {
		return
	}
	if c.viewer != nil && entry.Author != nil && entry.Author.ID == c.viewer.ID {
		return // echo of a request already tracked via the submit path
	}

	c.mu.Lock()
	if ev.ProjectID != c.projectID || ev.ChannelID != c.channelID {
		c.mu.Unlock()
		return
	}
	projectID, channelID := c.projectID, c.channelID
	for _, ex := range c.exchanges {
		if ex.ID == entry.ID {
			c.mu.Unlock()
			return
		}
	}
	c.exchanges = append(c.exchanges, exchangeFromHistory(entry))
	sortByCreatedAt(c.exchanges)
	c.persistLocked(projectID, channelID)
	c.mu.Unlock()

	refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.RefreshHistory(refreshCtx); err != nil {
		c.logger.Warn("history refresh after peer reply", "error", err)
	}
}

// BindFeed subscribes the controller to assistant replies on the realtime
// feed. Returns the subscription token for feed.Unsubscribe.
func (c *Controller) BindFeed(feed *realtime.Feed) string {
	return feed.Subscribe(EventAssistantReply, c.HandleRealtimeEvent)
}

// ApplyAction executes one suggested action. Already-applied actions are a
// no-op; a create_task action without a title fails without mutating state;
// unsupported types are reported as such.
func (c *Controller) ApplyAction(ctx context.Context, exchangeID string, actionIndex int) error {
	c.mu.Lock()
	var target *Exchange
	for _, ex := range c.exchanges {
		if ex.ID == exchangeID {
			target = ex
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return ErrUnknownExchange
	}
	if target.Response == nil || actionIndex < 0 || actionIndex >= len(target.Response.SuggestedActions) {
		c.mu.Unlock()
		return ErrUnknownAction
	}
	key := actionKey(exchangeID, actionIndex)
	if target.AppliedActions[key] {
		c.mu.Unlock()
		return nil
	}
	action := target.Response.SuggestedActions[actionIndex]
	projectID, channelID := c.projectID, c.channelID
	c.mu.Unlock()

	switch action.ActionType {
	case "create_task":
		title, _ := action.Payload["title"].(string)
		if strings.TrimSpace(title) == "" {
			return ErrMissingTitle
		}
		description, _ := action.Payload["description"].(string)
		task := api.TaskRequest{Title: title, Description: description, MessageID: exchangeID}
		if err := c.backend.CreateTask(ctx, projectID, task); err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrActionUnsupported, action.ActionType)
	}

	c.mutateExchange(projectID, channelID, exchangeID, func(ex *Exchange) {
		if ex.AppliedActions == nil {
			ex.AppliedActions = make(map[string]bool)
		}
		ex.AppliedActions[key] = true
	})
	return nil
}

// ClearHistory resets the active channel's conversation and deletes its
// stored snapshot.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if c.channelID == "" {
		c.mu.Unlock()
		return ErrNoChannel
	}
	projectID, channelID := c.projectID, c.channelID
	c.exchanges = nil
	c.mu.Unlock()

	if err := c.store.Delete(ctx, storageKey(projectID, channelID)); err != nil {
		return fmt.Errorf("clearing stored history: %w", err)
	}
	return nil
}

// mutateExchange applies fn to the exchange with the given id and persists,
// as long as the controller is still on the same channel. Stale mutations
// from a superseded submission are dropped.
func (c *Controller) mutateExchange(projectID, channelID, id string, fn func(*Exchange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projectID != projectID || c.channelID != channelID {
		return
	}
	for _, ex := range c.exchanges {
		if ex.ID == id {
			fn(ex)
			c.persistLocked(projectID, channelID)
			return
		}
	}
}

// removeExchange drops an exchange by id, for rollback.
func (c *Controller) removeExchange(projectID, channelID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projectID != projectID || c.channelID != channelID {
		return
	}
	for i, ex := range c.exchanges {
		if ex.ID == id {
			c.exchanges = append(c.exchanges[:i], c.exchanges[i+1:]...)
			c.persistLocked(projectID, channelID)
			return
		}
	}
}

// persistLocked writes the current exchange list to storage. Failures are
// logged, never fatal. Must be called with mu held.
func (c *Controller) persistLocked(projectID, channelID string) {
	if channelID == "" {
		return
	}
	data, err := EncodeSnapshot(c.exchanges)
	if err != nil {
		c.logger.Warn("encoding history snapshot", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.Set(ctx, storageKey(projectID, channelID), data); err != nil {
		c.logger.Warn("persisting history snapshot", "error", err)
	}
}

// stopRevealLocked fast-forwards any running typewriter. Must be called
// with mu held.
func (c *Controller) stopRevealLocked() {
	if c.revealStop != nil {
		close(c.revealStop)
		c.revealStop = nil
	}
}

// storageKey builds the local storage key for a channel's history.
func storageKey(projectID, channelID string) string {
	return fmt.Sprintf("assistantHistory:%s:%s", projectID, channelID)
}

// buildResponse converts a wire response into the exchange form, parsing
// embedded suggested actions out of the message.
func buildResponse(resp *api.AssistantResponse) *Response {
	return &Response{
		Message:          resp.Message,
		Citations:        resp.Citations,
		ReasoningUsed:    resp.ReasoningUsed,
		Model:            resp.Model,
		Usage:            resp.Usage,
		SuggestedActions: ParseSuggestedActions(resp.Message),
	}
}

// exchangeFromHistory converts a server history entry into a complete
// exchange with its full formatted message on display.
func exchangeFromHistory(entry api.HistoryEntry) *Exchange {
	resp := entry.Response
	return &Exchange{
		ID:             entry.ID,
		Question:       entry.Question,
		Response:       buildResponse(&resp),
		CreatedAt:      entry.CreatedAt,
		CompletedAt:    entry.CreatedAt,
		Status:         StatusComplete,
		DisplayMessage: FormatMessage(resp.Message, resp.Citations),
		AppliedActions: make(map[string]bool),
		Author:         entry.Author,
	}
}

// errorFallback builds the best-effort message shown when the stream ends
// with an error frame.
func errorFallback(partial, errMsg string) string {
	note := fmt.Sprintf("_(the assistant was interrupted: %s)_", errMsg)
	if strings.TrimSpace(partial) == "" {
		return note
	}
	return partial + "\n\n" + note
}
