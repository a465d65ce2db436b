// ABOUTME: WebSocket consumer for the Draftroom project event feed.
// ABOUTME: Reads JSON frames, dedupes replays, and feeds the dispatcher.

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/draftroom/draftroom-client/internal/seen"
)

const (
	// reconnectBase is the first retry delay after a dropped connection.
	reconnectBase = time.Second
	// reconnectMax caps the exponential backoff.
	reconnectMax = 30 * time.Second

	// seenTTL and seenMaxSize bound the replay-suppression cache. Feed
	// replays after reconnect arrive within seconds, so a short window
	// is enough.
	seenTTL     = 5 * time.Minute
	seenMaxSize = 4096
)

// ErrFeedClosed is returned by Run after Close is called.
var ErrFeedClosed = errors.New("feed closed")

// Feed maintains a WebSocket connection to the project event feed and
// dispatches decoded events to subscribers. It reconnects with capped
// exponential backoff until the context is cancelled or Close is called.
type Feed struct {
	url        string
	token      string
	dispatcher *Dispatcher
	seen       *seen.Cache
	logger     *slog.Logger

	reconnectBase time.Duration
	reconnectMax  time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewFeed creates a feed for the given WebSocket URL. The token is sent as
// a Bearer Authorization header during the handshake. Pass nil logger for
// default.
func NewFeed(url, token string, dispatcher *Dispatcher, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		url:           url,
		token:         token,
		dispatcher:    dispatcher,
		seen:          seen.New(seenTTL, seenMaxSize),
		logger:        logger.With("component", "feed"),
		reconnectBase: reconnectBase,
		reconnectMax:  reconnectMax,
	}
}

// Subscribe registers handler for events with the given name and returns a
// token for Unsubscribe.
func (f *Feed) Subscribe(name string, handler Handler) string {
	return f.dispatcher.Subscribe(name, handler)
}

// Unsubscribe removes a subscription by token.
func (f *Feed) Unsubscribe(subID string) {
	f.dispatcher.Unsubscribe(subID)
}

// Run connects and consumes the feed until ctx is cancelled or Close is
// called. Connection drops are retried with capped exponential backoff;
// the backoff resets after each successful connect.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.reconnectBase

	for {
		connected, err := f.connectOnce(ctx)
		if connected {
			backoff = f.reconnectBase
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if f.isClosed() {
				return ErrFeedClosed
			}
			f.logger.Warn("feed connection lost, retrying",
				"error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if f.isClosed() {
			return ErrFeedClosed
		}

		backoff = min(backoff*2, f.reconnectMax)
	}
}

// connectOnce dials the feed and reads frames until the connection fails.
// connected reports whether the dial succeeded, so Run can reset its backoff.
func (f *Feed) connectOnce(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
	if err != nil {
		return false, fmt.Errorf("dialing feed: %w", err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return false, ErrFeedClosed
	}
	f.conn = conn
	f.mu.Unlock()

	f.logger.Info("feed connected", "url", f.url)
	defer conn.Close()

	// Tear the connection down when the context ends so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("reading feed frame: %w", err)
		}
		f.handleFrame(data)
	}
}

// handleFrame decodes one frame and dispatches it. Malformed frames and
// replayed event ids are logged and skipped.
func (f *Feed) handleFrame(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		f.logger.Warn("skipping malformed feed frame", "error", err)
		return
	}
	if ev.Name == "" {
		f.logger.Warn("skipping feed frame without event name")
		return
	}
	if ev.EventID != "" && f.seen.CheckAndMark(ev.EventID) {
		f.logger.Debug("skipping replayed event", "event_id", ev.EventID)
		return
	}
	f.dispatcher.Dispatch(ev)
}

// Close stops the feed permanently. Run returns ErrFeedClosed after the
// in-flight read unblocks.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.conn != nil {
		f.conn.Close()
	}
	f.dispatcher.Close()
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
