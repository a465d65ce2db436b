// ABOUTME: Exchange data model for assistant conversations.
// ABOUTME: Includes the durable snapshot codec used for local persistence.

package assistant

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/draftroom/draftroom-client/internal/api"
)

// Status is the lifecycle state of an exchange. Complete is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
)

// SuggestedAction is a structured follow-up the assistant proposes, parsed
// out of the response message. The user confirms it before anything runs.
type SuggestedAction struct {
	ActionType string         `json:"action_type"`
	Summary    string         `json:"summary"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Response is the structured answer half of an exchange.
type Response struct {
	Message          string             `json:"message"`
	Citations        []api.Citation     `json:"citations,omitempty"`
	ReasoningUsed    bool               `json:"reasoning_used"`
	Model            string             `json:"model,omitempty"`
	Usage            map[string]float64 `json:"usage,omitempty"`
	SuggestedActions []SuggestedAction  `json:"suggested_actions,omitempty"`
}

// Exchange is one question/answer pair. DisplayMessage is the currently
// revealed prefix of the formatted response text; it equals the full
// formatted message once the exchange is complete.
type Exchange struct {
	ID             string
	Question       string
	Response       *Response
	CreatedAt      time.Time
	CompletedAt    time.Time // zero while pending or streaming
	Status         Status
	DisplayMessage string
	AppliedActions map[string]bool // "{exchangeID}:{actionIndex}" keys
	Author         *api.Author
}

// actionKey builds the idempotency key for a suggested action.
func actionKey(exchangeID string, actionIndex int) string {
	return fmt.Sprintf("%s:%d", exchangeID, actionIndex)
}

// exchangeSnapshot is the wire form written to local storage. Timestamps
// are ISO-8601 strings.
type exchangeSnapshot struct {
	ID             string      `json:"id"`
	Question       string      `json:"question"`
	Response       *Response   `json:"response,omitempty"`
	CreatedAt      string      `json:"created_at,omitempty"`
	CompletedAt    string      `json:"completed_at,omitempty"`
	Status         string      `json:"status,omitempty"`
	DisplayMessage string      `json:"display_message,omitempty"`
	AppliedActions []string    `json:"applied_actions,omitempty"`
	Author         *api.Author `json:"author,omitempty"`
}

// EncodeSnapshot serializes exchanges for local storage.
func EncodeSnapshot(exchanges []*Exchange) (string, error) {
	snaps := make([]exchangeSnapshot, 0, len(exchanges))
	for _, ex := range exchanges {
		snap := exchangeSnapshot{
			ID:             ex.ID,
			Question:       ex.Question,
			Response:       ex.Response,
			Status:         string(ex.Status),
			DisplayMessage: ex.DisplayMessage,
			Author:         ex.Author,
		}
		if !ex.CreatedAt.IsZero() {
			snap.CreatedAt = ex.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		if !ex.CompletedAt.IsZero() {
			snap.CompletedAt = ex.CompletedAt.UTC().Format(time.RFC3339Nano)
		}
		if len(ex.AppliedActions) > 0 {
			keys := make([]string, 0, len(ex.AppliedActions))
			for k := range ex.AppliedActions {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			snap.AppliedActions = keys
		}
		snaps = append(snaps, snap)
	}

	data, err := json.Marshal(snaps)
	if err != nil {
		return "", fmt.Errorf("encoding exchange snapshot: %w", err)
	}
	return string(data), nil
}

// DecodeSnapshot parses a stored snapshot back into exchanges. Individual
// fields are defaulted when missing or malformed; unknown status values
// fold to complete so hydrated history is never stuck mid-animation.
// Only a top-level JSON failure is an error.
func DecodeSnapshot(data string) ([]*Exchange, error) {
	var snaps []exchangeSnapshot
	if err := json.Unmarshal([]byte(data), &snaps); err != nil {
		return nil, fmt.Errorf("decoding exchange snapshot: %w", err)
	}

	exchanges := make([]*Exchange, 0, len(snaps))
	for _, snap := range snaps {
		if snap.ID == "" {
			continue
		}
		ex := &Exchange{
			ID:             snap.ID,
			Question:       snap.Question,
			Response:       snap.Response,
			DisplayMessage: snap.DisplayMessage,
			AppliedActions: make(map[string]bool, len(snap.AppliedActions)),
			Author:         snap.Author,
		}
		// No transport or timer survives a reload, so in-flight entries
		// settle: ones with a response fold to complete, responseless
		// optimistic placeholders are dropped. Missing or unknown status
		// values fold to complete as well.
		switch Status(snap.Status) {
		case StatusPending, StatusStreaming:
			if ex.Response == nil {
				continue
			}
		}
		ex.Status = StatusComplete
		if t, err := time.Parse(time.RFC3339Nano, snap.CreatedAt); err == nil {
			ex.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, snap.CompletedAt); err == nil {
			ex.CompletedAt = t
		}
		for _, key := range snap.AppliedActions {
			ex.AppliedActions[key] = true
		}
		// A complete exchange always shows its full formatted message.
		if ex.Status == StatusComplete && ex.Response != nil {
			ex.DisplayMessage = FormatMessage(ex.Response.Message, ex.Response.Citations)
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

// sortByCreatedAt orders exchanges oldest first, keeping the existing
// relative order for equal timestamps.
func sortByCreatedAt(exchanges []*Exchange) {
	sort.SliceStable(exchanges, func(i, j int) bool {
		return exchanges[i].CreatedAt.Before(exchanges[j].CreatedAt)
	})
}
