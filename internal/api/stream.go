// ABOUTME: SSE stream decoding for assistant responses.
// ABOUTME: Parses data frames into tagged StreamEvent variants, skipping malformed ones.

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// StreamEventType tags the variants of a StreamEvent.
type StreamEventType string

const (
	StreamToken  StreamEventType = "token"
	StreamResult StreamEventType = "result"
	StreamError  StreamEventType = "error"
)

// StreamEvent is one decoded frame from the assistant event stream.
// Exactly one of Token, Result, or Err is meaningful, selected by Type.
type StreamEvent struct {
	Type   StreamEventType
	Token  string
	Result *AssistantResponse
	Err    string
}

// streamFrame is the wire shape of one SSE data payload.
type streamFrame struct {
	Type     string             `json:"type"`
	Token    string             `json:"token,omitempty"`
	Response *AssistantResponse `json:"response,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// readStream scans SSE frames from body and sends decoded events until EOF
// or context cancellation. Frames that fail to decode, or carry an unknown
// type, are logged and skipped so one bad frame never kills the stream.
func (c *Client) readStream(ctx context.Context, body io.Reader, events chan<- StreamEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		event, ok := decodeFrame(data)
		if !ok {
			c.logger.Warn("skipping malformed stream frame", "frame", truncateFrame(data))
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("stream read ended with error", "error", err)
	}
}

// decodeFrame narrows a raw JSON payload into a typed StreamEvent.
func decodeFrame(data string) (StreamEvent, bool) {
	var frame streamFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return StreamEvent{}, false
	}

	switch StreamEventType(frame.Type) {
	case StreamToken:
		return StreamEvent{Type: StreamToken, Token: frame.Token}, true
	case StreamResult:
		if frame.Response == nil {
			return StreamEvent{}, false
		}
		return StreamEvent{Type: StreamResult, Result: frame.Response}, true
	case StreamError:
		return StreamEvent{Type: StreamError, Err: frame.Error}, true
	default:
		return StreamEvent{}, false
	}
}

func truncateFrame(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:117] + "..."
}
