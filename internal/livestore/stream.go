package livestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Stream errors
var (
	ErrStreamCancelled = errors.New("live store stream cancelled by server")
	ErrAuthRevoked     = errors.New("live store stream auth revoked")
	ErrStreamClosed    = errors.New("live store stream closed")
)

// Change event kinds
const (
	ChangePut   = "put"
	ChangePatch = "patch"
)

// Change one put/patch notification. Path is relative to the subscribed node
// ("/" for the node itself); Data is the new subtree, null when deleted.
type Change struct {
	Event string
	Path  string
	Data  json.RawMessage
}

// Segments splits Path into its non-empty parts
func (c Change) Segments() []string {
	trimmed := strings.Trim(c.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Handler receives changes in arrival order on the subscribing goroutine
type Handler func(ctx context.Context, change Change)

type streamPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Subscribe opens a server-sent event stream on path and blocks until ctx is
// done (nil) or the stream ends (ErrStreamClosed, ErrStreamCancelled, ErrAuthRevoked).
func (c *Client) Subscribe(ctx context.Context, path string, handler Handler) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(nodeURL(path))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("live store subscribe %s failed: %w", path, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(body, 1024))
		return fmt.Errorf("live store subscribe %s returned %d: %s", path, resp.StatusCode(), strings.TrimSpace(string(msg)))
	}

	err = readEvents(body, func(event, data string) error {
		return c.dispatch(ctx, path, event, data, handler)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) dispatch(ctx context.Context, path, event, data string, handler Handler) error {
	switch event {
	case ChangePut, ChangePatch:
		var payload streamPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			c.logShapeErrors(path, []error{shapeErr(path, "stream payload: %v", err)})
			return nil
		}
		handler(ctx, Change{Event: event, Path: payload.Path, Data: payload.Data})
	case "keep-alive":
	case "cancel":
		return ErrStreamCancelled
	case "auth_revoked":
		return ErrAuthRevoked
	}
	return nil
}

// readEvents parses the text/event-stream framing and calls emit for each
// complete event. Returns ErrStreamClosed when the body ends.
func readEvents(r io.Reader, emit func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if event != "" || len(data) > 0 {
				if err := emit(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return ErrStreamClosed
}
