package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// FeedPath is the WebSocket route that pushes emitted events.
const FeedPath = "/events/ws"

// WatchEvents subscribes to the live event feed and calls fn for every event
// pushed by the server. It blocks until ctx is done (returning nil) or the
// connection fails (returning the read error). It does not reconnect.
func (c *Client) WatchEvents(ctx context.Context, fn func(GameEvent)) error {
	wsURL, err := c.feedURL()
	if err != nil {
		return err
	}

	hdr := http.Header{}
	c.setAuthHeaders(hdr)

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return &HTTPError{
				Method:     http.MethodGet,
				Path:       FeedPath,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
		}
		return fmt.Errorf("dashboard: dial feed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller cancels.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("dashboard: read feed: %w", err)
		}
		var ev GameEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fn(ev)
	}
}

func (c *Client) feedURL() (string, error) {
	base := c.config.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + FeedPath, nil
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + FeedPath, nil
	}
	return "", errors.New("dashboard: base URL must start with http:// or https://")
}
