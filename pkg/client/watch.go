package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// eventsURL turns the HTTP base URL into the table's websocket URL.
func (c *Client) eventsURL(tableID models.TableID) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/tables/" + tableID.String() + "/events"
}

// WatchTable follows the table's event stream until ctx is done or the connection
// drops. Each event is published to the client's bus, if any, and then passed to fn.
// It returns nil when ctx ends the watch.
func (c *Client) WatchTable(ctx context.Context, tableID models.TableID, fn func(Event)) error {
	header := http.Header{}
	if token := c.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.timeout
	conn, resp, err := dialer.DialContext(ctx, c.eventsURL(tableID), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return decodeResponse(resp, nil)
		}
		return fmt.Errorf("%w: watch table %s: %w", ErrTransport, tableID, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: read event: %w", ErrTransport, err)
		}
		c.publish(ev.Keys()...)
		if fn != nil {
			fn(ev)
		}
	}
}
