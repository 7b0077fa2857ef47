package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// ChangeNotice is a push message from the service signaling that an entity
// type has new changes for this user. It carries no payload; the receiver
// runs a normal pull for the named type.
type ChangeNotice struct {
	EntityType string `json:"entityType"`
}

// Subscribe opens the service's websocket change channel and delivers
// notifications on the returned channel until ctx is canceled or the
// connection drops. The channel is closed on return; callers that want to
// stay subscribed across drops reconnect with backoff (watch mode does).
func (c *Client) Subscribe(ctx context.Context) (<-chan ChangeNotice, error) {
	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: obtaining token: %w", err)
	}

	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/changes/subscribe"

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + tok},
			"User-Agent":    {userAgent},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("api: subscribe: dial %s: %w", wsURL, err)
	}

	c.logger.Info("change subscription opened", slog.String("url", wsURL))

	notices := make(chan ChangeNotice)

	go c.readNotices(ctx, conn, notices)

	return notices, nil
}

// readNotices pumps websocket messages into the notice channel until the
// connection fails or ctx is canceled.
func (c *Client) readNotices(ctx context.Context, conn *websocket.Conn, notices chan<- ChangeNotice) {
	defer close(notices)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("change subscription closed", slog.String("error", err.Error()))
			}

			return
		}

		var notice ChangeNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			c.logger.Warn("ignoring malformed change notice", slog.String("error", err.Error()))
			continue
		}

		if notice.EntityType == "" {
			continue
		}

		select {
		case notices <- notice:
		case <-ctx.Done():
			return
		}
	}
}
