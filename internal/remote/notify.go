package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	// notifyReadLimit caps change-feed messages. Events are small JSON
	// objects; anything larger means a misbehaving server.
	notifyReadLimit = 64 * 1024

	// reconnectBackoffMin and reconnectBackoffMax bound the backoff
	// between change-feed reconnect attempts.
	reconnectBackoffMin = time.Second
	reconnectBackoffMax = time.Minute
)

// Change is one server change notification: a folder whose content
// changed remotely and should be refreshed.
type Change struct {
	SpaceID    string
	FolderPath string
}

// ChangeFeed subscribes to the server's websocket change feed and
// delivers change notifications. It owns reconnection with exponential
// backoff; consumers just read the channel.
type ChangeFeed struct {
	serverURL string
	authToken string
	logger    *slog.Logger
}

// NewChangeFeed creates a change feed for the given account server URL.
func NewChangeFeed(serverURL, authToken string, logger *slog.Logger) *ChangeFeed {
	return &ChangeFeed{
		serverURL: serverURL,
		authToken: authToken,
		logger:    logger,
	}
}

// Run connects to the change feed and sends every notification to the
// events channel. It reconnects with backoff on failure and blocks
// until the context is cancelled.
func (f *ChangeFeed) Run(ctx context.Context, events chan<- Change) error {
	backoff := time.Duration(0)

	for {
		connected, err := f.listen(ctx, events)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff = retryDelay(backoff, connected)

		f.logger.Warn("change feed disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retryDelay returns the wait before the next dial attempt. A feed that
// managed to connect starts over from the minimum; consecutive dial
// failures double the wait up to the cap.
func retryDelay(previous time.Duration, connected bool) time.Duration {
	if connected || previous == 0 {
		return reconnectBackoffMin
	}

	next := previous * 2
	if next > reconnectBackoffMax {
		next = reconnectBackoffMax
	}

	return next
}

// listen dials the feed and reads events until the connection drops.
// connected reports whether the dial succeeded, so the caller can reset
// its backoff after a healthy connection.
func (f *ChangeFeed) listen(ctx context.Context, events chan<- Change) (connected bool, _ error) {
	url := websocketURL(f.serverURL) + "/events"

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + f.authToken},
		},
	})
	if err != nil {
		return false, fmt.Errorf("dialing change feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	conn.SetReadLimit(notifyReadLimit)

	f.logger.Info("change feed connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("reading change feed: %w", err)
		}

		op := gjson.GetBytes(data, "op").Str
		if op != "changed" {
			continue
		}

		change := Change{
			SpaceID:    gjson.GetBytes(data, "space").Str,
			FolderPath: gjson.GetBytes(data, "folder").Str,
		}

		if change.FolderPath == "" {
			continue
		}

		select {
		case events <- change:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// websocketURL converts an http(s) server URL to its ws(s) equivalent.
func websocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}
