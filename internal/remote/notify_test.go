package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
)

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "wss://cloud.example/api", websocketURL("https://cloud.example/api"))
	assert.Equal(t, "ws://localhost:8080", websocketURL("http://localhost:8080"))
	assert.Equal(t, "wss://already", websocketURL("wss://already"))
}

func TestChangeFeed_DeliversChangedFolders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		ctx := r.Context()
		assert.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"op":"hello"}`)))
		assert.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"op":"changed","space":"s1","folder":"/docs/"}`)))
		assert.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"op":"changed","folder":""}`)))
		assert.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"op":"changed","folder":"/pics/"}`)))

		<-ctx.Done()
	}))
	defer srv.Close()

	feed := NewChangeFeed(srv.URL, "test-token", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan Change, 4)
	go feed.Run(ctx, events)

	first := receiveChange(t, events)
	assert.Equal(t, Change{SpaceID: "s1", FolderPath: "/docs/"}, first)

	second := receiveChange(t, events)
	assert.Equal(t, Change{FolderPath: "/pics/"}, second)
}

func TestRetryDelay_GrowsOnConsecutiveDialFailures(t *testing.T) {
	first := retryDelay(0, false)
	assert.Equal(t, reconnectBackoffMin, first)

	second := retryDelay(first, false)
	assert.Equal(t, 2*reconnectBackoffMin, second)

	capped := retryDelay(reconnectBackoffMax, false)
	assert.Equal(t, reconnectBackoffMax, capped)
}

func TestRetryDelay_ResetsAfterSuccessfulConnection(t *testing.T) {
	// A feed that connected and later dropped retries from the minimum
	// again, no matter how far the backoff had grown before.
	assert.Equal(t, reconnectBackoffMin, retryDelay(reconnectBackoffMax, true))
	assert.Equal(t, reconnectBackoffMin, retryDelay(8*reconnectBackoffMin, true))
}

func TestChangeFeed_RunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		<-r.Context().Done()
	}))
	defer srv.Close()

	feed := NewChangeFeed(srv.URL, "test-token", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- feed.Run(ctx, make(chan Change))
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func receiveChange(t *testing.T, events <-chan Change) Change {
	t.Helper()

	select {
	case c := <-events:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
		return Change{}
	}
}
