package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/events"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	e := echo.New()
	e.GET("/ws", hub.Handle)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubForwardsBusEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()
	conn := dialHub(t, hub)

	hub.Notify(context.Background(), events.Event{
		Name:      events.SubtitleDownloaded,
		Payload:   events.Payload{"provider": "mock", "language": "en"},
		Timestamp: time.Now().UTC(),
	})

	msg := readMessage(t, conn)
	assert.Equal(t, events.SubtitleDownloaded, msg.Type)
	assert.Equal(t, "mock", msg.Payload["provider"])
}

func TestClientSubscriptionFilter(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()
	conn := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(clientCommand{
		Type:   "subscribe",
		Events: []string{events.TaskStarted},
	}))
	// The filter applies once the hub has read the command.
	time.Sleep(100 * time.Millisecond)

	hub.Notify(context.Background(), events.Event{
		Name: events.ScanComplete, Payload: events.Payload{}, Timestamp: time.Now()})
	hub.Notify(context.Background(), events.Event{
		Name: events.TaskStarted, Payload: events.Payload{"task": "wanted_scan"}, Timestamp: time.Now()})

	msg := readMessage(t, conn)
	assert.Equal(t, events.TaskStarted, msg.Type)
}
