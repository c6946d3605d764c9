package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryview/sentryview/internal/capture"
	"github.com/sentryview/sentryview/internal/data"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(conn, "tester")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHubBroadcastsNewEvent(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)

	desc := "a person at the gate"
	evt := &data.Event{ID: uuid.New(), Kind: data.DetectionPerson, Description: &desc, OccurredAt: time.Now()}
	// Registration races the broadcast only in tests; give the hub a beat.
	time.Sleep(50 * time.Millisecond)
	hub.EventCreated(evt)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeNewEvent, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	payload, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var got data.Event
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, "a person at the gate", *got.Description)
}

func TestHubBroadcastsAlertAndStatus(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	time.Sleep(50 * time.Millisecond)

	rule := &data.AlertRule{ID: uuid.New(), Name: "porch"}
	hub.AlertTriggered(rule, &data.Event{ID: uuid.New()})
	assert.Equal(t, TypeAlertTriggered, readMessage(t, conn).Type)

	hub.CameraStatusChanged(capture.StatusChange{CameraID: uuid.New(), Status: data.CameraStatusOffline, At: time.Now()})
	assert.Equal(t, TypeCameraStatusChanged, readMessage(t, conn).Type)

	hub.NotificationCreated(&data.Notification{ID: uuid.New(), Message: "porch: person detected"})
	msg := readMessage(t, conn)
	assert.Equal(t, "notification", msg.Type)
}

func TestHubMultipleClientsEachReceive(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := dialHub(t, hub)
	b := dialHub(t, hub)
	time.Sleep(50 * time.Millisecond)

	hub.EventCreated(&data.Event{ID: uuid.New(), OccurredAt: time.Now()})

	assert.Equal(t, TypeNewEvent, readMessage(t, a).Type)
	assert.Equal(t, TypeNewEvent, readMessage(t, b).Type)
}

func TestHubRegisterAfterShutdownReturns(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	time.Sleep(20 * time.Millisecond)

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		hub.Register(<-connCh, "late")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Register blocked against a stopped hub")
	}
}

func TestHubClientDisconnectAfterShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	// The read pump's unregister send must not hang once the loop is gone.
	conn.Close()
	time.Sleep(50 * time.Millisecond)
}

func TestHubDisconnectedClientRemoved(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	time.Sleep(50 * time.Millisecond)
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	// Broadcasting after a disconnect must not block or panic.
	hub.EventCreated(&data.Event{ID: uuid.New(), OccurredAt: time.Now()})
}
