package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wamirror/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestHub_BroadcastsToWebsocketClients(t *testing.T) {
	hub := NewHub(8, nil, quietLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(ctx, models.EventStatusChanged, models.StatusChange{MessageID: "m1", Status: "read"}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var frame struct {
		Event string              `json:"event"`
		Data  models.StatusChange `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, models.EventStatusChanged, frame.Event)
	assert.Equal(t, "m1", frame.Data.MessageID)
	assert.Equal(t, "read", frame.Data.Status)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(8, nil, quietLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SlowClientDropsFrames(t *testing.T) {
	hub := NewHub(1, nil, quietLogger())
	client, ok := hub.register()
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, hub.Notify(ctx, models.EventMessageCreated, map[string]string{"messageId": "a"}))
	require.NoError(t, hub.Notify(ctx, models.EventMessageCreated, map[string]string{"messageId": "b"}))

	assert.Len(t, client.send, 1)
	frame := <-client.send
	assert.Contains(t, string(frame), `"messageId":"a"`)
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub := NewHub(1, nil, quietLogger())
	client, ok := hub.register()
	require.True(t, ok)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	_, open := <-client.send
	assert.False(t, open)
	assert.Zero(t, hub.ClientCount())

	_, ok = hub.register()
	assert.False(t, ok)
}
