package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinTrade/internal/domain/models"
)

func newWSServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testLogger(t))
	e := echo.New()
	e.GET("/ws/state", func(c echo.Context) error {
		return hub.ServeWS(c.Response(), c.Request())
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsSnapshot(t *testing.T) {
	hub, srv := newWSServer(t)
	conn := dialWS(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	snap := &models.CycleSnapshot{
		Timestamp:  time.Now().UTC(),
		Symbol:     "BTC/USDT",
		Cycle:      3,
		Action:     models.Buy,
		Confidence: 0.7,
		Price:      50000,
	}
	hub.Broadcast(snap)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.CycleSnapshot
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, int64(3), got.Cycle)
	assert.Equal(t, models.Buy, got.Action)
	assert.Equal(t, "BTC/USDT", got.Symbol)
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, srv := newWSServer(t)
	first := dialWS(t, srv)
	second := dialWS(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast(&models.CycleSnapshot{Timestamp: time.Now().UTC(), Symbol: "ETH/USDT", Cycle: 1})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), "ETH/USDT")
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub, srv := newWSServer(t)
	conn := dialWS(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// broadcasting to an empty hub must not panic
	hub.Broadcast(&models.CycleSnapshot{Timestamp: time.Now().UTC(), Symbol: "BTC/USDT"})
}

func TestHubCloseDropsClients(t *testing.T) {
	hub, srv := newWSServer(t)
	conn := dialWS(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubNilSnapshotIgnored(t *testing.T) {
	hub := NewHub(testLogger(t))
	hub.Broadcast(nil)
	assert.Zero(t, hub.ClientCount())
}
