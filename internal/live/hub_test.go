package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/:id", func(c *gin.Context) {
		id := c.Param("id")
		snapshot := Message{ParkingID: id, Available: 5}
		if err := hub.Serve(c.Writer, c.Request, id, &snapshot); err != nil {
			t.Logf("serve: %v", err)
		}
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, parkingID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + parkingID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_SnapshotThenUpdates(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dial(t, srv, "loc-1")

	first := readMessage(t, conn)
	assert.Equal(t, "loc-1", first.ParkingID)
	assert.Equal(t, 5, first.Available)

	require.Eventually(t, func() bool { return hub.ClientCount("loc-1") == 1 }, time.Second, 10*time.Millisecond)

	hub.BookingChanged(booking.Event{
		Kind:      booking.EventCreated,
		ParkingID: "loc-1",
		At:        time.Now(),
		Occupancy: &model.Occupancy{ParkingID: "loc-1", Available: 4, Reserved: 1},
	})

	update := readMessage(t, conn)
	assert.Equal(t, 4, update.Available)
	assert.Equal(t, 1, update.Reserved)
	assert.Equal(t, "created", update.Event)
}

func TestHub_OnlyMatchingLocationReceives(t *testing.T) {
	hub, srv := newHubServer(t)
	one := dial(t, srv, "loc-1")
	two := dial(t, srv, "loc-2")
	readMessage(t, one)
	readMessage(t, two)
	require.Eventually(t, func() bool {
		return hub.ClientCount("loc-1") == 1 && hub.ClientCount("loc-2") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(Message{ParkingID: "loc-2", Occupied: 3})

	got := readMessage(t, two)
	assert.Equal(t, 3, got.Occupied)

	require.NoError(t, one.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := one.ReadMessage()
	assert.Error(t, err, "loc-1 client should not receive loc-2 updates")
}

func TestHub_EventWithoutOccupancyIsIgnored(t *testing.T) {
	hub := NewHub()
	hub.BookingChanged(booking.Event{ParkingID: "loc-1"})
	assert.Len(t, hub.broadcast, 0)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dial(t, srv, "loc-1")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount("loc-1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount("loc-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
