// Package live streams occupancy changes of a parking location to websocket clients.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/guregu/null.v4"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var errHubStopped = errors.New("live: hub stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The API sits behind the gateway's origin checks.
	},
}

// Message is one occupancy update.
type Message struct {
	ParkingID   string    `json:"parkingId"`
	Available   int       `json:"available"`
	Occupied    int       `json:"occupied"`
	Reserved    int       `json:"reserved"`
	LastEntryAt null.Time `json:"lastEntryAt"`
	LastExitAt  null.Time `json:"lastExitAt"`
	Event       string    `json:"event,omitempty"`
	At          time.Time `json:"at"`
}

// FromOccupancy builds a Message from a counters snapshot.
func FromOccupancy(occ *model.Occupancy, event string, at time.Time) Message {
	return Message{
		ParkingID:   occ.ParkingID,
		Available:   occ.Available,
		Occupied:    occ.Occupied,
		Reserved:    occ.Reserved,
		LastEntryAt: occ.LastEntryAt,
		LastExitAt:  occ.LastExitAt,
		Event:       event,
		At:          at.UTC(),
	}
}

type client struct {
	conn      *websocket.Conn
	parkingID string
	send      chan []byte
}

type envelope struct {
	parkingID string
	data      []byte
}

// Hub fans occupancy messages out to the clients watching each location.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 64),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("WebSocket client connected to %s. Total: %d", c.parkingID, total)

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mutex.RLock()
			var slow []*client
			for c := range h.clients {
				if c.parkingID != msg.parkingID {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mutex.RUnlock()
			for _, c := range slow {
				log.Printf("WebSocket client on %s is too slow, disconnecting", c.parkingID)
				h.remove(c)
			}

		case <-ctx.Done():
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		log.Printf("WebSocket client disconnected from %s. Total: %d", c.parkingID, len(h.clients))
	}
}

// ClientCount returns how many clients watch parkingID.
func (h *Hub) ClientCount(parkingID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for c := range h.clients {
		if c.parkingID == parkingID {
			n++
		}
	}
	return n
}

// Publish queues msg for the clients of its location. It never blocks.
func (h *Hub) Publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling occupancy message: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{parkingID: msg.ParkingID, data: data}:
	default:
		log.Println("Broadcast channel is full, dropping message")
	}
}

// BookingChanged publishes the occupancy snapshot carried by e.
func (h *Hub) BookingChanged(e booking.Event) {
	if e.Occupancy == nil {
		return
	}
	h.Publish(FromOccupancy(e.Occupancy, string(e.Kind), e.At))
}

// Serve upgrades the request and streams parkingID's updates to it, starting
// with snapshot when given.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, parkingID string, snapshot *Message) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, parkingID: parkingID, send: make(chan []byte, sendBuffer)}
	if snapshot != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			c.send <- data
		}
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return errHubStopped
	}

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Error writing to WebSocket client: %v", err)
			h.leave(c)
			// Drain until the hub closes send.
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
	h.leave(c)
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
