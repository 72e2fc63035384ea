package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/serverhub/game/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Snapshots waiting for the hub loop before new ones are dropped.
	snapshotBacklog = 8
)

// TopicStats receives the hub counters after every tick.
const TopicStats = "stats"

const roomTopicPrefix = "room:"

var ErrInvalidTopic = errors.New("invalid topic")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// status pages may be served from anywhere
		return true
	},
}

// RoomTopic is the topic of one room's updates.
func RoomTopic(id uint32) string {
	return roomTopicPrefix + strconv.FormatUint(uint64(id), 10)
}

// ParseTopic checks a topic name. It accepts "stats" and "room:<id>".
func ParseTopic(topic string) error {
	if topic == TopicStats {
		return nil
	}
	if id, ok := strings.CutPrefix(topic, roomTopicPrefix); ok {
		if _, err := strconv.ParseUint(id, 10, 32); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
}

// Message represents a WebSocket message
type Message struct {
	Topic string      `json:"topic"`
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	topic string
}

// Hub maintains the set of active clients and pushes hub snapshots to them
type Hub struct {
	// Registered clients by topic
	mu     sync.RWMutex
	topics map[string]map[*Client]bool

	// Latest published snapshot, owned by Run
	latest *service.Snapshot

	// Snapshots from the hub loop
	snapshots chan *service.Snapshot

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		snapshots:  make(chan *service.Snapshot, snapshotBacklog),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)
			h.sendInitial(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case snap := <-h.snapshots:
			h.latest = snap
			h.broadcastSnapshot(snap)
		}
	}
}

// Publish implements service.Publisher. It never blocks the hub loop.
func (h *Hub) Publish(snap *service.Snapshot) {
	select {
	case h.snapshots <- snap:
	default:
		log.Printf("WebSocket hub is behind, dropping snapshot")
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topic string) {
	if err := ParseTopic(topic); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		topic: topic,
	}

	select {
	case client.hub.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// Subscribers returns the number of clients listening on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// registerClient adds a client to a topic
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[client.topic] == nil {
		h.topics[client.topic] = make(map[*Client]bool)
	}
	h.topics[client.topic][client] = true

	log.Printf("Client subscribed to %s (total clients: %d)",
		client.topic, len(h.topics[client.topic]))
}

// unregisterClient removes a client from its topic
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.topics[client.topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty topics
	if len(clients) == 0 {
		delete(h.topics, client.topic)
	}

	log.Printf("Client unsubscribed from %s (remaining clients: %d)",
		client.topic, len(clients))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.topics {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// sendInitial gives a new client the current state of its topic
func (h *Hub) sendInitial(client *Client) {
	if h.latest == nil {
		return
	}
	data, err := json.Marshal(h.messageFor(client.topic, h.latest))
	if err != nil {
		log.Printf("Failed to marshal WebSocket message: %v", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// messageFor builds the message a topic receives for snap
func (h *Hub) messageFor(topic string, snap *service.Snapshot) *Message {
	if topic == TopicStats {
		return &Message{Topic: topic, Event: "stats", Data: snap.Stats}
	}
	for _, room := range snap.Rooms {
		if RoomTopic(room.ID) == topic {
			return &Message{Topic: topic, Event: "room", Data: room}
		}
	}
	return &Message{Topic: topic, Event: "room_closed"}
}

// broadcastSnapshot sends every subscribed topic its part of snap
func (h *Hub) broadcastSnapshot(snap *service.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, clients := range h.topics {
		data, err := json.Marshal(h.messageFor(topic, snap))
		if err != nil {
			log.Printf("Failed to marshal broadcast message: %v", err)
			continue
		}
		for client := range clients {
			select {
			case client.send <- data:
			default:
				// Client's send channel is full, close it
				h.removeLocked(client)
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Subscriptions are read-only; incoming messages only keep the
		// connection alive
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
