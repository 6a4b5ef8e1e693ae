// Package ws carries the live event channel. Delivery is a single global
// fan-out: every event reaches every connected socket and the client
// filters for relevance. There is no room partitioning, no per-recipient
// routing and no delivery acknowledgement; clients reconcile missed
// events by re-fetching over REST.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/pkg/logger"
)

// Event names carried over the socket.
const (
	EventMessageReceive         = "message:receive"
	EventUserJoined             = "user:joined"
	EventTypingStart            = "typing:start"
	EventTypingStop             = "typing:stop"
	EventFriendRequestSent      = "friend-request:sent"
	EventFriendRequestReceived  = "friend-request:received"
	EventFriendRequestAccepted  = "friend-request:accepted"
	EventFriendRequestDeclined  = "friend-request:declined"
	EventFriendRequestCancelled = "friend-request:cancelled"
)

// Event is the wire frame for both directions.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

// frame pairs an outbound event with an optional excluded client, for
// events the originating socket must not echo back (join, typing).
type frame struct {
	event   *Event
	exclude *Client
}

type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client
	store      store.Store
	mu         sync.RWMutex
}

type Client struct {
	userID string
	conn   *websocket.Conn
	hub    *Hub
	send   chan *Event
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement is delegated to the CORS layer.
		return true
	},
}

func NewHub(st store.Store) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      st,
	}
}

// Publish emits a global broadcast to all connected sockets.
func (h *Hub) Publish(name string, data interface{}) {
	h.broadcast <- frame{event: &Event{Name: name, Data: data}}
}

func (h *Hub) broadcastExcept(name string, data interface{}, exclude *Client) {
	h.broadcast <- frame{event: &Event{Name: name, Data: data}, exclude: exclude}
}

// IsUserOnline reports whether the user has at least one live socket.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID == userID {
			return true
		}
	}
	return false
}

// ClientCount reports the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Info().Str("user_id", client.userID).Int("total", total).Msg("socket connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Info().Str("user_id", client.userID).Int("total", total).Msg("socket disconnected")
			h.markOfflineIfGone(client.userID)

		case f := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client == f.exclude {
					continue
				}
				select {
				case client.send <- f.event:
				default:
					logger.Warn().Str("user_id", client.userID).Msg("send channel full, dropping event")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// markOfflineIfGone flips the stored presence status once a user's last
// socket is gone.
func (h *Hub) markOfflineIfGone(userID string) {
	if userID == "" || h.IsUserOnline(userID) {
		return
	}
	h.setStatus(userID, models.StatusOffline)
}

func (h *Hub) setStatus(userID, status string) {
	user, err := h.store.UserByID(userID)
	if err != nil {
		return
	}
	user.Status = status
	user.UpdatedAt = time.Now()
	if err := h.store.SaveUser(user); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to update presence status")
	}
}

// HandleWebSocket upgrades an authenticated request to a socket and
// starts the client pumps.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		userID: userID.(string),
		conn:   conn,
		hub:    h,
		send:   make(chan *Event, 256),
	}

	h.register <- client

	go client.readPump()
	go client.writePump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		switch event.Name {
		case "join":
			c.handleJoin(event.Data)
		case EventTypingStart, EventTypingStop:
			// Typing indicators are relayed as-is; clients expire them
			// after a fixed timeout regardless of an explicit stop.
			c.hub.broadcastExcept(event.Name, event.Data, c)
		}
	}
}

// handleJoin marks the user online and announces the arrival to everyone
// else.
func (c *Client) handleJoin(data interface{}) {
	c.hub.setStatus(c.userID, models.StatusOnline)
	c.hub.broadcastExcept(EventUserJoined, data, c)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
