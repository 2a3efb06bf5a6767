package websocket

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	RecordID string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by record ID. Only touched by Run.
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to record subscribers
	broadcast chan *BroadcastMessage

	done chan struct{}
	log  *logrus.Entry
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	RecordID string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        logger.Component(log, "websocket"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			if h.clients[client.RecordID] == nil {
				h.clients[client.RecordID] = make(map[*Client]bool)
			}
			h.clients[client.RecordID][client] = true
			h.log.WithField("recordId", client.RecordID).Debug("client registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.WithField("recordId", client.RecordID).Debug("client unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.RecordID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.log.WithField("recordId", msg.RecordID).Warn("client send buffer full, dropping message")
				}
			}
		}
	}
}

// Stop ends Run
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.RecordID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.RecordID)
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastUpdate sends the record's new state to its subscribers
func (h *Hub) BroadcastUpdate(rec *model.GenerationRecord) {
	msg := model.WSUpdateMessage{
		Type:     model.WSMessageTypeUpdate,
		RecordID: rec.ID,
		Status:   rec.Status,
		Record:   model.NewRecordResponse(rec),
	}
	h.send(rec.ID, msg)
}

// BroadcastError sends an error message to all record subscribers
func (h *Hub) BroadcastError(recordID string, code, message string) {
	msg := model.WSErrorMessage{
		Type:     model.WSMessageTypeError,
		RecordID: recordID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}
	h.send(recordID, msg)
}

// send never blocks the caller; messages are dropped when the hub is backed up
func (h *Hub) send(recordID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{RecordID: recordID, Message: data}:
	default:
		h.log.WithField("recordId", recordID).Warn("broadcast queue full, dropping message")
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, recordID string) {
	client := &Client{
		RecordID: recordID,
		Conn:     c,
		Send:     make(chan []byte, 256),
	}

	h.Register(client)

	// The conn is released once HandleConnection returns, so the writer must
	// finish first
	quit := make(chan struct{})
	writerDone := make(chan struct{})
	defer func() {
		h.Unregister(client)
		close(quit)
		<-writerDone
	}()

	go func() {
		defer close(writerDone)
		writePump(c, client.Send, quit, 30*time.Second)
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("websocket error")
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}

type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// writePump forwards queued messages and keep-alive pings until send is
// closed, quit fires or a write fails
func writePump(w messageWriter, send <-chan []byte, quit <-chan struct{}, pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-send:
			if !ok {
				w.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := w.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-quit:
			return
		}
	}
}
