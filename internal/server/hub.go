package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send protocol pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// command is a client request the run loop answers, so replies never race
// with the hub closing send channels.
type command struct {
	client *client
	reply  []byte
}

// hub tracks connected websocket clients and fans messages out to them.
// The run loop is the only goroutine touching the clients map; done is
// closed when the loop exits so pump goroutines never block on a dead hub.
type hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	commands   chan command
	done       chan struct{}
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		commands:   make(chan command, 64),
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
				metrics.WSClients.Dec()
			}

			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.WSClients.Inc()
			logger.Debug().
				Str("client", client.id).
				Int("total", len(h.clients)).
				Msg("WebSocket client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				logger.Debug().
					Str("client", client.id).
					Int("total", len(h.clients)).
					Msg("WebSocket client disconnected")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it.
					h.drop(client)
				}
			}
		case cmd := <-h.commands:
			if h.clients[cmd.client] {
				select {
				case cmd.client.send <- cmd.reply:
				default:
				}
			}
		}
	}
}

// drop is only called from the run loop.
func (h *hub) drop(client *client) {
	delete(h.clients, client)
	close(client.send)
	metrics.WSClients.Dec()
}

// client is one websocket connection with its outbound queue.
type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// readPump pumps messages from the connection to the hub.
func (c *client) readPump() {
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
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				logger.Debug().Err(err).Str("client", c.id).Msg("WebSocket read failed")
			}

			break
		}
		c.handleMessage(message)
	}
}

// handleMessage answers {"action":"ping"} with {"action":"pong"} through
// the hub run loop. Anything else is ignored.
func (c *client) handleMessage(message []byte) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil || envelope.Action != "ping" {
		return
	}

	select {
	case c.hub.commands <- command{client: c, reply: []byte(`{"action":"pong"}`)}:
	default:
	}
}

// writePump pumps messages from the hub to the connection.
func (c *client) writePump() {
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
				// The hub closed the channel.
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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")

		return
	}

	client := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.NewString(),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()

		return
	}

	go client.writePump()
	go client.readPump()
}
