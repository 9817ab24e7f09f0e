package livesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/notification"
)

const (
	eventNotification = "notification"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
	deliverBuffer  = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type (
	// Event is the frame written to the websocket clients.
	Event struct {
		Event string               `json:"event"`
		Data  notification.Payload `json:"data"`
	}

	client struct {
		hub    *Hub
		conn   *websocket.Conn
		send   chan []byte
		userID string
	}

	delivery struct {
		userID string
		msg    []byte
	}

	// Hub keeps the websocket clients of this process, keyed by user.
	// The client map is owned by the Run goroutine.
	Hub struct {
		clients    map[string]map[*client]struct{}
		register   chan *client
		unregister chan *client
		deliver    chan delivery
		count      chan countRequest
		done       chan struct{}
		logger     core.Logger
	}

	countRequest struct {
		userID string
		resp   chan int
	}
)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		deliver:    make(chan delivery, deliverBuffer),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*client]struct{})
			return

		case c := <-h.register:
			conns, ok := h.clients[c.userID]
			if !ok {
				conns = make(map[*client]struct{})
				h.clients[c.userID] = conns
			}
			conns[c] = struct{}{}

		case c := <-h.unregister:
			h.remove(c)

		case d := <-h.deliver:
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.msg:
				default: // slow client
					h.remove(c)
				}
			}

		case req := <-h.count:
			req.resp <- len(h.clients[req.userID])
		}
	}
}

func (h *Hub) remove(c *client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok = conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
}

// Clients returns the number of connected clients of the user. Run must be serving.
func (h *Hub) Clients(ctx context.Context, userID string) int {
	req := countRequest{userID: userID, resp: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.resp
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
}

// Publish queues p for the connected clients of p.UserID without blocking.
// It fails when the queue is full.
func (h *Hub) Publish(_ context.Context, p notification.Payload) error {
	msg, err := json.Marshal(Event{Event: eventNotification, Data: p})
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	select {
	case h.deliver <- delivery{userID: p.UserID, msg: msg}:
		return nil
	default:
		return errors.New("live hub delivery queue is full")
	}
}

// Serve upgrades the request to a websocket bound to userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), userID: userID}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return errors.New("live hub is stopped")
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only handles control frames; clients do not send messages.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn(fmt.Sprintf("unexpected websocket close: %v", err), err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
