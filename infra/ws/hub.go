// Package ws streams samples and vehicle events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/enginesim/core/events"
	"github.com/kilianp07/enginesim/core/model"
	"github.com/kilianp07/enginesim/infra/logger"
)

// Message types sent to clients.
const (
	MsgTypeInit   = "init"
	MsgTypeSample = "sample"
	MsgTypeEvent  = "event"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

// Message is the envelope of every frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type eventData struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Event   events.VehicleEvent `json:"event"`
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans messages out to them. Slow clients
// are disconnected instead of blocking the broadcaster.
type Hub struct {
	log        logger.Logger
	upgrader   websocket.Upgrader
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	initData func() any
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetInitDataProvider sets the callback whose result is sent to each new
// client.
func (h *Hub) SetInitDataProvider(provider func() any) {
	h.initData = provider
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infof("websocket client connected (%d total)", n)
			h.sendInitData(c)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infof("websocket client disconnected (%d total)", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warnf("dropping slow websocket client")
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendInitData(c *Client) {
	if h.initData == nil {
		return
	}
	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: h.initData()})
	if err != nil {
		h.log.Errorf("marshal init data: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.log.Warnf("init data not sent, client buffer full")
	}
}

// BroadcastMessage queues a typed message for every client. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) BroadcastMessage(msgType string, data any) {
	b, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.log.Errorf("marshal broadcast message: %v", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warnf("broadcast queue full, %s message dropped", msgType)
	}
}

// Send broadcasts the sample.
func (h *Hub) Send(_ context.Context, s model.Sample) error {
	h.BroadcastMessage(MsgTypeSample, s)
	return nil
}

// RecordEvent broadcasts the vehicle event.
func (h *Hub) RecordEvent(_ context.Context, ev events.VehicleEvent) error {
	h.BroadcastMessage(MsgTypeEvent, eventData{Kind: ev.Kind.String(), Message: ev.Message(), Event: ev})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump discards client frames and unregisters on disconnect.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
