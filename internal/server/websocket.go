package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/camdash/camdash/internal/auth"
	"github.com/camdash/camdash/internal/eventbus"
	"github.com/camdash/camdash/internal/kiosk"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Display clients connect from kiosk hardware on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushMessage is one frame sent to display clients.
type pushMessage struct {
	Type  string            `json:"type"`
	State kiosk.RenderState `json:"state"`
}

// commandMessage is one inbound navigation frame.
type commandMessage struct {
	Command string `json:"command"`
	Index   int    `json:"index"`
	Seconds int    `json:"seconds"`
	Visible bool   `json:"visible"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan pushMessage
	role auth.Role
}

// hub fans render-state updates out to every connected display client.
type hub struct {
	mu      sync.Mutex
	clients map[string]*wsClient
	subs    eventbus.SubscriptionGroup
	done    chan struct{}
	once    sync.Once
}

func newHub() *hub {
	return &hub{
		clients: make(map[string]*wsClient),
		done:    make(chan struct{}),
	}
}

// run subscribes to every topic that changes the rendered view and pushes a
// fresh RenderState after each one.
func (h *hub) run(ctx context.Context, bus *eventbus.Bus, kioskCtrl *kiosk.Controller) {
	if bus == nil {
		return
	}

	refreshed := eventbus.SubscribeTo(bus, eventbus.State.Refreshed)
	advanced := eventbus.SubscribeTo(bus, eventbus.Cycle.Advanced)
	health := eventbus.SubscribeTo(bus, eventbus.Tiles.Health)
	saved := eventbus.SubscribeTo(bus, eventbus.Admin.Saved)
	h.subs.Add(refreshed, advanced, health, saved)

	push := func() {
		h.broadcast(pushMessage{Type: "state", State: kioskCtrl.RenderState()})
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case _, ok := <-refreshed.C():
				if !ok {
					return
				}
				push()
			case _, ok := <-advanced.C():
				if !ok {
					return
				}
				push()
			case _, ok := <-health.C():
				if !ok {
					return
				}
				push()
			case _, ok := <-saved.C():
				if !ok {
					return
				}
				push()
			}
		}
	}()
}

func (h *hub) broadcast(msg pushMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; drop the connection rather than the state.
			close(client.send)
			delete(h.clients, id)
		}
	}
}

// add registers a client unless the hub has already shut down.
func (h *hub) add(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[client.id] = client
	return true
}

// send delivers one message to a single client. It holds the registry lock
// so it can never race a concurrent close of the send channel.
func (h *hub) send(id string, msg pushMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[id]
	if !ok {
		return
	}
	select {
	case client.send <- msg:
	default:
	}
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	if client, ok := h.clients[id]; ok {
		close(client.send)
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

func (h *hub) close() {
	h.once.Do(func() {
		close(h.done)
		h.subs.CloseAll()
		h.mu.Lock()
		for id, client := range h.clients {
			close(client.send)
			delete(h.clients, id)
			client.conn.Close()
		}
		h.mu.Unlock()
	})
}

// handleWebSocket upgrades a display-client connection. The client's role
// comes from a token query parameter; an absent or invalid token degrades
// to kiosk rather than refusing the stream.
func (s *Server) handleWebSocket(c *gin.Context) {
	role := auth.RoleKiosk
	if token := c.Query("token"); token != "" {
		if claims, err := auth.VerifyToken(s.secret, token); err == nil {
			role = claims.Role
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Server] websocket upgrade: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan pushMessage, sendBuffer),
		role: role,
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	// Initial state so the display renders without waiting for an event.
	s.hub.send(client.id, pushMessage{Type: "state", State: s.kiosk.RenderState()})

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(client *wsClient) {
	defer func() {
		s.hub.remove(client.id)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Server] websocket read: %v", err)
			}
			return
		}

		var msg commandMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		s.dispatchCommand(client, msg)
	}
}

// dispatchCommand applies a socket navigation command under the client's
// role. Denied commands are dropped silently, matching the hidden-control
// behavior of the HTTP surface.
func (s *Server) dispatchCommand(client *wsClient, msg commandMessage) {
	ctx := context.Background()
	arg := ""

	switch msg.Command {
	case "next":
		if auth.Allow(client.role, auth.ActionNavigate) {
			s.kiosk.Advance(ctx)
		}
	case "prev":
		if auth.Allow(client.role, auth.ActionNavigate) {
			s.kiosk.Prev(ctx)
		}
	case "page":
		arg = strconv.Itoa(msg.Index)
		if auth.Allow(client.role, auth.ActionNavigate) {
			s.kiosk.SetPage(ctx, msg.Index)
		}
	case "timer":
		arg = strconv.Itoa(msg.Seconds)
		if auth.Allow(client.role, auth.ActionChangeTimer) {
			s.kiosk.SetTimer(ctx, msg.Seconds)
		}
	case "visibility":
		arg = strconv.FormatBool(msg.Visible)
		s.kiosk.SetVisible(msg.Visible)
	default:
		return
	}

	eventbus.Publish(ctx, s.bus, eventbus.Viewer.Command, eventbus.SourceServer, eventbus.ViewerCommandEvent{
		ConnID:  client.id,
		Command: msg.Command,
		Arg:     arg,
	})
}
