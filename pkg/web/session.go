package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/ritzau/neural-portfolio/pkg/pubsub"
	"github.com/ritzau/neural-portfolio/pkg/scene"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Send buffer size
	sendBufferSize = 256
)

// TopicSession carries messages about the session itself
const TopicSession = "session"

// Command is a message from a session client
type Command struct {
	Type    string              `json:"type"` // pointer, select, navigate, jump, close_detail
	NodeID  string              `json:"nodeId,omitempty"`
	Pointer *scene.PointerEvent `json:"pointer,omitempty"`
}

// session is one interactive websocket client. It receives every scene topic and
// drives the scene with pointer and navigation commands.
type session struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	scene *scene.Scene

	// pressed is set between a pointer down and its up or cancel. Only the
	// readPump goroutine touches it.
	pressed bool
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:    uuid.New().String(),
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		scene: s.scene,
	}
	ctx, cancel := context.WithCancel(logging.WithSessionID(r.Context(), sess.id))
	defer cancel()

	s.sessions.add(sess)
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	defer func() {
		if sess.pressed {
			// Release the press so the dragged node and hover are freed for other clients.
			if err := s.scene.Pointer(scene.PointerEvent{Kind: scene.PointerCancel}); err != nil {
				logging.WarnContext(ctx, "cancel pointer on close failed", "error", err)
			}
		}
		s.sessions.remove(sess)
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
		conn.Close()
		logging.InfoContext(ctx, "session closed")
	}()

	for topic := range topics {
		sub, err := s.publisher.Subscribe(ctx, topic)
		if err != nil {
			logging.WarnContext(ctx, "session subscribe failed", "topic", topic, "error", err)
			return
		}
		go sess.forward(ctx, sub)
	}

	go sess.writePump(ctx)
	sess.queue(ctx, TopicSession, "established", map[string]string{"sessionId": sess.id})
	logging.InfoContext(ctx, "session established", "remoteAddr", r.RemoteAddr)

	sess.readPump(ctx)
}

// forward copies subscription events to the send queue, dropping them when the
// client falls behind.
func (c *session) forward(ctx context.Context, sub pubsub.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			default:
				logging.TraceContext(ctx, "session send queue full, dropping event", "topic", ev.Topic)
			}
		}
	}
}

// readPump handles commands until the connection fails or ctx is done
func (c *session) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WarnContext(ctx, "websocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.queueError(ctx, fmt.Errorf("binary messages not supported"))
			continue
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.queueError(ctx, fmt.Errorf("invalid command: %w", err))
			continue
		}
		if err := c.handle(cmd); err != nil {
			c.queueError(ctx, err)
		}
	}
}

func (c *session) handle(cmd Command) error {
	switch cmd.Type {
	case "pointer":
		if cmd.Pointer == nil {
			return fmt.Errorf("pointer command without event")
		}
		if err := c.scene.Pointer(*cmd.Pointer); err != nil {
			return err
		}
		switch cmd.Pointer.Kind {
		case scene.PointerDown:
			c.pressed = true
		case scene.PointerUp, scene.PointerCancel:
			c.pressed = false
		}
		return nil
	case "select":
		return c.scene.Select(cmd.NodeID)
	case "navigate":
		_, err := c.scene.NavigateTo(cmd.NodeID)
		return err
	case "jump":
		_, err := c.scene.JumpTo(cmd.NodeID)
		return err
	case "close_detail":
		c.scene.CloseDetail()
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

// writePump is the only writer on the connection
func (c *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.DebugContext(ctx, "websocket write failed", "error", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logging.DebugContext(ctx, "websocket ping failed", "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

func (c *session) queue(ctx context.Context, topic, kind string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg, _ := json.Marshal(pubsub.Event{Topic: topic, Type: kind, Data: payload})
	select {
	case c.send <- msg:
	default:
		logging.WarnContext(ctx, "session send queue full", "type", kind)
	}
}

func (c *session) queueError(ctx context.Context, err error) {
	logging.DebugContext(ctx, "session command rejected", "error", err)
	c.queue(ctx, TopicSession, "error", map[string]string{"message": err.Error()})
}

// sessionHub tracks live sessions so they can be closed on shutdown
type sessionHub struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionHub() *sessionHub {
	return &sessionHub{sessions: make(map[string]*session)}
}

func (h *sessionHub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
}

func (h *sessionHub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
}

// Len returns the number of live sessions
func (h *sessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *sessionHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		s.conn.Close()
	}
}
