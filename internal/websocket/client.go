package chatws

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    int64
	role      string
	sessionID string
	send      chan []byte

	// rooms is owned by the hub goroutine; nothing else touches it.
	rooms map[int64]struct{}

	// mu guards closed and the send channel's lifecycle. Both the hub
	// goroutine and the session's read goroutine write to send, so closing
	// it has to be serialized against those sends.
	mu     sync.Mutex
	closed bool
}

// chatSender is the slice of the chat service the gateway needs: message
// append plus the membership check backing join_chat.
type chatSender interface {
	Send(ctx context.Context, senderID int64, role string, input services.SendMessageInput) (*services.ChatDelivery, error)
	RoomForParticipant(ctx context.Context, roomID int64, actorID int64) (*models.ChatRoom, error)
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, role string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		userID:    userID,
		role:      role,
		sessionID: uuid.NewString(),
		send:      make(chan []byte, 32),
		rooms:     make(map[int64]struct{}),
	}
}

// trySend queues a payload without blocking. False means the session is
// closed or its buffer is full; the caller decides whether that drops the
// session.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSession is idempotent. Closing the connection makes the read pump
// exit, so a dropped session cannot keep issuing commands.
func (c *Client) closeSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type inboundEvent struct {
	Type          string `json:"type"`
	ChatRoomID    string `json:"chat_room_id"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url"`
	CorrelationID string `json:"correlation_id"`
}

func (c *Client) ReadPump(service chatSender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			c.writeError("invalid event payload", "")
			continue
		}

		switch event.Type {
		case "join_chat":
			c.handleJoin(service, event)
		case "leave_chat":
			c.handleLeave(event)
		case "typing_start", "typing_stop":
			c.handleTyping(event)
		case "message":
			c.handleMessage(service, event)
		default:
			c.writeError("unsupported event type", event.CorrelationID)
		}
	}
}

func (c *Client) handleJoin(service chatSender, event inboundEvent) {
	roomID, ok := c.parseRoomID(event)
	if !ok {
		return
	}

	// Membership is checked against the store before the hub mutates state,
	// so a session can only ever join its own pairing's room.
	if _, err := service.RoomForParticipant(context.Background(), roomID, c.userID); err != nil {
		c.writeError("cannot join chat", "")
		return
	}

	c.hub.Join(c, roomID)
}

func (c *Client) handleLeave(event inboundEvent) {
	roomID, ok := c.parseRoomID(event)
	if !ok {
		return
	}
	c.hub.Leave(c, roomID)
}

func (c *Client) handleTyping(event inboundEvent) {
	roomID, ok := c.parseRoomID(event)
	if !ok {
		return
	}
	c.hub.Typing(c, roomID, event.Type == "typing_start")
}

func (c *Client) handleMessage(service chatSender, event inboundEvent) {
	roomID, ok := c.parseRoomID(event)
	if !ok {
		return
	}

	input := services.SendMessageInput{
		ChatRoomID:    roomID,
		Content:       event.Content,
		CorrelationID: event.CorrelationID,
	}
	if event.AttachmentURL != "" {
		attachment := event.AttachmentURL
		input.AttachmentURL = &attachment
	}

	if _, err := service.Send(context.Background(), c.userID, c.role, input); err != nil {
		c.writeError("failed to send message", event.CorrelationID)
	}
	// Delivery to the room, the sender included, happens through the chat
	// service's fan-out; the correlation id rides along on that frame.
}

func (c *Client) parseRoomID(event inboundEvent) (int64, bool) {
	roomID, err := strconv.ParseInt(event.ChatRoomID, 10, 64)
	if err != nil || roomID <= 0 {
		c.writeError("invalid chat room id", event.CorrelationID)
		return 0, false
	}
	return roomID, true
}

func (c *Client) WritePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeError(message string, correlationID string) {
	event := map[string]any{
		"type":    "error",
		"content": message,
	}
	if correlationID != "" {
		event["correlation_id"] = correlationID
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if !c.trySend(payload) {
		c.hub.Unregister(c)
	}
}
