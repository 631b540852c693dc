package chatws

import (
	"encoding/json"
	"log"
	"time"
)

const (
	typingSweepInterval = 500 * time.Millisecond
	typingIdleExpiry    = 1500 * time.Millisecond
)

// Hub owns all in-memory presence state. A single goroutine (Run) multiplexes
// every mutation over channels, so the maps are never touched concurrently and
// each command runs to completion before the next is picked up. Nothing in the
// loop blocks: store calls happen in the per-connection read goroutines, and a
// session that cannot keep up with its send buffer is dropped.
type Hub struct {
	clients map[int64]map[*Client]struct{}
	rooms   map[int64]map[*Client]struct{}
	typing  map[int64]map[int64]time.Time

	register   chan *Client
	unregister chan *Client
	membership chan membershipChange
	typingCh   chan typingChange
	pushCh     chan pushRequest

	bridge Bridge
}

// Bridge fans durable events out to other gateway processes. Local delivery
// never depends on it.
type Bridge interface {
	PublishToUser(userID int64, payload []byte)
	PublishToRoom(roomID int64, payload []byte)
}

type membershipChange struct {
	client *Client
	roomID int64
	join   bool
}

type typingChange struct {
	client *Client
	roomID int64
	start  bool
}

type pushRequest struct {
	userID  int64
	roomID  int64
	payload []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		rooms:      make(map[int64]map[*Client]struct{}),
		typing:     make(map[int64]map[int64]time.Time),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		membership: make(chan membershipChange, 64),
		typingCh:   make(chan typingChange, 64),
		pushCh:     make(chan pushRequest, 256),
	}
}

// SetBridge must be called before Run.
func (h *Hub) SetBridge(bridge Bridge) {
	h.bridge = bridge
}

func (h *Hub) Run() {
	sweep := time.NewTicker(typingSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case change := <-h.membership:
			if change.join {
				h.joinRoom(change.client, change.roomID)
			} else {
				h.leaveRoom(change.client, change.roomID)
			}
		case change := <-h.typingCh:
			h.applyTyping(change)
		case request := <-h.pushCh:
			h.deliver(request)
		case now := <-sweep.C:
			h.expireTyping(now)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) Join(client *Client, roomID int64) {
	h.membership <- membershipChange{client: client, roomID: roomID, join: true}
}

func (h *Hub) Leave(client *Client, roomID int64) {
	h.membership <- membershipChange{client: client, roomID: roomID, join: false}
}

func (h *Hub) Typing(client *Client, roomID int64, start bool) {
	h.typingCh <- typingChange{client: client, roomID: roomID, start: start}
}

// PushToUser implements services.Pusher.
func (h *Hub) PushToUser(userID int64, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub encode user event: %v", err)
		return
	}
	h.pushCh <- pushRequest{userID: userID, payload: payload}
	if h.bridge != nil {
		h.bridge.PublishToUser(userID, payload)
	}
}

// PushToRoom implements services.Pusher.
func (h *Hub) PushToRoom(roomID int64, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub encode room event: %v", err)
		return
	}
	h.pushCh <- pushRequest{roomID: roomID, payload: payload}
	if h.bridge != nil {
		h.bridge.PublishToRoom(roomID, payload)
	}
}

// DeliverLocal injects an event received from another process's gateway.
// It skips the bridge so the event is not republished.
func (h *Hub) DeliverLocal(userID, roomID int64, payload []byte) {
	h.pushCh <- pushRequest{userID: userID, roomID: roomID, payload: payload}
}

func (h *Hub) addClient(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}
}

// removeClient discards the session's memberships and typing flags at once;
// there is no grace period, the client rejoins on reconnect. Closing the
// session also closes its connection, so the read pump cannot keep feeding
// commands for a session the hub already dropped.
func (h *Hub) removeClient(client *Client) {
	client.closeSession()

	set, ok := h.clients[client.userID]
	if ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.userID)
		}
	}

	for roomID := range client.rooms {
		h.leaveRoom(client, roomID)
	}
}

func (h *Hub) joinRoom(client *Client, roomID int64) {
	// A join racing with the session's drop must not resurrect it.
	if client.isClosed() {
		return
	}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[client] = struct{}{}
	client.rooms[roomID] = struct{}{}
}

func (h *Hub) leaveRoom(client *Client, roomID int64) {
	members, ok := h.rooms[roomID]
	if !ok {
		delete(client.rooms, roomID)
		return
	}
	delete(members, client)
	delete(client.rooms, roomID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}

	if !h.userInRoom(client.userID, roomID) {
		h.clearTyping(roomID, client.userID, true)
	}
}

func (h *Hub) applyTyping(change typingChange) {
	roomID := change.roomID
	userID := change.client.userID

	if _, member := change.client.rooms[roomID]; !member {
		return
	}

	if change.start {
		flags, ok := h.typing[roomID]
		if !ok {
			flags = make(map[int64]time.Time)
			h.typing[roomID] = flags
		}
		_, already := flags[userID]
		flags[userID] = time.Now()
		if !already {
			h.broadcastTyping(roomID, userID, true)
		}
		return
	}

	h.clearTyping(roomID, userID, true)
}

// expireTyping drops flags whose sender went quiet without a typing_stop,
// covering senders that disconnected without cleanup.
func (h *Hub) expireTyping(now time.Time) {
	for roomID, flags := range h.typing {
		for userID, refreshed := range flags {
			if now.Sub(refreshed) >= typingIdleExpiry {
				h.clearTyping(roomID, userID, true)
			}
		}
	}
}

func (h *Hub) clearTyping(roomID, userID int64, broadcast bool) {
	flags, ok := h.typing[roomID]
	if !ok {
		return
	}
	if _, exists := flags[userID]; !exists {
		return
	}
	delete(flags, userID)
	if len(flags) == 0 {
		delete(h.typing, roomID)
	}
	if broadcast {
		h.broadcastTyping(roomID, userID, false)
	}
}

func (h *Hub) broadcastTyping(roomID, userID int64, start bool) {
	eventType := "user_typing"
	if !start {
		eventType = "user_stopped_typing"
	}
	payload, err := json.Marshal(map[string]any{
		"type":         eventType,
		"chat_room_id": roomID,
		"user_id":      userID,
	})
	if err != nil {
		log.Printf("hub encode typing event: %v", err)
		return
	}
	h.sendToRoom(roomID, payload, userID)
}

func (h *Hub) deliver(request pushRequest) {
	if request.userID > 0 {
		h.sendToUser(request.userID, request.payload)
	}
	if request.roomID > 0 {
		h.sendToRoom(request.roomID, request.payload, 0)
	}
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		h.sendToClient(client, payload)
	}
}

func (h *Hub) sendToRoom(roomID int64, payload []byte, exceptUserID int64) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}

	for client := range members {
		if exceptUserID != 0 && client.userID == exceptUserID {
			continue
		}
		h.sendToClient(client, payload)
	}
}

func (h *Hub) sendToClient(client *Client, payload []byte) {
	if !client.trySend(payload) {
		h.removeClient(client)
	}
}

func (h *Hub) userInRoom(userID, roomID int64) bool {
	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	for client := range members {
		if client.userID == userID {
			return true
		}
	}
	return false
}
