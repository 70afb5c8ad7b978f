package signal

import (
	"sync"

	"devstream/internal/core/domain"

	"go.uber.org/zap"
)

// Hub tracks live connections and the room broadcast groups they belong
// to. It implements ports.Notifier; every send is a non-blocking enqueue.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]*client
	groups  map[domain.RoomID]map[domain.ConnectionID]struct{}

	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[domain.ConnectionID]*client),
		groups:  make(map[domain.RoomID]map[domain.ConnectionID]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister removes the connection from the hub and from every group.
func (h *Hub) unregister(id domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, id)
	for room, members := range h.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, room)
		}
	}
}

func (h *Hub) SendTo(conn domain.ConnectionID, event string, data interface{}) {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	msg, err := encode(event, data)
	if err != nil {
		h.logger.Errorw("failed to encode event", "event", event, "error", err)
		return
	}
	h.deliver(c, event, msg)
}

func (h *Hub) SendToRoom(room domain.RoomID, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		h.logger.Errorw("failed to encode event", "event", event, "room_id", room, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.groups[room] {
		if c, ok := h.clients[id]; ok {
			h.deliver(c, event, msg)
		}
	}
}

func (h *Hub) Broadcast(event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		h.logger.Errorw("failed to encode event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.deliver(c, event, msg)
	}
}

func (h *Hub) Subscribe(room domain.RoomID, conn domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[conn]; !ok {
		return
	}
	members, ok := h.groups[room]
	if !ok {
		members = make(map[domain.ConnectionID]struct{})
		h.groups[room] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) Unsubscribe(room domain.RoomID, conn domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.groups, room)
	}
}

func (h *Hub) DropRoom(room domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, room)
}

// Disconnect closes the connection after its queued messages are flushed.
// Cleanup then runs on the connection's own reader goroutine.
func (h *Hub) Disconnect(conn domain.ConnectionID) {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if ok {
		c.close()
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GroupSize returns the number of connections subscribed to room.
func (h *Hub) GroupSize(room domain.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[room])
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.close()
	}
}

func (h *Hub) deliver(c *client, event string, msg []byte) {
	if !c.enqueue(msg) {
		h.logger.Warnw("dropping message for slow or closed connection",
			"connection_id", c.id,
			"event", event,
		)
	}
}
