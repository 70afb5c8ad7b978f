package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"devstream/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	To    domain.ConnectionID
	Room  domain.RoomID
	Event string
	Data  interface{}
}

// recordingNotifier tracks room groups like the websocket hub and records
// every delivery per connection.
type recordingNotifier struct {
	mu           sync.Mutex
	groups       map[domain.RoomID]map[domain.ConnectionID]struct{}
	connected    map[domain.ConnectionID]bool
	inbox        map[domain.ConnectionID][]sentEvent
	roomSends    []sentEvent
	broadcasts   []sentEvent
	disconnected []domain.ConnectionID
}

func newRecordingNotifier(conns ...domain.ConnectionID) *recordingNotifier {
	n := &recordingNotifier{
		groups:    make(map[domain.RoomID]map[domain.ConnectionID]struct{}),
		connected: make(map[domain.ConnectionID]bool),
		inbox:     make(map[domain.ConnectionID][]sentEvent),
	}
	for _, c := range conns {
		n.connected[c] = true
	}
	return n
}

func (n *recordingNotifier) connect(conn domain.ConnectionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected[conn] = true
}

func (n *recordingNotifier) SendTo(conn domain.ConnectionID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected[conn] {
		return
	}
	n.inbox[conn] = append(n.inbox[conn], sentEvent{To: conn, Event: event, Data: data})
}

func (n *recordingNotifier) SendToRoom(room domain.RoomID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roomSends = append(n.roomSends, sentEvent{Room: room, Event: event, Data: data})
	for conn := range n.groups[room] {
		n.inbox[conn] = append(n.inbox[conn], sentEvent{To: conn, Room: room, Event: event, Data: data})
	}
}

func (n *recordingNotifier) Broadcast(event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, sentEvent{Event: event, Data: data})
	for conn := range n.connected {
		n.inbox[conn] = append(n.inbox[conn], sentEvent{To: conn, Event: event, Data: data})
	}
}

func (n *recordingNotifier) Subscribe(room domain.RoomID, conn domain.ConnectionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.groups[room] == nil {
		n.groups[room] = make(map[domain.ConnectionID]struct{})
	}
	n.groups[room][conn] = struct{}{}
}

func (n *recordingNotifier) Unsubscribe(room domain.RoomID, conn domain.ConnectionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.groups[room], conn)
}

func (n *recordingNotifier) DropRoom(room domain.RoomID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.groups, room)
}

func (n *recordingNotifier) Disconnect(conn domain.ConnectionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected = append(n.disconnected, conn)
	delete(n.connected, conn)
}

func (n *recordingNotifier) events(conn domain.ConnectionID, event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.inbox[conn] {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) eventNames(conn domain.ConnectionID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.inbox[conn]))
	for _, e := range n.inbox[conn] {
		names = append(names, e.Event)
	}
	return names
}

func (n *recordingNotifier) broadcastsOf(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.broadcasts {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) members(room domain.RoomID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.groups[room])
}

// MockMetrics accepts every call and lets tests assert on them.
type MockMetrics struct {
	mock.Mock
}

func newMockMetrics() *MockMetrics {
	m := &MockMetrics{}
	for _, method := range []string{
		"ConnectionOpened", "ConnectionClosed",
	} {
		m.On(method).Maybe()
	}
	for _, method := range []string{
		"StreamStarted", "StreamEnded", "ViewerJoined", "ViewerLeft",
		"SignalRelayed", "ChatMessageAccepted", "SocketError",
	} {
		m.On(method, mock.Anything).Maybe()
	}
	m.On("ModerationAction", mock.Anything, mock.Anything).Maybe()
	return m
}

func (m *MockMetrics) ConnectionOpened()                    { m.Called() }
func (m *MockMetrics) ConnectionClosed()                    { m.Called() }
func (m *MockMetrics) StreamStarted(room domain.RoomID)     { m.Called(room) }
func (m *MockMetrics) StreamEnded(room domain.RoomID)       { m.Called(room) }
func (m *MockMetrics) ViewerJoined(room domain.RoomID)      { m.Called(room) }
func (m *MockMetrics) ViewerLeft(room domain.RoomID)        { m.Called(room) }
func (m *MockMetrics) SignalRelayed(kind domain.SignalKind) { m.Called(kind) }
func (m *MockMetrics) SocketError(code string)              { m.Called(code) }

func (m *MockMetrics) ChatMessageAccepted(kind domain.MessageType) {
	m.Called(kind)
}

func (m *MockMetrics) ModerationAction(action domain.ModAction, outcome string) {
	m.Called(action, outcome)
}

// MockSuppressionRepository for store failure paths
type MockSuppressionRepository struct {
	mock.Mock
}

func (m *MockSuppressionRepository) Put(ctx context.Context, s *domain.Suppression) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSuppressionRepository) Get(ctx context.Context, persistentID string) (*domain.Suppression, error) {
	args := m.Called(ctx, persistentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Suppression), args.Error(1)
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
