package ports

import (
	"context"
	"encoding/json"

	"devstream/internal/core/domain"
)

// Notifier delivers server events to connections. Delivery is
// fire-and-forget: sending to a connection that is gone is a no-op.
type Notifier interface {
	SendTo(conn domain.ConnectionID, event string, data interface{})
	SendToRoom(room domain.RoomID, event string, data interface{})
	Broadcast(event string, data interface{})
	Subscribe(room domain.RoomID, conn domain.ConnectionID)
	Unsubscribe(room domain.RoomID, conn domain.ConnectionID)
	DropRoom(room domain.RoomID)
	Disconnect(conn domain.ConnectionID)
}

type IdentityResolver interface {
	Resolve(token, persistentID string, conn domain.ConnectionID) domain.Identity
}

type RoomService interface {
	StartStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error
	JoinStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error
	LeaveStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error
	StopStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error
	Relay(ctx context.Context, conn domain.ConnectionID, kind domain.SignalKind, roomID domain.RoomID, target domain.ConnectionID, payload json.RawMessage) error
	HandleDisconnect(ctx context.Context, conn domain.ConnectionID) error
	ListActive(ctx context.Context) ([]domain.RoomSummary, error)
}

type ChatService interface {
	// Join runs attach, if set, under the channel lock before taking the
	// history snapshot, so a transport can register the connection for
	// broadcasts atomically with it.
	Join(ctx context.Context, conn domain.ConnectionID, identity domain.Identity, attach func()) []domain.ChatMessage
	Post(ctx context.Context, conn domain.ConnectionID, text string) (*domain.ChatMessage, error)
	Moderate(ctx context.Context, conn domain.ConnectionID, req domain.ModRequest) error
	Leave(ctx context.Context, conn domain.ConnectionID)
	History() []domain.ChatMessage
}

// MetricsRecorder receives relay and chat counters.
type MetricsRecorder interface {
	ConnectionOpened()
	ConnectionClosed()
	StreamStarted(room domain.RoomID)
	StreamEnded(room domain.RoomID)
	ViewerJoined(room domain.RoomID)
	ViewerLeft(room domain.RoomID)
	SignalRelayed(kind domain.SignalKind)
	ChatMessageAccepted(kind domain.MessageType)
	ModerationAction(action domain.ModAction, outcome string)
	SocketError(code string)
}
