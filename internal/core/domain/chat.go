package domain

import "time"

type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeSystem MessageType = "system"
)

// SystemUsername is the author of every system message.
const SystemUsername = "System"

type ChatMessage struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Message      string      `json:"message"`
	Role         Role        `json:"role"`
	Timestamp    time.Time   `json:"timestamp"`
	Type         MessageType `json:"type"`
	UserID       string      `json:"userId,omitempty"`
	PersistentID string      `json:"persistentId,omitempty"`
}

type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

const (
	// MaxMessageLength bounds a chat message in characters, after trimming.
	MaxMessageLength = 500
	// DefaultMaxHistory is the number of messages kept for late joiners.
	DefaultMaxHistory = 100
)
