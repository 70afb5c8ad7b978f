package domain

import "encoding/json"

// Socket event names, client to server.
const (
	EventStartStream  = "start-stream"
	EventJoinStream   = "join-stream"
	EventLeaveStream  = "leave-stream"
	EventStopStream   = "stop-stream"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventChatMessage  = "chatMessage"
	EventModAction    = "modAction"
)

// Socket event names, server to client. Offer, answer, ice-candidate and
// chatMessage reuse the names above.
const (
	EventUserInfo      = "userInfo"
	EventChatHistory   = "chatHistory"
	EventStreamStarted = "stream-started"
	EventViewerJoined  = "viewer-joined"
	EventViewerLeft    = "viewer-left"
	EventStreamEnded   = "stream-ended"
	EventTimeout       = "timeout"
	EventBanned        = "banned"
	EventDeleteMessage = "deleteMessage"
	EventError         = "error"
)

type StreamStarted struct {
	RoomID RoomID `json:"roomId"`
}

type StreamEnded struct {
	RoomID RoomID `json:"roomId"`
}

// ViewerChange is sent to a broadcaster when a viewer joins or leaves.
type ViewerChange struct {
	ViewerID    ConnectionID `json:"viewerId"`
	ViewerCount int          `json:"viewerCount"`
}

type ForwardedOffer struct {
	RoomID        RoomID          `json:"roomId"`
	Offer         json.RawMessage `json:"offer"`
	BroadcasterID ConnectionID    `json:"broadcasterId"`
}

type ForwardedAnswer struct {
	RoomID   RoomID          `json:"roomId"`
	Answer   json.RawMessage `json:"answer"`
	ViewerID ConnectionID    `json:"viewerId"`
}

type ForwardedCandidate struct {
	RoomID    RoomID          `json:"roomId"`
	Candidate json.RawMessage `json:"candidate"`
	SenderID  ConnectionID    `json:"senderId"`
}

// TimeoutNotice tells a client to disable chat input. Duration is in seconds.
type TimeoutNotice struct {
	Duration int    `json:"duration"`
	Reason   string `json:"reason,omitempty"`
}

type BanNotice struct {
	Reason string `json:"reason,omitempty"`
}

type DeleteNotice struct {
	MessageID string `json:"messageId"`
}

type ErrorNotice struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
	Code    string `json:"code,omitempty"`
}
