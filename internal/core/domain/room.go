package domain

import "time"

type RoomID string

// Room is one live broadcast: a single broadcaster and the viewers that
// joined it, in join order.
type Room struct {
	ID          RoomID
	Broadcaster ConnectionID
	Viewers     []ConnectionID
	CreatedAt   time.Time
}

func (r *Room) ViewerCount() int {
	return len(r.Viewers)
}

func (r *Room) HasViewer(id ConnectionID) bool {
	for _, v := range r.Viewers {
		if v == id {
			return true
		}
	}
	return false
}

// IsMember reports whether id is the broadcaster or one of the viewers.
func (r *Room) IsMember(id ConnectionID) bool {
	return r.Broadcaster == id || r.HasViewer(id)
}

// Members returns the broadcaster followed by the viewers.
func (r *Room) Members() []ConnectionID {
	members := make([]ConnectionID, 0, len(r.Viewers)+1)
	members = append(members, r.Broadcaster)
	return append(members, r.Viewers...)
}

func (r *Room) Clone() *Room {
	c := *r
	c.Viewers = append([]ConnectionID(nil), r.Viewers...)
	return &c
}

type RoomSummary struct {
	RoomID      RoomID `json:"roomId"`
	ViewerCount int    `json:"viewerCount"`
}

// SignalKind names the three relayed WebRTC negotiation messages.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)
