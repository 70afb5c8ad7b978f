package domain

import "time"

type ModAction string

const (
	ModActionTimeout ModAction = "timeout"
	ModActionBan     ModAction = "ban"
	ModActionDelete  ModAction = "delete"
)

// ModRequest is a moderator's instruction. Duration is in seconds and only
// meaningful for timeouts.
type ModRequest struct {
	Action         ModAction `json:"action"`
	TargetUsername string    `json:"targetUsername"`
	Reason         string    `json:"reason,omitempty"`
	Duration       int       `json:"duration,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
}

type SuppressionKind string

const (
	SuppressionTimeout SuppressionKind = "timeout"
	SuppressionBan     SuppressionKind = "ban"
)

// Suppression silences a persistent identity in chat until it expires.
type Suppression struct {
	PersistentID string          `json:"persistentId"`
	Kind         SuppressionKind `json:"kind"`
	Reason       string          `json:"reason,omitempty"`
	Until        time.Time       `json:"until"`
}

func (s *Suppression) Active(now time.Time) bool {
	return now.Before(s.Until)
}
