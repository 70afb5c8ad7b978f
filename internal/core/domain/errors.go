package domain

import "errors"

var (
	ErrStreamNotFound          = errors.New("Stream not found")
	ErrStreamExists            = errors.New("Stream already exists")
	ErrNotBroadcaster          = errors.New("Only the broadcaster can end this stream")
	ErrNotRoomMember           = errors.New("Not a member of this stream")
	ErrInvalidRoomID           = errors.New("Invalid stream id")
	ErrMissingTarget           = errors.New("Target peer is required")
	ErrSelfJoin                = errors.New("Broadcaster cannot join its own stream")
	ErrEmptyMessage            = errors.New("Message cannot be empty")
	ErrMessageTooLong          = errors.New("Message is too long (max 500 characters)")
	ErrSuppressed              = errors.New("You are not allowed to chat right now")
	ErrInsufficientPermissions = errors.New("Insufficient permissions for this action")
	ErrUnknownModAction        = errors.New("Unknown moderation action")
	ErrUserNotFound            = errors.New("User not found")
	ErrMissingMessageID        = errors.New("Message id is required")
	ErrRateLimited             = errors.New("Too many messages, slow down")
	ErrSuppressionNotFound     = errors.New("suppression not found")
)
