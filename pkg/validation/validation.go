package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmpty        = errors.New("value is empty")
	ErrTooLong      = errors.New("value is too long")
	ErrInvalidChars = errors.New("value contains invalid characters")
)

var (
	// UsernameRegex is the character set allowed in usernames passed to the token command.
	UsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxRoomIDLength       = 100
	MaxPersistentIDLength = 128
)

// ValidateRoomID validates a room id chosen by a broadcaster. Room ids are
// free-form stream names, so only emptiness, length and control characters
// are checked.
func ValidateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("room id: %w", ErrEmpty)
	}
	if utf8.RuneCountInString(roomID) > MaxRoomIDLength {
		return fmt.Errorf("room id (max %d characters): %w", MaxRoomIDLength, ErrTooLong)
	}
	if hasControl(roomID) {
		return fmt.Errorf("room id: %w", ErrInvalidChars)
	}
	return nil
}

// ValidatePersistentID validates a client-retained identifier. Empty is
// allowed: clients without one get a connection-scoped identity.
func ValidatePersistentID(id string) error {
	if utf8.RuneCountInString(id) > MaxPersistentIDLength {
		return fmt.Errorf("persistent id (max %d characters): %w", MaxPersistentIDLength, ErrTooLong)
	}
	if hasControl(id) {
		return fmt.Errorf("persistent id: %w", ErrInvalidChars)
	}
	return nil
}

// ChatText trims text and checks it holds between 1 and max characters.
func ChatText(text string, max int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(trimmed) > max {
		return "", ErrTooLong
	}
	return trimmed, nil
}

// ValidateUsername checks a username given to the token command.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !UsernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
