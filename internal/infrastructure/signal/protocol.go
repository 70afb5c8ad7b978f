package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"devstream/internal/core/domain"
	apperrors "devstream/pkg/errors"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

type offerPayload struct {
	RoomID   domain.RoomID       `json:"roomId"`
	Offer    json.RawMessage     `json:"offer"`
	ViewerID domain.ConnectionID `json:"viewerId"`
}

type answerPayload struct {
	RoomID        domain.RoomID       `json:"roomId"`
	Answer        json.RawMessage     `json:"answer"`
	BroadcasterID domain.ConnectionID `json:"broadcasterId"`
}

type candidatePayload struct {
	RoomID    domain.RoomID       `json:"roomId"`
	Candidate json.RawMessage     `json:"candidate"`
	TargetID  domain.ConnectionID `json:"targetId"`
}

type chatPayload struct {
	Message string `json:"message"`
}

var errMalformed = errors.New("Malformed payload")

// decodeRoomID accepts a bare string or an object carrying roomId.
func decodeRoomID(data json.RawMessage) (domain.RoomID, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return domain.RoomID(id), nil
	}
	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", errMalformed
	}
	return domain.RoomID(obj.RoomID), nil
}

// decodeChat accepts {message} or a bare string.
func decodeChat(data json.RawMessage) (string, error) {
	var payload chatPayload
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload.Message, nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return "", errMalformed
	}
	return text, nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

var errorCodes = []struct {
	code apperrors.ErrorCode
	errs []error
}{
	{apperrors.ErrCodeInvalidInput, []error{
		errMalformed, errUnknownEvent,
		domain.ErrInvalidRoomID, domain.ErrMissingTarget, domain.ErrSelfJoin,
		domain.ErrEmptyMessage, domain.ErrMessageTooLong, domain.ErrMissingMessageID,
		domain.ErrUnknownModAction,
	}},
	{apperrors.ErrCodeNotFound, []error{domain.ErrStreamNotFound, domain.ErrUserNotFound}},
	{apperrors.ErrCodeConflict, []error{domain.ErrStreamExists}},
	{apperrors.ErrCodeForbidden, []error{
		domain.ErrNotBroadcaster, domain.ErrNotRoomMember,
		domain.ErrInsufficientPermissions, domain.ErrSuppressed,
	}},
	{apperrors.ErrCodeRateLimit, []error{domain.ErrRateLimited}},
}

// toAppError classifies a handler failure. Unclassified errors keep their
// detail out of the client message.
func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	for _, group := range errorCodes {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return apperrors.Wrap(err, group.code)
			}
		}
	}
	return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", apperrors.StatusFor(apperrors.ErrCodeInternal))
}
