package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"
	"devstream/pkg/validation"

	"go.uber.org/zap"
)

// roomService owns room lifecycle and signaling. mu serializes every
// registry mutation together with the notifications it produces, so
// members observe room events in the order they happened.
type roomService struct {
	mu       sync.Mutex
	rooms    ports.RoomRepository
	notifier ports.Notifier
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewRoomService(
	rooms ports.RoomRepository,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) ports.RoomService {
	return &roomService{
		rooms:    rooms,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *roomService) StartStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error {
	if err := checkRoomID(roomID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := &domain.Room{
		ID:          roomID,
		Broadcaster: conn,
		Viewers:     []domain.ConnectionID{},
		CreatedAt:   s.now(),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return err
	}

	s.notifier.Subscribe(roomID, conn)
	s.notifier.SendTo(conn, domain.EventStreamStarted, domain.StreamStarted{RoomID: roomID})
	s.metrics.StreamStarted(roomID)

	s.logger.Infow("stream started",
		"room_id", roomID,
		"broadcaster", conn,
	)
	return nil
}

func (s *roomService) JoinStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error {
	if err := checkRoomID(roomID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Broadcaster == conn {
		return domain.ErrSelfJoin
	}
	rejoin := room.HasViewer(conn)

	room, err = s.rooms.AddViewer(ctx, roomID, conn)
	if err != nil {
		return err
	}

	s.notifier.Subscribe(roomID, conn)
	s.notifier.SendTo(room.Broadcaster, domain.EventViewerJoined, domain.ViewerChange{
		ViewerID:    conn,
		ViewerCount: room.ViewerCount(),
	})
	if !rejoin {
		s.metrics.ViewerJoined(roomID)
	}

	s.logger.Debugw("viewer joined",
		"room_id", roomID,
		"viewer", conn,
		"viewer_count", room.ViewerCount(),
	)
	return nil
}

func (s *roomService) LeaveStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error {
	if err := checkRoomID(roomID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, domain.ErrStreamNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if room.Broadcaster == conn {
		return s.endRoom(ctx, room)
	}
	if !room.HasViewer(conn) {
		return nil
	}
	return s.removeViewer(ctx, room, conn)
}

func (s *roomService) StopStream(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID) error {
	if err := checkRoomID(roomID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, domain.ErrStreamNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if room.Broadcaster != conn {
		return domain.ErrNotBroadcaster
	}
	return s.endRoom(ctx, room)
}

func (s *roomService) Relay(
	ctx context.Context,
	conn domain.ConnectionID,
	kind domain.SignalKind,
	roomID domain.RoomID,
	target domain.ConnectionID,
	payload json.RawMessage,
) error {
	if err := checkRoomID(roomID); err != nil {
		return err
	}
	if target == "" {
		return domain.ErrMissingTarget
	}

	var message interface{}
	switch kind {
	case domain.SignalOffer:
		message = domain.ForwardedOffer{RoomID: roomID, Offer: payload, BroadcasterID: conn}
	case domain.SignalAnswer:
		message = domain.ForwardedAnswer{RoomID: roomID, Answer: payload, ViewerID: conn}
	case domain.SignalICECandidate:
		message = domain.ForwardedCandidate{RoomID: roomID, Candidate: payload, SenderID: conn}
	default:
		return fmt.Errorf("unknown signal kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsMember(conn) {
		return domain.ErrNotRoomMember
	}
	if !room.IsMember(target) {
		// the peer left or never joined; signaling is fire-and-forget
		s.logger.Debugw("dropping signal for non-member",
			"room_id", roomID,
			"kind", kind,
			"target", target,
		)
		return nil
	}

	s.notifier.SendTo(target, string(kind), message)
	s.metrics.SignalRelayed(kind)
	return nil
}

func (s *roomService) HandleDisconnect(ctx context.Context, conn domain.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.rooms.FindByConnection(ctx, conn)
	if err != nil {
		return err
	}

	var errs []error
	for _, room := range rooms {
		if room.Broadcaster == conn {
			errs = append(errs, s.endRoom(ctx, room))
			continue
		}
		errs = append(errs, s.removeViewer(ctx, room, conn))
	}
	return errors.Join(errs...)
}

func (s *roomService) ListActive(ctx context.Context) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, domain.RoomSummary{
			RoomID:      room.ID,
			ViewerCount: room.ViewerCount(),
		})
	}
	return summaries, nil
}

// endRoom must be called with mu held.
func (s *roomService) endRoom(ctx context.Context, room *domain.Room) error {
	s.notifier.SendToRoom(room.ID, domain.EventStreamEnded, domain.StreamEnded{RoomID: room.ID})

	if _, err := s.rooms.Delete(ctx, room.ID); err != nil && !errors.Is(err, domain.ErrStreamNotFound) {
		return fmt.Errorf("failed to delete room %s: %w", room.ID, err)
	}
	s.notifier.DropRoom(room.ID)
	s.metrics.StreamEnded(room.ID)

	s.logger.Infow("stream ended",
		"room_id", room.ID,
		"viewers", room.ViewerCount(),
		"duration", s.now().Sub(room.CreatedAt),
	)
	return nil
}

// removeViewer must be called with mu held.
func (s *roomService) removeViewer(ctx context.Context, room *domain.Room, conn domain.ConnectionID) error {
	updated, err := s.rooms.RemoveViewer(ctx, room.ID, conn)
	if err != nil {
		return fmt.Errorf("failed to remove viewer from %s: %w", room.ID, err)
	}

	s.notifier.Unsubscribe(room.ID, conn)
	s.notifier.SendTo(updated.Broadcaster, domain.EventViewerLeft, domain.ViewerChange{
		ViewerID:    conn,
		ViewerCount: updated.ViewerCount(),
	})
	s.metrics.ViewerLeft(room.ID)
	return nil
}

func checkRoomID(roomID domain.RoomID) error {
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRoomID, err)
	}
	return nil
}
