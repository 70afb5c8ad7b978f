package ports

import (
	"context"

	"devstream/internal/core/domain"
)

// RoomRepository stores active rooms and indexes them by member connection.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Delete(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	AddViewer(ctx context.Context, id domain.RoomID, viewer domain.ConnectionID) (*domain.Room, error)
	RemoveViewer(ctx context.Context, id domain.RoomID, viewer domain.ConnectionID) (*domain.Room, error)
	FindByConnection(ctx context.Context, conn domain.ConnectionID) ([]*domain.Room, error)
	List(ctx context.Context) ([]*domain.Room, error)
}

// SuppressionRepository tracks chat timeouts and bans keyed by persistent id.
type SuppressionRepository interface {
	Put(ctx context.Context, s *domain.Suppression) error
	Get(ctx context.Context, persistentID string) (*domain.Suppression, error)
}
