package memory

import (
	"context"
	"testing"
	"time"

	"devstream/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(id domain.RoomID, broadcaster domain.ConnectionID) *domain.Room {
	return &domain.Room{ID: id, Broadcaster: broadcaster, CreatedAt: time.Now()}
}

func TestMemoryRoomRepository_CreateConflict(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRoom("demo", "b1")))
	err := repo.Create(ctx, newRoom("demo", "b2"))
	assert.ErrorIs(t, err, domain.ErrStreamExists)

	room, err := repo.GetByID(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionID("b1"), room.Broadcaster)

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestMemoryRoomRepository_GetMissing(t *testing.T) {
	repo := NewMemoryRoomRepository()

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestMemoryRoomRepository_Viewers(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRoom("demo", "b1")))

	room, err := repo.AddViewer(ctx, "demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"v1"}, room.Viewers)

	room, err = repo.AddViewer(ctx, "demo", "v2")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"v1", "v2"}, room.Viewers)

	// joining twice keeps a single entry
	room, err = repo.AddViewer(ctx, "demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, room.ViewerCount())

	room, err = repo.RemoveViewer(ctx, "demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"v2"}, room.Viewers)

	// removing an absent viewer leaves the room untouched
	room, err = repo.RemoveViewer(ctx, "demo", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, room.ViewerCount())

	_, err = repo.AddViewer(ctx, "nope", "v1")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestMemoryRoomRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRoom("demo", "b1")))
	_, err := repo.AddViewer(ctx, "demo", "v1")
	require.NoError(t, err)

	room, err := repo.GetByID(ctx, "demo")
	require.NoError(t, err)
	room.Viewers[0] = "mutated"

	again, err := repo.GetByID(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionID("v1"), again.Viewers[0])
}

func TestMemoryRoomRepository_FindByConnection(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRoom("a", "b1")))
	require.NoError(t, repo.Create(ctx, newRoom("b", "b2")))
	require.NoError(t, repo.Create(ctx, newRoom("c", "b3")))
	_, err := repo.AddViewer(ctx, "b", "b1")
	require.NoError(t, err)
	_, err = repo.AddViewer(ctx, "c", "v9")
	require.NoError(t, err)

	rooms, err := repo.FindByConnection(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.RoomID("a"), rooms[0].ID)
	assert.Equal(t, domain.RoomID("b"), rooms[1].ID)

	_, err = repo.RemoveViewer(ctx, "b", "b1")
	require.NoError(t, err)
	rooms, err = repo.FindByConnection(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	// deleting a room clears the index for every member
	_, err = repo.Delete(ctx, "c")
	require.NoError(t, err)
	rooms, err = repo.FindByConnection(ctx, "v9")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	rooms, err = repo.FindByConnection(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestMemoryRoomRepository_Delete(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRoom("demo", "b1")))
	_, err := repo.AddViewer(ctx, "demo", "v1")
	require.NoError(t, err)

	room, err := repo.Delete(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"v1"}, room.Viewers)

	_, err = repo.Delete(ctx, "demo")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)

	// the id is free again
	assert.NoError(t, repo.Create(ctx, newRoom("demo", "b2")))
}
