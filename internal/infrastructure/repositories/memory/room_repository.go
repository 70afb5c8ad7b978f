package memory

import (
	"context"
	"sort"
	"sync"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"
)

// MemoryRoomRepository keeps rooms in process memory together with a
// reverse index from member connection to the rooms it belongs to, so
// disconnect cleanup never scans every room.
type MemoryRoomRepository struct {
	rooms  map[domain.RoomID]*domain.Room
	byConn map[domain.ConnectionID]map[domain.RoomID]struct{}
	mu     sync.RWMutex
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		rooms:  make(map[domain.RoomID]*domain.Room),
		byConn: make(map[domain.ConnectionID]map[domain.RoomID]struct{}),
	}
}

func (r *MemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID]; exists {
		return domain.ErrStreamExists
	}

	stored := room.Clone()
	r.rooms[room.ID] = stored
	for _, member := range stored.Members() {
		r.index(member, room.ID)
	}
	return nil
}

func (r *MemoryRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}
	return room.Clone(), nil
}

// Delete removes the room and returns its last state.
func (r *MemoryRoomRepository) Delete(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}

	delete(r.rooms, id)
	for _, member := range room.Members() {
		r.unindex(member, id)
	}
	return room, nil
}

// AddViewer appends viewer to the room; adding an existing viewer is a no-op.
func (r *MemoryRoomRepository) AddViewer(ctx context.Context, id domain.RoomID, viewer domain.ConnectionID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}
	if !room.HasViewer(viewer) {
		room.Viewers = append(room.Viewers, viewer)
		r.index(viewer, id)
	}
	return room.Clone(), nil
}

func (r *MemoryRoomRepository) RemoveViewer(ctx context.Context, id domain.RoomID, viewer domain.ConnectionID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrStreamNotFound
	}

	for i, v := range room.Viewers {
		if v == viewer {
			room.Viewers = append(room.Viewers[:i], room.Viewers[i+1:]...)
			r.unindex(viewer, id)
			break
		}
	}
	return room.Clone(), nil
}

func (r *MemoryRoomRepository) FindByConnection(ctx context.Context, conn domain.ConnectionID) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byConn[conn]
	rooms := make([]*domain.Room, 0, len(ids))
	for id := range ids {
		if room, ok := r.rooms[id]; ok {
			rooms = append(rooms, room.Clone())
		}
	}
	sortRooms(rooms)
	return rooms, nil
}

func (r *MemoryRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room.Clone())
	}
	sortRooms(rooms)
	return rooms, nil
}

// caller holds r.mu
func (r *MemoryRoomRepository) index(conn domain.ConnectionID, id domain.RoomID) {
	set, ok := r.byConn[conn]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		r.byConn[conn] = set
	}
	set[id] = struct{}{}
}

// caller holds r.mu
func (r *MemoryRoomRepository) unindex(conn domain.ConnectionID, id domain.RoomID) {
	set, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byConn, conn)
	}
}

func sortRooms(rooms []*domain.Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
}
