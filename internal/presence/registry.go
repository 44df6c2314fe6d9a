// Package presence keeps the process-wide registry of rooms and their members
// and computes who has to be told what when connections join, leave or speak.
//
// Every mutation of the registry captures the snapshot it reports inside the
// same critical section, so two concurrent joins always observe each other.
// Results only name target connection ids; delivering them is left to the
// caller once the lock is released.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JoinResult describes the fan-out of a successful join.
type JoinResult struct {
	// Room is sent to the joining connection only. Its Type, Name and Code
	// follow that connection's request.
	Room RoomSnapshot
	// Member is the entry created for the joining connection.
	Member Member
	// Notify lists the other connections in the room; they get user-joined
	// carrying Room.Participants.
	Notify []string
	// Left is set when the connection was moved out of another room first.
	Left *LeaveResult
}

// LeaveResult describes the fan-out of a leave or disconnect.
type LeaveResult struct {
	RoomID string
	// Member is the departing member. Found is false when the room held no
	// entry for the connection any more.
	Member       Member
	Found        bool
	Participants []Member
	Notify       []string
	// Reaped reports that the room was deleted because it became empty.
	Reaped bool
}

// Registry maps room ids to rooms and connection ids to their current room.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*room
	current map[string]string
	now     func() time.Time
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*room),
		current: make(map[string]string),
		now:     time.Now,
		logger:  logger,
	}
}

// Join places the connection in the room resolved from req. A connection that
// is already in a different room leaves it first, within the same critical
// section.
func (r *Registry) Join(connID string, id *Identity, req JoinRequest) (JoinResult, error) {
	if id == nil {
		return JoinResult{}, ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, generated := ResolveRoomID(req, r.now())
	if generated {
		roomID = r.uniqueRoomIDLocked(roomID)
	}

	var res JoinResult
	if prev, ok := r.current[connID]; ok && prev != roomID {
		left := r.leaveLocked(connID, id)
		res.Left = &left
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = newRoom(roomID, req)
		r.rooms[roomID] = rm
		r.logger.Info("room created", slog.String("roomId", roomID), slog.String("type", rm.kind))
	}

	member := newMember(*id, connID)
	rm.put(member)
	r.current[connID] = roomID

	res.Room = rm.snapshotFor(req)
	res.Member = member
	res.Notify = rm.connections(connID)

	r.logger.Info("member joined",
		slog.String("roomId", roomID),
		slog.String("nickname", member.Nickname),
		slog.String("connID", connID),
		slog.Int("participants", len(res.Room.Participants)),
	)
	return res, nil
}

// Leave removes the connection from its current room. It reports false when
// the connection is not in any room, which makes repeated disconnect cleanup
// a no-op. id supplies the departing sessionId and nickname when the room no
// longer holds an entry for the connection; it may be nil.
func (r *Registry) Leave(connID string, id *Identity) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.current[connID]; !ok {
		r.logger.Debug("leave ignored, connection is not in a room", slog.String("connID", connID))
		return LeaveResult{}, false
	}
	return r.leaveLocked(connID, id), true
}

func (r *Registry) leaveLocked(connID string, id *Identity) LeaveResult {
	roomID := r.current[connID]
	delete(r.current, connID)

	res := LeaveResult{RoomID: roomID, Participants: []Member{}, Notify: []string{}}

	rm, ok := r.rooms[roomID]
	if !ok {
		if id != nil {
			res.Member = newMember(*id, connID)
		}
		return res
	}

	res.Member, res.Found = rm.remove(connID)
	if !res.Found && id != nil {
		res.Member = newMember(*id, connID)
	}
	res.Participants = rm.participants()
	res.Notify = rm.connections("")

	if rm.empty() {
		delete(r.rooms, roomID)
		res.Reaped = true
		r.logger.Info("room deleted", slog.String("roomId", roomID))
	}

	r.logger.Info("member left",
		slog.String("roomId", roomID),
		slog.String("nickname", res.Member.Nickname),
		slog.String("connID", connID),
		slog.Int("remaining", len(res.Participants)),
	)
	return res
}

// uniqueRoomIDLocked suffixes a generated id until it names no live room.
func (r *Registry) uniqueRoomIDLocked(roomID string) string {
	candidate := roomID
	for {
		if _, taken := r.rooms[candidate]; !taken {
			return candidate
		}
		candidate = roomID + "-" + uuid.NewString()[:8]
	}
}

// CurrentRoom returns the room the connection is in.
func (r *Registry) CurrentRoom(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.current[connID]
	return roomID, ok
}

// Snapshot returns the current state of a room.
func (r *Registry) Snapshot(roomID string) (RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return rm.snapshot(), true
}

// Summary returns the read-only summary of a room.
func (r *Registry) Summary(roomID string) (RoomSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return RoomSummary{}, false
	}
	return rm.summary(), true
}

// Rooms lists every live room ordered by id.
func (r *Registry) Rooms() []RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RoomSummary, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// MemberCount returns the number of connections placed in a room.
func (r *Registry) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.current)
}
