package presence

import (
	"fmt"
	"sort"
	"time"
)

// Room types understood by ResolveRoomID.
const (
	TypeGlobal = "global"
	TypeLocal  = "local"
	TypeCustom = "custom"

	GlobalRoomID = "global-main"
	LocalRoomID  = "local-main"
)

// JoinRequest is the payload of a join-room operation.
type JoinRequest struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// ResolveRoomID maps a join request to a room identifier. generated reports
// whether the id was minted from now rather than taken from the request.
func ResolveRoomID(req JoinRequest, now time.Time) (roomID string, generated bool) {
	switch {
	case req.Type == TypeGlobal:
		return GlobalRoomID, false
	case req.Type == TypeLocal:
		return LocalRoomID, false
	case req.Code != "":
		return req.Code, false
	default:
		return fmt.Sprintf("room-%d", now.UnixMilli()), true
	}
}

// view returns the room type and code a join request reports. Global and local
// rooms ignore any code the request carried.
func (req JoinRequest) view() (kind, code string) {
	kind = req.Type
	if kind == "" {
		kind = TypeCustom
	}
	if kind == TypeGlobal || kind == TypeLocal {
		return kind, ""
	}
	return kind, req.Code
}

// DisplayName returns the human readable name of a room of the given type.
func DisplayName(roomType string) string {
	if roomType == "" {
		roomType = TypeCustom
	}
	return roomType + " Hood"
}

// RoomSnapshot is the full state of a room sent to a joining connection.
type RoomSnapshot struct {
	RoomID       string   `json:"roomId"`
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Code         string   `json:"code,omitempty"`
	Participants []Member `json:"participants"`
}

// RoomSummary is the read-only view of a room exposed over HTTP.
type RoomSummary struct {
	RoomID  string `json:"roomId"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type roomEntry struct {
	member Member
	seq    uint64
}

// room owns its member entries. Callers must hold the registry lock.
type room struct {
	id      string
	kind    string
	name    string
	code    string
	members map[string]*roomEntry
	nextSeq uint64
}

func newRoom(id string, req JoinRequest) *room {
	kind, code := req.view()
	return &room{
		id:      id,
		kind:    kind,
		name:    DisplayName(kind),
		code:    code,
		members: make(map[string]*roomEntry),
	}
}

// put inserts or refreshes the member keyed by its connection id. A refreshed
// member keeps its original position.
func (r *room) put(m Member) {
	if e, ok := r.members[m.ConnectionID]; ok {
		e.member = m
		return
	}
	r.nextSeq++
	r.members[m.ConnectionID] = &roomEntry{member: m, seq: r.nextSeq}
}

func (r *room) remove(connID string) (Member, bool) {
	e, ok := r.members[connID]
	if !ok {
		return Member{}, false
	}
	delete(r.members, connID)
	return e.member, true
}

func (r *room) empty() bool {
	return len(r.members) == 0
}

// participants lists members in join order.
func (r *room) participants() []Member {
	entries := make([]*roomEntry, 0, len(r.members))
	for _, e := range r.members {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Member, len(entries))
	for i, e := range entries {
		out[i] = e.member
	}
	return out
}

// connections returns the connection ids of every member except skip.
func (r *room) connections(skip string) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != skip {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *room) snapshot() RoomSnapshot {
	return RoomSnapshot{
		RoomID:       r.id,
		Type:         r.kind,
		Name:         r.name,
		Code:         r.code,
		Participants: r.participants(),
	}
}

// snapshotFor describes the room as requested by one joiner, so type and code
// follow that joiner's request rather than the room's creator.
func (r *room) snapshotFor(req JoinRequest) RoomSnapshot {
	snap := r.snapshot()
	snap.Type, snap.Code = req.view()
	snap.Name = DisplayName(snap.Type)
	return snap
}

func (r *room) summary() RoomSummary {
	return RoomSummary{RoomID: r.id, Type: r.kind, Name: r.name, Members: len(r.members)}
}
