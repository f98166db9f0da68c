package auction

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// member is a participant present in a group with one or more live connections.
type member struct {
	participant Participant
	connIDs     []string
	joinedAt    time.Time
}

// RoomRegistry tracks which participants are in which group and which
// connections belong to them. A participant entry never has zero connections.
type RoomRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[string]*member // groupID -> participantID -> member
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		groups: make(map[string]map[string]*member),
	}
}

// Join registers connID for the participant in groupID. An existing entry
// gets the connection appended and its profile refreshed. A connection
// belongs to one participant per group, so connID is first taken away from
// any other participant there. It returns the updated member list.
func (r *RoomRegistry) Join(groupID string, p Participant, connID string, now time.Time) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[groupID]
	if !ok {
		members = make(map[string]*member)
		r.groups[groupID] = members
	}

	for participantID, m := range members {
		if participantID == p.ID {
			continue
		}
		if idx := slices.Index(m.connIDs, connID); idx >= 0 {
			m.connIDs = slices.Delete(m.connIDs, idx, idx+1)
			if len(m.connIDs) == 0 {
				delete(members, participantID)
			}
		}
	}

	if m, ok := members[p.ID]; ok {
		m.participant = p
		if !slices.Contains(m.connIDs, connID) {
			m.connIDs = append(m.connIDs, connID)
		}
	} else {
		members[p.ID] = &member{participant: p, connIDs: []string{connID}, joinedAt: now}
	}

	return r.listLocked(groupID)
}

// Departure is the effect of a connection leaving one group.
type Departure struct {
	GroupID       string
	ParticipantID string
	Removed       bool // the participant had no connections left
	Members       []Participant
}

// Leave drops connID from every group it appears in. Participants whose last
// connection goes away are removed, and groups left empty are deleted.
func (r *RoomRegistry) Leave(connID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	groupIDs := make([]string, 0, len(r.groups))
	for groupID := range r.groups {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Strings(groupIDs)

	var out []Departure
	for _, groupID := range groupIDs {
		if d, ok := r.leaveLocked(groupID, connID); ok {
			out = append(out, d)
		}
	}
	return out
}

// LeaveGroup drops connID from a single group.
func (r *RoomRegistry) LeaveGroup(groupID, connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(groupID, connID)
}

func (r *RoomRegistry) leaveLocked(groupID, connID string) (Departure, bool) {
	members := r.groups[groupID]
	for participantID, m := range members {
		idx := slices.Index(m.connIDs, connID)
		if idx < 0 {
			continue
		}
		m.connIDs = slices.Delete(m.connIDs, idx, idx+1)
		d := Departure{GroupID: groupID, ParticipantID: participantID}
		if len(m.connIDs) == 0 {
			delete(members, participantID)
			d.Removed = true
		}
		if len(members) == 0 {
			delete(r.groups, groupID)
		}
		d.Members = r.listLocked(groupID)
		// a connection belongs to one participant per group
		return d, true
	}
	return Departure{}, false
}

// GroupsOf returns the groups in which connID is registered.
func (r *RoomRegistry) GroupsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var groups []string
	for groupID, members := range r.groups {
		for _, m := range members {
			if slices.Contains(m.connIDs, connID) {
				groups = append(groups, groupID)
				break
			}
		}
	}
	sort.Strings(groups)
	return groups
}

// UpdateBalance sets the cached balance of a present participant and reports
// whether the participant was found in the group.
func (r *RoomRegistry) UpdateBalance(groupID, participantID string, amount int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.groups[groupID][participantID]
	if !ok {
		return false
	}
	m.participant.Amount = amount
	return true
}

// Members returns the participants of a group ordered by join time.
func (r *RoomRegistry) Members(groupID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(groupID)
}

// Connections returns the connection ids of a participant in a group.
func (r *RoomRegistry) Connections(groupID, participantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.groups[groupID][participantID]
	if !ok {
		return nil
	}
	return slices.Clone(m.connIDs)
}

func (r *RoomRegistry) listLocked(groupID string) []Participant {
	members := r.groups[groupID]
	ordered := make([]*member, 0, len(members))
	for _, m := range members {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].joinedAt.Equal(ordered[j].joinedAt) {
			return ordered[i].participant.ID < ordered[j].participant.ID
		}
		return ordered[i].joinedAt.Before(ordered[j].joinedAt)
	})

	out := make([]Participant, 0, len(ordered))
	for _, m := range ordered {
		out = append(out, m.participant)
	}
	return out
}
