package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberIDs(members []Participant) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestRoomRegistryJoinOrdersByJoinTime(t *testing.T) {
	r := NewRoomRegistry()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.Join("g1", Participant{ID: "bob"}, "c1", t0)
	r.Join("g1", Participant{ID: "alice"}, "c2", t0.Add(time.Second))
	members := r.Join("g1", Participant{ID: "carol"}, "c3", t0)

	assert.Equal(t, []string{"bob", "carol", "alice"}, memberIDs(members))
}

func TestRoomRegistryRejoinRefreshesProfile(t *testing.T) {
	r := NewRoomRegistry()
	now := time.Now()

	r.Join("g1", Participant{ID: "alice", Amount: 100}, "c1", now)
	members := r.Join("g1", Participant{ID: "alice", Amount: 80}, "c2", now.Add(time.Minute))

	require.Len(t, members, 1)
	assert.Equal(t, int64(80), members[0].Amount)
	assert.Equal(t, []string{"c1", "c2"}, r.Connections("g1", "alice"))

	// the same connection joining twice is not duplicated
	r.Join("g1", Participant{ID: "alice", Amount: 80}, "c2", now)
	assert.Equal(t, []string{"c1", "c2"}, r.Connections("g1", "alice"))
}

func TestRoomRegistryJoinMovesConnectionBetweenParticipants(t *testing.T) {
	r := NewRoomRegistry()
	now := time.Now()

	r.Join("g1", Participant{ID: "alice"}, "c1", now)
	r.Join("g1", Participant{ID: "carol"}, "c2", now)
	r.Join("g1", Participant{ID: "carol"}, "c3", now)

	members := r.Join("g1", Participant{ID: "bob"}, "c1", now.Add(time.Second))
	assert.Equal(t, []string{"carol", "bob"}, memberIDs(members), "alice lost her only connection")

	members = r.Join("g1", Participant{ID: "bob"}, "c2", now.Add(2*time.Second))
	assert.Equal(t, []string{"carol", "bob"}, memberIDs(members))
	assert.Equal(t, []string{"c3"}, r.Connections("g1", "carol"))
	assert.Equal(t, []string{"c1", "c2"}, r.Connections("g1", "bob"))

	r.Leave("c1")
	r.Leave("c2")
	assert.Equal(t, []string{"carol"}, memberIDs(r.Members("g1")))

	r.Leave("c3")
	assert.Empty(t, r.Members("g1"))
}

func TestRoomRegistryLeave(t *testing.T) {
	tests := []struct {
		name        string
		leave       []string
		wantMembers []string
		wantRemoved []bool
	}{
		{
			name:        "one of two connections",
			leave:       []string{"a1"},
			wantMembers: []string{"alice", "bob"},
			wantRemoved: []bool{false},
		},
		{
			name:        "last connection removes participant",
			leave:       []string{"a1", "a2"},
			wantMembers: []string{"bob"},
			wantRemoved: []bool{false, true},
		},
		{
			name:        "unknown connection",
			leave:       []string{"zz"},
			wantMembers: []string{"alice", "bob"},
			wantRemoved: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRoomRegistry()
			now := time.Now()
			r.Join("g1", Participant{ID: "alice"}, "a1", now)
			r.Join("g1", Participant{ID: "alice"}, "a2", now)
			r.Join("g1", Participant{ID: "bob"}, "b1", now.Add(time.Second))

			var removed []bool
			for _, connID := range tt.leave {
				for _, d := range r.Leave(connID) {
					removed = append(removed, d.Removed)
				}
			}

			assert.Equal(t, tt.wantRemoved, removed)
			assert.Equal(t, tt.wantMembers, memberIDs(r.Members("g1")))
		})
	}
}

func TestRoomRegistryLeaveSpansGroups(t *testing.T) {
	r := NewRoomRegistry()
	now := time.Now()
	r.Join("g1", Participant{ID: "alice"}, "c1", now)
	r.Join("g2", Participant{ID: "alice"}, "c1", now)
	r.Join("g2", Participant{ID: "bob"}, "c2", now)

	assert.Equal(t, []string{"g1", "g2"}, r.GroupsOf("c1"))

	departures := r.Leave("c1")
	require.Len(t, departures, 2)
	assert.Equal(t, "g1", departures[0].GroupID)
	assert.Empty(t, departures[0].Members)
	assert.Equal(t, []string{"bob"}, memberIDs(departures[1].Members))

	assert.Empty(t, r.GroupsOf("c1"))
	assert.Empty(t, r.Members("g1"))
}

func TestRoomRegistryUpdateBalance(t *testing.T) {
	r := NewRoomRegistry()
	r.Join("g1", Participant{ID: "alice", Amount: 100}, "c1", time.Now())

	assert.True(t, r.UpdateBalance("g1", "alice", 40))
	assert.False(t, r.UpdateBalance("g1", "bob", 40))
	assert.False(t, r.UpdateBalance("g2", "alice", 40))
	assert.Equal(t, int64(40), r.Members("g1")[0].Amount)
}
