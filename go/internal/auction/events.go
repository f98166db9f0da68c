package auction

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies an outbound auction event.
type EventType string

const (
	EventMemberListUpdate  EventType = "member-list-update"
	EventBidBroadcast      EventType = "bid-broadcast"
	EventCountdownProgress EventType = "countdown-progress"
	EventTeamResolved      EventType = "team-resolved"
	EventAuctionPaused     EventType = "auction-paused"
	EventNoTeamFound       EventType = "no-team-found"

	// EventResolutionFailed is internal: published to the event bus, never to clients.
	EventResolutionFailed EventType = "resolution-failed"
)

// Internal reports whether the event must stay off client connections.
func (t EventType) Internal() bool {
	return t == EventResolutionFailed
}

// Event is the envelope handed to a Broadcaster.
type Event struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(groupID string, typ EventType, at time.Time, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}
}

// Broadcaster delivers events to everything listening on a group.
// Implementations must not block the caller.
type Broadcaster interface {
	Broadcast(event Event)
}

// Broadcasters fans an event out to several broadcasters.
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(event Event) {
	for _, b := range bs {
		if b != nil {
			b.Broadcast(event)
		}
	}
}

// MemberListPayload carries profile data only, never connection ids.
type MemberListPayload struct {
	Members []Participant `json:"members"`
}

// BidBroadcastPayload relays the client bid payload untouched.
type BidBroadcastPayload struct {
	BidPayload any `json:"bidPayload"`
}

// CountdownProgressPayload is emitted once per countdown period while time remains.
type CountdownProgressPayload struct {
	Team        Team `json:"team"`
	SecondsLeft int  `json:"secondsLeft"`
}

// StatusPayload is used by team-resolved and no-team-found.
type StatusPayload struct {
	Message string            `json:"message"`
	Team    *Team             `json:"team,omitempty"`
	Status  TransactionStatus `json:"status,omitempty"`
}

// PausedPayload is emitted when a group enters a pause window.
type PausedPayload struct {
	Message    string    `json:"message"`
	PauseState Settings  `json:"pauseState"`
	ResumeAt   time.Time `json:"resumeAt"`
}

// ResolutionFailedPayload describes a resolution or advance that was abandoned.
type ResolutionFailedPayload struct {
	Team    *Team     `json:"team,omitempty"`
	Stage   string    `json:"stage"`
	Error   string    `json:"error"`
	RetryAt time.Time `json:"retryAt"`
}
