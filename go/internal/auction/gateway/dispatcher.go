package gateway

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/rs/zerolog/log"
)

// Coordinator is the part of auction.Coordinator the gateway drives.
type Coordinator interface {
	Join(ctx context.Context, groupID, participantID, connID string) error
	Leave(ctx context.Context, connID string)
	NewBid(ctx context.Context, groupID string, payload any) error
	PlaceBid(ctx context.Context, req auction.BidRequest) (auction.Bid, error)
	Pause(ctx context.Context, duration time.Duration) error
	Reset(ctx context.Context, groupID string) error
	Snapshot(ctx context.Context, groupID string) (auction.GroupSnapshot, error)
}

// Dispatcher routes client messages to the coordinator.
type Dispatcher struct {
	coordinator Coordinator
	manager     *ConnectionManager
}

func (d *Dispatcher) HandleMessage(ctx context.Context, conn *Connection, msg InboundMessage) {
	switch msg.Type {
	case MessageJoinRoom:
		d.joinRoom(ctx, conn, msg)
	case MessageNewBid:
		d.newBid(ctx, conn, msg)
	case MessagePauseRequest:
		d.pauseRequest(ctx, conn, msg)
	default:
		log.Debug().Str("connection_id", conn.ID).Str("type", msg.Type).Msg("unknown client message type")
		d.manager.SendTo(conn, errorMessage(msg.Type, "unknown message type"))
	}
}

func (d *Dispatcher) Disconnected(ctx context.Context, conn *Connection) {
	d.coordinator.Leave(ctx, conn.ID)
}

// joinRoom subscribes the connection before joining so it receives the
// member list broadcast caused by its own join.
func (d *Dispatcher) joinRoom(ctx context.Context, conn *Connection, msg InboundMessage) {
	var data JoinRoomData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.GroupID == "" || data.ParticipantID == "" {
		d.manager.SendTo(conn, errorMessage(msg.Type, "participantId and groupId are required"))
		return
	}

	added, ok := d.manager.Subscribe(conn, data.GroupID)
	if !ok {
		return
	}
	if err := d.coordinator.Join(ctx, data.GroupID, data.ParticipantID, conn.ID); err != nil {
		// an earlier successful join keeps its subscription
		if added {
			d.manager.Unsubscribe(conn, data.GroupID)
		}
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Str("group_id", data.GroupID).
			Str("participant_id", data.ParticipantID).
			Msg("join-room failed")
		d.manager.SendTo(conn, errorMessage(msg.Type, "unable to join group"))
	}
}

func (d *Dispatcher) newBid(ctx context.Context, conn *Connection, msg InboundMessage) {
	var data NewBidData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.GroupID == "" {
		d.manager.SendTo(conn, errorMessage(msg.Type, "groupId is required"))
		return
	}
	if err := d.coordinator.NewBid(ctx, data.GroupID, data.BidPayload); err != nil {
		log.Warn().Err(err).Str("group_id", data.GroupID).Msg("new-bid failed")
		d.manager.SendTo(conn, errorMessage(msg.Type, "unable to relay bid"))
	}
}

func (d *Dispatcher) pauseRequest(ctx context.Context, conn *Connection, msg InboundMessage) {
	var data PauseRequestData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			d.manager.SendTo(conn, errorMessage(msg.Type, "duration must be a number of minutes"))
			return
		}
	}
	if err := d.coordinator.Pause(ctx, minutes(data.Duration)); err != nil {
		log.Error().Err(err).Msg("pause-request failed")
		d.manager.SendTo(conn, errorMessage(msg.Type, "unable to pause auction"))
	}
}
