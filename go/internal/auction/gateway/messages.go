package gateway

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/mcdev12/teamauction/go/internal/auction"
)

// Inbound message types.
const (
	MessageJoinRoom     = "join-room"
	MessageNewBid       = "new-bid"
	MessagePauseRequest = "pause-request"
)

// MessageError is sent to a single connection when its request failed.
const MessageError = "error"

// InboundMessage is a client request: {"type": "...", "data": {...}}.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinRoomData is the data of a join-room message.
type JoinRoomData struct {
	ParticipantID string `json:"participantId"`
	GroupID       string `json:"groupId"`
}

// NewBidData is the data of a new-bid message. BidPayload is relayed as is.
type NewBidData struct {
	GroupID    string          `json:"groupId"`
	BidPayload json.RawMessage `json:"bidPayload"`
}

// PauseRequestData carries the pause duration in minutes.
type PauseRequestData struct {
	Duration float64 `json:"duration"`
}

// OutboundMessage is what clients receive.
type OutboundMessage struct {
	Type      string    `json:"type"`
	GroupID   string    `json:"groupId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorData is the data of an error message.
type ErrorData struct {
	Request string `json:"request,omitempty"`
	Message string `json:"message"`
}

func newOutboundMessage(event auction.Event) OutboundMessage {
	return OutboundMessage{
		Type:      string(event.Type),
		GroupID:   event.GroupID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
}

func errorMessage(request, message string) OutboundMessage {
	return OutboundMessage{
		Type:      MessageError,
		Data:      ErrorData{Request: request, Message: message},
		Timestamp: time.Now(),
	}
}

// minutes converts a client pause duration to a time.Duration.
func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
