package chat

import (
	"encoding/json"
	"time"
)

// Event types exchanged with clients.
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventSendMessage  = "send-message"
	EventRoomHistory  = "room-history"
	EventMemberJoined = "member-joined"
	EventMemberLeft   = "member-left"
	EventNewMessage   = "new-message"
	EventRoomClosed   = "room-closed"
	EventError        = "error"
)

// ReasonTournamentEnded is the room-closed reason emitted by the sweeper.
const ReasonTournamentEnded = "tournament_ended"

// Identity is the verified caller attached to a connection at handshake.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// LiveMessage is an ephemeral chat message held in a room buffer.
type LiveMessage struct {
	ID           string    `json:"id"`
	TournamentID string    `json:"tournamentId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Envelope is the JSON frame for every event in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRequest is the join-room payload.
type JoinRequest struct {
	TournamentID string    `json:"tournamentId"`
	Members      []string  `json:"members"`
	EndTime      time.Time `json:"endTime"`
}

// LeaveRequest is the leave-room payload.
type LeaveRequest struct {
	TournamentID string `json:"tournamentId"`
}

// SendRequest is the send-message payload.
type SendRequest struct {
	TournamentID string `json:"tournamentId"`
	Text         string `json:"text"`
}

// RoomHistory is the room-history payload sent once to a joiner.
type RoomHistory struct {
	TournamentID string        `json:"tournamentId"`
	Messages     []LiveMessage `json:"messages"`
}

// MemberNotice is the member-joined and member-left payload.
type MemberNotice struct {
	TournamentID string `json:"tournamentId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
}

// RoomClosed is the room-closed payload.
type RoomClosed struct {
	TournamentID string `json:"tournamentId"`
	Reason       string `json:"reason"`
}

// ErrorPayload is the error event payload.
type ErrorPayload struct {
	Message     string `json:"message"`
	Kind        Kind   `json:"kind"`
	RequestType string `json:"requestType,omitempty"`
}

// Subscriber is a connection that can receive room events.
type Subscriber interface {
	// ID uniquely identifies the connection.
	ID() string
	// Identity returns the identity attached at handshake.
	Identity() Identity
	// Deliver enqueues a frame without blocking. It returns false when the
	// subscriber can no longer accept frames.
	Deliver(frame []byte) bool
}

// Encode marshals an event into a frame.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// mustEncode is used for payload types that always marshal.
func mustEncode(eventType string, payload any) []byte {
	frame, err := Encode(eventType, payload)
	if err != nil {
		panic(err)
	}
	return frame
}
