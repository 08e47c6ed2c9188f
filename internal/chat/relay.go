package chat

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

// Send admits a message from sub into the tournament's room and broadcasts
// it to every subscriber, the sender included. Checks run in order: the room
// exists, the room is still open, the sender is a member, the text is not
// blank. Text is truncated rather than rejected.
func (m *Manager) Send(sub Subscriber, tournamentID, text string) (LiveMessage, error) {
	room := m.lookup(tournamentID)
	if room == nil {
		if m.tombstoned(tournamentID) {
			return LiveMessage{}, ChatClosedError("chat for this tournament has closed")
		}
		return LiveMessage{}, NotFoundError("chat room not found")
	}

	msg, err := m.admit(room, sub.Identity(), text)
	if err != nil {
		return LiveMessage{}, err
	}

	telemetry.IncRelayed()
	m.sinkMu.RLock()
	sinks := m.sinks
	m.sinkMu.RUnlock()
	for _, sink := range sinks {
		sink.Publish(msg)
	}
	return msg, nil
}

// admit appends and broadcasts under the room lock so every subscriber sees
// the room's messages in admission order.
func (m *Manager) admit(room *Room, ident Identity, text string) (LiveMessage, error) {
	room.mu.Lock()
	defer room.mu.Unlock()

	now := m.clock.Now()
	if room.closed || now.After(room.endOfLife) {
		return LiveMessage{}, ChatClosedError("chat for this tournament has closed")
	}
	if !room.isMember(ident.UserID) {
		return LiveMessage{}, UnauthorizedError("you are not a member of this tournament")
	}
	if strings.TrimSpace(text) == "" {
		return LiveMessage{}, ValidationError("message text is required")
	}

	msg := LiveMessage{
		ID:           fmt.Sprintf("%d-%s-%d", now.UnixMilli(), ident.UserID, m.seq.Add(1)),
		TournamentID: room.tournamentID,
		SenderID:     ident.UserID,
		SenderName:   ident.DisplayName,
		Text:         truncateUTF16(text, m.maxText),
		CreatedAt:    now.UTC(),
	}
	room.append(msg)
	m.broadcastLocked(room, mustEncode(EventNewMessage, msg))
	return msg, nil
}

// ApplyRemote inserts a message admitted by another instance into the local
// room, if that room is open here, and broadcasts it to local subscribers.
// Remote messages are not handed to sinks. It reports whether the message
// was applied.
func (m *Manager) ApplyRemote(msg LiveMessage) bool {
	room := m.lookup(msg.TournamentID)
	if room == nil {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || m.clock.Now().After(room.endOfLife) {
		return false
	}
	for _, existing := range room.buffer {
		if existing.ID == msg.ID {
			return false
		}
	}
	msg.Text = truncateUTF16(msg.Text, m.maxText)
	room.append(msg)
	m.broadcastLocked(room, mustEncode(EventNewMessage, msg))

	telemetry.IncRemote()
	m.logger.Debug("applied remote message",
		zap.String("tournament_id", msg.TournamentID),
		zap.String("message_id", msg.ID))
	return true
}
