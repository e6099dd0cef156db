package relay

import (
	"fmt"
	"regexp"
)

// Stage names used to derive room names.
const (
	StageKeygen  = "keygen"
	StageOffline = "offline"
	StageOnline  = "online"
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Message is the envelope exchanged through a room. Seq is assigned by the relay
// and travels as the SSE event id, never inside the JSON body.
type Message struct {
	Sender   uint16  `json:"sender"`
	Receiver *uint16 `json:"receiver"`
	Body     []byte  `json:"body"`

	Seq uint64 `json:"-"`
}

func NewBroadcast(sender uint16, body []byte) *Message {
	return &Message{Sender: sender, Body: body}
}

func NewP2P(sender, receiver uint16, body []byte) *Message {
	return &Message{Sender: sender, Receiver: &receiver, Body: body}
}

func (m *Message) IsBroadcast() bool {
	return m.Receiver == nil
}

// IsFor reports whether party index should consume m. A party never consumes its own messages.
func (m *Message) IsFor(index uint16) bool {
	if m.Sender == index {
		return false
	}
	return m.Receiver == nil || *m.Receiver == index
}

// ValidRoomName reports whether name is accepted by the relay.
func ValidRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// RoomName derives the room of one stage of a session.
func RoomName(session string, stage string) string {
	return fmt.Sprintf("%s-%s", session, stage)
}
