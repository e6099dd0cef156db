package protocol

import (
	"context"

	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
)

// RoundMachine is one stage of a round based protocol, driven by an Executor.
type RoundMachine interface {
	// Outgoing yields messages to publish. It is closed once the machine has a result or failed.
	Outgoing() <-chan *relay.Message
	// Deliver feeds one message addressed to this party. A returned error is fatal to the stage.
	Deliver(msg *relay.Message) error
	// Result is valid after Outgoing is closed.
	Result() (interface{}, error)
	// Stop aborts the machine and closes Outgoing.
	Stop()
}

// Room is the membership an Executor exchanges messages through. *relay.Room implements it.
type Room interface {
	Name() string
	PartyIndex() uint16
	Send(ctx context.Context, msg *relay.Message) error
	Next(ctx context.Context) (*relay.Message, error)
	// Unread returns msg, the last message Next yielded, to the room so it is yielded again.
	Unread(msg *relay.Message)
}
