package protocol

import (
	"context"

	"github.com/kashguard/go-mpc-roomsigner/internal/metrics"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/rs/zerolog/log"
)

// Executor drives a RoundMachine to completion through a Room.
// All calls into the machine happen on the goroutine running Run.
type Executor struct {
	stage string
}

func NewExecutor(stage string) *Executor {
	return &Executor{stage: stage}
}

type incoming struct {
	msg *relay.Message
	err error
}

// Run flushes the machine's outgoing messages and feeds it every message addressed
// to this party until the machine finishes. Machine and room errors are not retried.
// Run returns only after its reader has stopped, leaving the room positioned after the
// last message the machine received.
func (e *Executor) Run(ctx context.Context, room Room, machine RoundMachine) (interface{}, error) {
	ctx, cancel := context.WithCancel(ctx)
	self := room.PartyIndex()
	in := make(chan incoming)
	pumpDone := make(chan struct{})
	defer func() {
		cancel()
		<-pumpDone
	}()

	go func() {
		defer close(pumpDone)
		for {
			msg, err := room.Next(ctx)
			if err == nil && !msg.IsFor(self) {
				continue
			}
			select {
			case in <- incoming{msg: msg, err: err}:
			case <-ctx.Done():
				// never handed to the machine, so the room must not count it as read
				if err == nil {
					room.Unread(msg)
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()

	out := machine.Outgoing()
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return machine.Result()
			}
			msg.Sender = self
			if err := room.Send(ctx, msg); err != nil {
				machine.Stop()
				return nil, err
			}
			metrics.RoundMessages.WithLabelValues(e.stage, "sent").Inc()

		case item := <-in:
			if item.err != nil {
				machine.Stop()
				return nil, item.err
			}
			if err := machine.Deliver(item.msg); err != nil {
				log.Warn().Err(err).Str("stage", e.stage).Str("room", room.Name()).Uint16("sender", item.msg.Sender).Uint64("seq", item.msg.Seq).Msg("Round machine rejected message")
				machine.Stop()
				return nil, err
			}
			metrics.RoundMessages.WithLabelValues(e.stage, "delivered").Inc()

		case <-ctx.Done():
			machine.Stop()
			return nil, ctx.Err()
		}
	}
}
