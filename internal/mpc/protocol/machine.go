package protocol

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	mpsprotocol "github.com/taurusgroup/multi-party-sig/pkg/protocol"
)

// handlerMachine adapts a multi-party-sig handler to RoundMachine. Round messages travel
// CBOR encoded in the envelope body; the handler session id is the room name.
type handlerMachine struct {
	room    string
	self    uint16
	handler *mpsprotocol.MultiHandler
	out     chan *relay.Message
	stop    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	encErr error
}

func newHandlerMachine(room string, self uint16, start mpsprotocol.StartFunc) (*handlerMachine, error) {
	h, err := mpsprotocol.NewMultiHandler(start, []byte(room))
	if err != nil {
		return nil, errors.Wrap(err, "failed to start round machine")
	}

	m := &handlerMachine{
		room:    room,
		self:    self,
		handler: h,
		out:     make(chan *relay.Message),
		stop:    make(chan struct{}),
	}
	go m.forward()
	return m, nil
}

func (m *handlerMachine) forward() {
	defer close(m.out)

	for msg := range m.handler.Listen() {
		env, err := m.envelope(msg)
		if err != nil {
			m.mu.Lock()
			m.encErr = err
			m.mu.Unlock()
			m.handler.Stop()
			continue
		}
		select {
		case m.out <- env:
		case <-m.stop:
			return
		}
	}
}

func (m *handlerMachine) envelope(msg *mpsprotocol.Message) (*relay.Message, error) {
	body, err := cbor.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode round message")
	}
	if msg.To == "" {
		return relay.NewBroadcast(m.self, body), nil
	}
	to, err := PartyIndex(msg.To)
	if err != nil {
		return nil, err
	}
	return relay.NewP2P(m.self, to, body), nil
}

func (m *handlerMachine) Outgoing() <-chan *relay.Message {
	return m.out
}

func (m *handlerMachine) Deliver(env *relay.Message) error {
	var msg mpsprotocol.Message
	if err := cbor.Unmarshal(env.Body, &msg); err != nil {
		return mpcerrors.NewProtocolError(m.room, []uint16{env.Sender}, "malformed round message", err)
	}

	from, err := PartyIndex(msg.From)
	if err != nil || from != env.Sender {
		return mpcerrors.NewProtocolError(m.room, []uint16{env.Sender}, "round message sender does not match envelope", err)
	}
	if msg.To != "" && (env.Receiver == nil || PartyID(*env.Receiver) != msg.To) {
		return mpcerrors.NewProtocolError(m.room, []uint16{env.Sender}, "round message receiver does not match envelope", nil)
	}

	if !m.handler.CanAccept(&msg) {
		log.Debug().Str("room", m.room).Uint16("sender", env.Sender).Uint64("seq", env.Seq).Msg("Round machine ignored message")
		return nil
	}
	m.handler.Accept(&msg)
	return nil
}

func (m *handlerMachine) Result() (interface{}, error) {
	m.mu.Lock()
	encErr := m.encErr
	m.mu.Unlock()
	if encErr != nil {
		return nil, encErr
	}

	res, err := m.handler.Result()
	if err != nil {
		return nil, m.protocolError(err)
	}
	return res, nil
}

func (m *handlerMachine) protocolError(err error) error {
	var culprits []uint16
	var valErr mpsprotocol.Error
	var ptrErr *mpsprotocol.Error
	switch {
	case errors.As(err, &ptrErr):
		culprits = PartyIndices(ptrErr.Culprits)
	case errors.As(err, &valErr):
		culprits = PartyIndices(valErr.Culprits)
	}
	return mpcerrors.NewProtocolError(m.room, culprits, "round machine aborted", err)
}

func (m *handlerMachine) Stop() {
	m.once.Do(func() {
		close(m.stop)
		m.handler.Stop()
	})
}
