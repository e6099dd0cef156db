package signing

import (
	"sync"

	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/pkg/errors"
)

// OnlineMachine is the final stage: every signer broadcasts its partial signature and
// combines its own with the ones of the other signers.
type OnlineMachine struct {
	room  string
	self  uint16
	agg   *Aggregator
	local *PartialSignature

	out   chan *relay.Message
	once  sync.Once
	peers map[uint16]*PartialSignature

	result *FinalizedSignature
	err    error
}

func NewOnlineMachine(room string, self uint16, agg *Aggregator) (*OnlineMachine, error) {
	if !agg.IsSigner(self) {
		return nil, errors.Errorf("party %d is not a signer", self)
	}

	local := agg.Sign(self)
	body, err := local.MarshalBinary()
	if err != nil {
		return nil, err
	}

	m := &OnlineMachine{
		room:  room,
		self:  self,
		agg:   agg,
		local: local,
		out:   make(chan *relay.Message, 1),
		peers: make(map[uint16]*PartialSignature, agg.Peers()),
	}
	m.out <- relay.NewBroadcast(self, body)
	if agg.Peers() == 0 {
		m.finish()
	}
	return m, nil
}

// Local is this party's own partial signature.
func (m *OnlineMachine) Local() *PartialSignature {
	return m.local
}

func (m *OnlineMachine) Outgoing() <-chan *relay.Message {
	return m.out
}

func (m *OnlineMachine) Deliver(msg *relay.Message) error {
	if m.result != nil || m.err != nil {
		return nil
	}
	if !msg.IsBroadcast() {
		return mpcerrors.NewProtocolError(m.room, []uint16{msg.Sender}, "partial signatures must be broadcast", nil)
	}
	if !m.agg.IsSigner(msg.Sender) {
		return mpcerrors.NewProtocolError(m.room, []uint16{msg.Sender}, "partial signature from a party outside the signing set", nil)
	}

	partial, err := UnmarshalPartialSignature(msg.Body)
	if err != nil {
		return mpcerrors.NewProtocolError(m.room, []uint16{msg.Sender}, "malformed partial signature", err)
	}
	if partial.Signer != msg.Sender {
		return mpcerrors.NewProtocolError(m.room, []uint16{msg.Sender}, "partial signature signer does not match envelope", nil)
	}
	if _, dup := m.peers[msg.Sender]; dup {
		return mpcerrors.NewProtocolError(m.room, []uint16{msg.Sender}, "duplicate partial signature", nil)
	}

	m.peers[msg.Sender] = partial
	if len(m.peers) == m.agg.Peers() {
		m.finish()
	}
	return nil
}

func (m *OnlineMachine) finish() {
	peers := make([]*PartialSignature, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.result, m.err = m.agg.Complete(m.local, peers)
	m.once.Do(func() { close(m.out) })
}

// Result returns the *FinalizedSignature.
func (m *OnlineMachine) Result() (interface{}, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return nil, errors.New("online stage did not complete")
	}
	return m.result, nil
}

func (m *OnlineMachine) Stop() {
	m.once.Do(func() { close(m.out) })
}
